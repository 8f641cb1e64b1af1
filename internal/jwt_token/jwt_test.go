package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "habitat/pkg/domain"
	dErrors "habitat/pkg/domain-errors"
)

func TestValidateActor(t *testing.T) {
	issuedAt := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	clock := issuedAt
	svc := New("signing-key", "habitat", "habitat-api", WithClock(func() time.Time { return clock }))
	owner := id.ProfileID(uuid.New())

	token, err := svc.Issue(owner, time.Hour)
	require.NoError(t, err)

	t.Run("accepts its own token", func(t *testing.T) {
		actor, err := svc.ValidateActor(token)
		require.NoError(t, err)
		assert.Equal(t, owner, actor)
	})

	t.Run("rejects", func(t *testing.T) {
		noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject:   owner.String(),
			Issuer:    "habitat",
			Audience:  jwt.ClaimStrings{"habitat-api"},
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "owner-1",
			Issuer:    "habitat",
			Audience:  jwt.ClaimStrings{"habitat-api"},
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
		}).SignedString([]byte("signing-key"))
		require.NoError(t, err)

		otherAudience, err := New("signing-key", "habitat", "admin", WithClock(func() time.Time { return clock })).Issue(owner, time.Hour)
		require.NoError(t, err)
		otherKey, err := New("other-key", "habitat", "habitat-api", WithClock(func() time.Time { return clock })).Issue(owner, time.Hour)
		require.NoError(t, err)

		for name, raw := range map[string]string{
			"garbage":        "not-a-jwt",
			"alg none":       noneToken,
			"wrong audience": otherAudience,
			"wrong key":      otherKey,
			"bad subject":    badSubject,
		} {
			_, err := svc.ValidateActor(raw)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized), name)
		}
	})

	t.Run("expires", func(t *testing.T) {
		clock = issuedAt.Add(2 * time.Hour)
		defer func() { clock = issuedAt }()

		_, err := svc.ValidateActor(token)
		require.Error(t, err)
		assert.Equal(t, "token has expired", err.Error())
	})
}
