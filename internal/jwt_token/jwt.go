// Package jwttoken issues and checks the HS256 bearer tokens that identify
// owners and tenants on the authenticated inspection routes. Invitation
// tokens on /sign are opaque and never go through here.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "habitat/pkg/domain"
	dErrors "habitat/pkg/domain-errors"
)

// Service signs with one shared key. The token subject is the caller's
// profile ID.
type Service struct {
	key      []byte
	issuer   string
	audience string
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now for issuing and for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(signingKey, issuer, audience string, opts ...Option) *Service {
	s := &Service{
		key:      []byte(signingKey),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue mints a token for profileID valid for ttl.
func (s *Service) Issue(profileID id.ProfileID, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   profileID.String(),
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// ValidateActor checks signature, issuer, audience and expiry and returns the
// subject. Every failure is CodeUnauthorized.
func (s *Service) ValidateActor(raw string) (id.ProfileID, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return id.ProfileID{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
	case err != nil:
		return id.ProfileID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	profileID, err := id.ParseProfileID(claims.Subject)
	if err != nil {
		return id.ProfileID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	return profileID, nil
}
