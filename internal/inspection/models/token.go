package models

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	dErrors "habitat/pkg/domain-errors"
)

const invitationTokenBytes = 32

// invitationTokenLen is the base64url (unpadded) length of 32 random bytes.
var invitationTokenLen = base64.RawURLEncoding.EncodedLen(invitationTokenBytes)

// NewInvitationToken returns an opaque bearer token for a signer invitation.
func NewInvitationToken() (string, error) {
	b := make([]byte, invitationTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate invitation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ValidateInvitationToken rejects malformed tokens before any lookup.
func ValidateInvitationToken(token string) error {
	if token == "" {
		return dErrors.New(dErrors.CodeValidation, "invitation token is required")
	}
	if len(token) != invitationTokenLen {
		return dErrors.New(dErrors.CodeValidation, "malformed invitation token")
	}
	if _, err := base64.RawURLEncoding.DecodeString(token); err != nil {
		return dErrors.New(dErrors.CodeValidation, "malformed invitation token")
	}
	return nil
}
