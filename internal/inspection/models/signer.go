package models

import (
	"strings"
	"time"

	id "habitat/pkg/domain"
)

// SignerRole is the closed set of roles that count toward completion.
type SignerRole string

const (
	RoleOwner  SignerRole = "owner"
	RoleTenant SignerRole = "tenant"
)

var roleAliases = map[string]SignerRole{
	"owner":               RoleOwner,
	"proprietaire":        RoleOwner,
	"bailleur":            RoleOwner,
	"landlord":            RoleOwner,
	"tenant":              RoleTenant,
	"locataire":           RoleTenant,
	"locataire_principal": RoleTenant,
	"colocataire":         RoleTenant,
	"principal":           RoleTenant,
}

// NormalizeRole maps a raw roster or profile role onto SignerRole.
// The second return is false for roles that never sign (guarantor, agent, ...).
func NormalizeRole(raw string) (SignerRole, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "é", "e")
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	role, ok := roleAliases[key]
	return role, ok
}

// IsTenantAlias reports whether raw names a tenant-like roster role.
func IsTenantAlias(raw string) bool {
	role, ok := NormalizeRole(raw)
	return ok && role == RoleTenant
}

// SignerEntry is one party's participation in an inspection's signature.
//
// Invariants:
//   - Unique per (InspectionID, SignerProfileID)
//   - InvitationToken is set once and never replaced
//   - Genuinely signed iff SignedAt and SignatureImagePath are both set
type SignerEntry struct {
	ID                 id.SignerID
	InspectionID       id.InspectionID
	SignerProfileID    id.ProfileID
	SignerRole         SignerRole
	InvitationToken    string
	InvitationSentAt   *time.Time
	SignedAt           *time.Time
	SignatureImagePath string
	IPAddress          string
	UserAgent          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsSigned reports whether a real signature artifact backs this entry.
// A timestamp without an image never counts.
func (s *SignerEntry) IsSigned() bool {
	return s != nil && s.SignedAt != nil && s.SignatureImagePath != ""
}

// RecordSignature sets the signature fields in place. The token is untouched.
func (s *SignerEntry) RecordSignature(imagePath, ip, userAgent string, now time.Time) {
	signedAt := now
	s.SignedAt = &signedAt
	s.SignatureImagePath = imagePath
	s.IPAddress = ip
	s.UserAgent = userAgent
	s.UpdatedAt = now
}

// InvitationExpired reports whether the invitation outlived ttl. A zero ttl
// disables expiry, and an invitation never sent cannot expire.
func (s *SignerEntry) InvitationExpired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 || s.InvitationSentAt == nil {
		return false
	}
	return now.After(s.InvitationSentAt.Add(ttl))
}

// Completion summarizes which roles have genuinely signed.
type Completion struct {
	OwnerSigned  bool
	TenantSigned bool
}

// Satisfied is true once both an owner and a tenant have signed.
func (c Completion) Satisfied() bool {
	return c.OwnerSigned && c.TenantSigned
}

// EvaluateCompletion applies the completion predicate to a full roster.
func EvaluateCompletion(entries []*SignerEntry) Completion {
	var c Completion
	for _, e := range entries {
		if !e.IsSigned() {
			continue
		}
		switch e.SignerRole {
		case RoleOwner:
			c.OwnerSigned = true
		case RoleTenant:
			c.TenantSigned = true
		}
	}
	return c
}
