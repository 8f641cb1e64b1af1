package service

import (
	"context"
	"errors"

	"habitat/internal/inspection/models"
	id "habitat/pkg/domain"
	dErrors "habitat/pkg/domain-errors"
	"habitat/pkg/platform/audit"
	"habitat/pkg/platform/sentinel"
)

// TokenAccess is what a bearer token grants: one signer on one inspection.
type TokenAccess struct {
	Inspection *models.Inspection
	Signer     *models.SignerEntry
}

// ResolveByToken resolves an invitation token. The token is the capability;
// no other authentication applies. With an invitation TTL configured, tokens
// older than the TTL resolve to an expired error.
func (s *Service) ResolveByToken(ctx context.Context, token string) (access *TokenAccess, err error) {
	ctx, span := s.startSpan(ctx, "ResolveByToken")
	defer func() { endSpan(span, err) }()

	if err := models.ValidateInvitationToken(token); err != nil {
		return nil, err
	}

	entry, err := s.signerByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if entry.InvitationExpired(s.invitationTTL, s.now(ctx)) {
		return nil, dErrors.New(dErrors.CodeExpired, "invitation has expired")
	}
	insp, err := s.loadInspection(ctx, entry.InspectionID)
	if err != nil {
		return nil, err
	}
	return &TokenAccess{Inspection: insp, Signer: entry}, nil
}

// signerByToken consults the token index first. A stale or failing index
// falls back to the signer store.
func (s *Service) signerByToken(ctx context.Context, token string) (*models.SignerEntry, error) {
	if s.tokens != nil {
		inspectionID, profileID, ok, err := s.tokens.Lookup(ctx, token)
		switch {
		case err != nil:
			s.metrics.IncrementTokenLookup("error")
			s.logger.WarnContext(ctx, "token index lookup failed", "error", err)
		case ok:
			entry, findErr := s.signers.Find(ctx, inspectionID, profileID)
			if findErr == nil && entry.InvitationToken == token {
				s.metrics.IncrementTokenLookup("hit")
				return entry, nil
			}
			s.metrics.IncrementTokenLookup("miss")
		default:
			s.metrics.IncrementTokenLookup("miss")
		}
	}

	entry, err := s.signers.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "invitation not found")
		}
		return nil, storeError(err, "failed to resolve invitation")
	}
	if s.tokens != nil {
		if cacheErr := s.tokens.Remember(ctx, token, entry.InspectionID, entry.SignerProfileID); cacheErr != nil {
			s.logger.WarnContext(ctx, "failed to cache invitation token", "error", cacheErr)
		}
	}
	return entry, nil
}

// Authorize checks that actor may act on the inspection: its creator, the
// property owner, or a roster signer.
func (s *Service) Authorize(ctx context.Context, inspectionID id.InspectionID, actor id.ProfileID) error {
	if actor.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	insp, err := s.loadInspection(ctx, inspectionID)
	if err != nil {
		return err
	}
	if insp.CreatedBy == actor {
		return nil
	}

	if _, err := s.signers.Find(ctx, inspectionID, actor); err == nil {
		return nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return storeError(err, "failed to load signer")
	}

	lease, err := s.leases.GetLease(ctx, insp.LeaseID)
	if err != nil {
		return providerError(err, "lease")
	}
	property, err := s.leases.GetProperty(ctx, lease.PropertyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeForbidden, "not allowed to access this inspection")
		}
		return providerError(err, "property")
	}
	if property.OwnerID == actor {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "not allowed to access this inspection")
}

// authorizeLease lets the property owner or a lease signatory open
// inspections on the lease.
func (s *Service) authorizeLease(ctx context.Context, lease *models.Lease, actor id.ProfileID) error {
	property, err := s.leases.GetProperty(ctx, lease.PropertyID)
	switch {
	case err == nil && property.OwnerID == actor:
		return nil
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return providerError(err, "property")
	}

	roster, err := s.roster.Signatories(ctx, lease.ID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return providerError(err, "lease roster")
	}
	for _, signatory := range roster {
		if signatory.ProfileID == actor {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeForbidden, "not allowed to manage inspections on this lease")
}

// AuditTrail lists the audit entries recorded for an inspection, oldest
// first. Without a configured trail the list is empty.
func (s *Service) AuditTrail(ctx context.Context, inspectionID id.InspectionID) ([]audit.Event, error) {
	if _, err := s.loadInspection(ctx, inspectionID); err != nil {
		return nil, err
	}
	if s.trail == nil {
		return []audit.Event{}, nil
	}
	events, err := s.trail.List(ctx, models.EntityInspection, inspectionID.String())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyFailure, "failed to read audit trail")
	}
	return events, nil
}
