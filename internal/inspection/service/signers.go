package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"habitat/internal/inspection/models"
	id "habitat/pkg/domain"
	dErrors "habitat/pkg/domain-errors"
	"habitat/pkg/platform/sentinel"
)

// SyncSigners mirrors the lease roster into signer entries. Existing entries
// keep their token; only missing signatories get a new entry. Roster rows
// whose role never signs are skipped. A nil leaseID means the inspection's
// own lease.
func (s *Service) SyncSigners(ctx context.Context, inspectionID id.InspectionID, leaseID id.LeaseID) (entries []*models.SignerEntry, err error) {
	ctx, span := s.startSpan(ctx, "SyncSigners",
		trace.WithAttributes(attribute.String("inspection_id", inspectionID.String())))
	defer func() { endSpan(span, err) }()

	insp, err := s.loadInspection(ctx, inspectionID)
	if err != nil {
		return nil, err
	}
	if leaseID.IsNil() {
		leaseID = insp.LeaseID
	}
	if leaseID != insp.LeaseID {
		return nil, dErrors.New(dErrors.CodeValidation, "lease does not match the inspection")
	}

	roster, err := s.roster.Signatories(ctx, leaseID)
	if err != nil {
		return nil, providerError(err, "lease roster")
	}

	now := s.now(ctx)
	candidates := make([]*models.SignerEntry, 0, len(roster))
	seen := make(map[id.ProfileID]struct{}, len(roster))
	skipped := 0
	for _, sig := range roster {
		role, ok := models.NormalizeRole(sig.Role)
		if !ok || sig.ProfileID.IsNil() {
			skipped++
			continue
		}
		if _, dup := seen[sig.ProfileID]; dup {
			continue
		}
		seen[sig.ProfileID] = struct{}{}
		token, tokenErr := models.NewInvitationToken()
		if tokenErr != nil {
			return nil, dErrors.Wrap(tokenErr, dErrors.CodeInternal, "failed to generate invitation token")
		}
		candidates = append(candidates, &models.SignerEntry{
			ID:              id.NewSignerID(),
			InspectionID:    inspectionID,
			SignerProfileID: sig.ProfileID,
			SignerRole:      role,
			InvitationToken: token,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	created := 0
	err = s.tx.RunInTx(ctx, inspectionKey(inspectionID), func(ctx context.Context) error {
		for _, candidate := range candidates {
			_, inserted, txErr := s.signers.InsertIfAbsent(ctx, candidate)
			if txErr != nil {
				return storeError(txErr, "failed to insert signer")
			}
			if inserted {
				created++
			}
		}
		var txErr error
		entries, txErr = s.signers.ListByInspection(ctx, inspectionID)
		if txErr != nil {
			return storeError(txErr, "failed to list signers")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created > 0 {
		s.effects.record(ctx, id.ProfileID{}, models.AuditSignersSynced, inspectionID, map[string]string{
			"lease_id": leaseID.String(),
			"created":  strconv.Itoa(created),
			"skipped":  strconv.Itoa(skipped),
		})
	}
	return entries, nil
}

// InvitationResult is what SendInvitation reports back.
type InvitationResult struct {
	SentTo string
	Token  string
	SentAt time.Time
}

// SendInvitation stamps the invitation and emits the delivery event. The
// signer's token is generated on the first invitation and reused afterwards.
func (s *Service) SendInvitation(ctx context.Context, inspectionID id.InspectionID, profileID id.ProfileID) (result *InvitationResult, err error) {
	ctx, span := s.startSpan(ctx, "SendInvitation",
		trace.WithAttributes(attribute.String("inspection_id", inspectionID.String())))
	defer func() { endSpan(span, err) }()

	if _, err := s.findSigner(ctx, inspectionID, profileID); err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetProfile(ctx, profileID)
	if err != nil {
		return nil, providerError(err, "signer profile")
	}
	if strings.TrimSpace(profile.Email) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "signer has no email address")
	}

	now := s.now(ctx)
	var entry *models.SignerEntry
	err = s.tx.RunInTx(ctx, inspectionKey(inspectionID), func(ctx context.Context) error {
		current, txErr := s.findSigner(ctx, inspectionID, profileID)
		if txErr != nil {
			return txErr
		}
		token := current.InvitationToken
		if token == "" {
			if token, txErr = models.NewInvitationToken(); txErr != nil {
				return dErrors.Wrap(txErr, dErrors.CodeInternal, "failed to generate invitation token")
			}
		}
		entry, txErr = s.signers.MarkInvited(ctx, inspectionID, profileID, token, now)
		if txErr != nil {
			return storeError(txErr, "failed to mark invitation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.tokens != nil {
		if cacheErr := s.tokens.Remember(ctx, entry.InvitationToken, inspectionID, profileID); cacheErr != nil {
			s.logger.WarnContext(ctx, "failed to cache invitation token", "inspection_id", inspectionID.String(), "error", cacheErr)
		}
	}

	s.effects.publish(ctx, models.EventInvitationSent, inspectionID, models.InvitationSentPayload{
		InspectionID:    inspectionID.String(),
		SignerProfileID: profileID.String(),
		Role:            string(entry.SignerRole),
		Email:           profile.Email,
		Name:            strings.TrimSpace(profile.Prenom + " " + profile.Nom),
		Token:           entry.InvitationToken,
		SentAt:          now,
	})
	s.effects.record(ctx, id.ProfileID{}, models.AuditInvitationSent, inspectionID, map[string]string{
		"signer_profile_id": profileID.String(),
		"role":              string(entry.SignerRole),
	})
	s.metrics.IncrementInvitationSent()

	return &InvitationResult{SentTo: profile.Email, Token: entry.InvitationToken, SentAt: now}, nil
}

func (s *Service) findSigner(ctx context.Context, inspectionID id.InspectionID, profileID id.ProfileID) (*models.SignerEntry, error) {
	entry, err := s.signers.Find(ctx, inspectionID, profileID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "signer not found")
		}
		return nil, storeError(err, "failed to load signer")
	}
	return entry, nil
}
