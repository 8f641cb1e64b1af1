package service

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"habitat/internal/inspection/models"
	id "habitat/pkg/domain"
	dErrors "habitat/pkg/domain-errors"
)

// SignatureCommand is the input of SubmitSignature.
type SignatureCommand struct {
	InspectionID    id.InspectionID
	SignerProfileID id.ProfileID
	Image           []byte
	IPAddress       string
	UserAgent       string
}

// SignatureResult reports the stored entry and the inspection state after
// the submission.
type SignatureResult struct {
	Entry      *models.SignerEntry
	Completion models.Completion
	Status     models.Status
	// Signed is true when the inspection is signed, whoever moved it there.
	Signed bool
	// Transitioned is true only for the call that moved it to signed.
	Transitioned bool
}

// SignaturePath is where a signer's image lives. Resubmitting overwrites it.
func SignaturePath(inspectionID id.InspectionID, profileID id.ProfileID) string {
	return fmt.Sprintf("inspections/%s/signatures/%s.png", inspectionID, profileID)
}

// SubmitSignature stores the image, upserts the signer entry and re-evaluates
// completion. The entry write, roster re-read and status transition run under
// one per-inspection boundary, so exactly one caller sees Transitioned.
func (s *Service) SubmitSignature(ctx context.Context, cmd SignatureCommand) (result *SignatureResult, err error) {
	ctx, span := s.startSpan(ctx, "SubmitSignature",
		trace.WithAttributes(attribute.String("inspection_id", cmd.InspectionID.String())))
	defer func() { endSpan(span, err) }()
	start := time.Now()
	defer s.metrics.ObserveSubmitSignature(start)

	if len(cmd.Image) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "signature image is required")
	}
	if len(cmd.Image) > s.maxSignatureBytes {
		return nil, dErrors.New(dErrors.CodeValidation, "signature image is too large")
	}
	if contentType := http.DetectContentType(cmd.Image); contentType != "image/png" {
		return nil, dErrors.New(dErrors.CodeValidation, "signature image must be a PNG")
	}

	insp, err := s.loadInspection(ctx, cmd.InspectionID)
	if err != nil {
		return nil, err
	}
	role, err := s.resolveSignerRole(ctx, cmd.InspectionID, cmd.SignerProfileID)
	if err != nil {
		return nil, err
	}

	path := SignaturePath(cmd.InspectionID, cmd.SignerProfileID)
	stored, err := s.blobs.Put(ctx, path, cmd.Image, "image/png")
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyFailure, "failed to store signature image")
	}

	now := s.now(ctx)
	result = &SignatureResult{}
	err = s.tx.RunInTx(ctx, inspectionKey(cmd.InspectionID), func(ctx context.Context) error {
		entry := &models.SignerEntry{
			ID:              id.NewSignerID(),
			InspectionID:    cmd.InspectionID,
			SignerProfileID: cmd.SignerProfileID,
			SignerRole:      role,
			CreatedAt:       now,
		}
		entry.RecordSignature(stored, cmd.IPAddress, cmd.UserAgent, now)
		saved, txErr := s.signers.UpsertSignature(ctx, entry)
		if txErr != nil {
			return storeError(txErr, "failed to record signature")
		}
		result.Entry = saved

		roster, txErr := s.signers.ListByInspection(ctx, cmd.InspectionID)
		if txErr != nil {
			return storeError(txErr, "failed to list signers")
		}
		result.Completion = models.EvaluateCompletion(roster)
		if result.Completion.Satisfied() {
			result.Transitioned, txErr = s.inspections.AdvanceStatus(ctx, cmd.InspectionID, models.StatusSigned, now)
			if txErr != nil {
				return storeError(txErr, "failed to advance status")
			}
		}

		current, txErr := s.loadInspection(ctx, cmd.InspectionID)
		if txErr != nil {
			return txErr
		}
		result.Status = current.Status
		result.Signed = current.Status == models.StatusSigned
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitSignatureEffects(ctx, insp, result, now)
	return result, nil
}

// resolveSignerRole uses the existing entry when there is one, else the
// signer's profile role. Profiles whose role never signs are rejected.
func (s *Service) resolveSignerRole(ctx context.Context, inspectionID id.InspectionID, profileID id.ProfileID) (models.SignerRole, error) {
	entry, err := s.findSigner(ctx, inspectionID, profileID)
	if err == nil {
		return entry.SignerRole, nil
	}
	if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return "", err
	}

	profile, err := s.profiles.GetProfile(ctx, profileID)
	if err != nil {
		return "", providerError(err, "signer profile")
	}
	role, ok := models.NormalizeRole(profile.Role)
	if !ok {
		return "", dErrors.New(dErrors.CodeForbidden, "profile role cannot sign an inspection")
	}
	return role, nil
}

func (s *Service) emitSignatureEffects(ctx context.Context, insp *models.Inspection, result *SignatureResult, now time.Time) {
	entry := result.Entry
	metadata := map[string]string{
		"signer_profile_id": entry.SignerProfileID.String(),
		"role":              string(entry.SignerRole),
		"owner_signed":      strconv.FormatBool(result.Completion.OwnerSigned),
		"tenant_signed":     strconv.FormatBool(result.Completion.TenantSigned),
	}
	for k, v := range userAgentMetadata(entry.UserAgent) {
		metadata[k] = v
	}
	if entry.IPAddress != "" {
		metadata["ip_address"] = entry.IPAddress
	}

	s.effects.publish(ctx, models.EventSignatureCaptured, insp.ID, models.SignatureCapturedPayload{
		InspectionID:    insp.ID.String(),
		SignerProfileID: entry.SignerProfileID.String(),
		Role:            string(entry.SignerRole),
		SignedAt:        *entry.SignedAt,
	})
	s.effects.record(ctx, entry.SignerProfileID, models.AuditSignatureCaptured, insp.ID, metadata)
	s.metrics.IncrementSignatureCaptured(string(entry.SignerRole))

	if !result.Transitioned {
		return
	}
	s.effects.publish(ctx, models.EventSigned, insp.ID, models.SignedPayload{
		InspectionID: insp.ID.String(),
		LeaseID:      insp.LeaseID.String(),
		SignedAt:     now,
	})
	s.effects.record(ctx, entry.SignerProfileID, models.AuditInspectionSigned, insp.ID, nil)
	s.metrics.IncrementSigned()
}

// userAgentMetadata summarizes a User-Agent header for the audit trail.
func userAgentMetadata(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	ua := useragent.New(raw)
	browser, version := ua.Browser()
	return map[string]string{
		"browser":         browser,
		"browser_version": version,
		"os":              ua.OS(),
		"mobile":          strconv.FormatBool(ua.Mobile()),
	}
}
