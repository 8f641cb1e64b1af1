package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"habitat/internal/inspection/models"
	id "habitat/pkg/domain"
	dErrors "habitat/pkg/domain-errors"
	"habitat/pkg/platform/sentinel"
	pstrings "habitat/pkg/platform/strings"
)

// CreateCommand is the input of CreateInspection.
type CreateCommand struct {
	LeaseID       id.LeaseID
	Type          string
	ScheduledDate time.Time
	Notes         string
	Keys          []models.KeySet
	ActorID       id.ProfileID
}

// CreateInspection returns the active inspection for (lease, type), creating
// a draft when none exists. Repeated calls return the same inspection.
func (s *Service) CreateInspection(ctx context.Context, cmd CreateCommand) (insp *models.Inspection, err error) {
	ctx, span := s.startSpan(ctx, "CreateInspection",
		trace.WithAttributes(attribute.String("lease_id", cmd.LeaseID.String())))
	defer func() { endSpan(span, err) }()

	inspectionType, err := models.ParseInspectionType(cmd.Type)
	if err != nil {
		return nil, err
	}
	if cmd.LeaseID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "lease id is required")
	}
	if cmd.ActorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	lease, err := s.leases.GetLease(ctx, cmd.LeaseID)
	if err != nil {
		return nil, providerError(err, "lease")
	}
	if err := s.authorizeLease(ctx, lease, cmd.ActorID); err != nil {
		return nil, err
	}

	now := s.now(ctx)
	candidate, err := models.NewInspection(s.newID(), cmd.LeaseID, inspectionType,
		cmd.ScheduledDate, cmd.Notes, cmd.Keys, cmd.ActorID, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid inspection")
	}

	var created bool
	key := fmt.Sprintf("lease:%s:%s", cmd.LeaseID, inspectionType)
	err = s.tx.RunInTx(ctx, key, func(ctx context.Context) error {
		var txErr error
		insp, created, txErr = s.inspections.CreateOrGetActive(ctx, candidate)
		if txErr != nil {
			return storeError(txErr, "failed to create inspection")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return insp, nil
	}

	s.effects.publish(ctx, models.EventScheduled, insp.ID, models.ScheduledPayload{
		InspectionID:  insp.ID.String(),
		LeaseID:       insp.LeaseID.String(),
		Type:          string(insp.Type),
		ScheduledDate: insp.ScheduledDate,
		CreatedBy:     insp.CreatedBy.String(),
	})
	s.effects.record(ctx, cmd.ActorID, models.AuditInspectionCreated, insp.ID, map[string]string{
		"lease_id": insp.LeaseID.String(),
		"type":     string(insp.Type),
	})
	s.metrics.IncrementCreated()
	return insp, nil
}

// AddSections appends the items of sections to the inspection and moves a
// draft to in_progress. Completed or signed inspections are frozen.
func (s *Service) AddSections(ctx context.Context, inspectionID id.InspectionID, sections []models.SectionInput) (items []*models.Item, err error) {
	ctx, span := s.startSpan(ctx, "AddSections",
		trace.WithAttributes(attribute.String("inspection_id", inspectionID.String())))
	defer func() { endSpan(span, err) }()

	now := s.now(ctx)
	err = s.tx.RunInTx(ctx, inspectionKey(inspectionID), func(ctx context.Context) error {
		insp, txErr := s.loadInspection(ctx, inspectionID)
		if txErr != nil {
			return txErr
		}
		if insp.Status.IsComplete() {
			return dErrors.New(dErrors.CodeConflict, "inspection is "+string(insp.Status)+"; items are frozen")
		}
		start, txErr := s.inspections.NextItemPosition(ctx, inspectionID)
		if txErr != nil {
			return storeError(txErr, "failed to read item position")
		}
		items, txErr = models.FlattenSections(inspectionID, sections, start, now, id.NewItemID)
		if txErr != nil {
			return txErr
		}
		if txErr = s.inspections.AppendItems(ctx, items); txErr != nil {
			return storeError(txErr, "failed to insert items")
		}
		if insp.Status == models.StatusDraft {
			if _, txErr = s.inspections.AdvanceStatus(ctx, inspectionID, models.StatusInProgress, now); txErr != nil {
				return storeError(txErr, "failed to advance status")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rooms, _ := pstrings.GroupOrdered(items, func(it *models.Item) string { return it.RoomName })
	s.effects.publish(ctx, models.EventItemsAdded, inspectionID, models.ItemsAddedPayload{
		InspectionID: inspectionID.String(),
		Count:        len(items),
		Rooms:        rooms,
	})
	s.effects.record(ctx, id.ProfileID{}, models.AuditSectionsAdded, inspectionID, map[string]string{
		"items": strconv.Itoa(len(items)),
		"rooms": strings.Join(rooms, ","),
	})
	return items, nil
}

// MarkCompleted closes the inspection content. It needs at least one item.
// Completed and signed inspections are returned unchanged.
func (s *Service) MarkCompleted(ctx context.Context, inspectionID id.InspectionID) (insp *models.Inspection, err error) {
	ctx, span := s.startSpan(ctx, "MarkCompleted",
		trace.WithAttributes(attribute.String("inspection_id", inspectionID.String())))
	defer func() { endSpan(span, err) }()

	var transitioned bool
	err = s.tx.RunInTx(ctx, inspectionKey(inspectionID), func(ctx context.Context) error {
		current, txErr := s.loadInspection(ctx, inspectionID)
		if txErr != nil {
			return txErr
		}
		if current.Status.IsComplete() {
			insp = current
			return nil
		}
		items, txErr := s.inspections.ListItems(ctx, inspectionID)
		if txErr != nil {
			return storeError(txErr, "failed to list items")
		}
		if len(items) == 0 {
			return dErrors.New(dErrors.CodeValidation, "an inspection without items cannot be completed")
		}
		transitioned, txErr = s.inspections.AdvanceStatus(ctx, inspectionID, models.StatusCompleted, s.now(ctx))
		if txErr != nil {
			return storeError(txErr, "failed to advance status")
		}
		insp, txErr = s.loadInspection(ctx, inspectionID)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	if transitioned {
		s.effects.record(ctx, id.ProfileID{}, models.AuditInspectionDone, inspectionID, nil)
	}
	return insp, nil
}

// MediaCommand is the input of AddMedia.
type MediaCommand struct {
	InspectionID id.InspectionID
	ItemID       *id.ItemID
	Data         []byte
	ContentType  string
	MediaType    models.MediaType
	Section      *string
	TakenAt      time.Time
}

var mediaExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"application/pdf": ".pdf",
}

// AddMedia stores the file first and only then records the media row, so a
// row never points at a missing object.
func (s *Service) AddMedia(ctx context.Context, cmd MediaCommand) (media *models.Media, err error) {
	ctx, span := s.startSpan(ctx, "AddMedia",
		trace.WithAttributes(attribute.String("inspection_id", cmd.InspectionID.String())))
	defer func() { endSpan(span, err) }()

	if len(cmd.Data) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "media content is required")
	}
	switch cmd.MediaType {
	case models.MediaPhoto, models.MediaVideo, models.MediaDocument:
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "media type must be photo, video or document")
	}

	insp, err := s.loadInspection(ctx, cmd.InspectionID)
	if err != nil {
		return nil, err
	}
	if cmd.ItemID != nil {
		item, findErr := s.inspections.FindItem(ctx, *cmd.ItemID)
		if findErr != nil {
			if errors.Is(findErr, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "item not found")
			}
			return nil, storeError(findErr, "failed to load item")
		}
		if item.InspectionID != insp.ID {
			return nil, dErrors.New(dErrors.CodeValidation, "item does not belong to this inspection")
		}
	}

	now := s.now(ctx)
	mediaID := id.NewMediaID()
	path := fmt.Sprintf("inspections/%s/media/%s%s", insp.ID, mediaID, mediaExtensions[cmd.ContentType])
	stored, err := s.blobs.Put(ctx, path, cmd.Data, cmd.ContentType)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyFailure, "failed to store media")
	}

	takenAt := cmd.TakenAt
	if takenAt.IsZero() {
		takenAt = now
	}
	media = &models.Media{
		ID:           mediaID,
		InspectionID: insp.ID,
		ItemID:       cmd.ItemID,
		StoragePath:  stored,
		MediaType:    cmd.MediaType,
		Section:      cmd.Section,
		TakenAt:      takenAt,
		CreatedAt:    now,
	}
	if err := s.inspections.AddMedia(ctx, media); err != nil {
		return nil, storeError(err, "failed to record media")
	}

	s.effects.record(ctx, id.ProfileID{}, models.AuditMediaAdded, insp.ID, map[string]string{
		"media_id":   mediaID.String(),
		"media_type": string(cmd.MediaType),
	})
	return media, nil
}
