package service

import (
	"context"
	"log/slog"

	"habitat/internal/inspection/metrics"
	"habitat/internal/inspection/models"
	"habitat/internal/inspection/ports"
	id "habitat/pkg/domain"
	"habitat/pkg/platform/audit"
	"habitat/pkg/requestcontext"
)

// sideEffects runs the best-effort tier: events and audit entries emitted
// after a primary operation committed. Failures are logged and counted,
// never returned.
type sideEffects struct {
	events  ports.EventSink
	audit   ports.AuditSink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// publish appends a domain event keyed by the inspection.
func (e *sideEffects) publish(ctx context.Context, eventType string, inspectionID id.InspectionID, payload any) {
	if e.events == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := e.events.Append(ctx, eventType, inspectionID.String(), payload); err != nil {
		e.logger.WarnContext(ctx, "event emission failed",
			"effect", "event",
			"event_type", eventType,
			"inspection_id", inspectionID.String(),
			"error", err,
		)
		e.metrics.IncrementSideEffectFailure("event")
	}
}

// record writes an audit line to the log and, when configured, to the audit
// sink. A nil actor falls back to the authenticated actor on ctx.
func (e *sideEffects) record(ctx context.Context, actor id.ProfileID, action string, inspectionID id.InspectionID, metadata map[string]string) {
	ctx = context.WithoutCancel(ctx)
	if actor.IsNil() {
		actor = requestcontext.ActorID(ctx)
	}
	requestID := requestcontext.RequestID(ctx)

	args := []any{
		"event", action,
		"log_type", "audit",
		"inspection_id", inspectionID.String(),
	}
	if requestID != "" {
		args = append(args, "request_id", requestID)
	}
	if !actor.IsNil() {
		args = append(args, "actor_id", actor.String())
	}
	if len(metadata) > 0 {
		args = append(args, "metadata", metadata)
	}
	e.logger.InfoContext(ctx, action, args...)

	if e.audit == nil {
		return
	}
	err := e.audit.Emit(ctx, audit.Event{
		ActorID:    actor,
		Action:     action,
		EntityType: models.EntityInspection,
		EntityID:   inspectionID.String(),
		Metadata:   metadata,
		RequestID:  requestID,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "audit emission failed",
			"effect", "audit",
			"action", action,
			"inspection_id", inspectionID.String(),
			"error", err,
		)
		e.metrics.IncrementSideEffectFailure("audit")
	}
}
