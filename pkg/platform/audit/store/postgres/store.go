// Package postgres persists the audit trail in the audit_events table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "habitat/pkg/domain"
	audit "habitat/pkg/platform/audit"
	txcontext "habitat/pkg/platform/tx"
)

const (
	insertEvent = `
		INSERT INTO audit_events (id, occurred_at, actor_id, action, entity_type, entity_id, metadata, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	selectByEntity = `
		SELECT occurred_at, actor_id, action, entity_type, entity_id, metadata, request_id
		FROM audit_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY occurred_at, id`
)

// Store joins the caller's transaction when ctx carries one, so an audit row
// written inside RunInTx commits or rolls back with it.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, e audit.Event) error {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	actor := uuid.NullUUID{UUID: uuid.UUID(e.ActorID), Valid: !e.ActorID.IsNil()}
	if _, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, insertEvent,
		uuid.New(), e.Timestamp, actor, e.Action, e.EntityType, e.EntityID, raw, e.RequestID,
	); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByEntity(ctx context.Context, entityType, entityID string) ([]audit.Event, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, selectByEntity, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	events := []audit.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (audit.Event, error) {
	var (
		e     audit.Event
		actor uuid.NullUUID
		raw   []byte
	)
	if err := rows.Scan(&e.Timestamp, &actor, &e.Action, &e.EntityType, &e.EntityID, &raw, &e.RequestID); err != nil {
		return audit.Event{}, fmt.Errorf("scan audit event: %w", err)
	}
	if actor.Valid {
		e.ActorID = id.ProfileID(actor.UUID)
	}
	if err := json.Unmarshal(raw, &e.Metadata); err != nil {
		return audit.Event{}, fmt.Errorf("decode audit metadata: %w", err)
	}
	if len(e.Metadata) == 0 {
		e.Metadata = nil
	}
	return e, nil
}
