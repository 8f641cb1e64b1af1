package inspection

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"habitat/internal/inspection/models"
	id "habitat/pkg/domain"
	"habitat/pkg/platform/sentinel"
	txcontext "habitat/pkg/platform/tx"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresStore persists inspections, items and media. Pure I/O: status rules
// live in models and the service. Every statement joins the transaction
// carried by ctx, if any.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", sentinel.ErrConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", sentinel.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

const inspectionColumns = `id, lease_id, type, status, scheduled_date, general_notes, keys, created_by, created_at, updated_at, signed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInspection(row rowScanner) (*models.Inspection, error) {
	var (
		insp      models.Inspection
		inspID    uuid.UUID
		leaseID   uuid.UUID
		createdBy uuid.UUID
		kind      string
		status    string
		keys      []byte
		signedAt  sql.NullTime
	)
	if err := row.Scan(&inspID, &leaseID, &kind, &status, &insp.ScheduledDate, &insp.GeneralNotes,
		&keys, &createdBy, &insp.CreatedAt, &insp.UpdatedAt, &signedAt); err != nil {
		return nil, err
	}
	insp.ID = id.InspectionID(inspID)
	insp.LeaseID = id.LeaseID(leaseID)
	insp.CreatedBy = id.ProfileID(createdBy)
	insp.Type = models.InspectionType(kind)
	insp.Status = models.Status(status)
	if signedAt.Valid {
		t := signedAt.Time
		insp.SignedAt = &t
	}
	if len(keys) > 0 {
		if err := json.Unmarshal(keys, &insp.Keys); err != nil {
			return nil, fmt.Errorf("decode keys: %w", err)
		}
	}
	return &insp, nil
}

// CreateOrGetActive relies on the partial unique index over active
// (lease_id, type) so concurrent creators converge on one row.
func (s *PostgresStore) CreateOrGetActive(ctx context.Context, candidate *models.Inspection) (*models.Inspection, bool, error) {
	keys, err := json.Marshal(candidate.Keys)
	if err != nil {
		return nil, false, fmt.Errorf("encode keys: %w", err)
	}
	exec := txcontext.Pick(ctx, s.db)
	query := `
		INSERT INTO inspections (` + inspectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL)
		ON CONFLICT (lease_id, type) WHERE status IN ('draft', 'in_progress') DO NOTHING
	`
	res, err := exec.ExecContext(ctx, query,
		uuid.UUID(candidate.ID),
		uuid.UUID(candidate.LeaseID),
		string(candidate.Type),
		string(candidate.Status),
		candidate.ScheduledDate,
		candidate.GeneralNotes,
		keys,
		uuid.UUID(candidate.CreatedBy),
		candidate.CreatedAt,
		candidate.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert inspection: %w", translate(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		created := *candidate
		return &created, true, nil
	}

	existing, err := scanInspection(exec.QueryRowContext(ctx, `
		SELECT `+inspectionColumns+`
		FROM inspections
		WHERE lease_id = $1 AND type = $2 AND status IN ('draft', 'in_progress')
	`, uuid.UUID(candidate.LeaseID), string(candidate.Type)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The active row moved past in_progress between the two statements.
			return nil, false, sentinel.ErrConflict
		}
		return nil, false, fmt.Errorf("find active inspection: %w", err)
	}
	return existing, false, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, inspectionID id.InspectionID) (*models.Inspection, error) {
	insp, err := scanInspection(txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+inspectionColumns+` FROM inspections WHERE id = $1`, uuid.UUID(inspectionID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find inspection: %w", err)
	}
	return insp, nil
}

// lowerStatuses lists the statuses from which next is a forward move.
func lowerStatuses(next models.Status) []string {
	var out []string
	for _, st := range []models.Status{models.StatusDraft, models.StatusInProgress, models.StatusCompleted, models.StatusSigned} {
		if st.CanTransitionTo(next) {
			out = append(out, string(st))
		}
	}
	return out
}

// AdvanceStatus is a conditional update: it reports true only for the call
// that actually moved the row.
func (s *PostgresStore) AdvanceStatus(ctx context.Context, inspectionID id.InspectionID, next models.Status, now time.Time) (bool, error) {
	query := `
		UPDATE inspections
		SET status = $2,
			updated_at = $3,
			signed_at = CASE WHEN $2 = 'signed' THEN $3 ELSE signed_at END
		WHERE id = $1 AND status = ANY($4)
	`
	exec := txcontext.Pick(ctx, s.db)
	res, err := exec.ExecContext(ctx, query, uuid.UUID(inspectionID), string(next), now, pq.Array(lowerStatuses(next)))
	if err != nil {
		return false, fmt.Errorf("advance inspection status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance status rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}
	var exists bool
	if err := exec.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM inspections WHERE id = $1)`,
		uuid.UUID(inspectionID)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check inspection exists: %w", err)
	}
	if !exists {
		return false, sentinel.ErrNotFound
	}
	return false, nil
}

func (s *PostgresStore) NextItemPosition(ctx context.Context, inspectionID id.InspectionID) (int, error) {
	var next int
	err := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM inspection_items WHERE inspection_id = $1`,
		uuid.UUID(inspectionID)).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next item position: %w", err)
	}
	return next, nil
}

// AppendItems bulk-inserts items of a single inspection in one statement.
func (s *PostgresStore) AppendItems(ctx context.Context, items []*models.Item) error {
	if len(items) == 0 {
		return nil
	}
	inspectionID := items[0].InspectionID
	var (
		ids        = make([]string, len(items))
		rooms      = make([]string, len(items))
		names      = make([]string, len(items))
		conditions = make([]string, len(items))
		notes      = make([]string, len(items))
		positions  = make([]int64, len(items))
		created    = make([]string, len(items))
	)
	for i, item := range items {
		if item.InspectionID != inspectionID {
			return fmt.Errorf("append items: mixed inspections in one batch")
		}
		ids[i] = item.ID.String()
		rooms[i] = item.RoomName
		names[i] = item.ItemName
		conditions[i] = item.Condition
		notes[i] = item.Notes
		positions[i] = int64(item.Position)
		created[i] = item.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	query := `
		INSERT INTO inspection_items (id, inspection_id, room_name, item_name, condition, notes, position, created_at)
		SELECT u.id, $1, u.room_name, u.item_name, u.condition, u.notes, u.position, u.created_at
		FROM unnest($2::uuid[], $3::text[], $4::text[], $5::text[], $6::text[], $7::int[], $8::timestamptz[])
			AS u(id, room_name, item_name, condition, notes, position, created_at)
	`
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(inspectionID),
		pq.Array(ids),
		pq.Array(rooms),
		pq.Array(names),
		pq.Array(conditions),
		pq.Array(notes),
		pq.Array(positions),
		pq.Array(created),
	)
	if err != nil {
		return fmt.Errorf("insert inspection items: %w", translate(err))
	}
	return nil
}

const itemColumns = `id, inspection_id, room_name, item_name, condition, notes, position, created_at`

func scanItem(row rowScanner) (*models.Item, error) {
	var (
		item   models.Item
		itemID uuid.UUID
		inspID uuid.UUID
	)
	if err := row.Scan(&itemID, &inspID, &item.RoomName, &item.ItemName, &item.Condition,
		&item.Notes, &item.Position, &item.CreatedAt); err != nil {
		return nil, err
	}
	item.ID = id.ItemID(itemID)
	item.InspectionID = id.InspectionID(inspID)
	return &item, nil
}

func (s *PostgresStore) ListItems(ctx context.Context, inspectionID id.InspectionID) ([]*models.Item, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT `+itemColumns+` FROM inspection_items WHERE inspection_id = $1 ORDER BY position ASC, id ASC`,
		uuid.UUID(inspectionID))
	if err != nil {
		return nil, fmt.Errorf("list inspection items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inspection item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inspection items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) FindItem(ctx context.Context, itemID id.ItemID) (*models.Item, error) {
	item, err := scanItem(txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM inspection_items WHERE id = $1`, uuid.UUID(itemID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find inspection item: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) AddMedia(ctx context.Context, media *models.Media) error {
	var itemID *uuid.UUID
	if media.ItemID != nil {
		v := uuid.UUID(*media.ItemID)
		itemID = &v
	}
	query := `
		INSERT INTO inspection_media (id, inspection_id, item_id, storage_path, media_type, section, taken_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(media.ID),
		uuid.UUID(media.InspectionID),
		itemID,
		media.StoragePath,
		string(media.MediaType),
		media.Section,
		media.TakenAt,
		media.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert inspection media: %w", translate(err))
	}
	return nil
}

func (s *PostgresStore) ListMedia(ctx context.Context, inspectionID id.InspectionID) ([]*models.Media, error) {
	query := `
		SELECT id, inspection_id, item_id, storage_path, media_type, section, taken_at, created_at
		FROM inspection_media
		WHERE inspection_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query, uuid.UUID(inspectionID))
	if err != nil {
		return nil, fmt.Errorf("list inspection media: %w", err)
	}
	defer rows.Close()

	var out []*models.Media
	for rows.Next() {
		var (
			m         models.Media
			mediaID   uuid.UUID
			inspID    uuid.UUID
			itemID    uuid.NullUUID
			mediaType string
			section   sql.NullString
		)
		if err := rows.Scan(&mediaID, &inspID, &itemID, &m.StoragePath, &mediaType, &section,
			&m.TakenAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inspection media: %w", err)
		}
		m.ID = id.MediaID(mediaID)
		m.InspectionID = id.InspectionID(inspID)
		m.MediaType = models.MediaType(mediaType)
		if itemID.Valid {
			v := id.ItemID(itemID.UUID)
			m.ItemID = &v
		}
		if section.Valid {
			v := section.String
			m.Section = &v
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inspection media: %w", err)
	}
	return out, nil
}
