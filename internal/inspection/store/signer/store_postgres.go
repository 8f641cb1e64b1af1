package signer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"habitat/internal/inspection/models"
	id "habitat/pkg/domain"
	"habitat/pkg/platform/sentinel"
	txcontext "habitat/pkg/platform/tx"
)

// PostgresStore persists inspection_signers rows.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const signerColumns = `id, inspection_id, signer_profile_id, signer_role, invitation_token, invitation_sent_at,
	signed_at, signature_image_path, ip_address, user_agent, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.SignerEntry, error) {
	var (
		e         models.SignerEntry
		entryID   uuid.UUID
		inspID    uuid.UUID
		profileID uuid.UUID
		role      string
		token     sql.NullString
		sentAt    sql.NullTime
		signedAt  sql.NullTime
		imagePath sql.NullString
		ip        sql.NullString
		ua        sql.NullString
	)
	if err := row.Scan(&entryID, &inspID, &profileID, &role, &token, &sentAt, &signedAt,
		&imagePath, &ip, &ua, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.ID = id.SignerID(entryID)
	e.InspectionID = id.InspectionID(inspID)
	e.SignerProfileID = id.ProfileID(profileID)
	e.SignerRole = models.SignerRole(role)
	e.InvitationToken = token.String
	e.SignatureImagePath = imagePath.String
	e.IPAddress = ip.String
	e.UserAgent = ua.String
	if sentAt.Valid {
		t := sentAt.Time
		e.InvitationSentAt = &t
	}
	if signedAt.Valid {
		t := signedAt.Time
		e.SignedAt = &t
	}
	return &e, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, entry *models.SignerEntry) (*models.SignerEntry, bool, error) {
	exec := txcontext.Pick(ctx, s.db)
	query := `
		INSERT INTO inspection_signers (` + signerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (inspection_id, signer_profile_id) DO NOTHING
		RETURNING ` + signerColumns
	stored, err := scanEntry(exec.QueryRowContext(ctx, query, insertArgs(entry)...))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		if isUniqueViolation(err) {
			return nil, false, sentinel.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, false, sentinel.ErrNotFound
		}
		return nil, false, fmt.Errorf("insert signer: %w", err)
	}
	existing, err := s.Find(ctx, entry.InspectionID, entry.SignerProfileID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func insertArgs(e *models.SignerEntry) []any {
	return []any{
		uuid.UUID(e.ID),
		uuid.UUID(e.InspectionID),
		uuid.UUID(e.SignerProfileID),
		string(e.SignerRole),
		nullable(e.InvitationToken),
		e.InvitationSentAt,
		e.SignedAt,
		nullable(e.SignatureImagePath),
		nullable(e.IPAddress),
		nullable(e.UserAgent),
		e.CreatedAt,
		e.UpdatedAt,
	}
}

func (s *PostgresStore) Find(ctx context.Context, inspectionID id.InspectionID, profileID id.ProfileID) (*models.SignerEntry, error) {
	e, err := scanEntry(txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+signerColumns+` FROM inspection_signers WHERE inspection_id = $1 AND signer_profile_id = $2`,
		uuid.UUID(inspectionID), uuid.UUID(profileID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find signer: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*models.SignerEntry, error) {
	e, err := scanEntry(txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+signerColumns+` FROM inspection_signers WHERE invitation_token = $1`, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find signer by token: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) ListByInspection(ctx context.Context, inspectionID id.InspectionID) ([]*models.SignerEntry, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT `+signerColumns+` FROM inspection_signers WHERE inspection_id = $1 ORDER BY created_at ASC, signer_profile_id ASC`,
		uuid.UUID(inspectionID))
	if err != nil {
		return nil, fmt.Errorf("list signers: %w", err)
	}
	defer rows.Close()

	var out []*models.SignerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signer: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signers: %w", err)
	}
	return out, nil
}

// MarkInvited sets the token only when it is still NULL, so a token once
// issued is the one every later invitation reuses.
func (s *PostgresStore) MarkInvited(ctx context.Context, inspectionID id.InspectionID, profileID id.ProfileID, token string, sentAt time.Time) (*models.SignerEntry, error) {
	query := `
		UPDATE inspection_signers
		SET invitation_token = COALESCE(invitation_token, $3),
			invitation_sent_at = $4,
			updated_at = $4
		WHERE inspection_id = $1 AND signer_profile_id = $2
		RETURNING ` + signerColumns
	e, err := scanEntry(txcontext.Pick(ctx, s.db).QueryRowContext(ctx, query,
		uuid.UUID(inspectionID), uuid.UUID(profileID), token, sentAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("mark signer invited: %w", err)
	}
	return e, nil
}

// UpsertSignature writes the signature columns in place; token and role of an
// existing row never change.
func (s *PostgresStore) UpsertSignature(ctx context.Context, entry *models.SignerEntry) (*models.SignerEntry, error) {
	query := `
		INSERT INTO inspection_signers (` + signerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (inspection_id, signer_profile_id) DO UPDATE SET
			signed_at = EXCLUDED.signed_at,
			signature_image_path = EXCLUDED.signature_image_path,
			ip_address = EXCLUDED.ip_address,
			user_agent = EXCLUDED.user_agent,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + signerColumns
	e, err := scanEntry(txcontext.Pick(ctx, s.db).QueryRowContext(ctx, query, insertArgs(entry)...))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, sentinel.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("upsert signature: %w", err)
	}
	return e, nil
}
