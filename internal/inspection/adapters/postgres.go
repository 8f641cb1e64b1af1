// Package adapters implements the lease, property and profile providers the
// inspection service consumes.
package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"habitat/internal/inspection/models"
	id "habitat/pkg/domain"
	"habitat/pkg/platform/sentinel"
	txcontext "habitat/pkg/platform/tx"
)

// Postgres reads parties from the profiles, owners, properties, leases and
// lease_signers tables. It implements ports.LeaseRoster, ports.Profiles and
// ports.Leases.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Signatories(ctx context.Context, leaseID id.LeaseID) ([]models.Signatory, error) {
	exec := txcontext.Pick(ctx, p.db)
	var exists bool
	err := exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM leases WHERE id = $1)`, uuid.UUID(leaseID)).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check lease: %w", err)
	}
	if !exists {
		return nil, sentinel.ErrNotFound
	}

	rows, err := exec.QueryContext(ctx, `
		SELECT profile_id, role FROM lease_signers
		WHERE lease_id = $1
		ORDER BY position, profile_id`, uuid.UUID(leaseID))
	if err != nil {
		return nil, fmt.Errorf("list lease signers: %w", err)
	}
	defer rows.Close()

	var out []models.Signatory
	for rows.Next() {
		var (
			profileID uuid.UUID
			role      string
		)
		if err := rows.Scan(&profileID, &role); err != nil {
			return nil, fmt.Errorf("scan lease signer: %w", err)
		}
		out = append(out, models.Signatory{ProfileID: id.ProfileID(profileID), Role: role})
	}
	return out, rows.Err()
}

func (p *Postgres) GetProfile(ctx context.Context, profileID id.ProfileID) (*models.Profile, error) {
	profile := &models.Profile{ID: profileID}
	err := txcontext.Pick(ctx, p.db).QueryRowContext(ctx, `
		SELECT nom, prenom, email, telephone, role FROM profiles WHERE id = $1`, uuid.UUID(profileID)).
		Scan(&profile.Nom, &profile.Prenom, &profile.Email, &profile.Telephone, &profile.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// GetLease returns the lease with its roster.
func (p *Postgres) GetLease(ctx context.Context, leaseID id.LeaseID) (*models.Lease, error) {
	var propertyID uuid.UUID
	lease := &models.Lease{ID: leaseID}
	err := txcontext.Pick(ctx, p.db).QueryRowContext(ctx, `
		SELECT property_id, start_date, end_date FROM leases WHERE id = $1`, uuid.UUID(leaseID)).
		Scan(&propertyID, &lease.StartDate, &lease.EndDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lease: %w", err)
	}
	lease.PropertyID = id.PropertyID(propertyID)

	roster, err := p.Signatories(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	lease.Roster = roster
	return lease, nil
}

func (p *Postgres) GetProperty(ctx context.Context, propertyID id.PropertyID) (*models.Property, error) {
	var ownerID uuid.UUID
	property := &models.Property{ID: propertyID}
	err := txcontext.Pick(ctx, p.db).QueryRowContext(ctx, `
		SELECT owner_id, adresse, code_postal, ville, type, surface::float8
		FROM properties WHERE id = $1`, uuid.UUID(propertyID)).
		Scan(&ownerID, &property.Adresse, &property.CodePostal, &property.Ville, &property.Type, &property.Surface)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get property: %w", err)
	}
	property.OwnerID = id.ProfileID(ownerID)
	return property, nil
}

// GetOwner joins the owner row with its profile.
func (p *Postgres) GetOwner(ctx context.Context, ownerProfileID id.ProfileID) (*models.Owner, error) {
	var ownerType string
	owner := &models.Owner{ProfileID: ownerProfileID}
	profile := &models.Profile{ID: ownerProfileID}
	err := txcontext.Pick(ctx, p.db).QueryRowContext(ctx, `
		SELECT o.type, o.raison_sociale, o.adresse_facturation,
		       pr.nom, pr.prenom, pr.email, pr.telephone, pr.role
		FROM owners o
		JOIN profiles pr ON pr.id = o.profile_id
		WHERE o.profile_id = $1`, uuid.UUID(ownerProfileID)).
		Scan(&ownerType, &owner.RaisonSociale, &owner.AdresseFacturation,
			&profile.Nom, &profile.Prenom, &profile.Email, &profile.Telephone, &profile.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get owner: %w", err)
	}
	owner.Type = models.OwnerType(ownerType)
	owner.Profile = profile
	return owner, nil
}
