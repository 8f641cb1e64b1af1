package ports

import (
	"context"
	"time"

	"habitat/internal/inspection/models"
	id "habitat/pkg/domain"
	"habitat/pkg/platform/audit"
)

// LeaseRoster supplies a lease's signatories. Role spellings are raw.
type LeaseRoster interface {
	Signatories(ctx context.Context, leaseID id.LeaseID) ([]models.Signatory, error)
}

// Profiles resolves person profiles.
type Profiles interface {
	GetProfile(ctx context.Context, profileID id.ProfileID) (*models.Profile, error)
}

// Leases resolves the lease, property and owner behind an inspection.
type Leases interface {
	GetLease(ctx context.Context, leaseID id.LeaseID) (*models.Lease, error)
	GetProperty(ctx context.Context, propertyID id.PropertyID) (*models.Property, error)
	GetOwner(ctx context.Context, ownerProfileID id.ProfileID) (*models.Owner, error)
}

// BlobStore stores signature images and media.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// EventSink receives domain events. At-least-once, fire-and-forget.
type EventSink interface {
	Append(ctx context.Context, eventType, aggregateID string, payload any) error
}

// AuditSink records audit trail entries. Failures are logged, never returned
// to the caller of the primary operation.
type AuditSink interface {
	Emit(ctx context.Context, event audit.Event) error
}
