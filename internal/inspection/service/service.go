// Package service implements the inspection signature lifecycle: record
// management, signer roster sync, invitations, signature capture with
// completion detection, token access and document assembly.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"habitat/internal/inspection/metrics"
	"habitat/internal/inspection/models"
	"habitat/internal/inspection/ports"
	id "habitat/pkg/domain"
	dErrors "habitat/pkg/domain-errors"
	"habitat/pkg/platform/audit"
	"habitat/pkg/platform/sentinel"
	"habitat/pkg/requestcontext"
)

var tracer = otel.Tracer("habitat/internal/inspection/service")

const (
	defaultSignedURLTTL      = 15 * time.Minute
	defaultMaxSignatureBytes = 2 << 20
)

// InspectionStore persists inspections, items and media.
type InspectionStore interface {
	CreateOrGetActive(ctx context.Context, candidate *models.Inspection) (*models.Inspection, bool, error)
	FindByID(ctx context.Context, inspectionID id.InspectionID) (*models.Inspection, error)
	AdvanceStatus(ctx context.Context, inspectionID id.InspectionID, next models.Status, now time.Time) (bool, error)
	NextItemPosition(ctx context.Context, inspectionID id.InspectionID) (int, error)
	AppendItems(ctx context.Context, items []*models.Item) error
	ListItems(ctx context.Context, inspectionID id.InspectionID) ([]*models.Item, error)
	FindItem(ctx context.Context, itemID id.ItemID) (*models.Item, error)
	AddMedia(ctx context.Context, media *models.Media) error
	ListMedia(ctx context.Context, inspectionID id.InspectionID) ([]*models.Media, error)
}

// SignerStore persists signer entries.
type SignerStore interface {
	InsertIfAbsent(ctx context.Context, entry *models.SignerEntry) (*models.SignerEntry, bool, error)
	Find(ctx context.Context, inspectionID id.InspectionID, profileID id.ProfileID) (*models.SignerEntry, error)
	FindByToken(ctx context.Context, token string) (*models.SignerEntry, error)
	ListByInspection(ctx context.Context, inspectionID id.InspectionID) ([]*models.SignerEntry, error)
	MarkInvited(ctx context.Context, inspectionID id.InspectionID, profileID id.ProfileID, token string, sentAt time.Time) (*models.SignerEntry, error)
	UpsertSignature(ctx context.Context, entry *models.SignerEntry) (*models.SignerEntry, error)
}

// TokenIndex caches token to signer lookups. Optional.
type TokenIndex interface {
	Lookup(ctx context.Context, token string) (id.InspectionID, id.ProfileID, bool, error)
	Remember(ctx context.Context, token string, inspectionID id.InspectionID, profileID id.ProfileID) error
}

// AuditTrail reads back what the audit sink recorded. Optional.
type AuditTrail interface {
	List(ctx context.Context, entityType, entityID string) ([]audit.Event, error)
}

// InspectionTx serializes work on one key (an inspection or a lease/type
// pair). Implementations may wrap a database transaction with an advisory
// lock or, in-memory, a sharded mutex.
type InspectionTx interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Dependencies groups the external collaborators the service cannot run
// without.
type Dependencies struct {
	Inspections InspectionStore
	Signers     SignerStore
	Roster      ports.LeaseRoster
	Profiles    ports.Profiles
	Leases      ports.Leases
	Blobs       ports.BlobStore
}

// Service coordinates the inspection lifecycle.
type Service struct {
	inspections InspectionStore
	signers     SignerStore
	roster      ports.LeaseRoster
	profiles    ports.Profiles
	leases      ports.Leases
	blobs       ports.BlobStore

	tx      InspectionTx
	tokens  TokenIndex
	trail   AuditTrail
	effects *sideEffects
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
	newID   func() id.InspectionID

	invitationTTL     time.Duration
	signedURLTTL      time.Duration
	maxSignatureBytes int
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithEventSink sets where domain events go. Without one, events are dropped.
func WithEventSink(sink ports.EventSink) Option {
	return func(s *Service) {
		s.effects.events = sink
	}
}

// WithAuditSink sets where audit entries go. Without one, audit lines are
// only logged.
func WithAuditSink(sink ports.AuditSink) Option {
	return func(s *Service) {
		s.effects.audit = sink
	}
}

// WithAuditTrail enables AuditTrail reads.
func WithAuditTrail(trail AuditTrail) Option {
	return func(s *Service) {
		s.trail = trail
	}
}

func WithTokenIndex(index TokenIndex) Option {
	return func(s *Service) {
		s.tokens = index
	}
}

func WithTx(tx InspectionTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithInvitationTTL makes tokens expire ttl after their last invitation.
// Zero keeps tokens valid forever.
func WithInvitationTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.invitationTTL = ttl
	}
}

func WithSignedURLTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.signedURLTTL = ttl
		}
	}
}

func WithMaxSignatureBytes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSignatureBytes = n
		}
	}
}

// WithClock overrides the time source used when no request time is set.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithIDGenerator overrides inspection id generation. Tests use it for
// stable references.
func WithIDGenerator(gen func() id.InspectionID) Option {
	return func(s *Service) {
		s.newID = gen
	}
}

// New builds a Service. Every field of deps is required.
func New(deps Dependencies, opts ...Option) (*Service, error) {
	if deps.Inspections == nil || deps.Signers == nil {
		return nil, errors.New("inspection and signer stores are required")
	}
	if deps.Roster == nil || deps.Profiles == nil || deps.Leases == nil {
		return nil, errors.New("lease roster, profile and lease providers are required")
	}
	if deps.Blobs == nil {
		return nil, errors.New("blob store is required")
	}

	s := &Service{
		inspections:       deps.Inspections,
		signers:           deps.Signers,
		roster:            deps.Roster,
		profiles:          deps.Profiles,
		leases:            deps.Leases,
		blobs:             deps.Blobs,
		effects:           &sideEffects{},
		clock:             time.Now,
		newID:             id.NewInspectionID,
		signedURLTTL:      defaultSignedURLTTL,
		maxSignatureBytes: defaultMaxSignatureBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tx == nil {
		s.tx = NewShardedTx(0)
	}
	s.effects.logger = s.logger
	s.effects.metrics = s.metrics
	return s, nil
}

// now prefers the request-scoped time so one request sees one instant.
func (s *Service) now(ctx context.Context) time.Time {
	if t, ok := requestcontext.Time(ctx); ok {
		return t
	}
	return s.clock()
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracer.Start(ctx, "inspection."+name, attrs...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

func (s *Service) loadInspection(ctx context.Context, inspectionID id.InspectionID) (*models.Inspection, error) {
	insp, err := s.inspections.FindByID(ctx, inspectionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "inspection not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load inspection")
	}
	return insp, nil
}

// providerError classifies an error from an external provider.
func providerError(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeDependencyFailure, what+" provider unavailable")
}

// storeError wraps a store failure unless it is already classified.
func storeError(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func inspectionKey(inspectionID id.InspectionID) string {
	return "inspection:" + inspectionID.String()
}
