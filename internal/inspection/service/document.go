package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"habitat/internal/inspection/document"
	"habitat/internal/inspection/models"
	id "habitat/pkg/domain"
	dErrors "habitat/pkg/domain-errors"
	"habitat/pkg/platform/sentinel"
)

const profileLoadConcurrency = 4

// AssembleDocument loads the inspection graph and maps it through
// document.Assemble. Every renderer goes through here.
func (s *Service) AssembleDocument(ctx context.Context, inspectionID id.InspectionID) (doc *document.Document, err error) {
	ctx, span := s.startSpan(ctx, "AssembleDocument",
		trace.WithAttributes(attribute.String("inspection_id", inspectionID.String())))
	defer func() { endSpan(span, err) }()
	start := time.Now()
	defer s.metrics.ObserveAssembleDocument(start)

	in, err := s.loadGraph(ctx, inspectionID)
	if err != nil {
		return nil, err
	}
	return document.Assemble(*in), nil
}

// PresignDocument fills signed URLs for every stored path in doc.
func (s *Service) PresignDocument(ctx context.Context, doc *document.Document) (*document.Document, error) {
	out, err := document.Presign(ctx, doc, s.blobs, s.signedURLTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyFailure, "failed to sign document urls")
	}
	return out, nil
}

func (s *Service) loadGraph(ctx context.Context, inspectionID id.InspectionID) (*document.Input, error) {
	insp, err := s.loadInspection(ctx, inspectionID)
	if err != nil {
		return nil, err
	}
	in := &document.Input{Inspection: insp}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := s.inspections.ListItems(gctx, inspectionID)
		if err != nil {
			return storeError(err, "failed to list items")
		}
		in.Items = items
		return nil
	})
	g.Go(func() error {
		media, err := s.inspections.ListMedia(gctx, inspectionID)
		if err != nil {
			return storeError(err, "failed to list media")
		}
		in.Media = media
		return nil
	})
	g.Go(func() error {
		signers, err := s.signers.ListByInspection(gctx, inspectionID)
		if err != nil {
			return storeError(err, "failed to list signers")
		}
		in.Signers = signers
		return nil
	})
	g.Go(func() error {
		return s.loadParties(gctx, insp.LeaseID, in)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	profiles, err := s.loadProfiles(ctx, profileIDs(in))
	if err != nil {
		return nil, err
	}
	in.Profiles = profiles
	return in, nil
}

// loadParties resolves lease, property and owner. Only the lease is
// mandatory; a missing property or owner leaves that block empty.
func (s *Service) loadParties(ctx context.Context, leaseID id.LeaseID, in *document.Input) error {
	lease, err := s.leases.GetLease(ctx, leaseID)
	if err != nil {
		return providerError(err, "lease")
	}
	in.Lease = lease

	property, err := s.leases.GetProperty(ctx, lease.PropertyID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return nil
	case err != nil:
		return providerError(err, "property")
	}
	in.Property = property

	owner, err := s.leases.GetOwner(ctx, property.OwnerID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return nil
	case err != nil:
		return providerError(err, "owner")
	}
	in.Owner = owner
	return nil
}

func profileIDs(in *document.Input) []id.ProfileID {
	seen := make(map[id.ProfileID]struct{})
	var ids []id.ProfileID
	add := func(p id.ProfileID) {
		if p.IsNil() {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		ids = append(ids, p)
	}
	for _, e := range in.Signers {
		add(e.SignerProfileID)
	}
	if in.Lease != nil {
		for _, sig := range in.Lease.Roster {
			add(sig.ProfileID)
		}
	}
	if in.Owner != nil && in.Owner.Profile == nil {
		add(in.Owner.ProfileID)
	}
	return ids
}

// loadProfiles fetches profiles concurrently. Unknown profiles are left out;
// the document renders them without a name.
func (s *Service) loadProfiles(ctx context.Context, ids []id.ProfileID) (map[id.ProfileID]*models.Profile, error) {
	var mu sync.Mutex
	out := make(map[id.ProfileID]*models.Profile, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(profileLoadConcurrency)
	for _, profileID := range ids {
		g.Go(func() error {
			p, err := s.profiles.GetProfile(gctx, profileID)
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			if err != nil {
				return providerError(err, "profile")
			}
			mu.Lock()
			out[profileID] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
