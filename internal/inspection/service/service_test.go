package service

//go:generate mockgen -source=../ports/ports.go -destination=../ports/mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"habitat/internal/inspection/metrics"
	"habitat/internal/inspection/models"
	"habitat/internal/inspection/ports"
	"habitat/internal/inspection/ports/mocks"
	inspectionstore "habitat/internal/inspection/store/inspection"
	signerstore "habitat/internal/inspection/store/signer"
	"habitat/internal/storage"
	id "habitat/pkg/domain"
	dErrors "habitat/pkg/domain-errors"
	"habitat/pkg/platform/audit"
	"habitat/pkg/platform/audit/publisher"
	auditmemory "habitat/pkg/platform/audit/store/memory"
	"habitat/pkg/platform/outbox"
	outboxmemory "habitat/pkg/platform/outbox/store/memory"
	"habitat/pkg/platform/sentinel"
	"habitat/pkg/requestcontext"
)

var pngImage = []byte("\x89PNG\r\n\x1a\nsignature-strokes")

type ServiceSuite struct {
	suite.Suite
	ctx  context.Context
	now  time.Time
	ctrl *gomock.Controller

	roster   *mocks.MockLeaseRoster
	profiles *mocks.MockProfiles
	leases   *mocks.MockLeases

	inspections *inspectionstore.InMemoryStore
	signers     *signerstore.InMemoryStore
	blobs       *storage.InMemory
	outbox      *outboxmemory.Store
	audit       *auditmemory.Store
	service     *Service

	ownerID    id.ProfileID
	tenantID   id.ProfileID
	garantID   id.ProfileID
	strangerID id.ProfileID
	leaseID    id.LeaseID
	propertyID id.PropertyID

	people    map[id.ProfileID]*models.Profile
	rosterErr error
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 4, 14, 9, 30, 0, 0, time.UTC)
	s.ctrl = gomock.NewController(s.T())
	s.roster = mocks.NewMockLeaseRoster(s.ctrl)
	s.profiles = mocks.NewMockProfiles(s.ctrl)
	s.leases = mocks.NewMockLeases(s.ctrl)

	s.ownerID = id.ProfileID(uuid.New())
	s.tenantID = id.ProfileID(uuid.New())
	s.garantID = id.ProfileID(uuid.New())
	s.strangerID = id.ProfileID(uuid.New())
	s.leaseID = id.LeaseID(uuid.New())
	s.propertyID = id.PropertyID(uuid.New())
	s.rosterErr = nil
	s.people = map[id.ProfileID]*models.Profile{
		s.ownerID:    {ID: s.ownerID, Prenom: "Claire", Nom: "Martin", Email: "claire@example.com", Role: "proprietaire"},
		s.tenantID:   {ID: s.tenantID, Prenom: "Jean", Nom: "Dupont", Email: "jean@example.com", Role: "locataire"},
		s.garantID:   {ID: s.garantID, Prenom: "Paul", Nom: "Garant", Email: "paul@example.com", Role: "garant"},
		s.strangerID: {ID: s.strangerID, Email: "x@example.com", Role: "locataire"},
	}
	s.expectProviders()

	s.inspections = inspectionstore.NewInMemory()
	s.signers = signerstore.NewInMemory()
	s.blobs = storage.NewInMemory()
	s.outbox = outboxmemory.New()
	s.audit = auditmemory.New()
	s.service = s.newService(s.blobs)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ctx = requestcontext.WithActorID(s.ctx, s.ownerID)
}

func (s *ServiceSuite) newService(blobs ports.BlobStore, opts ...Option) *Service {
	base := []Option{
		WithEventSink(outbox.NewSink(s.outbox, models.EntityInspection)),
		WithAuditSink(publisher.NewPublisher(s.audit)),
		WithMetrics(metrics.NewWithRegisterer(prometheus.NewRegistry())),
	}
	svc, err := New(Dependencies{
		Inspections: s.inspections,
		Signers:     s.signers,
		Roster:      s.roster,
		Profiles:    s.profiles,
		Leases:      s.leases,
		Blobs:       blobs,
	}, append(base, opts...)...)
	s.Require().NoError(err)
	return svc
}

func (s *ServiceSuite) expectProviders() {
	s.roster.EXPECT().Signatories(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, leaseID id.LeaseID) ([]models.Signatory, error) {
			if s.rosterErr != nil {
				return nil, s.rosterErr
			}
			if leaseID != s.leaseID {
				return nil, sentinel.ErrNotFound
			}
			return []models.Signatory{
				{ProfileID: s.ownerID, Role: "proprietaire"},
				{ProfileID: s.tenantID, Role: "locataire"},
				{ProfileID: s.garantID, Role: "garant"},
			}, nil
		}).AnyTimes()
	s.profiles.EXPECT().GetProfile(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, profileID id.ProfileID) (*models.Profile, error) {
			p, ok := s.people[profileID]
			if !ok {
				return nil, sentinel.ErrNotFound
			}
			c := *p
			return &c, nil
		}).AnyTimes()
	s.leases.EXPECT().GetLease(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, leaseID id.LeaseID) (*models.Lease, error) {
			if leaseID != s.leaseID {
				return nil, sentinel.ErrNotFound
			}
			return &models.Lease{
				ID:         s.leaseID,
				PropertyID: s.propertyID,
				Roster: []models.Signatory{
					{ProfileID: s.ownerID, Role: "proprietaire"},
					{ProfileID: s.tenantID, Role: "locataire"},
					{ProfileID: s.garantID, Role: "garant"},
				},
			}, nil
		}).AnyTimes()
	s.leases.EXPECT().GetProperty(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, propertyID id.PropertyID) (*models.Property, error) {
			if propertyID != s.propertyID {
				return nil, sentinel.ErrNotFound
			}
			return &models.Property{ID: s.propertyID, OwnerID: s.ownerID, Adresse: "3 rue des Lilas", Ville: "Paris"}, nil
		}).AnyTimes()
	s.leases.EXPECT().GetOwner(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, ownerID id.ProfileID) (*models.Owner, error) {
			if ownerID != s.ownerID {
				return nil, sentinel.ErrNotFound
			}
			return &models.Owner{ProfileID: s.ownerID, Type: models.OwnerParticulier}, nil
		}).AnyTimes()
}

func (s *ServiceSuite) create() *models.Inspection {
	insp, err := s.service.CreateInspection(s.ctx, CreateCommand{
		LeaseID:       s.leaseID,
		Type:          "entree",
		ScheduledDate: s.now,
		ActorID:       s.ownerID,
	})
	s.Require().NoError(err)
	return insp
}

func (s *ServiceSuite) oneRoom() []models.SectionInput {
	return []models.SectionInput{{RoomName: "Salon", Items: []models.ItemInput{{Name: "Mur", Condition: "bon"}}}}
}

func (s *ServiceSuite) sign(inspectionID id.InspectionID, profileID id.ProfileID) *SignatureResult {
	result, err := s.service.SubmitSignature(s.ctx, SignatureCommand{
		InspectionID:    inspectionID,
		SignerProfileID: profileID,
		Image:           pngImage,
		IPAddress:       "203.0.113.7",
		UserAgent:       "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148",
	})
	s.Require().NoError(err)
	return result
}

func (s *ServiceSuite) auditActions(inspectionID id.InspectionID) []string {
	events, err := s.audit.ListByEntity(context.Background(), models.EntityInspection, inspectionID.String())
	s.Require().NoError(err)
	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	return actions
}

func (s *ServiceSuite) TestEndToEndSigning() {
	insp := s.create()

	_, err := s.service.AddSections(s.ctx, insp.ID, s.oneRoom())
	s.Require().NoError(err)

	entries, err := s.service.SyncSigners(s.ctx, insp.ID, id.LeaseID{})
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.NotEmpty(entries[0].InvitationToken)
	s.NotEmpty(entries[1].InvitationToken)
	s.NotEqual(entries[0].InvitationToken, entries[1].InvitationToken)

	tenant := s.sign(insp.ID, s.tenantID)
	s.False(tenant.Signed)
	s.True(tenant.Completion.TenantSigned)
	s.Equal(models.StatusInProgress, tenant.Status)

	owner := s.sign(insp.ID, s.ownerID)
	s.True(owner.Signed)
	s.True(owner.Transitioned)
	s.Equal(models.StatusSigned, owner.Status)

	stored, err := s.inspections.FindByID(s.ctx, insp.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSigned, stored.Status)
	s.Require().NotNil(stored.SignedAt)
	s.Len(s.outbox.ByType(models.EventSigned), 1)
	s.Len(s.outbox.ByType(models.EventSignatureCaptured), 2)
	s.Contains(s.auditActions(insp.ID), models.AuditInspectionSigned)

	data, contentType, ok := s.blobs.Get(SignaturePath(insp.ID, s.ownerID))
	s.True(ok)
	s.Equal("image/png", contentType)
	s.Equal(pngImage, data)
}

func (s *ServiceSuite) TestCreateInspection() {
	s.Run("returns the active inspection on repeat", func() {
		first := s.create()
		second := s.create()
		s.Equal(first.ID, second.ID)
		s.Equal(models.StatusDraft, second.Status)
		s.Len(s.outbox.ByType(models.EventScheduled), 1)
	})

	s.Run("rejects unknown types", func() {
		_, err := s.service.CreateInspection(s.ctx, CreateCommand{LeaseID: s.leaseID, Type: "etat", ActorID: s.ownerID})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("reports a missing lease", func() {
		_, err := s.service.CreateInspection(s.ctx, CreateCommand{LeaseID: id.LeaseID(uuid.New()), Type: "sortie", ActorID: s.ownerID})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("strangers to the lease are forbidden", func() {
		existing := s.create()
		for _, inspectionType := range []string{"entree", "sortie"} {
			insp, err := s.service.CreateInspection(s.ctx, CreateCommand{LeaseID: s.leaseID, Type: inspectionType, ActorID: s.strangerID})
			s.True(dErrors.HasCode(err, dErrors.CodeForbidden), inspectionType)
			s.Nil(insp)
		}
		s.Len(s.outbox.ByType(models.EventScheduled), 1)

		again := s.create()
		s.Equal(existing.ID, again.ID)
	})

	s.Run("lease signatories may create", func() {
		insp, err := s.service.CreateInspection(s.ctx, CreateCommand{LeaseID: s.leaseID, Type: "sortie", ActorID: s.tenantID})
		s.Require().NoError(err)
		s.Equal(s.tenantID, insp.CreatedBy)
	})

	s.Run("entree and sortie are independent", func() {
		entree := s.create()
		sortie, err := s.service.CreateInspection(s.ctx, CreateCommand{LeaseID: s.leaseID, Type: "SORTIE", ActorID: s.ownerID})
		s.Require().NoError(err)
		s.NotEqual(entree.ID, sortie.ID)
		s.Equal(models.TypeSortie, sortie.Type)
	})
}

func (s *ServiceSuite) TestCreateAfterCompletionStartsANewInspection() {
	first := s.create()
	_, err := s.service.AddSections(s.ctx, first.ID, s.oneRoom())
	s.Require().NoError(err)
	_, err = s.service.MarkCompleted(s.ctx, first.ID)
	s.Require().NoError(err)

	second := s.create()
	s.NotEqual(first.ID, second.ID)
}

func (s *ServiceSuite) TestConcurrentCreateYieldsOneInspection() {
	const callers = 20
	ids := make(chan id.InspectionID, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			insp, err := s.service.CreateInspection(s.ctx, CreateCommand{LeaseID: s.leaseID, Type: "entree", ActorID: s.ownerID})
			if err == nil {
				ids <- insp.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	distinct := map[id.InspectionID]struct{}{}
	for inspectionID := range ids {
		distinct[inspectionID] = struct{}{}
	}
	s.Len(distinct, 1)
	s.Len(s.outbox.ByType(models.EventScheduled), 1)
}

func (s *ServiceSuite) TestAddSections() {
	s.Run("first insert moves draft to in_progress", func() {
		insp := s.create()
		items, err := s.service.AddSections(s.ctx, insp.ID, []models.SectionInput{
			{RoomName: "Salon", Items: []models.ItemInput{{Name: "Mur"}, {Name: "Sol"}}},
			{RoomName: "Cuisine", Items: []models.ItemInput{{Name: "Évier"}}},
		})
		s.Require().NoError(err)
		s.Len(items, 3)

		stored, err := s.inspections.FindByID(s.ctx, insp.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusInProgress, stored.Status)
	})

	s.Run("positions continue across calls", func() {
		insp := s.create()
		_, err := s.service.AddSections(s.ctx, insp.ID, s.oneRoom())
		s.Require().NoError(err)
		more, err := s.service.AddSections(s.ctx, insp.ID, s.oneRoom())
		s.Require().NoError(err)
		s.Equal(1, more[0].Position)
	})
}

func (s *ServiceSuite) TestAddSectionsFailures() {
	insp := s.create()

	s.Run("empty sections are rejected and status stays draft", func() {
		_, err := s.service.AddSections(s.ctx, insp.ID, []models.SectionInput{{RoomName: "Salon"}})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		stored, err := s.inspections.FindByID(s.ctx, insp.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusDraft, stored.Status)
	})

	s.Run("unknown inspection", func() {
		_, err := s.service.AddSections(s.ctx, id.NewInspectionID(), s.oneRoom())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("items are frozen once completed", func() {
		_, err := s.service.AddSections(s.ctx, insp.ID, s.oneRoom())
		s.Require().NoError(err)
		_, err = s.service.MarkCompleted(s.ctx, insp.ID)
		s.Require().NoError(err)

		_, err = s.service.AddSections(s.ctx, insp.ID, s.oneRoom())
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestMarkCompleted() {
	insp := s.create()

	_, err := s.service.MarkCompleted(s.ctx, insp.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "no items yet")

	_, err = s.service.AddSections(s.ctx, insp.ID, s.oneRoom())
	s.Require().NoError(err)
	done, err := s.service.MarkCompleted(s.ctx, insp.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, done.Status)

	again, err := s.service.MarkCompleted(s.ctx, insp.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, again.Status)
	s.Contains(s.auditActions(insp.ID), models.AuditInspectionDone)
}

func (s *ServiceSuite) TestSyncSigners() {
	insp := s.create()

	s.Run("skips roles that never sign", func() {
		entries, err := s.service.SyncSigners(s.ctx, insp.ID, s.leaseID)
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		roles := map[models.SignerRole]id.ProfileID{}
		for _, e := range entries {
			roles[e.SignerRole] = e.SignerProfileID
		}
		s.Equal(s.ownerID, roles[models.RoleOwner])
		s.Equal(s.tenantID, roles[models.RoleTenant])
	})

	s.Run("retry keeps entries and tokens", func() {
		before, err := s.signers.ListByInspection(s.ctx, insp.ID)
		s.Require().NoError(err)

		after, err := s.service.SyncSigners(s.ctx, insp.ID, s.leaseID)
		s.Require().NoError(err)
		s.Require().Len(after, 2)
		tokens := map[string]bool{}
		for _, e := range before {
			tokens[e.InvitationToken] = true
		}
		for _, e := range after {
			s.True(tokens[e.InvitationToken], "token %s was regenerated", e.InvitationToken)
		}
	})

	s.Run("lease must match the inspection", func() {
		_, err := s.service.SyncSigners(s.ctx, insp.ID, id.LeaseID(uuid.New()))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("roster outage is a dependency failure", func() {
		s.rosterErr = errors.New("connection refused")
		defer func() { s.rosterErr = nil }()
		_, err := s.service.SyncSigners(s.ctx, insp.ID, s.leaseID)
		s.True(dErrors.HasCode(err, dErrors.CodeDependencyFailure))
	})
}

func (s *ServiceSuite) TestSendInvitation() {
	insp := s.create()
	_, err := s.service.SyncSigners(s.ctx, insp.ID, s.leaseID)
	s.Require().NoError(err)

	s.Run("token is stable across invitations", func() {
		first, err := s.service.SendInvitation(s.ctx, insp.ID, s.tenantID)
		s.Require().NoError(err)
		second, err := s.service.SendInvitation(s.ctx, insp.ID, s.tenantID)
		s.Require().NoError(err)

		s.Equal("jean@example.com", first.SentTo)
		s.Equal(first.Token, second.Token)
		s.Len(s.outbox.ByType(models.EventInvitationSent), 2)

		entry, err := s.signers.Find(s.ctx, insp.ID, s.tenantID)
		s.Require().NoError(err)
		s.Equal(first.Token, entry.InvitationToken)
		s.Require().NotNil(entry.InvitationSentAt)
		s.True(entry.InvitationSentAt.Equal(s.now))
	})

	s.Run("unknown signer", func() {
		_, err := s.service.SendInvitation(s.ctx, insp.ID, s.garantID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("always audited", func() {
		s.Contains(s.auditActions(insp.ID), models.AuditInvitationSent)
	})
}

func (s *ServiceSuite) TestSubmitSignature() {
	s.Run("signature alone does not complete", func() {
		insp := s.create()
		_, err := s.service.SyncSigners(s.ctx, insp.ID, s.leaseID)
		s.Require().NoError(err)

		result := s.sign(insp.ID, s.ownerID)
		s.False(result.Signed)
		s.True(result.Completion.OwnerSigned)
		s.False(result.Completion.TenantSigned)
		s.Empty(s.outbox.ByType(models.EventSigned))
	})

	s.Run("role comes from the profile when no entry exists", func() {
		insp, err := s.service.CreateInspection(s.ctx, CreateCommand{LeaseID: s.leaseID, Type: "sortie", ActorID: s.ownerID})
		s.Require().NoError(err)

		result := s.sign(insp.ID, s.strangerID)
		s.Equal(models.RoleTenant, result.Entry.SignerRole)
		s.Equal("203.0.113.7", result.Entry.IPAddress)
	})

	s.Run("guarantor profile cannot sign", func() {
		insp := s.create()
		_, err := s.service.SubmitSignature(s.ctx, SignatureCommand{InspectionID: insp.ID, SignerProfileID: s.garantID, Image: pngImage})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("rejects empty and non-png images", func() {
		insp := s.create()
		_, err := s.service.SubmitSignature(s.ctx, SignatureCommand{InspectionID: insp.ID, SignerProfileID: s.ownerID})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = s.service.SubmitSignature(s.ctx, SignatureCommand{InspectionID: insp.ID, SignerProfileID: s.ownerID, Image: []byte("GIF89a")})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("resubmission after signing does not fire again", func() {
		insp := s.create()
		_, err := s.service.SyncSigners(s.ctx, insp.ID, s.leaseID)
		s.Require().NoError(err)
		s.sign(insp.ID, s.ownerID)
		first := s.sign(insp.ID, s.tenantID)
		s.True(first.Transitioned)

		again := s.sign(insp.ID, s.tenantID)
		s.True(again.Signed)
		s.False(again.Transitioned)

		var signedForInspection int
		for _, e := range s.outbox.ByType(models.EventSigned) {
			if e.AggregateID == insp.ID.String() {
				signedForInspection++
			}
		}
		s.Equal(1, signedForInspection)
	})
}

func (s *ServiceSuite) TestUploadFailureLeavesNoEntry() {
	blobs := mocks.NewMockBlobStore(s.ctrl)
	blobs.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), "image/png").
		Return("", errors.New("bucket unavailable"))
	svc := s.newService(blobs)

	insp := s.create()
	_, err := svc.SubmitSignature(s.ctx, SignatureCommand{InspectionID: insp.ID, SignerProfileID: s.ownerID, Image: pngImage})
	s.True(dErrors.HasCode(err, dErrors.CodeDependencyFailure))

	_, err = s.signers.Find(s.ctx, insp.ID, s.ownerID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Empty(s.outbox.ByType(models.EventSignatureCaptured))
}

func (s *ServiceSuite) TestConcurrentSignaturesCompleteExactlyOnce() {
	insp := s.create()
	_, err := s.service.SyncSigners(s.ctx, insp.ID, s.leaseID)
	s.Require().NoError(err)

	const rounds = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	transitions := 0
	for range rounds {
		for _, signer := range []id.ProfileID{s.ownerID, s.tenantID} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := s.service.SubmitSignature(s.ctx, SignatureCommand{
					InspectionID:    insp.ID,
					SignerProfileID: signer,
					Image:           pngImage,
				})
				if err != nil {
					return
				}
				if result.Transitioned {
					mu.Lock()
					transitions++
					mu.Unlock()
				}
			}()
		}
	}
	wg.Wait()

	s.Equal(1, transitions)
	s.Len(s.outbox.ByType(models.EventSigned), 1)
	s.Len(s.outbox.ByType(models.EventSignatureCaptured), 2*rounds)
}

func (s *ServiceSuite) TestSideEffectFailuresAreSwallowed() {
	events := mocks.NewMockEventSink(s.ctrl)
	events.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("outbox down")).AnyTimes()
	auditSink := mocks.NewMockAuditSink(s.ctrl)
	auditSink.EXPECT().Emit(gomock.Any(), gomock.Any()).
		Return(errors.New("audit down")).AnyTimes()
	svc := s.newService(s.blobs, WithEventSink(events), WithAuditSink(auditSink))

	insp, err := svc.CreateInspection(s.ctx, CreateCommand{LeaseID: s.leaseID, Type: "entree", ActorID: s.ownerID})
	s.Require().NoError(err)
	_, err = svc.SyncSigners(s.ctx, insp.ID, s.leaseID)
	s.Require().NoError(err)
	_, err = svc.SendInvitation(s.ctx, insp.ID, s.ownerID)
	s.Require().NoError(err)
	_, err = svc.SubmitSignature(s.ctx, SignatureCommand{InspectionID: insp.ID, SignerProfileID: s.ownerID, Image: pngImage})
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestResolveByToken() {
	insp := s.create()
	_, err := s.service.SyncSigners(s.ctx, insp.ID, s.leaseID)
	s.Require().NoError(err)
	invitation, err := s.service.SendInvitation(s.ctx, insp.ID, s.tenantID)
	s.Require().NoError(err)

	s.Run("resolves the signer and inspection", func() {
		access, err := s.service.ResolveByToken(s.ctx, invitation.Token)
		s.Require().NoError(err)
		s.Equal(insp.ID, access.Inspection.ID)
		s.Equal(s.tenantID, access.Signer.SignerProfileID)
	})

	s.Run("malformed token", func() {
		_, err := s.service.ResolveByToken(s.ctx, "not-a-token")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown token", func() {
		token, err := models.NewInvitationToken()
		s.Require().NoError(err)
		_, err = s.service.ResolveByToken(s.ctx, token)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("expires when a ttl is configured", func() {
		svc := s.newService(s.blobs, WithInvitationTTL(time.Hour))
		later := requestcontext.WithTime(context.Background(), s.now.Add(2*time.Hour))
		_, err := svc.ResolveByToken(later, invitation.Token)
		s.True(dErrors.HasCode(err, dErrors.CodeExpired))

		soon := requestcontext.WithTime(context.Background(), s.now.Add(30*time.Minute))
		_, err = svc.ResolveByToken(soon, invitation.Token)
		s.NoError(err)
	})
}

type fakeTokenIndex struct {
	entries map[string][2]uuid.UUID
	lookups int
}

func (f *fakeTokenIndex) Lookup(_ context.Context, token string) (id.InspectionID, id.ProfileID, bool, error) {
	f.lookups++
	e, ok := f.entries[token]
	return id.InspectionID(e[0]), id.ProfileID(e[1]), ok, nil
}

func (f *fakeTokenIndex) Remember(_ context.Context, token string, inspectionID id.InspectionID, profileID id.ProfileID) error {
	f.entries[token] = [2]uuid.UUID{uuid.UUID(inspectionID), uuid.UUID(profileID)}
	return nil
}

func (s *ServiceSuite) TestTokenIndexIsFilledOnInvite() {
	index := &fakeTokenIndex{entries: map[string][2]uuid.UUID{}}
	svc := s.newService(s.blobs, WithTokenIndex(index))

	insp := s.create()
	_, err := svc.SyncSigners(s.ctx, insp.ID, s.leaseID)
	s.Require().NoError(err)
	invitation, err := svc.SendInvitation(s.ctx, insp.ID, s.ownerID)
	s.Require().NoError(err)
	s.Contains(index.entries, invitation.Token)

	access, err := svc.ResolveByToken(s.ctx, invitation.Token)
	s.Require().NoError(err)
	s.Equal(s.ownerID, access.Signer.SignerProfileID)
	s.Equal(1, index.lookups)
}

func (s *ServiceSuite) TestAssembleDocument() {
	insp := s.create()
	_, err := s.service.AddSections(s.ctx, insp.ID, []models.SectionInput{
		{RoomName: "Salon", Items: []models.ItemInput{{Name: "Mur"}, {Name: "Sol"}}},
		{RoomName: "Cuisine", Items: []models.ItemInput{{Name: "Évier"}}},
	})
	s.Require().NoError(err)
	_, err = s.service.SyncSigners(s.ctx, insp.ID, s.leaseID)
	s.Require().NoError(err)
	s.sign(insp.ID, s.ownerID)
	_, err = s.service.AddMedia(s.ctx, MediaCommand{
		InspectionID: insp.ID,
		Data:         []byte("jpeg"),
		ContentType:  "image/jpeg",
		MediaType:    models.MediaPhoto,
	})
	s.Require().NoError(err)

	first, err := s.service.AssembleDocument(s.ctx, insp.ID)
	s.Require().NoError(err)
	second, err := s.service.AssembleDocument(s.ctx, insp.ID)
	s.Require().NoError(err)
	s.Equal(first, second)

	s.Len(first.Sections, 2)
	s.Len(first.GeneralPhotos, 1)
	s.Require().Len(first.Tenants, 1)
	s.Equal("Jean Dupont", first.Tenants[0].Name)
	s.Require().NotNil(first.Landlord)
	s.Equal("Claire Martin", first.Landlord.Name)
	s.Require().Len(first.Signatures, 2)
	s.True(first.Signatures[0].Signed)
	s.False(first.IsSigned)

	presigned, err := s.service.PresignDocument(s.ctx, first)
	s.Require().NoError(err)
	s.Len(presigned.URLs, 2)
}

func (s *ServiceSuite) TestAddMedia() {
	insp := s.create()
	items, err := s.service.AddSections(s.ctx, insp.ID, s.oneRoom())
	s.Require().NoError(err)

	s.Run("stores the file before the row", func() {
		itemID := items[0].ID
		media, err := s.service.AddMedia(s.ctx, MediaCommand{
			InspectionID: insp.ID,
			ItemID:       &itemID,
			Data:         []byte("jpeg"),
			ContentType:  "image/jpeg",
			MediaType:    models.MediaPhoto,
		})
		s.Require().NoError(err)
		_, _, ok := s.blobs.Get(media.StoragePath)
		s.True(ok)
		s.Contains(media.StoragePath, ".jpg")
	})

	s.Run("item must belong to the inspection", func() {
		other, err := s.service.CreateInspection(s.ctx, CreateCommand{LeaseID: s.leaseID, Type: "sortie", ActorID: s.ownerID})
		s.Require().NoError(err)
		itemID := items[0].ID
		_, err = s.service.AddMedia(s.ctx, MediaCommand{
			InspectionID: other.ID,
			ItemID:       &itemID,
			Data:         []byte("jpeg"),
			MediaType:    models.MediaPhoto,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestAuthorize() {
	insp := s.create()
	_, err := s.service.SyncSigners(s.ctx, insp.ID, s.leaseID)
	s.Require().NoError(err)

	s.NoError(s.service.Authorize(s.ctx, insp.ID, s.ownerID))
	s.NoError(s.service.Authorize(s.ctx, insp.ID, s.tenantID))

	err = s.service.Authorize(s.ctx, insp.ID, s.strangerID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	err = s.service.Authorize(s.ctx, insp.ID, id.ProfileID{})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestAuditCarriesUserAgentSummary() {
	insp := s.create()
	s.sign(insp.ID, s.ownerID)

	events, err := s.audit.ListByEntity(context.Background(), models.EntityInspection, insp.ID.String())
	s.Require().NoError(err)
	var captured *audit.Event
	for i := range events {
		if events[i].Action == models.AuditSignatureCaptured {
			captured = &events[i]
		}
	}
	s.Require().NotNil(captured)
	s.Equal(s.ownerID, captured.ActorID)
	s.Equal("true", captured.Metadata["mobile"])
}

func (s *ServiceSuite) TestAuditTrail() {
	insp := s.create()

	events, err := s.service.AuditTrail(s.ctx, insp.ID)
	s.Require().NoError(err)
	s.Empty(events, "no trail configured")

	svc := s.newService(s.blobs, WithAuditTrail(publisher.NewPublisher(s.audit)))
	events, err = svc.AuditTrail(s.ctx, insp.ID)
	s.Require().NoError(err)
	s.Require().NotEmpty(events)
	s.Equal(models.AuditInspectionCreated, events[0].Action)
	s.Equal(s.ownerID, events[0].ActorID)

	_, err = svc.AuditTrail(s.ctx, id.NewInspectionID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
