package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"habitat/internal/inspection/document"
	"habitat/internal/inspection/models"
	"habitat/internal/inspection/service"
	"habitat/internal/platform/metrics"
	"habitat/internal/platform/middleware"
	id "habitat/pkg/domain"
	dErrors "habitat/pkg/domain-errors"
	"habitat/pkg/platform/audit"
	"habitat/pkg/platform/httputil"
	"habitat/pkg/platform/middleware/metadata"
	"habitat/pkg/platform/middleware/requesttime"
	"habitat/pkg/requestcontext"
)

const (
	maxJSONBody  = 1 << 20
	maxMediaBody = 32 << 20
)

// Service defines the inspection operations exposed over HTTP.
type Service interface {
	CreateInspection(ctx context.Context, cmd service.CreateCommand) (*models.Inspection, error)
	AddSections(ctx context.Context, inspectionID id.InspectionID, sections []models.SectionInput) ([]*models.Item, error)
	SyncSigners(ctx context.Context, inspectionID id.InspectionID, leaseID id.LeaseID) ([]*models.SignerEntry, error)
	SendInvitation(ctx context.Context, inspectionID id.InspectionID, profileID id.ProfileID) (*service.InvitationResult, error)
	SubmitSignature(ctx context.Context, cmd service.SignatureCommand) (*service.SignatureResult, error)
	ResolveByToken(ctx context.Context, token string) (*service.TokenAccess, error)
	AssembleDocument(ctx context.Context, inspectionID id.InspectionID) (*document.Document, error)
	PresignDocument(ctx context.Context, doc *document.Document) (*document.Document, error)
	MarkCompleted(ctx context.Context, inspectionID id.InspectionID) (*models.Inspection, error)
	AddMedia(ctx context.Context, cmd service.MediaCommand) (*models.Media, error)
	Authorize(ctx context.Context, inspectionID id.InspectionID, actor id.ProfileID) error
	AuditTrail(ctx context.Context, inspectionID id.InspectionID) ([]audit.Event, error)
}

// Handler serves the token signing routes and the authenticated inspection
// routes.
type Handler struct {
	logger       *slog.Logger
	service      Service
	metrics      *metrics.Metrics
	validator    middleware.ActorValidator
	tokenLimiter func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithTokenRateLimit guards the invitation token routes.
func WithTokenRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.tokenLimiter = mw
	}
}

// New creates a new inspection Handler.
func New(svc Service, logger *slog.Logger, m *metrics.Metrics, validator middleware.ActorValidator, opts ...Option) *Handler {
	h := &Handler{
		logger:    logger,
		service:   svc,
		metrics:   m,
		validator: validator,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the inspection routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(requesttime.Middleware)
	router.Use(metadata.ClientMetadata)
	router.Use(middleware.Logger(h.logger, h.metrics))

	// The invitation token is the credential on these routes.
	router.Group(func(r chi.Router) {
		if h.tokenLimiter != nil {
			r.Use(h.tokenLimiter)
		}
		r.Get("/sign/{token}", h.handleTokenView)
		r.Post("/sign/{token}/signature", h.handleTokenSignature)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Post("/inspections", h.handleCreate)
		r.Post("/inspections/{id}/sections", h.handleAddSections)
		r.Post("/inspections/{id}/signers/sync", h.handleSyncSigners)
		r.Post("/inspections/{id}/signers/{profileId}/invite", h.handleInvite)
		r.Post("/inspections/{id}/complete", h.handleComplete)
		r.Post("/inspections/{id}/media", h.handleAddMedia)
		r.Get("/inspections/{id}/document", h.handleDocument)
		r.Get("/inspections/{id}/audit", h.handleAuditTrail)
	})

	r.Mount("/", router)
}

func (h *Handler) handleTokenView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	access, err := h.service.ResolveByToken(ctx, chi.URLParam(r, "token"))
	if err != nil {
		h.fail(ctx, w, err, "token resolution failed")
		return
	}
	doc, err := h.service.AssembleDocument(ctx, access.Inspection.ID)
	if err != nil {
		h.fail(ctx, w, err, "document assembly failed")
		return
	}
	if h.notModified(ctx, w, r, doc) {
		return
	}
	signed, err := h.service.PresignDocument(ctx, doc)
	if err != nil {
		h.fail(ctx, w, err, "document presign failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokenViewResponse{
		InspectionID: access.Inspection.ID.String(),
		Signer:       toSignerResponse(access.Signer),
		Document:     signed,
	})
}

func (h *Handler) handleTokenSignature(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	access, err := h.service.ResolveByToken(ctx, chi.URLParam(r, "token"))
	if err != nil {
		h.fail(ctx, w, err, "token resolution failed")
		return
	}
	image, err := readSignature(w, r)
	if err != nil {
		h.fail(ctx, w, err, "invalid signature payload")
		return
	}

	result, err := h.service.SubmitSignature(ctx, service.SignatureCommand{
		InspectionID:    access.Inspection.ID,
		SignerProfileID: access.Signer.SignerProfileID,
		Image:           image,
		IPAddress:       requestcontext.ClientIP(ctx),
		UserAgent:       requestcontext.UserAgent(ctx),
	})
	if err != nil {
		h.fail(ctx, w, err, "signature submission failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, signatureResponse{
		Signer:       toSignerResponse(result.Entry),
		Status:       string(result.Status),
		Signed:       result.Signed,
		OwnerSigned:  result.Completion.OwnerSigned,
		TenantSigned: result.Completion.TenantSigned,
	})
}

// readSignature accepts a raw PNG body or a JSON body carrying a data URL.
func readSignature(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := http.MaxBytesReader(w, r.Body, maxMediaBody)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "image/") {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read signature")
		}
		return data, nil
	}
	var req signatureRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return req.decode()
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createInspectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(ctx, w, err, "invalid create inspection request")
		return
	}
	cmd, err := req.toCommand(requestcontext.ActorID(ctx))
	if err != nil {
		h.fail(ctx, w, err, "invalid create inspection request")
		return
	}
	insp, err := h.service.CreateInspection(ctx, cmd)
	if err != nil {
		h.fail(ctx, w, err, "failed to create inspection")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toInspectionResponse(insp))
}

func (h *Handler) handleAddSections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inspectionID, ok := h.authorized(w, r)
	if !ok {
		return
	}
	var req addSectionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(ctx, w, err, "invalid add sections request")
		return
	}
	items, err := h.service.AddSections(ctx, inspectionID, req.toInput())
	if err != nil {
		h.fail(ctx, w, err, "failed to add sections")
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, itemResponse{
			ID:        it.ID.String(),
			RoomName:  it.RoomName,
			Name:      it.ItemName,
			Condition: it.Condition,
			Notes:     it.Notes,
			Position:  it.Position,
		})
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"items": out})
}

func (h *Handler) handleSyncSigners(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inspectionID, ok := h.authorized(w, r)
	if !ok {
		return
	}
	entries, err := h.service.SyncSigners(ctx, inspectionID, id.LeaseID{})
	if err != nil {
		h.fail(ctx, w, err, "failed to sync signers")
		return
	}
	out := make([]signerResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toSignerResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"signers": out})
}

func (h *Handler) handleInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inspectionID, ok := h.authorized(w, r)
	if !ok {
		return
	}
	profileID, err := id.ParseProfileID(chi.URLParam(r, "profileId"))
	if err != nil {
		h.fail(ctx, w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid profile id"), "invalid invite request")
		return
	}
	result, err := h.service.SendInvitation(ctx, inspectionID, profileID)
	if err != nil {
		h.fail(ctx, w, err, "failed to send invitation")
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, invitationResponse{SentTo: result.SentTo, SentAt: result.SentAt})
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inspectionID, ok := h.authorized(w, r)
	if !ok {
		return
	}
	insp, err := h.service.MarkCompleted(ctx, inspectionID)
	if err != nil {
		h.fail(ctx, w, err, "failed to complete inspection")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toInspectionResponse(insp))
}

// handleAddMedia takes the file as the raw body. Metadata rides in the query:
// type, itemId, section, takenAt (RFC 3339).
func (h *Handler) handleAddMedia(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inspectionID, ok := h.authorized(w, r)
	if !ok {
		return
	}
	cmd, err := mediaCommand(w, r, inspectionID)
	if err != nil {
		h.fail(ctx, w, err, "invalid media upload")
		return
	}
	media, err := h.service.AddMedia(ctx, cmd)
	if err != nil {
		h.fail(ctx, w, err, "failed to add media")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, mediaResponse{
		ID:          media.ID.String(),
		StoragePath: media.StoragePath,
		MediaType:   string(media.MediaType),
		TakenAt:     media.TakenAt,
	})
}

func mediaCommand(w http.ResponseWriter, r *http.Request, inspectionID id.InspectionID) (service.MediaCommand, error) {
	q := r.URL.Query()
	cmd := service.MediaCommand{
		InspectionID: inspectionID,
		ContentType:  r.Header.Get("Content-Type"),
		MediaType:    models.MediaType(q.Get("type")),
	}
	if cmd.MediaType == "" {
		cmd.MediaType = models.MediaPhoto
	}
	if raw := q.Get("itemId"); raw != "" {
		itemID, err := id.ParseItemID(raw)
		if err != nil {
			return cmd, dErrors.Wrap(err, dErrors.CodeValidation, "invalid item id")
		}
		cmd.ItemID = &itemID
	}
	if section := strings.TrimSpace(q.Get("section")); section != "" {
		cmd.Section = &section
	}
	if raw := q.Get("takenAt"); raw != "" {
		takenAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return cmd, dErrors.Wrap(err, dErrors.CodeValidation, "takenAt must be RFC 3339")
		}
		cmd.TakenAt = takenAt
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMediaBody))
	if err != nil {
		return cmd, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read media")
	}
	cmd.Data = data
	return cmd, nil
}

func (h *Handler) handleDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inspectionID, ok := h.authorized(w, r)
	if !ok {
		return
	}
	doc, err := h.service.AssembleDocument(ctx, inspectionID)
	if err != nil {
		h.fail(ctx, w, err, "document assembly failed")
		return
	}
	if h.notModified(ctx, w, r, doc) {
		return
	}
	signed, err := h.service.PresignDocument(ctx, doc)
	if err != nil {
		h.fail(ctx, w, err, "document presign failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, signed)
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inspectionID, ok := h.authorized(w, r)
	if !ok {
		return
	}
	events, err := h.service.AuditTrail(ctx, inspectionID)
	if err != nil {
		h.fail(ctx, w, err, "audit trail read failed")
		return
	}
	out := make([]auditEntryResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toAuditEntryResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// authorized parses the {id} parameter and checks the actor may act on it.
func (h *Handler) authorized(w http.ResponseWriter, r *http.Request) (id.InspectionID, bool) {
	ctx := r.Context()
	inspectionID, err := id.ParseInspectionID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid inspection id"), "invalid inspection id")
		return id.InspectionID{}, false
	}
	if err := h.service.Authorize(ctx, inspectionID, requestcontext.ActorID(ctx)); err != nil {
		h.fail(ctx, w, err, "inspection access denied")
		return id.InspectionID{}, false
	}
	return inspectionID, true
}

// notModified sets the ETag and answers 304 when the client already holds
// this version.
func (h *Handler) notModified(ctx context.Context, w http.ResponseWriter, r *http.Request, doc *document.Document) bool {
	fingerprint, err := doc.Fingerprint()
	if err != nil {
		h.logger.WarnContext(ctx, "document fingerprint failed", "error", err)
		return false
	}
	etag := strconv.Quote(fingerprint)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	requestID := requestcontext.RequestID(ctx)
	var de *dErrors.Error
	if errors.As(err, &de) && de.Code != dErrors.CodeInternal {
		h.logger.WarnContext(ctx, msg, "request_id", requestID, "code", string(de.Code), "error", err.Error())
	} else {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err.Error())
	}
	httputil.WriteError(w, err)
}
