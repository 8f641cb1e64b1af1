package handler

import (
	"encoding/base64"
	"strings"
	"time"

	"habitat/internal/inspection/document"
	"habitat/internal/inspection/models"
	"habitat/internal/inspection/service"
	id "habitat/pkg/domain"
	dErrors "habitat/pkg/domain-errors"
	"habitat/pkg/platform/audit"
)

type createInspectionRequest struct {
	LeaseID       string          `json:"leaseId"`
	Type          string          `json:"type"`
	ScheduledDate time.Time       `json:"scheduledDate"`
	Notes         string          `json:"generalNotes"`
	Keys          []models.KeySet `json:"keys"`
}

func (r createInspectionRequest) toCommand(actor id.ProfileID) (service.CreateCommand, error) {
	leaseID, err := id.ParseLeaseID(r.LeaseID)
	if err != nil {
		return service.CreateCommand{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid lease id")
	}
	return service.CreateCommand{
		LeaseID:       leaseID,
		Type:          r.Type,
		ScheduledDate: r.ScheduledDate,
		Notes:         r.Notes,
		Keys:          r.Keys,
		ActorID:       actor,
	}, nil
}

type sectionRequest struct {
	RoomName string        `json:"roomName"`
	Items    []itemRequest `json:"items"`
}

type itemRequest struct {
	Name      string `json:"name"`
	Condition string `json:"condition"`
	Notes     string `json:"notes"`
}

type addSectionsRequest struct {
	Sections []sectionRequest `json:"sections"`
}

func (r addSectionsRequest) toInput() []models.SectionInput {
	out := make([]models.SectionInput, 0, len(r.Sections))
	for _, s := range r.Sections {
		section := models.SectionInput{RoomName: s.RoomName}
		for _, it := range s.Items {
			section.Items = append(section.Items, models.ItemInput{Name: it.Name, Condition: it.Condition, Notes: it.Notes})
		}
		out = append(out, section)
	}
	return out
}

// signatureRequest carries a canvas export, either a data URL or bare base64.
type signatureRequest struct {
	Signature string `json:"signature"`
}

func (r signatureRequest) decode() ([]byte, error) {
	raw := strings.TrimSpace(r.Signature)
	if raw == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "signature is required")
	}
	if strings.HasPrefix(raw, "data:") {
		comma := strings.IndexByte(raw, ',')
		if comma < 0 || !strings.Contains(raw[:comma], ";base64") {
			return nil, dErrors.New(dErrors.CodeValidation, "signature must be a base64 data URL")
		}
		raw = raw[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "signature is not valid base64")
	}
	return data, nil
}

type inspectionResponse struct {
	ID            string          `json:"id"`
	Reference     string          `json:"reference"`
	LeaseID       string          `json:"leaseId"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	ScheduledDate time.Time       `json:"scheduledDate"`
	GeneralNotes  string          `json:"generalNotes,omitempty"`
	Keys          []models.KeySet `json:"keys"`
	CreatedBy     string          `json:"createdBy"`
	CreatedAt     time.Time       `json:"createdAt"`
	SignedAt      *time.Time      `json:"signedAt,omitempty"`
}

func toInspectionResponse(i *models.Inspection) inspectionResponse {
	keys := i.Keys
	if keys == nil {
		keys = []models.KeySet{}
	}
	return inspectionResponse{
		ID:            i.ID.String(),
		Reference:     document.Reference(i.ID),
		LeaseID:       i.LeaseID.String(),
		Type:          string(i.Type),
		Status:        string(i.Status),
		ScheduledDate: i.ScheduledDate,
		GeneralNotes:  i.GeneralNotes,
		Keys:          keys,
		CreatedBy:     i.CreatedBy.String(),
		CreatedAt:     i.CreatedAt,
		SignedAt:      i.SignedAt,
	}
}

type itemResponse struct {
	ID        string `json:"id"`
	RoomName  string `json:"roomName"`
	Name      string `json:"name"`
	Condition string `json:"condition"`
	Notes     string `json:"notes,omitempty"`
	Position  int    `json:"position"`
}

type signerResponse struct {
	ProfileID        string     `json:"profileId"`
	Role             string     `json:"role"`
	Signed           bool       `json:"signed"`
	SignedAt         *time.Time `json:"signedAt,omitempty"`
	InvitationSentAt *time.Time `json:"invitationSentAt,omitempty"`
}

// toSignerResponse never exposes the invitation token.
func toSignerResponse(e *models.SignerEntry) signerResponse {
	r := signerResponse{
		ProfileID:        e.SignerProfileID.String(),
		Role:             string(e.SignerRole),
		Signed:           e.IsSigned(),
		InvitationSentAt: e.InvitationSentAt,
	}
	if r.Signed {
		r.SignedAt = e.SignedAt
	}
	return r
}

type invitationResponse struct {
	SentTo string    `json:"sentTo"`
	SentAt time.Time `json:"sentAt"`
}

type signatureResponse struct {
	Signer       signerResponse `json:"signer"`
	Status       string         `json:"status"`
	Signed       bool           `json:"signed"`
	OwnerSigned  bool           `json:"ownerSigned"`
	TenantSigned bool           `json:"tenantSigned"`
}

type tokenViewResponse struct {
	InspectionID string             `json:"inspectionId"`
	Signer       signerResponse     `json:"signer"`
	Document     *document.Document `json:"document"`
}

type mediaResponse struct {
	ID          string    `json:"id"`
	StoragePath string    `json:"storagePath"`
	MediaType   string    `json:"mediaType"`
	TakenAt     time.Time `json:"takenAt"`
}

type auditEntryResponse struct {
	At        time.Time         `json:"at"`
	Action    string            `json:"action"`
	ActorID   string            `json:"actorId,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func toAuditEntryResponse(e audit.Event) auditEntryResponse {
	r := auditEntryResponse{
		At:        e.Timestamp,
		Action:    e.Action,
		RequestID: e.RequestID,
		Metadata:  e.Metadata,
	}
	if !e.ActorID.IsNil() {
		r.ActorID = e.ActorID.String()
	}
	return r
}
