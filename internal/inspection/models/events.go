package models

import "time"

// Event types appended to the event sink.
const (
	EventScheduled         = "Inspection.Scheduled"
	EventItemsAdded        = "Inspection.ItemsAdded"
	EventInvitationSent    = "Inspection.InvitationSent"
	EventSignatureCaptured = "Inspection.SignatureCaptured"
	EventSigned            = "Inspection.Signed"
)

// Audit actions recorded for inspection operations.
const (
	AuditInspectionCreated = "inspection_created"
	AuditSectionsAdded     = "inspection_sections_added"
	AuditSignersSynced     = "inspection_signers_synced"
	AuditInvitationSent    = "inspection_invitation_sent"
	AuditSignatureCaptured = "inspection_signature_captured"
	AuditInspectionSigned  = "inspection_signed"
	AuditInspectionDone    = "inspection_completed"
	AuditMediaAdded        = "inspection_media_added"
)

// EntityType used in audit entries.
const EntityInspection = "inspection"

// ScheduledPayload is the body of Inspection.Scheduled.
type ScheduledPayload struct {
	InspectionID  string    `json:"inspectionId"`
	LeaseID       string    `json:"leaseId"`
	Type          string    `json:"type"`
	ScheduledDate time.Time `json:"scheduledDate"`
	CreatedBy     string    `json:"createdBy"`
}

// ItemsAddedPayload is the body of Inspection.ItemsAdded.
type ItemsAddedPayload struct {
	InspectionID string   `json:"inspectionId"`
	Count        int      `json:"count"`
	Rooms        []string `json:"rooms"`
}

// InvitationSentPayload carries what the delivery service needs to reach the
// signer. The token is the signer's capability; consumers must not log it.
type InvitationSentPayload struct {
	InspectionID    string    `json:"inspectionId"`
	SignerProfileID string    `json:"signerProfileId"`
	Role            string    `json:"role"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Token           string    `json:"token"`
	SentAt          time.Time `json:"sentAt"`
}

// SignatureCapturedPayload is the body of Inspection.SignatureCaptured.
type SignatureCapturedPayload struct {
	InspectionID    string    `json:"inspectionId"`
	SignerProfileID string    `json:"signerProfileId"`
	Role            string    `json:"role"`
	SignedAt        time.Time `json:"signedAt"`
}

// SignedPayload is the body of Inspection.Signed, emitted once per inspection.
type SignedPayload struct {
	InspectionID string    `json:"inspectionId"`
	LeaseID      string    `json:"leaseId"`
	SignedAt     time.Time `json:"signedAt"`
}
