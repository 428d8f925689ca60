package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their retention and delivery needs.
type EventCategory string

const (
	// CategoryCompliance covers events a regulator may ask about: proof
	// issuance, verification outcomes and ledger anchoring. Persisted
	// synchronously; the business operation fails if the write fails.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine activity such as context resolution.
	// Emitted asynchronously and may be dropped under pressure.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. It never carries
// a raw biometric value.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    string
	Subject   string // context id, constraint set id or proof id
	Action    string
	Decision  string
	Reason    string
	RequestID string
}

type AuditEvent string

const (
	EventContextResolved    AuditEvent = "context_resolved"
	EventConstraintsDerived AuditEvent = "constraints_derived"
	EventReadingValidated   AuditEvent = "reading_validated"
	EventProofGenerated     AuditEvent = "proof_generated"
	EventProofVerified      AuditEvent = "proof_verified"
	EventProofAnchored      AuditEvent = "proof_anchored"
	EventAnchorFailed       AuditEvent = "anchor_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventProofGenerated: CategoryCompliance,
	EventProofVerified:  CategoryCompliance,
	EventProofAnchored:  CategoryCompliance,

	EventContextResolved:    CategoryOperations,
	EventConstraintsDerived: CategoryOperations,
	EventReadingValidated:   CategoryOperations,
	EventAnchorFailed:       CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID string) ([]Event, error)
}
