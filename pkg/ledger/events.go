package ledger

import "time"

// EventType identifies a ledger domain event.
type EventType string

const (
	EventPermitCreated     EventType = "PermitCreated"
	EventStatusUpdated     EventType = "StatusUpdated"
	EventNFPADataUpdated   EventType = "NFPADataUpdated"
	EventPaymentProcessed  EventType = "PaymentProcessed"
	EventAIReviewRecorded  EventType = "AIReviewRecorded"
	EventDocumentAdded     EventType = "DocumentAdded"
	EventCloseoutInitiated EventType = "CloseoutInitiated"
	EventCloseoutDocument  EventType = "CloseoutDocumentUploaded"
	EventSignatureRecorded EventType = "SignatureRecorded"
	EventCloseoutClosed    EventType = "CloseoutClosed"
	EventCloseoutRejected  EventType = "CloseoutRejected"
)

// IsCloseout reports whether the event belongs to the closeout workflow
// (and therefore travels on the closeout events channel).
func (t EventType) IsCloseout() bool {
	switch t {
	case EventCloseoutInitiated, EventCloseoutDocument, EventSignatureRecorded,
		EventCloseoutClosed, EventCloseoutRejected:
		return true
	default:
		return false
	}
}

// Event is a domain event published after a ledger commit succeeds.
// Delivery is at-least-once: consumers must tolerate duplicates, keyed by ID.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	PermitID  string            `json:"permit_id"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload,omitempty"`
}
