// Package permit implements the permit lifecycle state machine over the
// ledger Store. All mutations follow the same shape: read the record, apply
// the change in memory, commit with the sequence the read observed, then
// publish the resulting events. A concurrent writer surfaces as a
// fault.Conflict from the store; the caller re-reads and retries.
package permit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ahjlabs/fireline/internal/metrics"
	"github.com/ahjlabs/fireline/pkg/fault"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

// AIReviewer produces an advisory automated review of a permit. The state
// machine records results; it never computes them.
type AIReviewer interface {
	Review(ctx context.Context, p *ledger.Permit) (ledger.AIReview, error)
}

// Service is the permit lifecycle state machine.
type Service struct {
	store     ledger.Store
	publisher ledger.Publisher
	reviewer  AIReviewer
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewService creates a permit service. publisher, reviewer and m may be nil
// for callers that do not need events, automated review or metrics.
func NewService(store ledger.Store, publisher ledger.Publisher, reviewer AIReviewer, m *metrics.Metrics) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		reviewer:  reviewer,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreatePermitInput carries the caller-supplied fields for a new permit.
type CreatePermitInput struct {
	PermitID      string
	ApplicationID string
	PermitType    ledger.PermitType
	Applicant     ledger.Applicant
	Property      ledger.Property
	NFPAData      ledger.NFPAData
	Documents     ledger.DocumentSet
}

// ReviewerInfo accompanies a status update. Lane may be empty when the
// update carries no department review (a submission, for example); a
// non-empty Lane must name a known review lane.
type ReviewerInfo struct {
	Lane     ledger.ReviewLane
	Name     string
	Decision ledger.ReviewDecision
	Comments string
	Priority ledger.Priority
	DueDate  *time.Time
	Reason   string
}

// UpdaterInfo accompanies an NFPA data update.
type UpdaterInfo struct {
	Name       string
	Role       string
	Department string
	Reason     string
}

// PaymentInfo describes the single payment made against a permit's fees.
type PaymentInfo struct {
	Method        string
	TransactionID string
	Amount        float64
	PaidBy        string
	ReceiptNumber string
}

// CreatePermit creates a new permit in DRAFT with the mandatory review
// lanes initialised, zeroed fees, version 1 and a synthetic creation entry
// in the status history. The permit expires one year after creation.
func (s *Service) CreatePermit(ctx context.Context, input CreatePermitInput) (*ledger.Permit, error) {
	if input.PermitID == "" {
		return nil, fault.New(fault.InvalidInput, "permit ID cannot be empty")
	}
	if input.ApplicationID == "" {
		return nil, fault.New(fault.InvalidInput, "application ID cannot be empty")
	}
	if err := input.PermitType.Validate(); err != nil {
		return nil, fault.Wrap(fault.InvalidInput, err, "invalid permit type")
	}
	if input.Applicant.Name == "" {
		return nil, fault.New(fault.InvalidInput, "applicant name cannot be empty")
	}

	exists, err := s.store.PermitExists(ctx, input.PermitID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fault.New(fault.AlreadyExists, "permit %s already exists", input.PermitID)
	}

	now := s.now()

	reviewers := make(map[ledger.ReviewLane]ledger.ReviewerEntry, len(ledger.MandatoryLanes()))
	for _, lane := range ledger.MandatoryLanes() {
		reviewers[lane] = ledger.ReviewerEntry{
			Decision:  ledger.DecisionPending,
			Timestamp: now,
			Priority:  ledger.PriorityMedium,
		}
	}

	nfpa := input.NFPAData
	if nfpa == nil {
		nfpa = ledger.NFPAData{}
	}

	p := &ledger.Permit{
		PermitID:       input.PermitID,
		ApplicationID:  input.ApplicationID,
		PermitType:     input.PermitType,
		Status:         ledger.StatusDraft,
		Applicant:      input.Applicant,
		Property:       input.Property,
		NFPAData:       nfpa,
		Documents:      input.Documents,
		Reviewers:      reviewers,
		Fees:           ledger.Fees{AdditionalFees: []ledger.FeeItem{}},
		SubmittedDate:  now,
		LastModified:   now,
		ExpirationDate: now.AddDate(1, 0, 0),
		Version:        1,
		RedlineHistory: []ledger.RedlineEntry{},
	}

	p.StatusHistory = []ledger.StatusChange{{
		From:      ledger.StatusDraft,
		To:        ledger.StatusDraft,
		Timestamp: now,
		UpdatedBy: "SYSTEM",
		Reason:    "Initial permit creation",
		Comments:  "Permit created in draft status",
		DocHash:   docHash(p),
	}}

	if err := s.store.PutPermit(ctx, p, 0); err != nil {
		return nil, err
	}

	s.metrics.PermitCreated()
	s.logEvent("permit_created", map[string]interface{}{
		"permit_id":   p.PermitID,
		"permit_type": p.PermitType,
	})

	s.publish(ctx, s.newEvent(ledger.EventPermitCreated, p.PermitID, map[string]string{
		"status": string(p.Status),
	}))

	return p, nil
}

// ReadPermit retrieves a permit by ID.
func (s *Service) ReadPermit(ctx context.Context, permitID string) (*ledger.Permit, error) {
	return s.store.GetPermit(ctx, permitID)
}

// PermitExists checks existence without fetching the record.
func (s *Service) PermitExists(ctx context.Context, permitID string) (bool, error) {
	return s.store.PermitExists(ctx, permitID)
}

// UpdateStatus transitions a permit to a new status, enforcing the
// transition table, and optionally updates the named review lane. Every
// committed transition appends a status history entry.
func (s *Service) UpdateStatus(ctx context.Context, permitID string, newStatus ledger.PermitStatus, reviewer ReviewerInfo) (*ledger.Permit, error) {
	if err := newStatus.Validate(); err != nil {
		return nil, fault.Wrap(fault.InvalidInput, err, "invalid status")
	}

	p, err := s.store.GetPermit(ctx, permitID)
	if err != nil {
		return nil, err
	}

	if p.Status.IsTerminal() {
		return nil, fault.New(fault.InvalidStateTransition,
			"permit %s is in terminal status %s", permitID, p.Status)
	}
	if !CanTransition(p.Status, newStatus) {
		return nil, fault.New(fault.InvalidStateTransition,
			"cannot transition permit %s from %s to %s", permitID, p.Status, newStatus)
	}

	now := s.now()
	oldStatus := p.Status

	if reviewer.Lane != "" {
		if err := reviewer.Lane.Validate(); err != nil {
			return nil, fault.Wrap(fault.InvalidInput, err, "invalid review lane")
		}
		decision := reviewer.Decision
		if decision == "" {
			decision = ledger.DecisionReviewed
		}
		if err := decision.Validate(); err != nil {
			return nil, fault.Wrap(fault.InvalidInput, err, "invalid review decision")
		}
		priority := reviewer.Priority
		if priority == "" {
			priority = ledger.PriorityMedium
		}
		if err := priority.Validate(); err != nil {
			return nil, fault.Wrap(fault.InvalidInput, err, "invalid priority")
		}

		p.Reviewers[reviewer.Lane] = ledger.ReviewerEntry{
			Decision:  decision,
			Reviewer:  reviewer.Name,
			Comments:  reviewer.Comments,
			Timestamp: now,
			Priority:  priority,
			DueDate:   reviewer.DueDate,
		}
	}

	p.Status = newStatus
	p.LastModified = now

	reason := reviewer.Reason
	if reason == "" {
		reason = "Status update"
	}

	p.StatusHistory = append(p.StatusHistory, ledger.StatusChange{
		From:      oldStatus,
		To:        newStatus,
		Timestamp: now,
		UpdatedBy: reviewer.Name,
		Reason:    reason,
		Comments:  reviewer.Comments,
		DocHash:   docHash(p),
	})

	if err := s.commit(ctx, p); err != nil {
		return nil, err
	}

	s.metrics.StatusTransition(string(newStatus))
	s.logEvent("status_updated", map[string]interface{}{
		"permit_id":   permitID,
		"from_status": oldStatus,
		"to_status":   newStatus,
		"updated_by":  reviewer.Name,
	})

	s.publish(ctx, s.newEvent(ledger.EventStatusUpdated, permitID, map[string]string{
		"from":       string(oldStatus),
		"to":         string(newStatus),
		"updated_by": reviewer.Name,
	}))

	return p, nil
}

// UpdateNFPAData replaces a permit's NFPA data. When the field-level diff
// is non-empty the permit is marked redlined, a redline entry is appended
// and the version bumps; a no-op update commits the timestamp change only.
// Updates from an ADMIN role record the updater as the redline approver.
func (s *Service) UpdateNFPAData(ctx context.Context, permitID string, newData ledger.NFPAData, updater UpdaterInfo) (*ledger.Permit, error) {
	if newData == nil {
		return nil, fault.New(fault.InvalidInput, "nfpa data cannot be nil")
	}

	p, err := s.store.GetPermit(ctx, permitID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	changes := DetectChanges(p.NFPAData, newData)

	if len(changes) > 0 {
		reason := updater.Reason
		if reason == "" {
			reason = "NFPA data update"
		}

		entry := ledger.RedlineEntry{
			Version:   p.Version + 1,
			Changes:   changes,
			Timestamp: now,
			UpdatedBy: updater.Name,
			Reason:    reason,
		}
		if updater.Role == "ADMIN" {
			entry.ApprovedBy = updater.Name
		}

		p.IsRedlined = true
		p.RedlineHistory = append(p.RedlineHistory, entry)
		p.Version++
	}

	p.NFPAData = newData
	p.LastModified = now

	if err := s.commit(ctx, p); err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		s.metrics.RedlineRecorded()
	}
	s.logEvent("nfpa_data_updated", map[string]interface{}{
		"permit_id":  permitID,
		"version":    p.Version,
		"changes":    len(changes),
		"updated_by": updater.Name,
	})

	s.publish(ctx, s.newEvent(ledger.EventNFPADataUpdated, permitID, map[string]string{
		"version":    fmt.Sprintf("%d", p.Version),
		"changes":    fmt.Sprintf("%d", len(changes)),
		"updated_by": updater.Name,
	}))

	return p, nil
}

// ProcessPayment records the single payment against a permit's fees.
// A second payment attempt fails with fault.AlreadyPaid and leaves the
// recorded transaction untouched.
func (s *Service) ProcessPayment(ctx context.Context, permitID string, payment PaymentInfo) (*ledger.Permit, error) {
	if payment.TransactionID == "" {
		return nil, fault.New(fault.InvalidInput, "transaction ID cannot be empty")
	}
	if payment.Amount < 0 {
		return nil, fault.New(fault.InvalidInput, "payment amount cannot be negative")
	}

	p, err := s.store.GetPermit(ctx, permitID)
	if err != nil {
		return nil, err
	}

	if p.Fees.Paid {
		return nil, fault.New(fault.AlreadyPaid, "fees for permit %s have already been paid", permitID)
	}

	now := s.now()
	p.Fees.Paid = true
	p.Fees.PaymentMethod = payment.Method
	p.Fees.TransactionID = payment.TransactionID
	p.Fees.PaidDate = &now
	if p.Fees.TotalAmount == 0 {
		p.Fees.TotalAmount = payment.Amount
	}
	p.LastModified = now

	if err := s.commit(ctx, p); err != nil {
		return nil, err
	}

	s.metrics.PaymentProcessed()
	s.logEvent("payment_processed", map[string]interface{}{
		"permit_id":      permitID,
		"amount":         payment.Amount,
		"transaction_id": payment.TransactionID,
	})

	s.publish(ctx, s.newEvent(ledger.EventPaymentProcessed, permitID, map[string]string{
		"amount":         fmt.Sprintf("%g", payment.Amount),
		"transaction_id": payment.TransactionID,
	}))

	return p, nil
}

// PerformAIReview asks the configured reviewer collaborator for an advisory
// review and records the result on the permit. A repeat review overwrites
// the previous one (last write wins).
func (s *Service) PerformAIReview(ctx context.Context, permitID string) (*ledger.Permit, error) {
	if s.reviewer == nil {
		return nil, fault.New(fault.CollaboratorUnavailable, "no AI reviewer configured")
	}

	p, err := s.store.GetPermit(ctx, permitID)
	if err != nil {
		return nil, err
	}

	review, err := s.reviewer.Review(ctx, p)
	if err != nil {
		return nil, fault.Wrap(fault.CollaboratorUnavailable, err, "AI review failed for permit %s", permitID)
	}

	p.AIReview = &review
	p.LastModified = s.now()

	if err := s.commit(ctx, p); err != nil {
		return nil, err
	}

	s.metrics.AIReviewRecorded()
	s.logEvent("ai_review_recorded", map[string]interface{}{
		"permit_id": permitID,
		"score":     review.Score,
	})

	s.publish(ctx, s.newEvent(ledger.EventAIReviewRecorded, permitID, map[string]string{
		"score": fmt.Sprintf("%g", review.Score),
	}))

	return p, nil
}

// AttachDocument appends a document reference (URI or content hash) to the
// named category of the permit's document bundle. Raw bytes never land on
// the permit record.
func (s *Service) AttachDocument(ctx context.Context, permitID, category, ref, addedBy string) (*ledger.Permit, error) {
	if ref == "" {
		return nil, fault.New(fault.InvalidInput, "document reference cannot be empty")
	}

	p, err := s.store.GetPermit(ctx, permitID)
	if err != nil {
		return nil, err
	}

	switch category {
	case "plans":
		p.Documents.Plans = ref
	case "specifications":
		p.Documents.Specifications = ref
	case "calculations":
		p.Documents.Calculations = ref
	case "drawings":
		p.Documents.Drawings = append(p.Documents.Drawings, ref)
	case "inspection_reports":
		p.Documents.InspectionReports = append(p.Documents.InspectionReports, ref)
	case "test_reports":
		p.Documents.TestReports = append(p.Documents.TestReports, ref)
	case "certifications":
		p.Documents.Certifications = append(p.Documents.Certifications, ref)
	case "insurance_documents":
		p.Documents.InsuranceDocuments = append(p.Documents.InsuranceDocuments, ref)
	default:
		return nil, fault.New(fault.InvalidInput, "unknown document category: %q", category)
	}

	p.LastModified = s.now()

	if err := s.commit(ctx, p); err != nil {
		return nil, err
	}

	s.logEvent("document_added", map[string]interface{}{
		"permit_id": permitID,
		"category":  category,
		"added_by":  addedBy,
	})

	s.publish(ctx, s.newEvent(ledger.EventDocumentAdded, permitID, map[string]string{
		"category": category,
		"added_by": addedBy,
	}))

	return p, nil
}

// GetPermitHistory returns every committed revision, oldest first.
func (s *Service) GetPermitHistory(ctx context.Context, permitID string) ([]ledger.Revision, error) {
	return s.store.PermitHistory(ctx, permitID)
}

// QueryPermitsByStatus returns all permits currently in the status.
func (s *Service) QueryPermitsByStatus(ctx context.Context, status ledger.PermitStatus) ([]*ledger.Permit, error) {
	return s.store.QueryPermitsByStatus(ctx, status)
}

// QueryPermitsByType returns all permits of the given type.
func (s *Service) QueryPermitsByType(ctx context.Context, permitType ledger.PermitType) ([]*ledger.Permit, error) {
	return s.store.QueryPermitsByType(ctx, permitType)
}

// commit writes the permit back at the sequence the read observed,
// recording conflicts in metrics before surfacing them.
func (s *Service) commit(ctx context.Context, p *ledger.Permit) error {
	if err := s.store.PutPermit(ctx, p, p.Seq); err != nil {
		if fault.IsKind(err, fault.Conflict) {
			s.metrics.WriteConflict()
		}
		return err
	}
	return nil
}

func (s *Service) newEvent(eventType ledger.EventType, permitID string, payload map[string]string) ledger.Event {
	return ledger.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		PermitID:  permitID,
		Timestamp: s.now(),
		Payload:   payload,
	}
}

// publish delivers events after a successful commit. Publication failures
// are logged, not returned: the commit already happened and consumers
// tolerate missed events the same way they tolerate duplicates.
func (s *Service) publish(ctx context.Context, events ...ledger.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		log.Printf("[Permit] Failed to publish events: %v", err)
	}
}

// docHash computes the SHA-256 of the permit's canonical JSON at the time
// of the status change being recorded.
func docHash(p *ledger.Permit) string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// logEvent logs a structured event in JSON format.
func (s *Service) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = s.now().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "permit"
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Permit] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
