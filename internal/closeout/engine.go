// Package closeout implements the permit closeout workflow: initiation
// after the final field inspection, document collection, signature
// gathering, compliance review and closure. Every state change is a single
// optimistic-concurrency commit against the ledger; events and
// notifications go out only after the commit succeeds.
package closeout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ahjlabs/fireline/internal/archive"
	"github.com/ahjlabs/fireline/internal/documents"
	"github.com/ahjlabs/fireline/internal/metrics"
	"github.com/ahjlabs/fireline/internal/notify"
	"github.com/ahjlabs/fireline/internal/permit"
	"github.com/ahjlabs/fireline/internal/signatures"
	"github.com/ahjlabs/fireline/pkg/fault"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

// Config tunes the closeout workflow thresholds.
type Config struct {
	// DocumentDeadlineDays is how long after initiation the required
	// documents are due.
	DocumentDeadlineDays int

	// ComplexCostThreshold is the project cost above which a permit is
	// classified complex.
	ComplexCostThreshold float64

	// ManualReviewCostCeiling is the project cost above which closure
	// always goes to manual review.
	ManualReviewCostCeiling float64

	// RiskOverrides forces a risk class per permit type, bypassing the
	// hazard and cost classification.
	RiskOverrides map[ledger.PermitType]ledger.RiskClass
}

// DefaultConfig returns the standard workflow thresholds.
func DefaultConfig() Config {
	return Config{
		DocumentDeadlineDays:    30,
		ComplexCostThreshold:    1_000_000,
		ManualReviewCostCeiling: 5_000_000,
	}
}

// Engine drives the closeout workflow over the ledger store and its
// collaborators.
type Engine struct {
	store    ledger.Store
	permits  *permit.Service
	docs     documents.Manager
	sigs     signatures.Manager
	notifier notify.Sender
	archiver archive.Store
	pub      ledger.Publisher
	metrics  *metrics.Metrics
	cfg      Config
	now      func() time.Time
}

// NewEngine creates a closeout engine. notifier, archiver, pub and m may be
// nil for callers that do not need those side effects.
func NewEngine(store ledger.Store, permits *permit.Service, docs documents.Manager, sigs signatures.Manager, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		permits: permits,
		docs:    docs,
		sigs:    sigs,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithNotifier wires a notification sender.
func WithNotifier(n notify.Sender) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithArchiver wires an archive store.
func WithArchiver(a archive.Store) Option {
	return func(e *Engine) { e.archiver = a }
}

// WithPublisher wires an event publisher.
func WithPublisher(p ledger.Publisher) Option {
	return func(e *Engine) { e.pub = p }
}

// WithMetrics wires workflow metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the engine clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// InitiateCloseout starts the closeout workflow for an approved permit.
// The final inspection must have passed; the risk class is derived from the
// permit and fixes the required-document profile for the rest of the
// workflow.
func (e *Engine) InitiateCloseout(ctx context.Context, permitID, initiatedBy string, inspection ledger.InspectionResults) (*ledger.CloseoutRecord, error) {
	p, err := e.store.GetPermit(ctx, permitID)
	if err != nil {
		return nil, err
	}

	if p.Status != ledger.StatusApproved {
		return nil, fault.New(fault.InvalidStateTransition,
			"permit %s must be APPROVED to initiate closeout, got %s", permitID, p.Status)
	}
	if !inspection.Approved {
		return nil, fault.New(fault.InspectionNotApproved,
			"final inspection for permit %s has not been approved", permitID)
	}

	if _, err := e.store.GetCloseout(ctx, permitID); err == nil {
		return nil, fault.New(fault.AlreadyExists, "closeout for permit %s already exists", permitID)
	} else if !fault.IsNotFound(err) {
		return nil, err
	}

	now := e.now()
	class := e.classifyRisk(p)

	r := &ledger.CloseoutRecord{
		CloseoutID:        uuid.New().String(),
		PermitID:          permitID,
		Status:            ledger.CloseoutPendingDocuments,
		InitiatedBy:       initiatedBy,
		InitiatedAt:       now,
		Inspection:        inspection,
		RiskClass:         class,
		RequiredDocuments: requiredDocuments(class),
		Documents:         []ledger.CloseoutDocument{},
		Signatures:        []ledger.SignatureEntry{},
		Timeline:          []ledger.Milestone{},
		DocumentDeadline:  now.AddDate(0, 0, e.cfg.DocumentDeadlineDays),
	}
	r.AddMilestone("inspection_approved", inspection.CompletedAt)
	r.AddMilestone("documents_required", now)
	r.Checks = computeChecks(r, now)

	if err := e.commit(ctx, r, 0); err != nil {
		return nil, err
	}

	e.logEvent("closeout_initiated", map[string]interface{}{
		"permit_id":  permitID,
		"risk_class": class,
		"deadline":   r.DocumentDeadline.Format(time.RFC3339),
	})

	e.publish(ctx, e.newEvent(ledger.EventCloseoutInitiated, permitID, map[string]string{
		"closeout_id": r.CloseoutID,
		"risk_class":  string(class),
	}))

	e.send(ctx, notify.Notification{
		Type:      "closeout_initiated",
		PermitID:  permitID,
		Recipient: p.Applicant.Email,
		Data: map[string]string{
			"deadline":  r.DocumentDeadline.Format("2006-01-02"),
			"documents": fmt.Sprintf("%d", len(r.RequiredDocuments)),
		},
	})

	return r, nil
}

// classifyRisk derives the closeout risk class. A configured override for
// the permit type wins; otherwise declared special hazards force hazmat and
// project cost above the threshold forces complex.
func (e *Engine) classifyRisk(p *ledger.Permit) ledger.RiskClass {
	if class, ok := e.cfg.RiskOverrides[p.PermitType]; ok {
		return class
	}
	if len(p.NFPAData.SpecialHazards()) > 0 {
		return ledger.RiskHazmat
	}
	if p.Property.ProjectCost > e.cfg.ComplexCostThreshold {
		return ledger.RiskComplex
	}
	return ledger.RiskStandard
}

// UploadDocument verifies and records a closeout document. A re-upload
// replaces a rejected document of the same type; a verified document cannot
// be replaced. When the upload completes the required set, signature
// requests are derived and the closeout advances to PENDING_SIGNATURES in
// the same commit.
func (e *Engine) UploadDocument(ctx context.Context, permitID string, docType ledger.DocumentType, f documents.File, uploadedBy string) (*ledger.CloseoutRecord, error) {
	r, err := e.store.GetCloseout(ctx, permitID)
	if err != nil {
		return nil, err
	}

	if r.Status.IsTerminal() {
		return nil, fault.New(fault.InvalidStateTransition,
			"closeout for permit %s is %s", permitID, r.Status)
	}

	if !e.isRequired(r, docType) {
		return nil, fault.New(fault.DocumentTypeNotRequired,
			"document type %s is not required for a %s closeout", docType, r.RiskClass)
	}

	if existing := r.DocumentByType(docType); existing != nil && existing.Status == ledger.DocumentVerified {
		return nil, fault.New(fault.AlreadyVerified,
			"document %s for permit %s is already verified", docType, permitID)
	}

	doc, err := e.docs.Upload(ctx, permitID, docType, f, uploadedBy)
	if err != nil {
		return nil, err
	}

	replaced := false
	for i := range r.Documents {
		if r.Documents[i].Type == docType {
			r.Documents[i] = doc
			replaced = true
			break
		}
	}
	if !replaced {
		r.Documents = append(r.Documents, doc)
	}

	now := e.now()
	r.Checks = computeChecks(r, now)

	if e.allRequiredVerified(r) && r.Status == ledger.CloseoutPendingDocuments {
		r.Status = ledger.CloseoutDocumentsUploaded
		r.AddMilestone("documents_uploaded", now)

		if err := e.deriveSignatures(ctx, r); err != nil {
			return nil, err
		}

		r.Status = ledger.CloseoutPendingSignatures
		r.AddMilestone("signatures_requested", now)
	}

	if err := e.commit(ctx, r, r.Seq); err != nil {
		return nil, err
	}

	e.logEvent("closeout_document_uploaded", map[string]interface{}{
		"permit_id":     permitID,
		"document_type": docType,
		"status":        doc.Status,
		"score":         doc.Verification.Completeness.Score,
	})

	e.publish(ctx, e.newEvent(ledger.EventCloseoutDocument, permitID, map[string]string{
		"document_type": string(docType),
		"document_id":   doc.DocumentID,
		"status":        string(doc.Status),
	}))

	return r, nil
}

func (e *Engine) isRequired(r *ledger.CloseoutRecord, docType ledger.DocumentType) bool {
	for _, t := range r.RequiredDocuments {
		if t == docType {
			return true
		}
	}
	return false
}

func (e *Engine) allRequiredVerified(r *ledger.CloseoutRecord) bool {
	for _, docType := range r.RequiredDocuments {
		doc := r.DocumentByType(docType)
		if doc == nil || doc.Status != ledger.DocumentVerified {
			return false
		}
	}
	return true
}

// defaultSigners maps signature roles to the responsible parties on record
// with the authority. A deployment integrating a personnel directory would
// resolve these per permit.
func defaultSigners() map[ledger.SignatureRole]ledger.SignerInfo {
	return map[ledger.SignatureRole]ledger.SignerInfo{
		ledger.RoleInspector: {
			Name:          "Patricia Thompson",
			Email:         "pthompson@city.gov",
			Title:         "Fire Marshal",
			Organization:  "City Fire Department",
			LicenseNumber: "FI-12345",
		},
		ledger.RoleEngineer: {
			Name:          "John Smith",
			Email:         "jsmith@engineeringfirm.com",
			Title:         "Professional Engineer",
			Organization:  "Smith Engineering",
			LicenseNumber: "PE-67890",
		},
		ledger.RoleContractor: {
			Name:          "Mike Johnson",
			Email:         "mjohnson@contractor.com",
			Title:         "Licensed Contractor",
			Organization:  "Johnson Fire Protection",
			LicenseNumber: "CL-54321",
		},
	}
}

// deriveSignatures issues the signature requests the verified documents
// call for and attaches the pending entries to the record.
func (e *Engine) deriveSignatures(ctx context.Context, r *ledger.CloseoutRecord) error {
	signers := defaultSigners()

	for _, docType := range r.RequiredDocuments {
		doc := r.DocumentByType(docType)
		if doc == nil {
			continue
		}

		for _, role := range signatureRolesFor(docType) {
			signer, ok := signers[role]
			if !ok {
				continue
			}

			entry, err := e.sigs.CreateRequest(ctx, r.PermitID, doc.DocumentID, signer, role)
			if err != nil {
				return err
			}
			r.Signatures = append(r.Signatures, entry)

			e.send(ctx, notify.Notification{
				Type:      "signature_requested",
				PermitID:  r.PermitID,
				Recipient: signer.Email,
				Data: map[string]string{
					"signature_id": entry.SignatureID,
					"document_id":  doc.DocumentID,
					"role":         string(role),
					"expires_at":   entry.ExpiresAt.Format(time.RFC3339),
				},
			})
		}
	}

	return nil
}

// ProcessSignature applies a submitted signature to its closeout record.
// Re-processing an already verified entry is a no-op. When the last
// signature verifies, the record advances through SIGNATURES_COMPLETE to
// UNDER_REVIEW in one commit; an eligible record then auto-closes.
func (e *Engine) ProcessSignature(ctx context.Context, signatureID string, signatureData []byte, creds ledger.SignerCredentials) (*ledger.CloseoutRecord, error) {
	r, err := e.store.CloseoutBySignature(ctx, signatureID)
	if err != nil {
		return nil, err
	}

	if r.Status.IsTerminal() {
		return nil, fault.New(fault.InvalidStateTransition,
			"closeout for permit %s is %s", r.PermitID, r.Status)
	}

	entry := r.SignatureByID(signatureID)
	if entry == nil {
		return nil, fault.New(fault.NotFound, "signature %s not found on closeout %s", signatureID, r.CloseoutID)
	}
	if entry.Status == ledger.SignatureVerified {
		return r, nil
	}

	processed, err := e.sigs.Process(ctx, *entry, signatureData, creds)
	if err != nil {
		return nil, err
	}
	*entry = processed

	now := e.now()
	r.Checks = computeChecks(r, now)

	allVerified := r.Checks.SignaturesValid
	if allVerified && r.Status == ledger.CloseoutPendingSignatures {
		r.Status = ledger.CloseoutSignaturesComplete
		r.AddMilestone("signatures_complete", now)
		r.Status = ledger.CloseoutUnderReview
		r.AddMilestone("under_review", now)
	}

	if err := e.commit(ctx, r, r.Seq); err != nil {
		return nil, err
	}

	e.logEvent("signature_processed", map[string]interface{}{
		"permit_id":    r.PermitID,
		"signature_id": signatureID,
		"status":       processed.Status,
	})

	e.publish(ctx, e.newEvent(ledger.EventSignatureRecorded, r.PermitID, map[string]string{
		"signature_id": signatureID,
		"role":         string(processed.Role),
		"status":       string(processed.Status),
	}))

	if r.Status != ledger.CloseoutUnderReview {
		return r, nil
	}

	if e.eligibleForAutoClosure(ctx, r) {
		return e.close(ctx, r, "SYSTEM", "automatic", "All requirements satisfied")
	}

	e.logEvent("manual_review_required", map[string]interface{}{
		"permit_id": r.PermitID,
	})
	e.send(ctx, notify.Notification{
		Type:     "manual_review_required",
		PermitID: r.PermitID,
		Data:     map[string]string{"closeout_id": r.CloseoutID},
	})

	return r, nil
}

// eligibleForAutoClosure reports whether the record can close without a
// human reviewer: fully compliant, not hazmat and under the cost ceiling.
func (e *Engine) eligibleForAutoClosure(ctx context.Context, r *ledger.CloseoutRecord) bool {
	if !r.Checks.OverallCompliant {
		return false
	}
	if r.RiskClass == ledger.RiskHazmat {
		return false
	}

	p, err := e.store.GetPermit(ctx, r.PermitID)
	if err != nil {
		return false
	}
	return p.Property.ProjectCost <= e.cfg.ManualReviewCostCeiling
}

// ClosePermit closes the closeout after verifying every requirement holds.
// A record already CLOSED returns unchanged. On refusal the error carries
// the list of outstanding blockers.
func (e *Engine) ClosePermit(ctx context.Context, permitID, closedBy, notes string) (*ledger.CloseoutRecord, error) {
	r, err := e.store.GetCloseout(ctx, permitID)
	if err != nil {
		return nil, err
	}

	if r.Status == ledger.CloseoutClosed {
		return r, nil
	}
	if r.Status == ledger.CloseoutRejected {
		return nil, fault.New(fault.InvalidStateTransition,
			"closeout for permit %s was rejected", permitID)
	}

	r.Checks = computeChecks(r, e.now())
	return e.close(ctx, r, closedBy, "manual", notes)
}

// close performs the closure commit, then the post-commit side effects:
// archival, permit finalization, notifications and events. The closure
// itself is durable before any side effect runs.
func (e *Engine) close(ctx context.Context, r *ledger.CloseoutRecord, closedBy, closureType, notes string) (*ledger.CloseoutRecord, error) {
	if blockers := closureBlockers(r); len(blockers) > 0 {
		return nil, fault.New(fault.CannotClose,
			"closeout for permit %s cannot close, %d requirements outstanding", r.PermitID, len(blockers)).
			WithDetails(blockers...)
	}

	now := e.now()
	cert := e.issueCertificate(r, closedBy, closureType, notes, now)

	r.Status = ledger.CloseoutClosed
	r.Certificate = &cert
	r.AddMilestone("closed", now)

	if err := e.commit(ctx, r, r.Seq); err != nil {
		return nil, err
	}

	e.metrics.CloseoutClosed()
	e.logEvent("closeout_closed", map[string]interface{}{
		"permit_id":      r.PermitID,
		"closure_type":   closureType,
		"certificate_id": cert.CertificateID,
	})

	if e.archiver != nil {
		if _, err := e.archiver.Archive(ctx, r.PermitID, archive.DefaultPolicy()); err != nil {
			log.Printf("[Closeout] Failed to archive permit %s: %v", r.PermitID, err)
		}
	}

	if _, err := e.permits.UpdateStatus(ctx, r.PermitID, ledger.StatusFinalized, permit.ReviewerInfo{
		Name:   "SYSTEM",
		Reason: "Permit closeout completed",
	}); err != nil {
		log.Printf("[Closeout] Failed to finalize permit %s: %v", r.PermitID, err)
	}

	e.publish(ctx, e.newEvent(ledger.EventCloseoutClosed, r.PermitID, map[string]string{
		"closeout_id":    r.CloseoutID,
		"certificate_id": cert.CertificateID,
		"closure_type":   closureType,
	}))

	e.send(ctx, notify.Notification{
		Type:     "closeout_closed",
		PermitID: r.PermitID,
		Data: map[string]string{
			"certificate_id": cert.CertificateID,
			"closure_type":   closureType,
		},
	})

	return r, nil
}

// issueCertificate builds the closure certificate. The digital signature is
// the SHA-256 of the certificate's canonical JSON without the signature
// field itself.
func (e *Engine) issueCertificate(r *ledger.CloseoutRecord, closedBy, closureType, notes string, at time.Time) ledger.ClosureCertificate {
	verified := 0
	for _, doc := range r.Documents {
		if doc.Status == ledger.DocumentVerified {
			verified++
		}
	}
	completed := 0
	for _, sig := range r.Signatures {
		if sig.Status == ledger.SignatureVerified {
			completed++
		}
	}

	cert := ledger.ClosureCertificate{
		CertificateID:       uuid.New().String(),
		PermitID:            r.PermitID,
		CloseoutID:          r.CloseoutID,
		IssuedAt:            at,
		IssuedBy:            closedBy,
		ClosureType:         closureType,
		Notes:               notes,
		DocumentsVerified:   verified,
		SignaturesCompleted: completed,
		NFPACompliant:       r.Checks.NFPACompliant,
		InspectionApproved:  r.Checks.InspectionApproved,
	}

	if data, err := json.Marshal(cert); err == nil {
		sum := sha256.Sum256(data)
		cert.DigitalSignature = hex.EncodeToString(sum[:])
	}

	return cert
}

// RejectCloseout moves a non-closed closeout to the terminal REJECTED state.
func (e *Engine) RejectCloseout(ctx context.Context, permitID, rejectedBy, reason string) (*ledger.CloseoutRecord, error) {
	r, err := e.store.GetCloseout(ctx, permitID)
	if err != nil {
		return nil, err
	}

	if !r.Status.CanAdvanceTo(ledger.CloseoutRejected) {
		return nil, fault.New(fault.InvalidStateTransition,
			"closeout for permit %s is %s and cannot be rejected", permitID, r.Status)
	}

	now := e.now()
	r.Status = ledger.CloseoutRejected
	r.AddMilestone("rejected", now)

	if err := e.commit(ctx, r, r.Seq); err != nil {
		return nil, err
	}

	e.metrics.CloseoutRejected()
	e.logEvent("closeout_rejected", map[string]interface{}{
		"permit_id":   permitID,
		"rejected_by": rejectedBy,
		"reason":      reason,
	})

	e.publish(ctx, e.newEvent(ledger.EventCloseoutRejected, permitID, map[string]string{
		"rejected_by": rejectedBy,
		"reason":      reason,
	}))

	e.send(ctx, notify.Notification{
		Type:     "closeout_rejected",
		PermitID: permitID,
		Data:     map[string]string{"reason": reason},
	})

	return r, nil
}

// GetCloseout retrieves a permit's closeout record.
func (e *Engine) GetCloseout(ctx context.Context, permitID string) (*ledger.CloseoutRecord, error) {
	return e.store.GetCloseout(ctx, permitID)
}

func (e *Engine) commit(ctx context.Context, r *ledger.CloseoutRecord, expectedSeq int64) error {
	if err := e.store.PutCloseout(ctx, r, expectedSeq); err != nil {
		if fault.IsKind(err, fault.Conflict) {
			e.metrics.WriteConflict()
		}
		return err
	}
	return nil
}

func (e *Engine) newEvent(eventType ledger.EventType, permitID string, payload map[string]string) ledger.Event {
	return ledger.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		PermitID:  permitID,
		Timestamp: e.now(),
		Payload:   payload,
	}
}

// publish delivers events after a successful commit. Failures are logged,
// not returned.
func (e *Engine) publish(ctx context.Context, events ...ledger.Event) {
	if e.pub == nil {
		return
	}
	if err := e.pub.Publish(ctx, events...); err != nil {
		log.Printf("[Closeout] Failed to publish events: %v", err)
	}
}

// send delivers a notification. Failures are logged, not returned.
func (e *Engine) send(ctx context.Context, n notify.Notification) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(ctx, n); err != nil {
		log.Printf("[Closeout] Failed to send notification: %v", err)
	}
}

// logEvent logs a structured event in JSON format.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = e.now().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "closeout"
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Closeout] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
