package closeout

import (
	"context"
	"time"

	"github.com/ahjlabs/fireline/pkg/ledger"
)

// Progress is the read model summarising where a closeout stands and what
// happens next.
type Progress struct {
	PermitID            string                `json:"permit_id"`
	CloseoutID          string                `json:"closeout_id"`
	Status              ledger.CloseoutStatus `json:"status"`
	RiskClass           ledger.RiskClass      `json:"risk_class"`
	PercentComplete     int                   `json:"percent_complete"`
	NextAction          string                `json:"next_action"`
	EstimatedCompletion *time.Time            `json:"estimated_completion,omitempty"`
	RequiredDocuments   int                   `json:"required_documents"`
	VerifiedDocuments   int                   `json:"verified_documents"`
	PendingSignatures   int                   `json:"pending_signatures"`
	DocumentDeadline    time.Time             `json:"document_deadline"`
	Milestones          []ledger.Milestone    `json:"milestones"`
}

// progressPercent maps each status to how far through the workflow it sits.
var progressPercent = map[ledger.CloseoutStatus]int{
	ledger.CloseoutPendingInspection:  0,
	ledger.CloseoutInspectionApproved: 10,
	ledger.CloseoutPendingDocuments:   25,
	ledger.CloseoutDocumentsUploaded:  50,
	ledger.CloseoutPendingSignatures:  60,
	ledger.CloseoutSignaturesComplete: 80,
	ledger.CloseoutUnderReview:        90,
	ledger.CloseoutClosed:             100,
	ledger.CloseoutRejected:           0,
}

// nextAction describes what the current status is waiting on.
var nextAction = map[ledger.CloseoutStatus]string{
	ledger.CloseoutPendingInspection:  "Complete final field inspection",
	ledger.CloseoutInspectionApproved: "Begin document collection",
	ledger.CloseoutPendingDocuments:   "Upload required closeout documents",
	ledger.CloseoutDocumentsUploaded:  "Await signature requests",
	ledger.CloseoutPendingSignatures:  "Collect outstanding signatures",
	ledger.CloseoutSignaturesComplete: "Await compliance review",
	ledger.CloseoutUnderReview:        "Complete closure review",
	ledger.CloseoutClosed:             "None, permit closed",
	ledger.CloseoutRejected:           "None, closeout rejected",
}

// estimatedDays is the expected time to completion from each active status.
func estimatedDays(status ledger.CloseoutStatus) int {
	switch status {
	case ledger.CloseoutPendingDocuments, ledger.CloseoutDocumentsUploaded:
		return 14
	case ledger.CloseoutPendingSignatures, ledger.CloseoutSignaturesComplete:
		return 7
	case ledger.CloseoutUnderReview:
		return 3
	default:
		return 0
	}
}

// Status builds the progress read model for a permit's closeout.
func (e *Engine) Status(ctx context.Context, permitID string) (*Progress, error) {
	r, err := e.store.GetCloseout(ctx, permitID)
	if err != nil {
		return nil, err
	}

	verified := 0
	for _, doc := range r.Documents {
		if doc.Status == ledger.DocumentVerified {
			verified++
		}
	}

	pendingSigs := 0
	for _, sig := range r.Signatures {
		if sig.Status != ledger.SignatureVerified {
			pendingSigs++
		}
	}

	p := &Progress{
		PermitID:          r.PermitID,
		CloseoutID:        r.CloseoutID,
		Status:            r.Status,
		RiskClass:         r.RiskClass,
		PercentComplete:   progressPercent[r.Status],
		NextAction:        nextAction[r.Status],
		RequiredDocuments: len(r.RequiredDocuments),
		VerifiedDocuments: verified,
		PendingSignatures: pendingSigs,
		DocumentDeadline:  r.DocumentDeadline,
		Milestones:        r.Timeline,
	}

	if days := estimatedDays(r.Status); days > 0 {
		eta := e.now().AddDate(0, 0, days)
		p.EstimatedCompletion = &eta
	}

	return p, nil
}
