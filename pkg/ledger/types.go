// Package ledger provides type-safe Go definitions and Redis schema patterns
// for the fireline permit ledger. The ledger is the system of record for
// fire-safety permits: every component (state machine, closeout engine, CLI,
// HTTP API) reads and writes permit state through the Store defined here.
//
// All Redis keys and channels are namespaced by instance name to enable
// multiple fireline instances to safely coexist on a single Redis server.
package ledger

import (
	"fmt"
	"time"
)

// PermitStatus defines the lifecycle state of a permit.
type PermitStatus string

const (
	StatusDraft         PermitStatus = "DRAFT"
	StatusSubmitted     PermitStatus = "SUBMITTED"
	StatusUnderReview   PermitStatus = "UNDER_REVIEW"
	StatusNeedsRevision PermitStatus = "NEEDS_REVISION"
	StatusApproved      PermitStatus = "APPROVED"
	StatusRejected      PermitStatus = "REJECTED"
	StatusExpired       PermitStatus = "EXPIRED"
	StatusRevoked       PermitStatus = "REVOKED"
	StatusFinalized     PermitStatus = "FINALIZED"
)

// Validate checks if the PermitStatus is a valid enum value.
func (s PermitStatus) Validate() error {
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusNeedsRevision,
		StatusApproved, StatusRejected, StatusExpired, StatusRevoked, StatusFinalized:
		return nil
	default:
		return fmt.Errorf("unknown permit status: %q", s)
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s PermitStatus) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusExpired, StatusRevoked, StatusFinalized:
		return true
	default:
		return false
	}
}

// PermitType identifies the fire-safety system a permit covers.
type PermitType string

const (
	TypeFireAlarm         PermitType = "FIRE_ALARM"
	TypeSprinkler         PermitType = "SPRINKLER"
	TypeEmergencyLighting PermitType = "EMERGENCY_LIGHTING"
	TypeFireSuppression   PermitType = "FIRE_SUPPRESSION"
	TypeSmokeControl      PermitType = "SMOKE_CONTROL"
)

// Validate checks if the PermitType is a valid enum value.
func (t PermitType) Validate() error {
	switch t {
	case TypeFireAlarm, TypeSprinkler, TypeEmergencyLighting,
		TypeFireSuppression, TypeSmokeControl:
		return nil
	default:
		return fmt.Errorf("unknown permit type: %q", t)
	}
}

// ReviewLane identifies a department review track on a permit.
// The set of lanes is closed: updates naming any other department fail
// validation rather than being silently dropped.
type ReviewLane string

const (
	LaneFire       ReviewLane = "fire"
	LaneBuilding   ReviewLane = "building"
	LaneElectrical ReviewLane = "electrical"
	LaneMechanical ReviewLane = "mechanical"
	LanePlumbing   ReviewLane = "plumbing"
	LaneStructural ReviewLane = "structural"
)

// MandatoryLanes are initialised on every new permit.
func MandatoryLanes() []ReviewLane {
	return []ReviewLane{LaneFire, LaneBuilding, LaneElectrical}
}

// Validate checks if the ReviewLane is a valid enum value.
func (l ReviewLane) Validate() error {
	switch l {
	case LaneFire, LaneBuilding, LaneElectrical, LaneMechanical,
		LanePlumbing, LaneStructural:
		return nil
	default:
		return fmt.Errorf("unknown review lane: %q", l)
	}
}

// ReviewDecision is the per-lane review outcome.
type ReviewDecision string

const (
	DecisionPending    ReviewDecision = "Pending"
	DecisionInProgress ReviewDecision = "In Progress"
	DecisionApproved   ReviewDecision = "Approved"
	DecisionRejected   ReviewDecision = "Rejected"
	DecisionReviewed   ReviewDecision = "Reviewed"
	DecisionDeferred   ReviewDecision = "Deferred"
)

// Validate checks if the ReviewDecision is a valid enum value.
func (d ReviewDecision) Validate() error {
	switch d {
	case DecisionPending, DecisionInProgress, DecisionApproved,
		DecisionRejected, DecisionReviewed, DecisionDeferred:
		return nil
	default:
		return fmt.Errorf("unknown review decision: %q", d)
	}
}

// Priority ranks review urgency.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// Validate checks if the Priority is a valid enum value.
func (p Priority) Validate() error {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return nil
	default:
		return fmt.Errorf("unknown priority: %q", p)
	}
}

// Applicant identifies who requested the permit.
type Applicant struct {
	Name          string `json:"name"`
	LicenseNumber string `json:"license_number"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Organization  string `json:"organization"`
	LicenseType   string `json:"license_type"`
	LicenseExpiry string `json:"license_expiry"`
}

// Property describes the building the work is performed on.
type Property struct {
	Address          string  `json:"address"`
	ParcelNumber     string  `json:"parcel_number"`
	OwnerName        string  `json:"owner_name"`
	OwnerEmail       string  `json:"owner_email"`
	OccupancyType    string  `json:"occupancy_type"`
	BuildingType     string  `json:"building_type"`
	SquareFootage    float64 `json:"square_footage"`
	NumberOfFloors   int     `json:"number_of_floors"`
	ConstructionType string  `json:"construction_type"`
	ProjectCost      float64 `json:"project_cost"`
}

// NFPAData holds the technical system data a permit is reviewed against.
// It is a field map rather than a fixed struct so that redline diffs can
// cover additions and deletions over the union of both key sets.
type NFPAData map[string]FieldValue

// Well-known NFPA field names.
const (
	FieldFireAlarmType   = "fireAlarmType"
	FieldNumberOfDevices = "numberOfDevices"
	FieldPowerSupplyInfo = "powerSupplyInfo"
	FieldSystemType      = "systemType"
	FieldCoverageArea    = "coverageArea"
	FieldTestResults     = "testResults"
	FieldNFPAStandard    = "nfpaStandard"
	FieldComplianceLevel = "complianceLevel"
	FieldSpecialHazards  = "specialHazards"
)

// SpecialHazards returns the declared special hazards list, if any.
func (d NFPAData) SpecialHazards() []string {
	v, ok := d[FieldSpecialHazards]
	if !ok || v.Kind != KindList {
		return nil
	}
	return v.List
}

// DocumentSet holds references (URIs or content hashes) to supporting
// documents. Raw bytes are never stored on the permit record.
type DocumentSet struct {
	Plans              string   `json:"plans"`
	Specifications     string   `json:"specifications"`
	Calculations       string   `json:"calculations"`
	Drawings           []string `json:"drawings"`
	InspectionReports  []string `json:"inspection_reports"`
	TestReports        []string `json:"test_reports"`
	Certifications     []string `json:"certifications"`
	InsuranceDocuments []string `json:"insurance_documents"`
}

// ReviewerEntry records the state of one department's review.
type ReviewerEntry struct {
	Decision      ReviewDecision `json:"decision"`
	Reviewer      string         `json:"reviewer"`
	Comments      string         `json:"comments"`
	Timestamp     time.Time      `json:"timestamp"`
	Priority      Priority       `json:"priority"`
	DueDate       *time.Time     `json:"due_date,omitempty"`
	CompletedDate *time.Time     `json:"completed_date,omitempty"`
}

// FeeItem is one additional fee line on a permit.
type FeeItem struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
	Reason string  `json:"reason"`
}

// Fees tracks permit fees and the single payment against them.
type Fees struct {
	BaseAmount     float64    `json:"base_amount"`
	AdditionalFees []FeeItem  `json:"additional_fees"`
	TotalAmount    float64    `json:"total_amount"`
	Paid           bool       `json:"paid"`
	PaymentMethod  string     `json:"payment_method,omitempty"`
	TransactionID  string     `json:"transaction_id,omitempty"`
	PaidDate       *time.Time `json:"paid_date,omitempty"`
}

// ChangeType classifies a redline change.
type ChangeType string

const (
	ChangeAddition     ChangeType = "Addition"
	ChangeModification ChangeType = "Modification"
	ChangeDeletion     ChangeType = "Deletion"
)

// RedlineChange is one field-level change detected by an NFPA data update.
// Old and New are tagged unions; deletions carry an absent New, additions
// an absent Old.
type RedlineChange struct {
	Field      string     `json:"field"`
	Old        FieldValue `json:"old"`
	New        FieldValue `json:"new"`
	ChangeType ChangeType `json:"change_type"`
	Priority   Priority   `json:"priority"`
	Impact     string     `json:"impact"`
}

// RedlineEntry groups the changes of one accepted NFPA data update.
type RedlineEntry struct {
	Version    int             `json:"version"`
	Changes    []RedlineChange `json:"changes"`
	Timestamp  time.Time       `json:"timestamp"`
	UpdatedBy  string          `json:"updated_by"`
	Reason     string          `json:"reason"`
	ApprovedBy string          `json:"approved_by,omitempty"`
}

// StatusChange is one entry in a permit's append-only status history.
// DocHash is the SHA-256 of the record's canonical JSON at commit time.
type StatusChange struct {
	From      PermitStatus `json:"from"`
	To        PermitStatus `json:"to"`
	Timestamp time.Time    `json:"timestamp"`
	UpdatedBy string       `json:"updated_by"`
	Reason    string       `json:"reason"`
	Comments  string       `json:"comments"`
	DocHash   string       `json:"doc_hash"`
}

// AIReview is the recorded result of an advisory automated review.
// The ledger records results; it never computes them.
type AIReview struct {
	Score           float64   `json:"score"`
	Confidence      float64   `json:"confidence"`
	Findings        []string  `json:"findings"`
	Recommendations []string  `json:"recommendations"`
	Timestamp       time.Time `json:"timestamp"`
	ModelVersion    string    `json:"model_version"`
}

// Permit is the aggregate record for one fire-safety permit.
//
// Version counts accepted NFPA redlines and starts at 1; Seq is the store's
// commit sequence used for optimistic concurrency and bumps on every write.
type Permit struct {
	PermitID       string                       `json:"permit_id"`
	ApplicationID  string                       `json:"application_id"`
	PermitType     PermitType                   `json:"permit_type"`
	Status         PermitStatus                 `json:"status"`
	Applicant      Applicant                    `json:"applicant"`
	Property       Property                     `json:"property"`
	NFPAData       NFPAData                     `json:"nfpa_data"`
	Documents      DocumentSet                  `json:"documents"`
	Reviewers      map[ReviewLane]ReviewerEntry `json:"reviewers"`
	Fees           Fees                         `json:"fees"`
	SubmittedDate  time.Time                    `json:"submitted_date"`
	LastModified   time.Time                    `json:"last_modified"`
	ExpirationDate time.Time                    `json:"expiration_date"`
	Version        int                          `json:"version"`
	IsRedlined     bool                         `json:"is_redlined"`
	RedlineHistory []RedlineEntry               `json:"redline_history"`
	StatusHistory  []StatusChange               `json:"status_history"`
	AIReview       *AIReview                    `json:"ai_review,omitempty"`
	Seq            int64                        `json:"seq"`
}

// Validate checks if the Permit has valid field values.
// Returns an error if any validation fails.
func (p *Permit) Validate() error {
	if p.PermitID == "" {
		return fmt.Errorf("permit ID cannot be empty")
	}

	if p.ApplicationID == "" {
		return fmt.Errorf("application ID cannot be empty")
	}

	if err := p.PermitType.Validate(); err != nil {
		return fmt.Errorf("invalid permit type: %w", err)
	}

	if err := p.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	if p.Applicant.Name == "" {
		return fmt.Errorf("applicant name cannot be empty")
	}

	if p.Version < 1 {
		return fmt.Errorf("invalid version: must be >= 1, got %d", p.Version)
	}

	for lane, entry := range p.Reviewers {
		if err := lane.Validate(); err != nil {
			return fmt.Errorf("invalid reviewer lane: %w", err)
		}
		if err := entry.Decision.Validate(); err != nil {
			return fmt.Errorf("invalid decision for lane %q: %w", lane, err)
		}
		if err := entry.Priority.Validate(); err != nil {
			return fmt.Errorf("invalid priority for lane %q: %w", lane, err)
		}
	}

	for _, lane := range MandatoryLanes() {
		if _, ok := p.Reviewers[lane]; !ok {
			return fmt.Errorf("missing mandatory reviewer lane: %q", lane)
		}
	}

	if len(p.StatusHistory) == 0 {
		return fmt.Errorf("status history cannot be empty")
	}

	return nil
}
