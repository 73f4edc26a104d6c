package ledger

import (
	"fmt"
	"time"
)

// CloseoutStatus defines the lifecycle state of a closeout record.
// Progress is forward-only; REJECTED is reachable from any non-CLOSED state.
type CloseoutStatus string

const (
	CloseoutPendingInspection  CloseoutStatus = "pending_inspection"
	CloseoutInspectionApproved CloseoutStatus = "inspection_approved"
	CloseoutPendingDocuments   CloseoutStatus = "pending_documents"
	CloseoutDocumentsUploaded  CloseoutStatus = "documents_uploaded"
	CloseoutPendingSignatures  CloseoutStatus = "pending_signatures"
	CloseoutSignaturesComplete CloseoutStatus = "signatures_complete"
	CloseoutUnderReview        CloseoutStatus = "under_review"
	CloseoutClosed             CloseoutStatus = "closed"
	CloseoutRejected           CloseoutStatus = "rejected"
)

// Validate checks if the CloseoutStatus is a valid enum value.
func (s CloseoutStatus) Validate() error {
	switch s {
	case CloseoutPendingInspection, CloseoutInspectionApproved,
		CloseoutPendingDocuments, CloseoutDocumentsUploaded,
		CloseoutPendingSignatures, CloseoutSignaturesComplete,
		CloseoutUnderReview, CloseoutClosed, CloseoutRejected:
		return nil
	default:
		return fmt.Errorf("unknown closeout status: %q", s)
	}
}

// IsTerminal reports whether the closeout admits no further transitions.
func (s CloseoutStatus) IsTerminal() bool {
	return s == CloseoutClosed || s == CloseoutRejected
}

// rank orders the linear closeout progression for forward-only checks.
// Terminal states sit outside the linear order.
func (s CloseoutStatus) rank() int {
	switch s {
	case CloseoutPendingInspection:
		return 0
	case CloseoutInspectionApproved:
		return 1
	case CloseoutPendingDocuments:
		return 2
	case CloseoutDocumentsUploaded:
		return 3
	case CloseoutPendingSignatures:
		return 4
	case CloseoutSignaturesComplete:
		return 5
	case CloseoutUnderReview:
		return 6
	case CloseoutClosed:
		return 7
	default:
		return -1
	}
}

// CanAdvanceTo reports whether moving from s to next respects the
// forward-only linear progression (or the universal REJECTED edge).
func (s CloseoutStatus) CanAdvanceTo(next CloseoutStatus) bool {
	if next == CloseoutRejected {
		return s != CloseoutClosed
	}
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// RiskClass drives the required-document profile for a closeout.
type RiskClass string

const (
	RiskStandard RiskClass = "standard"
	RiskComplex  RiskClass = "complex"
	RiskHazmat   RiskClass = "hazmat"
)

// Validate checks if the RiskClass is a valid enum value.
func (r RiskClass) Validate() error {
	switch r {
	case RiskStandard, RiskComplex, RiskHazmat:
		return nil
	default:
		return fmt.Errorf("unknown risk class: %q", r)
	}
}

// DocumentType identifies a closeout document category.
type DocumentType string

const (
	DocAcceptanceCard       DocumentType = "acceptance_card"
	DocAsBuilt              DocumentType = "as_built"
	DocTestReports          DocumentType = "test_reports"
	DocCommissioningReports DocumentType = "commissioning_reports"
	DocSafetyDataSheets     DocumentType = "safety_data_sheets"
	DocEmergencyProcedures  DocumentType = "emergency_procedures"
)

// Validate checks if the DocumentType is a valid enum value.
func (t DocumentType) Validate() error {
	switch t {
	case DocAcceptanceCard, DocAsBuilt, DocTestReports,
		DocCommissioningReports, DocSafetyDataSheets, DocEmergencyProcedures:
		return nil
	default:
		return fmt.Errorf("unknown document type: %q", t)
	}
}

// DocumentStatus is the verification state of an uploaded closeout document.
type DocumentStatus string

const (
	DocumentPendingVerification DocumentStatus = "pending_verification"
	DocumentVerified            DocumentStatus = "verified"
	DocumentRejected            DocumentStatus = "rejected"
)

// SignatureRole identifies who must sign a closeout document.
type SignatureRole string

const (
	RoleInspector   SignatureRole = "INSPECTOR"
	RoleEngineer    SignatureRole = "ENGINEER"
	RoleContractor  SignatureRole = "CONTRACTOR"
	RoleApplicant   SignatureRole = "APPLICANT"
	RoleAHJOfficial SignatureRole = "AHJ_OFFICIAL"
)

// Validate checks if the SignatureRole is a valid enum value.
func (r SignatureRole) Validate() error {
	switch r {
	case RoleInspector, RoleEngineer, RoleContractor, RoleApplicant, RoleAHJOfficial:
		return nil
	default:
		return fmt.Errorf("unknown signature role: %q", r)
	}
}

// SignatureStatus is the state of one signature entry.
type SignatureStatus string

const (
	SignaturePending  SignatureStatus = "pending"
	SignatureSigned   SignatureStatus = "signed"
	SignatureVerified SignatureStatus = "verified"
	SignatureRejected SignatureStatus = "rejected"
	SignatureExpired  SignatureStatus = "expired"
)

// InspectionResults records the final field inspection outcome that gates
// closeout initiation.
type InspectionResults struct {
	Approved    bool      `json:"approved"`
	Inspector   string    `json:"inspector"`
	CompletedAt time.Time `json:"completed_at"`
	Notes       string    `json:"notes,omitempty"`
}

// ComplianceResult is a document-level NFPA compliance check outcome.
type ComplianceResult struct {
	Compliant        bool     `json:"compliant"`
	Violations       []string `json:"violations"`
	Warnings         []string `json:"warnings"`
	CheckedStandards []string `json:"checked_standards"`
}

// CompletenessResult scores a document against its required elements.
// Score is 100 minus 20 per missing element, floored at zero.
type CompletenessResult struct {
	Complete        bool     `json:"complete"`
	Score           int      `json:"score"`
	MissingElements []string `json:"missing_elements"`
}

// DocumentVerification bundles the per-document check outcomes.
type DocumentVerification struct {
	Integrity    bool               `json:"integrity"`
	Compliance   ComplianceResult   `json:"compliance"`
	Completeness CompletenessResult `json:"completeness"`
}

// CloseoutDocument is one uploaded closeout document. Hash is the SHA-256
// of the file content; the bytes themselves live outside the ledger.
type CloseoutDocument struct {
	DocumentID   string               `json:"document_id"`
	Type         DocumentType         `json:"type"`
	Status       DocumentStatus       `json:"status"`
	FileName     string               `json:"file_name"`
	Hash         string               `json:"hash"`
	UploadedAt   time.Time            `json:"uploaded_at"`
	UploadedBy   string               `json:"uploaded_by"`
	Verification DocumentVerification `json:"verification"`
}

// SignerInfo identifies the person a signature is requested from.
type SignerInfo struct {
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Title          string   `json:"title"`
	Organization   string   `json:"organization"`
	LicenseNumber  string   `json:"license_number,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
}

// SignerCredentials are presented when a signature is submitted and are
// checked against the SignerInfo the request was issued for.
type SignerCredentials struct {
	Email          string   `json:"email"`
	LicenseNumber  string   `json:"license_number,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
}

// SignatureEntry tracks one required signature through its lifecycle.
type SignatureEntry struct {
	SignatureID string          `json:"signature_id"`
	DocumentID  string          `json:"document_id"`
	Role        SignatureRole   `json:"role"`
	Signer      SignerInfo      `json:"signer"`
	Status      SignatureStatus `json:"status"`
	RequestedAt time.Time       `json:"requested_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	SignedAt    *time.Time      `json:"signed_at,omitempty"`
	VerifiedAt  *time.Time      `json:"verified_at,omitempty"`
	PayloadHash string          `json:"payload_hash,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

// ComplianceChecks is the recomputed compliance snapshot stored on the
// closeout record after each document or signature event.
type ComplianceChecks struct {
	DocumentsComplete  bool      `json:"documents_complete"`
	DocumentScore      float64   `json:"document_score"`
	NFPACompliant      bool      `json:"nfpa_compliant"`
	Violations         []string  `json:"violations"`
	Warnings           []string  `json:"warnings"`
	SignaturesValid    bool      `json:"signatures_valid"`
	InspectionApproved bool      `json:"inspection_approved"`
	OverallCompliant   bool      `json:"overall_compliant"`
	CheckedAt          time.Time `json:"checked_at"`
}

// Milestone is one append-only timeline entry on a closeout.
type Milestone struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

// ClosureCertificate is issued when a closeout reaches CLOSED.
type ClosureCertificate struct {
	CertificateID    string    `json:"certificate_id"`
	PermitID         string    `json:"permit_id"`
	CloseoutID       string    `json:"closeout_id"`
	IssuedAt         time.Time `json:"issued_at"`
	IssuedBy         string    `json:"issued_by"`
	ClosureType      string    `json:"closure_type"`
	Notes            string    `json:"notes,omitempty"`
	DigitalSignature string    `json:"digital_signature"`

	DocumentsVerified   int  `json:"documents_verified"`
	SignaturesCompleted int  `json:"signatures_completed"`
	NFPACompliant       bool `json:"nfpa_compliant"`
	InspectionApproved  bool `json:"inspection_approved"`
}

// CloseoutRecord tracks a permit's closeout workflow from inspection
// approval to closure. One closeout exists per permit.
type CloseoutRecord struct {
	CloseoutID        string              `json:"closeout_id"`
	PermitID          string              `json:"permit_id"`
	Status            CloseoutStatus      `json:"status"`
	InitiatedBy       string              `json:"initiated_by"`
	InitiatedAt       time.Time           `json:"initiated_at"`
	Inspection        InspectionResults   `json:"inspection"`
	RiskClass         RiskClass           `json:"risk_class"`
	RequiredDocuments []DocumentType      `json:"required_documents"`
	Documents         []CloseoutDocument  `json:"documents"`
	Signatures        []SignatureEntry    `json:"signatures"`
	Checks            ComplianceChecks    `json:"checks"`
	Timeline          []Milestone         `json:"timeline"`
	DocumentDeadline  time.Time           `json:"document_deadline"`
	Certificate       *ClosureCertificate `json:"certificate,omitempty"`
	Seq               int64               `json:"seq"`
}

// Validate checks if the CloseoutRecord has valid field values.
func (r *CloseoutRecord) Validate() error {
	if r.CloseoutID == "" {
		return fmt.Errorf("closeout ID cannot be empty")
	}

	if r.PermitID == "" {
		return fmt.Errorf("permit ID cannot be empty")
	}

	if err := r.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	if err := r.RiskClass.Validate(); err != nil {
		return fmt.Errorf("invalid risk class: %w", err)
	}

	if len(r.RequiredDocuments) == 0 {
		return fmt.Errorf("required documents cannot be empty")
	}

	for _, t := range r.RequiredDocuments {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("invalid required document: %w", err)
		}
	}

	for _, sig := range r.Signatures {
		if err := sig.Role.Validate(); err != nil {
			return fmt.Errorf("invalid signature role: %w", err)
		}
	}

	return nil
}

// DocumentByType returns the uploaded document of the given type, if any.
func (r *CloseoutRecord) DocumentByType(t DocumentType) *CloseoutDocument {
	for i := range r.Documents {
		if r.Documents[i].Type == t {
			return &r.Documents[i]
		}
	}
	return nil
}

// SignatureByID returns the signature entry with the given ID, if any.
func (r *CloseoutRecord) SignatureByID(id string) *SignatureEntry {
	for i := range r.Signatures {
		if r.Signatures[i].SignatureID == id {
			return &r.Signatures[i]
		}
	}
	return nil
}

// AddMilestone appends a named timeline entry.
func (r *CloseoutRecord) AddMilestone(name string, at time.Time) {
	r.Timeline = append(r.Timeline, Milestone{Name: name, At: at})
}
