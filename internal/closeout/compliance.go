package closeout

import (
	"fmt"
	"time"

	"github.com/ahjlabs/fireline/pkg/ledger"
)

// requiredDocuments returns the document profile for a risk class. Higher
// classes extend the standard set.
func requiredDocuments(class ledger.RiskClass) []ledger.DocumentType {
	docs := []ledger.DocumentType{ledger.DocAcceptanceCard, ledger.DocAsBuilt}

	switch class {
	case ledger.RiskComplex:
		docs = append(docs, ledger.DocTestReports, ledger.DocCommissioningReports)
	case ledger.RiskHazmat:
		docs = append(docs,
			ledger.DocTestReports, ledger.DocCommissioningReports,
			ledger.DocSafetyDataSheets, ledger.DocEmergencyProcedures)
	}

	return docs
}

// signatureRolesFor maps a document type to the roles that must sign it.
func signatureRolesFor(docType ledger.DocumentType) []ledger.SignatureRole {
	switch docType {
	case ledger.DocAcceptanceCard:
		return []ledger.SignatureRole{ledger.RoleInspector}
	case ledger.DocAsBuilt:
		return []ledger.SignatureRole{ledger.RoleEngineer, ledger.RoleContractor}
	default:
		return nil
	}
}

// computeChecks recomputes the full compliance snapshot from the record's
// current documents, signatures and inspection result.
func computeChecks(r *ledger.CloseoutRecord, at time.Time) ledger.ComplianceChecks {
	checks := ledger.ComplianceChecks{
		Violations: []string{},
		Warnings:   []string{},
		CheckedAt:  at,
	}

	checks.DocumentsComplete, checks.DocumentScore = documentChecks(r)
	checks.NFPACompliant = nfpaChecks(r, &checks)
	checks.SignaturesValid = signatureChecks(r)
	checks.InspectionApproved = r.Inspection.Approved

	checks.OverallCompliant = checks.DocumentsComplete &&
		checks.NFPACompliant &&
		checks.SignaturesValid &&
		checks.InspectionApproved

	return checks
}

// documentChecks reports whether every required document is uploaded,
// verified and complete, along with the average completeness score over the
// required set. Missing documents score zero.
func documentChecks(r *ledger.CloseoutRecord) (bool, float64) {
	if len(r.RequiredDocuments) == 0 {
		return false, 0
	}

	complete := true
	total := 0.0

	for _, docType := range r.RequiredDocuments {
		doc := r.DocumentByType(docType)
		if doc == nil {
			complete = false
			continue
		}

		total += float64(doc.Verification.Completeness.Score)

		if doc.Status != ledger.DocumentVerified || !doc.Verification.Completeness.Complete {
			complete = false
		}
	}

	return complete, total / float64(len(r.RequiredDocuments))
}

// nfpaChecks aggregates the per-document compliance results into the
// snapshot's violations and warnings. Compliant means no violations across
// the uploaded documents.
func nfpaChecks(r *ledger.CloseoutRecord, checks *ledger.ComplianceChecks) bool {
	for i := range r.Documents {
		doc := &r.Documents[i]
		for _, v := range doc.Verification.Compliance.Violations {
			checks.Violations = append(checks.Violations, fmt.Sprintf("%s: %s", doc.Type, v))
		}
		for _, w := range doc.Verification.Compliance.Warnings {
			checks.Warnings = append(checks.Warnings, fmt.Sprintf("%s: %s", doc.Type, w))
		}
	}

	return len(checks.Violations) == 0
}

// signatureChecks reports whether signatures have been derived and every
// entry is verified.
func signatureChecks(r *ledger.CloseoutRecord) bool {
	if len(r.Signatures) == 0 {
		return false
	}
	for _, sig := range r.Signatures {
		if sig.Status != ledger.SignatureVerified {
			return false
		}
	}
	return true
}

// closureBlockers lists what still stands between the record and closure.
// An empty list means the record may close.
func closureBlockers(r *ledger.CloseoutRecord) []string {
	var blockers []string

	if !r.Inspection.Approved {
		blockers = append(blockers, "final inspection not approved")
	}

	for _, docType := range r.RequiredDocuments {
		doc := r.DocumentByType(docType)
		switch {
		case doc == nil:
			blockers = append(blockers, fmt.Sprintf("required document %s not uploaded", docType))
		case doc.Status != ledger.DocumentVerified:
			blockers = append(blockers, fmt.Sprintf("document %s not verified (%s)", docType, doc.Status))
		}
	}

	if len(r.Signatures) == 0 {
		blockers = append(blockers, "no signatures requested")
	}
	for _, sig := range r.Signatures {
		if sig.Status != ledger.SignatureVerified {
			blockers = append(blockers, fmt.Sprintf("signature %s (%s) is %s", sig.SignatureID, sig.Role, sig.Status))
		}
	}

	for _, v := range r.Checks.Violations {
		blockers = append(blockers, fmt.Sprintf("compliance violation: %s", v))
	}

	return blockers
}
