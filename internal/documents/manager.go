// Package documents implements the closeout document collaborator:
// validation, integrity hashing and the NFPA compliance and completeness
// checks that feed a closeout's verification state.
package documents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ahjlabs/fireline/pkg/fault"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

// File is an uploaded document payload. The bytes are consumed during
// verification; only the content hash travels to the ledger.
type File struct {
	Name     string
	Content  []byte
	MimeType string
}

// Manager verifies and records closeout document uploads.
type Manager interface {
	Upload(ctx context.Context, permitID string, docType ledger.DocumentType, f File, uploadedBy string) (ledger.CloseoutDocument, error)
}

// MaxFileSize is the default upload ceiling (50MB).
const MaxFileSize = 50 * 1024 * 1024

// allowedExtensions maps each document type to its accepted file formats.
var allowedExtensions = map[ledger.DocumentType][]string{
	ledger.DocAcceptanceCard:       {".pdf", ".jpg", ".jpeg", ".png", ".tiff"},
	ledger.DocAsBuilt:              {".pdf", ".dwg", ".dxf", ".jpg", ".jpeg", ".png", ".tiff"},
	ledger.DocTestReports:          {".pdf"},
	ledger.DocCommissioningReports: {".pdf"},
	ledger.DocSafetyDataSheets:     {".pdf"},
	ledger.DocEmergencyProcedures:  {".pdf", ".doc", ".docx"},
}

// requiredElements lists the content elements a document is scored against.
// The completeness score is 100 minus 20 per missing element, floored at 0.
var requiredElements = map[ledger.DocumentType][]string{
	ledger.DocAsBuilt: {
		"title block",
		"scale",
		"revision date",
		"engineer seal",
		"fire protection systems",
	},
	ledger.DocAcceptanceCard: {
		"permit number",
		"completion date",
		"inspector signature",
		"contractor information",
	},
}

// LocalManager is the in-process document collaborator. Content checks scan
// the uploaded bytes for required markers; production deployments would put
// OCR or CAD parsing behind the same interface.
type LocalManager struct {
	maxFileSize int64
	now         func() time.Time
}

var _ Manager = (*LocalManager)(nil)

// NewLocalManager creates a document manager with the default size limit.
func NewLocalManager() *LocalManager {
	return &LocalManager{
		maxFileSize: MaxFileSize,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the manager clock. Intended for tests.
func (m *LocalManager) WithClock(now func() time.Time) *LocalManager {
	m.now = now
	return m
}

// Upload validates the file, hashes its content and runs the compliance and
// completeness checks. The returned document is verified when compliant,
// rejected when compliance violations were found. Rejected documents can be
// re-uploaded; completeness shortfalls lower the score without rejecting.
func (m *LocalManager) Upload(ctx context.Context, permitID string, docType ledger.DocumentType, f File, uploadedBy string) (ledger.CloseoutDocument, error) {
	if err := ctx.Err(); err != nil {
		return ledger.CloseoutDocument{}, fault.Wrap(fault.CollaboratorUnavailable, err, "document upload cancelled")
	}

	if err := docType.Validate(); err != nil {
		return ledger.CloseoutDocument{}, fault.Wrap(fault.InvalidInput, err, "invalid document type")
	}

	if len(f.Content) == 0 {
		return ledger.CloseoutDocument{}, fault.New(fault.InvalidInput, "document content cannot be empty")
	}

	if int64(len(f.Content)) > m.maxFileSize {
		return ledger.CloseoutDocument{}, fault.New(fault.InvalidInput,
			"file size %.2fMB exceeds maximum %dMB",
			float64(len(f.Content))/1024/1024, m.maxFileSize/1024/1024)
	}

	ext := strings.ToLower(filepath.Ext(f.Name))
	allowed := allowedExtensions[docType]
	if !contains(allowed, ext) {
		return ledger.CloseoutDocument{}, fault.New(fault.InvalidInput,
			"invalid file type %s for %s, allowed: %s", ext, docType, strings.Join(allowed, ", "))
	}

	sum := sha256.Sum256(f.Content)
	compliance := checkCompliance(docType, f.Content)
	completeness := checkCompleteness(docType, f.Content)

	status := ledger.DocumentVerified
	if !compliance.Compliant {
		status = ledger.DocumentRejected
	}

	return ledger.CloseoutDocument{
		DocumentID: fmt.Sprintf("%s_%s_%s", permitID, strings.ToUpper(string(docType)), uuid.New().String()),
		Type:       docType,
		Status:     status,
		FileName:   f.Name,
		Hash:       hex.EncodeToString(sum[:]),
		UploadedAt: m.now(),
		UploadedBy: uploadedBy,
		Verification: ledger.DocumentVerification{
			Integrity:    true,
			Compliance:   compliance,
			Completeness: completeness,
		},
	}, nil
}

// checkCompliance scans the document content against the NFPA standards
// applicable to its type.
func checkCompliance(docType ledger.DocumentType, content []byte) ledger.ComplianceResult {
	result := ledger.ComplianceResult{
		Compliant:        true,
		Violations:       []string{},
		Warnings:         []string{},
		CheckedStandards: []string{},
	}

	text := strings.ToLower(string(content))

	switch docType {
	case ledger.DocAsBuilt:
		result.CheckedStandards = []string{"NFPA 13", "NFPA 72", "NFPA 101"}
		if !strings.Contains(text, "fire protection") && !strings.Contains(text, "sprinkler") {
			result.Warnings = append(result.Warnings, "Fire protection systems not clearly indicated")
		}
		if !strings.Contains(text, "exit") && !strings.Contains(text, "egress") {
			result.Warnings = append(result.Warnings, "Egress paths not clearly marked")
		}
	case ledger.DocAcceptanceCard:
		result.CheckedStandards = []string{"NFPA 25"}
		if !strings.Contains(text, "inspector") && !strings.Contains(text, "signature") {
			result.Violations = append(result.Violations, "Missing inspector signature or certification")
		}
	}

	result.Compliant = len(result.Violations) == 0
	return result
}

// checkCompleteness scores the document content against its required
// elements.
func checkCompleteness(docType ledger.DocumentType, content []byte) ledger.CompletenessResult {
	result := ledger.CompletenessResult{
		Complete:        true,
		Score:           100,
		MissingElements: []string{},
	}

	elements, checked := requiredElements[docType]
	if !checked {
		return result
	}

	text := strings.ToLower(string(content))
	for _, element := range elements {
		if !strings.Contains(text, element) {
			result.MissingElements = append(result.MissingElements, element)
		}
	}

	result.Complete = len(result.MissingElements) == 0
	result.Score = 100 - len(result.MissingElements)*20
	if result.Score < 0 {
		result.Score = 0
	}

	return result
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
