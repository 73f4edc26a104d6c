// Package signatures implements the digital signature collaborator for
// permit closeout: request issuance, credential verification and payload
// hashing. Verification outcomes are per-entry; a failed check rejects the
// single signature entry rather than erroring the closeout.
package signatures

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahjlabs/fireline/pkg/fault"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

// RequestTTL is how long a signature request stays signable.
const RequestTTL = 7 * 24 * time.Hour

// Manager issues signature requests and processes submitted signatures.
type Manager interface {
	CreateRequest(ctx context.Context, permitID, documentID string, signer ledger.SignerInfo, role ledger.SignatureRole) (ledger.SignatureEntry, error)
	Process(ctx context.Context, entry ledger.SignatureEntry, signatureData []byte, creds ledger.SignerCredentials) (ledger.SignatureEntry, error)
}

// License is one entry in the professional license registry.
type License struct {
	Type    string
	Expires time.Time
}

// LocalManager verifies credentials against an in-process license registry
// and certification allow-list. Production deployments would put state
// licensing board integrations behind the same interface.
type LocalManager struct {
	requestTTL     time.Duration
	licenses       map[string]License
	certifications map[string]struct{}
	now            func() time.Time
}

var _ Manager = (*LocalManager)(nil)

// NewLocalManager creates a signature manager with the default registry.
func NewLocalManager() *LocalManager {
	return &LocalManager{
		requestTTL:     RequestTTL,
		licenses:       defaultLicenses(),
		certifications: defaultCertifications(),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the manager clock. Intended for tests.
func (m *LocalManager) WithClock(now func() time.Time) *LocalManager {
	m.now = now
	return m
}

// WithTTL overrides how long issued signature requests stay signable.
func (m *LocalManager) WithTTL(d time.Duration) *LocalManager {
	m.requestTTL = d
	return m
}

// RegisterLicense adds or replaces a registry entry.
func (m *LocalManager) RegisterLicense(number string, lic License) {
	m.licenses[number] = lic
}

func defaultLicenses() map[string]License {
	return map[string]License{
		"FI-12345": {Type: "Fire Inspector", Expires: time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC)},
		"PE-67890": {Type: "Professional Engineer", Expires: time.Date(2031, 6, 30, 0, 0, 0, 0, time.UTC)},
		"CL-54321": {Type: "Contractor License", Expires: time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC)},
	}
}

func defaultCertifications() map[string]struct{} {
	certs := []string{
		"CFI", "CFEI", "CFPS", "CFAA", "NFPA_Certified",
		"ICC_Certified", "Fire_Inspector_I", "Fire_Inspector_II",
		"Fire_Protection_Contractor",
	}
	set := make(map[string]struct{}, len(certs))
	for _, c := range certs {
		set[c] = struct{}{}
	}
	return set
}

// CreateRequest issues a pending signature request for a document. The
// request expires after the manager's TTL.
func (m *LocalManager) CreateRequest(ctx context.Context, permitID, documentID string, signer ledger.SignerInfo, role ledger.SignatureRole) (ledger.SignatureEntry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.SignatureEntry{}, fault.Wrap(fault.CollaboratorUnavailable, err, "signature request cancelled")
	}

	if err := role.Validate(); err != nil {
		return ledger.SignatureEntry{}, fault.Wrap(fault.InvalidInput, err, "invalid signature role")
	}
	if signer.Email == "" {
		return ledger.SignatureEntry{}, fault.New(fault.InvalidInput, "signer email cannot be empty")
	}

	now := m.now()
	return ledger.SignatureEntry{
		SignatureID: uuid.New().String(),
		DocumentID:  documentID,
		Role:        role,
		Signer:      signer,
		Status:      ledger.SignaturePending,
		RequestedAt: now,
		ExpiresAt:   now.Add(m.requestTTL),
	}, nil
}

// Process verifies a submitted signature against the request it was issued
// for. Verification failures are recorded on the returned entry (rejected
// or expired, with a reason); the error return is reserved for
// infrastructure problems.
func (m *LocalManager) Process(ctx context.Context, entry ledger.SignatureEntry, signatureData []byte, creds ledger.SignerCredentials) (ledger.SignatureEntry, error) {
	if err := ctx.Err(); err != nil {
		return entry, fault.Wrap(fault.CollaboratorUnavailable, err, "signature processing cancelled")
	}

	now := m.now()

	if now.After(entry.ExpiresAt) {
		entry.Status = ledger.SignatureExpired
		entry.Reason = "signature request expired"
		return entry, nil
	}

	if reason := m.verifyCredentials(entry.Signer, creds); reason != "" {
		entry.Status = ledger.SignatureRejected
		entry.Reason = reason
		return entry, nil
	}

	hash, err := payloadHash(entry, signatureData, now)
	if err != nil {
		return entry, fault.Wrap(fault.CollaboratorUnavailable, err, "failed to hash signature payload")
	}

	entry.PayloadHash = hash
	entry.SignedAt = &now
	entry.Status = ledger.SignatureSigned

	// Integrity holds by construction here; a remote signing service would
	// re-derive the hash before promoting to verified.
	entry.VerifiedAt = &now
	entry.Status = ledger.SignatureVerified
	entry.Reason = ""

	return entry, nil
}

// verifyCredentials checks the submitted credentials against the signer the
// request was issued for. Returns a rejection reason, or "" when valid.
func (m *LocalManager) verifyCredentials(signer ledger.SignerInfo, creds ledger.SignerCredentials) string {
	if creds.Email != signer.Email {
		return "email mismatch"
	}

	if signer.LicenseNumber != "" {
		lic, ok := m.licenses[signer.LicenseNumber]
		if !ok {
			return fmt.Sprintf("license %s not found", signer.LicenseNumber)
		}
		if m.now().After(lic.Expires) {
			return fmt.Sprintf("license %s expired", signer.LicenseNumber)
		}
	}

	for _, cert := range creds.Certifications {
		if _, ok := m.certifications[cert]; !ok {
			return fmt.Sprintf("unrecognised certification %q", cert)
		}
	}

	return ""
}

// payloadHash computes the SHA-256 over the canonical signature payload.
func payloadHash(entry ledger.SignatureEntry, signatureData []byte, at time.Time) (string, error) {
	payload := map[string]string{
		"signature_id": entry.SignatureID,
		"document_id":  entry.DocumentID,
		"signer":       entry.Signer.Email,
		"role":         string(entry.Role),
		"signed_at":    at.Format(time.RFC3339Nano),
		"data":         hex.EncodeToString(signatureData),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
