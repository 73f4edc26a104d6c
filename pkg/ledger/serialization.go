package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Structured fields
// (applicant, reviewers, history) are JSON-encoded into single hash fields.
// Scalar fields stay individually addressable so that CAS checks and index
// maintenance can read them without deserializing the whole record.

// PermitToHash converts a Permit struct to a Redis hash format.
// Structured fields are JSON-encoded; timestamps use RFC 3339.
func PermitToHash(p *Permit) (map[string]interface{}, error) {
	applicantJSON, err := json.Marshal(p.Applicant)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal applicant: %w", err)
	}

	propertyJSON, err := json.Marshal(p.Property)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal property: %w", err)
	}

	nfpaJSON, err := json.Marshal(p.NFPAData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal nfpa_data: %w", err)
	}

	documentsJSON, err := json.Marshal(p.Documents)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal documents: %w", err)
	}

	reviewersJSON, err := json.Marshal(p.Reviewers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reviewers: %w", err)
	}

	feesJSON, err := json.Marshal(p.Fees)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fees: %w", err)
	}

	redlineJSON, err := json.Marshal(p.RedlineHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal redline_history: %w", err)
	}

	statusHistoryJSON, err := json.Marshal(p.StatusHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status_history: %w", err)
	}

	hash := map[string]interface{}{
		"permit_id":       p.PermitID,
		"application_id":  p.ApplicationID,
		"permit_type":     string(p.PermitType),
		"status":          string(p.Status),
		"applicant":       string(applicantJSON),
		"property":        string(propertyJSON),
		"nfpa_data":       string(nfpaJSON),
		"documents":       string(documentsJSON),
		"reviewers":       string(reviewersJSON),
		"fees":            string(feesJSON),
		"submitted_date":  p.SubmittedDate.Format(time.RFC3339Nano),
		"last_modified":   p.LastModified.Format(time.RFC3339Nano),
		"expiration_date": p.ExpirationDate.Format(time.RFC3339Nano),
		"version":         p.Version,
		"is_redlined":     p.IsRedlined,
		"redline_history": string(redlineJSON),
		"status_history":  string(statusHistoryJSON),
		"seq":             p.Seq,
	}

	// AI review is optional; an empty field means none recorded.
	if p.AIReview != nil {
		aiJSON, err := json.Marshal(p.AIReview)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal ai_review: %w", err)
		}
		hash["ai_review"] = string(aiJSON)
	} else {
		hash["ai_review"] = ""
	}

	return hash, nil
}

// HashToPermit converts a Redis hash to a Permit struct.
func HashToPermit(hash map[string]string) (*Permit, error) {
	version, err := strconv.Atoi(hash["version"])
	if err != nil {
		return nil, fmt.Errorf("invalid version field: %w", err)
	}

	seq, err := strconv.ParseInt(hash["seq"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid seq field: %w", err)
	}

	isRedlined, _ := strconv.ParseBool(hash["is_redlined"])

	submitted, err := parseHashTime(hash, "submitted_date")
	if err != nil {
		return nil, err
	}
	lastModified, err := parseHashTime(hash, "last_modified")
	if err != nil {
		return nil, err
	}
	expiration, err := parseHashTime(hash, "expiration_date")
	if err != nil {
		return nil, err
	}

	p := &Permit{
		PermitID:       hash["permit_id"],
		ApplicationID:  hash["application_id"],
		PermitType:     PermitType(hash["permit_type"]),
		Status:         PermitStatus(hash["status"]),
		SubmittedDate:  submitted,
		LastModified:   lastModified,
		ExpirationDate: expiration,
		Version:        version,
		IsRedlined:     isRedlined,
		Seq:            seq,
	}

	if err := unmarshalHashField(hash, "applicant", &p.Applicant); err != nil {
		return nil, err
	}
	if err := unmarshalHashField(hash, "property", &p.Property); err != nil {
		return nil, err
	}
	if err := unmarshalHashField(hash, "nfpa_data", &p.NFPAData); err != nil {
		return nil, err
	}
	if err := unmarshalHashField(hash, "documents", &p.Documents); err != nil {
		return nil, err
	}
	if err := unmarshalHashField(hash, "reviewers", &p.Reviewers); err != nil {
		return nil, err
	}
	if err := unmarshalHashField(hash, "fees", &p.Fees); err != nil {
		return nil, err
	}
	if err := unmarshalHashField(hash, "redline_history", &p.RedlineHistory); err != nil {
		return nil, err
	}
	if err := unmarshalHashField(hash, "status_history", &p.StatusHistory); err != nil {
		return nil, err
	}

	if aiJSON := hash["ai_review"]; aiJSON != "" {
		p.AIReview = &AIReview{}
		if err := json.Unmarshal([]byte(aiJSON), p.AIReview); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ai_review: %w", err)
		}
	}

	// Ensure empty slices instead of nil for consistency.
	if p.NFPAData == nil {
		p.NFPAData = NFPAData{}
	}
	if p.RedlineHistory == nil {
		p.RedlineHistory = []RedlineEntry{}
	}
	if p.StatusHistory == nil {
		p.StatusHistory = []StatusChange{}
	}

	return p, nil
}

// CloseoutToHash converts a CloseoutRecord struct to a Redis hash format.
func CloseoutToHash(r *CloseoutRecord) (map[string]interface{}, error) {
	inspectionJSON, err := json.Marshal(r.Inspection)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inspection: %w", err)
	}

	requiredJSON, err := json.Marshal(r.RequiredDocuments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal required_documents: %w", err)
	}

	documentsJSON, err := json.Marshal(r.Documents)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal documents: %w", err)
	}

	signaturesJSON, err := json.Marshal(r.Signatures)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signatures: %w", err)
	}

	checksJSON, err := json.Marshal(r.Checks)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checks: %w", err)
	}

	timelineJSON, err := json.Marshal(r.Timeline)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal timeline: %w", err)
	}

	hash := map[string]interface{}{
		"closeout_id":        r.CloseoutID,
		"permit_id":          r.PermitID,
		"status":             string(r.Status),
		"initiated_by":       r.InitiatedBy,
		"initiated_at":       r.InitiatedAt.Format(time.RFC3339Nano),
		"inspection":         string(inspectionJSON),
		"risk_class":         string(r.RiskClass),
		"required_documents": string(requiredJSON),
		"documents":          string(documentsJSON),
		"signatures":         string(signaturesJSON),
		"checks":             string(checksJSON),
		"timeline":           string(timelineJSON),
		"document_deadline":  r.DocumentDeadline.Format(time.RFC3339Nano),
		"seq":                r.Seq,
	}

	if r.Certificate != nil {
		certJSON, err := json.Marshal(r.Certificate)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal certificate: %w", err)
		}
		hash["certificate"] = string(certJSON)
	} else {
		hash["certificate"] = ""
	}

	return hash, nil
}

// HashToCloseout converts a Redis hash to a CloseoutRecord struct.
func HashToCloseout(hash map[string]string) (*CloseoutRecord, error) {
	seq, err := strconv.ParseInt(hash["seq"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid seq field: %w", err)
	}

	initiatedAt, err := parseHashTime(hash, "initiated_at")
	if err != nil {
		return nil, err
	}
	deadline, err := parseHashTime(hash, "document_deadline")
	if err != nil {
		return nil, err
	}

	r := &CloseoutRecord{
		CloseoutID:       hash["closeout_id"],
		PermitID:         hash["permit_id"],
		Status:           CloseoutStatus(hash["status"]),
		InitiatedBy:      hash["initiated_by"],
		InitiatedAt:      initiatedAt,
		RiskClass:        RiskClass(hash["risk_class"]),
		DocumentDeadline: deadline,
		Seq:              seq,
	}

	if err := unmarshalHashField(hash, "inspection", &r.Inspection); err != nil {
		return nil, err
	}
	if err := unmarshalHashField(hash, "required_documents", &r.RequiredDocuments); err != nil {
		return nil, err
	}
	if err := unmarshalHashField(hash, "documents", &r.Documents); err != nil {
		return nil, err
	}
	if err := unmarshalHashField(hash, "signatures", &r.Signatures); err != nil {
		return nil, err
	}
	if err := unmarshalHashField(hash, "checks", &r.Checks); err != nil {
		return nil, err
	}
	if err := unmarshalHashField(hash, "timeline", &r.Timeline); err != nil {
		return nil, err
	}

	if certJSON := hash["certificate"]; certJSON != "" {
		r.Certificate = &ClosureCertificate{}
		if err := json.Unmarshal([]byte(certJSON), r.Certificate); err != nil {
			return nil, fmt.Errorf("failed to unmarshal certificate: %w", err)
		}
	}

	if r.Documents == nil {
		r.Documents = []CloseoutDocument{}
	}
	if r.Signatures == nil {
		r.Signatures = []SignatureEntry{}
	}
	if r.Timeline == nil {
		r.Timeline = []Milestone{}
	}

	return r, nil
}

func unmarshalHashField(hash map[string]string, field string, dst any) error {
	raw := hash[field]
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", field, err)
	}
	return nil
}

func parseHashTime(hash map[string]string, field string) (time.Time, error) {
	raw := hash[field]
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s field: %w", field, err)
	}
	return t, nil
}
