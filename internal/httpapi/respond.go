package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/ahjlabs/fireline/pkg/fault"
)

// errorResponse is the JSON body returned for every failed request.
type errorResponse struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind,omitempty"`
	Details []string `json:"details,omitempty"`
}

// statusForKind maps domain error kinds to HTTP status codes. Conflicting
// writes and workflow violations all surface as 409 so clients re-read and
// retry.
func statusForKind(kind fault.Kind) int {
	switch kind {
	case fault.NotFound:
		return http.StatusNotFound
	case fault.InvalidInput:
		return http.StatusBadRequest
	case fault.AlreadyExists, fault.Conflict, fault.InvalidStateTransition,
		fault.AlreadyPaid, fault.AlreadyVerified, fault.DocumentTypeNotRequired,
		fault.InspectionNotApproved, fault.CannotClose:
		return http.StatusConflict
	case fault.CollaboratorUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := fault.KindOf(err)
	status := http.StatusInternalServerError
	if kind != "" {
		status = statusForKind(kind)
	}

	writeJSON(w, status, errorResponse{
		Error:   err.Error(),
		Kind:    string(kind),
		Details: fault.DetailsOf(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[HTTP] Failed to encode response: %v", err)
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fault.Wrap(fault.InvalidInput, err, "invalid request body")
	}
	return nil
}
