package permit

import "github.com/ahjlabs/fireline/pkg/ledger"

// transitions is the authoritative status transition table. A status not
// present as a key admits no outgoing transitions (terminal). REJECTED is
// reachable from every non-terminal status as the administrative kill edge.
var transitions = map[ledger.PermitStatus][]ledger.PermitStatus{
	ledger.StatusDraft: {
		ledger.StatusSubmitted,
		ledger.StatusRejected,
	},
	ledger.StatusSubmitted: {
		ledger.StatusUnderReview,
		ledger.StatusRejected,
	},
	ledger.StatusUnderReview: {
		ledger.StatusNeedsRevision,
		ledger.StatusApproved,
		ledger.StatusRejected,
	},
	ledger.StatusNeedsRevision: {
		ledger.StatusUnderReview,
		ledger.StatusRejected,
	},
	ledger.StatusApproved: {
		ledger.StatusExpired,
		ledger.StatusRevoked,
		ledger.StatusFinalized,
		ledger.StatusRejected,
	},
}

// CanTransition reports whether moving from one status to another is
// permitted by the transition table.
func CanTransition(from, to ledger.PermitStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from the given status.
// Returns nil for terminal statuses.
func AllowedTransitions(from ledger.PermitStatus) []ledger.PermitStatus {
	return append([]ledger.PermitStatus(nil), transitions[from]...)
}
