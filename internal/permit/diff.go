package permit

import (
	"sort"

	"github.com/ahjlabs/fireline/pkg/ledger"
)

// DetectChanges computes the field-level diff between two NFPA data maps
// over the union of both key sets. Modified and added fields carry Medium
// priority; deletions carry High priority because removing reviewed data
// always needs a second look. Changes are sorted by field name so that
// repeated diffs of the same inputs are byte-identical.
func DetectChanges(oldData, newData ledger.NFPAData) []ledger.RedlineChange {
	var changes []ledger.RedlineChange

	for field, newValue := range newData {
		oldValue, existed := oldData[field]
		if !existed {
			changes = append(changes, ledger.RedlineChange{
				Field:      field,
				Old:        ledger.Absent(),
				New:        newValue,
				ChangeType: ledger.ChangeAddition,
				Priority:   ledger.PriorityMedium,
				Impact:     "Requires review",
			})
			continue
		}
		if !oldValue.Equal(newValue) {
			changes = append(changes, ledger.RedlineChange{
				Field:      field,
				Old:        oldValue,
				New:        newValue,
				ChangeType: ledger.ChangeModification,
				Priority:   ledger.PriorityMedium,
				Impact:     "Requires review",
			})
		}
	}

	for field, oldValue := range oldData {
		if _, stillThere := newData[field]; !stillThere {
			changes = append(changes, ledger.RedlineChange{
				Field:      field,
				Old:        oldValue,
				New:        ledger.Absent(),
				ChangeType: ledger.ChangeDeletion,
				Priority:   ledger.PriorityHigh,
				Impact:     "Data removed",
			})
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Field < changes[j].Field
	})

	return changes
}
