package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahjlabs/fireline/pkg/ledger"
)

// MinPrefixLength is the minimum required length for permit ID prefixes.
// Set to 3 characters to balance usability with collision avoidance.
const MinPrefixLength = 3

// ResolvePermitID resolves a permit ID or unique prefix to a full permit ID.
// Returns the full ID if exactly one permit matches.
// Returns an error if zero or multiple permits match.
//
// The function handles three cases:
// 1. Input exactly matches an existing permit ID - returned as-is
// 2. Input is too short (< 3 chars) - returns a validation error
// 3. Input is a prefix - scans for matches and returns the unique result
func ResolvePermitID(ctx context.Context, store ledger.Store, input string) (string, error) {
	exists, err := store.PermitExists(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to verify permit existence: %w", err)
	}
	if exists {
		return input, nil
	}

	if len(input) < MinPrefixLength {
		return "", fmt.Errorf("permit ID prefix must be at least %d characters (got %d)", MinPrefixLength, len(input))
	}

	matches, err := store.ScanPermits(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to search for permit: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Prefix: input}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Prefix: input, Matches: matches}
	}
}

// NotFoundError indicates no permits matched the prefix.
type NotFoundError struct {
	Prefix string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no permits found matching '%s'", e.Prefix)
}

// AmbiguousError indicates multiple permits matched the prefix.
type AmbiguousError struct {
	Prefix  string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous permit ID '%s' matches %d permits", e.Prefix, len(e.Matches))
}

// FormatAmbiguousError creates a user-friendly error message for ambiguous
// prefixes. Lists all matching permit IDs (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error: ambiguous permit ID '%s' matches %d permits:\n", err.Prefix, len(err.Matches))

	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}

	for i := 0; i < displayCount; i++ {
		fmt.Fprintf(&b, "  %s\n", err.Matches[i])
	}

	if len(err.Matches) > 10 {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-10)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the permit.")
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
