package ledger

import (
	"context"
	"time"
)

// Revision is one committed version of a permit record. History entries are
// returned oldest first and replaying them in order reconstructs every
// intermediate state of the record.
type Revision struct {
	TxID      string    `json:"tx_id"`
	Timestamp time.Time `json:"timestamp"`
	Permit    *Permit   `json:"permit,omitempty"`
	IsDelete  bool      `json:"is_delete"`
}

// Store is the durable system of record for permits and closeouts.
//
// Writes use optimistic concurrency: PutPermit and PutCloseout take the
// commit sequence the caller read the record at and fail with a
// fault.Conflict error when the stored sequence has moved on. On success
// the store assigns the next sequence to the record and appends a full
// revision snapshot to its history.
type Store interface {
	// GetPermit retrieves a permit by ID. Returns a fault.NotFound error
	// if the permit does not exist.
	GetPermit(ctx context.Context, permitID string) (*Permit, error)

	// PutPermit commits a permit at expectedSeq. Use expectedSeq 0 to
	// create. On success the permit's Seq field holds the new sequence.
	PutPermit(ctx context.Context, p *Permit, expectedSeq int64) error

	// PermitExists checks existence without fetching the record.
	PermitExists(ctx context.Context, permitID string) (bool, error)

	// ScanPermits returns the IDs of all permits whose ID starts with the
	// given prefix, sorted.
	ScanPermits(ctx context.Context, prefix string) ([]string, error)

	// PermitHistory returns every committed revision, oldest first.
	PermitHistory(ctx context.Context, permitID string) ([]Revision, error)

	// QueryPermitsByStatus returns all permits currently in the status.
	QueryPermitsByStatus(ctx context.Context, status PermitStatus) ([]*Permit, error)

	// QueryPermitsByType returns all permits of the given type.
	QueryPermitsByType(ctx context.Context, permitType PermitType) ([]*Permit, error)

	// GetCloseout retrieves the closeout record for a permit. Returns a
	// fault.NotFound error if no closeout has been initiated.
	GetCloseout(ctx context.Context, permitID string) (*CloseoutRecord, error)

	// PutCloseout commits a closeout record at expectedSeq, maintaining
	// the signature ID index for every signature entry on the record.
	PutCloseout(ctx context.Context, r *CloseoutRecord, expectedSeq int64) error

	// CloseoutBySignature resolves a signature ID to its closeout record.
	CloseoutBySignature(ctx context.Context, signatureID string) (*CloseoutRecord, error)
}

// Publisher delivers domain events. Implementations provide at-least-once
// delivery; callers publish only after the corresponding store commit.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}
