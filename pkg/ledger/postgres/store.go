// Package postgres provides a Postgres-backed implementation of the ledger
// Store for deployments that prefer a relational system of record over
// Redis. Records are stored as JSONB documents with the commit sequence in
// a dedicated column so that optimistic writes compile to a single guarded
// UPDATE.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/ahjlabs/fireline/pkg/fault"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

// Store implements ledger.Store on Postgres.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// Open connects to Postgres with the given DSN and ensures the schema
// exists. The caller owns the returned store and must Close it.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying connection pool. Implements io.Closer.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity. Useful for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ensureSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS permits (
	permit_id   TEXT PRIMARY KEY,
	doc         JSONB NOT NULL,
	seq         BIGINT NOT NULL,
	status      TEXT NOT NULL,
	permit_type TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS permits_status_idx ON permits (status);
CREATE INDEX IF NOT EXISTS permits_type_idx ON permits (permit_type);

CREATE TABLE IF NOT EXISTS permit_revisions (
	permit_id    TEXT NOT NULL,
	seq          BIGINT NOT NULL,
	tx_id        TEXT NOT NULL,
	committed_at TIMESTAMPTZ NOT NULL,
	doc          JSONB NOT NULL,
	PRIMARY KEY (permit_id, seq)
);

CREATE TABLE IF NOT EXISTS closeouts (
	permit_id   TEXT PRIMARY KEY,
	closeout_id TEXT NOT NULL,
	doc         JSONB NOT NULL,
	seq         BIGINT NOT NULL,
	status      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS closeout_signatures (
	signature_id TEXT PRIMARY KEY,
	permit_id    TEXT NOT NULL
);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to ensure ledger schema: %w", err)
	}
	return nil
}

// GetPermit retrieves a permit by ID.
func (s *Store) GetPermit(ctx context.Context, permitID string) (*ledger.Permit, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM permits WHERE permit_id = $1`, permitID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.NotFound, "permit %s does not exist", permitID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read permit: %w", err)
	}

	var p ledger.Permit
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("failed to deserialize permit: %w", err)
	}
	return &p, nil
}

// PermitExists checks existence without fetching the record.
func (s *Store) PermitExists(ctx context.Context, permitID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM permits WHERE permit_id = $1)`, permitID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check permit existence: %w", err)
	}
	return exists, nil
}

// ScanPermits returns the IDs of all permits whose ID starts with the given
// prefix, sorted.
func (s *Store) ScanPermits(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT permit_id FROM permits WHERE permit_id LIKE $1 || '%' ORDER BY permit_id`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to scan permits: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan permit ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permits: %w", err)
	}
	return ids, nil
}

// PutPermit commits a permit at expectedSeq. The sequence check compiles to
// a guarded UPDATE (or a conflict-free INSERT for creates); zero affected
// rows means the record moved on and the put fails with fault.Conflict.
func (s *Store) PutPermit(ctx context.Context, p *ledger.Permit, expectedSeq int64) error {
	if err := p.Validate(); err != nil {
		return fault.Wrap(fault.InvalidInput, err, "invalid permit")
	}

	p.Seq = expectedSeq + 1
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to serialize permit: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var res sql.Result
	if expectedSeq == 0 {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO permits (permit_id, doc, seq, status, permit_type)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (permit_id) DO NOTHING`,
			p.PermitID, doc, p.Seq, string(p.Status), string(p.PermitType))
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE permits SET doc = $2, seq = $3, status = $4, permit_type = $5
			 WHERE permit_id = $1 AND seq = $6`,
			p.PermitID, doc, p.Seq, string(p.Status), string(p.PermitType), expectedSeq)
	}
	if err != nil {
		return fmt.Errorf("failed to write permit: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return fault.New(fault.Conflict,
			"permit %s changed: expected seq %d", p.PermitID, expectedSeq)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO permit_revisions (permit_id, seq, tx_id, committed_at, doc)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.PermitID, p.Seq, uuid.New().String(), time.Now().UTC(), doc)
	if err != nil {
		return fmt.Errorf("failed to append revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit permit write: %w", err)
	}
	return nil
}

// PermitHistory returns every committed revision, oldest first.
func (s *Store) PermitHistory(ctx context.Context, permitID string) ([]ledger.Revision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_id, committed_at, doc FROM permit_revisions
		 WHERE permit_id = $1 ORDER BY seq ASC`, permitID)
	if err != nil {
		return nil, fmt.Errorf("failed to read permit history: %w", err)
	}
	defer rows.Close()

	revisions := []ledger.Revision{}
	for rows.Next() {
		var (
			txID        string
			committedAt time.Time
			doc         []byte
		)
		if err := rows.Scan(&txID, &committedAt, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}

		var p ledger.Permit
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("failed to deserialize revision: %w", err)
		}

		revisions = append(revisions, ledger.Revision{
			TxID:      txID,
			Timestamp: committedAt,
			Permit:    &p,
		})
	}

	return revisions, rows.Err()
}

// QueryPermitsByStatus returns all permits currently in the status.
func (s *Store) QueryPermitsByStatus(ctx context.Context, status ledger.PermitStatus) ([]*ledger.Permit, error) {
	if err := status.Validate(); err != nil {
		return nil, fault.Wrap(fault.InvalidInput, err, "invalid status query")
	}
	return s.queryPermits(ctx,
		`SELECT doc FROM permits WHERE status = $1 ORDER BY permit_id`, string(status))
}

// QueryPermitsByType returns all permits of the given type.
func (s *Store) QueryPermitsByType(ctx context.Context, permitType ledger.PermitType) ([]*ledger.Permit, error) {
	if err := permitType.Validate(); err != nil {
		return nil, fault.Wrap(fault.InvalidInput, err, "invalid type query")
	}
	return s.queryPermits(ctx,
		`SELECT doc FROM permits WHERE permit_type = $1 ORDER BY permit_id`, string(permitType))
}

func (s *Store) queryPermits(ctx context.Context, query string, arg any) ([]*ledger.Permit, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query permits: %w", err)
	}
	defer rows.Close()

	permits := []*ledger.Permit{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan permit: %w", err)
		}

		var p ledger.Permit
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("failed to deserialize permit: %w", err)
		}
		permits = append(permits, &p)
	}

	return permits, rows.Err()
}

// GetCloseout retrieves the closeout record for a permit.
func (s *Store) GetCloseout(ctx context.Context, permitID string) (*ledger.CloseoutRecord, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM closeouts WHERE permit_id = $1`, permitID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.NotFound, "no closeout exists for permit %s", permitID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read closeout: %w", err)
	}

	var r ledger.CloseoutRecord
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("failed to deserialize closeout: %w", err)
	}
	return &r, nil
}

// PutCloseout commits a closeout record at expectedSeq and refreshes the
// signature index in the same transaction.
func (s *Store) PutCloseout(ctx context.Context, r *ledger.CloseoutRecord, expectedSeq int64) error {
	if err := r.Validate(); err != nil {
		return fault.Wrap(fault.InvalidInput, err, "invalid closeout record")
	}

	r.Seq = expectedSeq + 1
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to serialize closeout: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var res sql.Result
	if expectedSeq == 0 {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO closeouts (permit_id, closeout_id, doc, seq, status)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (permit_id) DO NOTHING`,
			r.PermitID, r.CloseoutID, doc, r.Seq, string(r.Status))
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE closeouts SET doc = $2, seq = $3, status = $4
			 WHERE permit_id = $1 AND seq = $5`,
			r.PermitID, doc, r.Seq, string(r.Status), expectedSeq)
	}
	if err != nil {
		return fmt.Errorf("failed to write closeout: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return fault.New(fault.Conflict,
			"closeout for permit %s changed: expected seq %d", r.PermitID, expectedSeq)
	}

	for _, sig := range r.Signatures {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO closeout_signatures (signature_id, permit_id)
			 VALUES ($1, $2) ON CONFLICT (signature_id) DO NOTHING`,
			sig.SignatureID, r.PermitID)
		if err != nil {
			return fmt.Errorf("failed to index signature: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit closeout write: %w", err)
	}
	return nil
}

// CloseoutBySignature resolves a signature ID to its closeout record.
func (s *Store) CloseoutBySignature(ctx context.Context, signatureID string) (*ledger.CloseoutRecord, error) {
	var permitID string
	err := s.db.QueryRowContext(ctx,
		`SELECT permit_id FROM closeout_signatures WHERE signature_id = $1`, signatureID).Scan(&permitID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.NotFound, "signature %s does not exist", signatureID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve signature index: %w", err)
	}

	return s.GetCloseout(ctx, permitID)
}
