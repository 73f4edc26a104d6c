// Package archive implements the long-term archival collaborator. Closed
// permits keep their records for the fire-safety retention window; the
// ledger stores a receipt so the archival is auditable.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ahjlabs/fireline/pkg/ledger"
)

// DefaultRetention is the standard retention window for fire-safety
// records.
const DefaultRetention = "7 years"

// DefaultAccessLevel restricts archived records to the authority having
// jurisdiction.
const DefaultAccessLevel = "AHJ_HIGHEST_CREDENTIALS"

// Policy controls how a permit's records are archived.
type Policy struct {
	Retention   string
	AccessLevel string
}

// DefaultPolicy returns the standard archival policy.
func DefaultPolicy() Policy {
	return Policy{Retention: DefaultRetention, AccessLevel: DefaultAccessLevel}
}

// Receipt proves a permit's records were archived.
type Receipt struct {
	ReceiptID   string    `json:"receipt_id"`
	PermitID    string    `json:"permit_id"`
	ArchivedAt  time.Time `json:"archived_at"`
	Retention   string    `json:"retention"`
	AccessLevel string    `json:"access_level"`
	Location    string    `json:"location"`
}

// Store archives permit records and returns a receipt.
type Store interface {
	Archive(ctx context.Context, permitID string, policy Policy) (Receipt, error)
}

// RedisStore writes archive receipts under the ledger namespace.
type RedisStore struct {
	rdb          *redis.Client
	instanceName string
	now          func() time.Time
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed archive store.
func NewRedisStore(rdb *redis.Client, instanceName string) *RedisStore {
	return &RedisStore{
		rdb:          rdb,
		instanceName: instanceName,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Archive records an archive receipt for the permit.
func (s *RedisStore) Archive(ctx context.Context, permitID string, policy Policy) (Receipt, error) {
	receipt := Receipt{
		ReceiptID:   uuid.New().String(),
		PermitID:    permitID,
		ArchivedAt:  s.now(),
		Retention:   policy.Retention,
		AccessLevel: policy.AccessLevel,
		Location:    fmt.Sprintf("archive/%s", permitID),
	}

	key := ledger.ArchiveKey(s.instanceName, permitID)
	hash := map[string]interface{}{
		"receipt_id":   receipt.ReceiptID,
		"permit_id":    receipt.PermitID,
		"archived_at":  receipt.ArchivedAt.Format(time.RFC3339Nano),
		"retention":    receipt.Retention,
		"access_level": receipt.AccessLevel,
		"location":     receipt.Location,
	}

	if err := s.rdb.HSet(ctx, key, hash).Err(); err != nil {
		return Receipt{}, fmt.Errorf("failed to write archive receipt: %w", err)
	}

	return receipt, nil
}
