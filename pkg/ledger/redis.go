package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ahjlabs/fireline/pkg/fault"
)

// Client provides instance-scoped Redis operations for the permit ledger.
// All keys and channels are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple
// goroutines. Client implements both Store and Publisher.
type Client struct {
	rdb          *redis.Client
	instanceName string
}

var _ Store = (*Client)(nil)
var _ Publisher = (*Client)(nil)

// NewClient creates a new ledger client for the specified instance.
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Redis exposes the underlying Redis client for collaborators that share
// the connection (the archive store, for example).
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// InstanceName returns the namespace this client operates in.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// GetPermit retrieves a permit by ID.
// Returns a fault.NotFound error if the permit does not exist.
func (c *Client) GetPermit(ctx context.Context, permitID string) (*Permit, error) {
	key := PermitKey(c.instanceName, permitID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read permit from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys.
	if len(hashData) == 0 {
		return nil, fault.New(fault.NotFound, "permit %s does not exist", permitID)
	}

	permit, err := HashToPermit(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize permit: %w", err)
	}

	return permit, nil
}

// PermitExists checks if a permit exists without fetching it.
func (c *Client) PermitExists(ctx context.Context, permitID string) (bool, error) {
	key := PermitKey(c.instanceName, permitID)
	exists, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check permit existence: %w", err)
	}
	return exists > 0, nil
}

// PutPermit commits a permit with an optimistic sequence check.
//
// The write runs under WATCH on the permit key: the stored seq must equal
// expectedSeq (0 for a create) or the put fails with fault.Conflict. On
// success the hash, the history revision and the status/type index sets are
// updated in one MULTI/EXEC transaction and p.Seq holds the new sequence.
func (c *Client) PutPermit(ctx context.Context, p *Permit, expectedSeq int64) error {
	if err := p.Validate(); err != nil {
		return fault.Wrap(fault.InvalidInput, err, "invalid permit")
	}

	key := PermitKey(c.instanceName, p.PermitID)

	txf := func(tx *redis.Tx) error {
		curSeq, oldStatus, err := readSeqAndStatus(ctx, tx, key)
		if err != nil {
			return err
		}

		if curSeq != expectedSeq {
			return fault.New(fault.Conflict,
				"permit %s changed: expected seq %d, found %d", p.PermitID, expectedSeq, curSeq)
		}

		p.Seq = expectedSeq + 1

		hash, err := PermitToHash(p)
		if err != nil {
			return fmt.Errorf("failed to serialize permit: %w", err)
		}

		rev := Revision{
			TxID:      uuid.New().String(),
			Timestamp: time.Now().UTC(),
			Permit:    p,
		}
		revJSON, err := json.Marshal(rev)
		if err != nil {
			return fmt.Errorf("failed to marshal revision: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, hash)
			pipe.ZAdd(ctx, PermitHistoryKey(c.instanceName, p.PermitID), redis.Z{
				Score:  float64(p.Seq),
				Member: string(revJSON),
			})
			if oldStatus != "" && oldStatus != string(p.Status) {
				pipe.SRem(ctx, StatusIndexKey(c.instanceName, PermitStatus(oldStatus)), p.PermitID)
			}
			pipe.SAdd(ctx, StatusIndexKey(c.instanceName, p.Status), p.PermitID)
			pipe.SAdd(ctx, TypeIndexKey(c.instanceName, p.PermitType), p.PermitID)
			return nil
		})
		return err
	}

	err := c.rdb.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fault.Wrap(fault.Conflict, err, "permit %s changed during write", p.PermitID)
	}
	return err
}

// PermitHistory returns every committed revision of a permit, oldest first.
// Returns an empty slice for unknown permits.
func (c *Client) PermitHistory(ctx context.Context, permitID string) ([]Revision, error) {
	key := PermitHistoryKey(c.instanceName, permitID)

	members, err := c.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "-inf",
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read permit history: %w", err)
	}

	revisions := make([]Revision, 0, len(members))
	for _, member := range members {
		var rev Revision
		if err := json.Unmarshal([]byte(member), &rev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal revision: %w", err)
		}
		revisions = append(revisions, rev)
	}

	return revisions, nil
}

// QueryPermitsByStatus returns all permits currently in the given status,
// sorted by permit ID for stable output.
func (c *Client) QueryPermitsByStatus(ctx context.Context, status PermitStatus) ([]*Permit, error) {
	if err := status.Validate(); err != nil {
		return nil, fault.Wrap(fault.InvalidInput, err, "invalid status query")
	}
	return c.fetchIndexedPermits(ctx, StatusIndexKey(c.instanceName, status))
}

// QueryPermitsByType returns all permits of the given type, sorted by
// permit ID for stable output.
func (c *Client) QueryPermitsByType(ctx context.Context, permitType PermitType) ([]*Permit, error) {
	if err := permitType.Validate(); err != nil {
		return nil, fault.Wrap(fault.InvalidInput, err, "invalid type query")
	}
	return c.fetchIndexedPermits(ctx, TypeIndexKey(c.instanceName, permitType))
}

func (c *Client) fetchIndexedPermits(ctx context.Context, indexKey string) ([]*Permit, error) {
	ids, err := c.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read permit index: %w", err)
	}
	sort.Strings(ids)

	permits := make([]*Permit, 0, len(ids))
	for _, id := range ids {
		p, err := c.GetPermit(ctx, id)
		if fault.IsNotFound(err) {
			// Index entry outlived the record; skip.
			continue
		}
		if err != nil {
			return nil, err
		}
		permits = append(permits, p)
	}

	return permits, nil
}

// ScanPermits returns the IDs of all permits whose ID starts with the given
// prefix, sorted. Uses SCAN so large ledgers do not block Redis; intended
// for interactive prefix resolution, not bulk queries.
func (c *Client) ScanPermits(ctx context.Context, prefix string) ([]string, error) {
	keyPrefix := PermitKey(c.instanceName, prefix)
	historySuffix := ":history"

	var ids []string
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasSuffix(key, historySuffix) {
			continue
		}
		ids = append(ids, strings.TrimPrefix(key, PermitKey(c.instanceName, "")))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan permits: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}

// GetCloseout retrieves the closeout record for a permit.
// Returns a fault.NotFound error if no closeout has been initiated.
func (c *Client) GetCloseout(ctx context.Context, permitID string) (*CloseoutRecord, error) {
	key := CloseoutKey(c.instanceName, permitID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read closeout from Redis: %w", err)
	}

	if len(hashData) == 0 {
		return nil, fault.New(fault.NotFound, "no closeout exists for permit %s", permitID)
	}

	record, err := HashToCloseout(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize closeout: %w", err)
	}

	return record, nil
}

// PutCloseout commits a closeout record with an optimistic sequence check,
// mirroring PutPermit. The signature ID index is refreshed in the same
// transaction so that CloseoutBySignature stays consistent with the record.
func (c *Client) PutCloseout(ctx context.Context, r *CloseoutRecord, expectedSeq int64) error {
	if err := r.Validate(); err != nil {
		return fault.Wrap(fault.InvalidInput, err, "invalid closeout record")
	}

	key := CloseoutKey(c.instanceName, r.PermitID)

	txf := func(tx *redis.Tx) error {
		curSeq, _, err := readSeqAndStatus(ctx, tx, key)
		if err != nil {
			return err
		}

		if curSeq != expectedSeq {
			return fault.New(fault.Conflict,
				"closeout for permit %s changed: expected seq %d, found %d", r.PermitID, expectedSeq, curSeq)
		}

		r.Seq = expectedSeq + 1

		hash, err := CloseoutToHash(r)
		if err != nil {
			return fmt.Errorf("failed to serialize closeout: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, hash)
			for _, sig := range r.Signatures {
				pipe.Set(ctx, CloseoutBySignatureKey(c.instanceName, sig.SignatureID), r.PermitID, 0)
			}
			return nil
		})
		return err
	}

	err := c.rdb.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fault.Wrap(fault.Conflict, err, "closeout for permit %s changed during write", r.PermitID)
	}
	return err
}

// CloseoutBySignature resolves a signature ID to its closeout record.
// Returns a fault.NotFound error when the signature ID is unknown.
func (c *Client) CloseoutBySignature(ctx context.Context, signatureID string) (*CloseoutRecord, error) {
	permitID, err := c.rdb.Get(ctx, CloseoutBySignatureKey(c.instanceName, signatureID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fault.New(fault.NotFound, "signature %s does not exist", signatureID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve signature index: %w", err)
	}

	return c.GetCloseout(ctx, permitID)
}

// readSeqAndStatus reads the stored commit sequence and status for a key
// inside a WATCH transaction. A missing key reads as seq 0.
func readSeqAndStatus(ctx context.Context, tx *redis.Tx, key string) (int64, string, error) {
	raw, err := tx.HGet(ctx, key, "seq").Result()
	if errors.Is(err, redis.Nil) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("failed to read seq: %w", err)
	}

	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid stored seq: %w", err)
	}

	status, err := tx.HGet(ctx, key, "status").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, "", fmt.Errorf("failed to read status: %w", err)
	}

	return seq, status, nil
}

// Publish delivers domain events over Redis Pub/Sub, routing each event to
// the permit or closeout channel by its type. Callers publish only after
// the corresponding store commit succeeded.
func (c *Client) Publish(ctx context.Context, events ...Event) error {
	for _, ev := range events {
		eventJSON, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		channel := PermitEventsChannel(c.instanceName)
		if ev.Type.IsCloseout() {
			channel = CloseoutEventsChannel(c.instanceName)
		}

		if err := c.rdb.Publish(ctx, channel, eventJSON).Err(); err != nil {
			return fmt.Errorf("failed to publish %s event: %w", ev.Type, err)
		}
	}
	return nil
}

// EventSubscription represents an active Pub/Sub subscription to ledger
// events. Caller must call Close() when done to clean up resources.
type EventSubscription struct {
	events <-chan *Event
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of ledger events.
// The channel is closed when the subscription closes or the context ends.
func (s *EventSubscription) Events() <-chan *Event {
	return s.events
}

// Errors returns the channel of subscription errors.
// The subscription continues after errors - malformed messages are skipped.
func (s *EventSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *EventSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribePermitEvents subscribes to permit lifecycle events for this
// instance. Caller must call subscription.Close() when done.
//
// Events are delivered on a buffered channel (size 10) to prevent blocking.
// If the subscriber is too slow, events may be dropped by Redis Pub/Sub.
func (c *Client) SubscribePermitEvents(ctx context.Context) (*EventSubscription, error) {
	return c.subscribe(ctx, PermitEventsChannel(c.instanceName))
}

// SubscribeCloseoutEvents subscribes to closeout workflow events for this
// instance. Caller must call subscription.Close() when done.
func (c *Client) SubscribeCloseoutEvents(ctx context.Context) (*EventSubscription, error) {
	return c.subscribe(ctx, CloseoutEventsChannel(c.instanceName))
}

func (c *Client) subscribe(ctx context.Context, channel string) (*EventSubscription, error) {
	pubsub := c.rdb.Subscribe(ctx, channel)

	eventsChan := make(chan *Event, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal ledger event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &EventSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
