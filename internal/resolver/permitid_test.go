package resolver

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahjlabs/fireline/pkg/ledger"
)

func setupStore(t *testing.T) *ledger.Client {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := ledger.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func seedPermit(t *testing.T, client *ledger.Client, permitID string) {
	t.Helper()

	now := time.Now().UTC()
	p := &ledger.Permit{
		PermitID:      permitID,
		ApplicationID: "APP-001",
		PermitType:    ledger.TypeFireAlarm,
		Status:        ledger.StatusDraft,
		Applicant:     ledger.Applicant{Name: "Jane Doe"},
		SubmittedDate: now,
		LastModified:  now,
		Version:       1,
	}
	require.NoError(t, client.PutPermit(context.Background(), p, 0))
}

func TestResolvePermitID(t *testing.T) {
	ctx := context.Background()

	t.Run("exact match returns as-is", func(t *testing.T) {
		client := setupStore(t)
		seedPermit(t, client, "PERMIT-2026-001")

		id, err := ResolvePermitID(ctx, client, "PERMIT-2026-001")
		require.NoError(t, err)
		assert.Equal(t, "PERMIT-2026-001", id)
	})

	t.Run("unique prefix resolves", func(t *testing.T) {
		client := setupStore(t)
		seedPermit(t, client, "PERMIT-2026-001")
		seedPermit(t, client, "PERMIT-2025-042")

		id, err := ResolvePermitID(ctx, client, "PERMIT-2026")
		require.NoError(t, err)
		assert.Equal(t, "PERMIT-2026-001", id)
	})

	t.Run("exact match wins over longer siblings", func(t *testing.T) {
		client := setupStore(t)
		seedPermit(t, client, "PERMIT-1")
		seedPermit(t, client, "PERMIT-10")

		id, err := ResolvePermitID(ctx, client, "PERMIT-1")
		require.NoError(t, err)
		assert.Equal(t, "PERMIT-1", id)
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		client := setupStore(t)
		seedPermit(t, client, "PERMIT-2026-001")
		seedPermit(t, client, "PERMIT-2026-002")

		_, err := ResolvePermitID(ctx, client, "PERMIT-2026")
		require.Error(t, err)
		require.True(t, IsAmbiguousError(err))

		ambiguous := err.(*AmbiguousError)
		assert.Equal(t, []string{"PERMIT-2026-001", "PERMIT-2026-002"}, ambiguous.Matches)
	})

	t.Run("no match", func(t *testing.T) {
		client := setupStore(t)
		seedPermit(t, client, "PERMIT-2026-001")

		_, err := ResolvePermitID(ctx, client, "PERMIT-2027")
		require.Error(t, err)
		assert.True(t, IsNotFoundError(err))
		assert.Contains(t, err.Error(), "PERMIT-2027")
	})

	t.Run("prefix too short", func(t *testing.T) {
		client := setupStore(t)
		seedPermit(t, client, "PERMIT-2026-001")

		_, err := ResolvePermitID(ctx, client, "PE")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 3 characters")
	})

	t.Run("history keys do not shadow permits", func(t *testing.T) {
		client := setupStore(t)
		seedPermit(t, client, "PERMIT-2026-001")

		// A committed permit always has a history ZSET beside its hash;
		// the scan must not report it as a second match.
		id, err := ResolvePermitID(ctx, client, "PERMIT")
		require.NoError(t, err)
		assert.Equal(t, "PERMIT-2026-001", id)
	})
}

func TestFormatAmbiguousError(t *testing.T) {
	t.Run("lists all matches when few", func(t *testing.T) {
		err := &AmbiguousError{Prefix: "PERMIT", Matches: []string{"PERMIT-001", "PERMIT-002"}}
		msg := FormatAmbiguousError(err)
		assert.Contains(t, msg, "PERMIT-001")
		assert.Contains(t, msg, "PERMIT-002")
		assert.Contains(t, msg, "Use a longer prefix")
		assert.NotContains(t, msg, "more")
	})

	t.Run("truncates long match lists", func(t *testing.T) {
		matches := make([]string, 13)
		for i := range matches {
			matches[i] = fmt.Sprintf("PERMIT-%03d", i+1)
		}
		msg := FormatAmbiguousError(&AmbiguousError{Prefix: "PERMIT", Matches: matches})
		assert.Contains(t, msg, "PERMIT-010")
		assert.NotContains(t, msg, "PERMIT-011")
		assert.Contains(t, msg, "...and 3 more")
	})
}
