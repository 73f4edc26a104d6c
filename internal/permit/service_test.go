package permit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahjlabs/fireline/pkg/fault"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

func setupService(t *testing.T) (*Service, *ledger.Client) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := ledger.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return NewService(client, client, nil, nil), client
}

func createInput(permitID string) CreatePermitInput {
	return CreatePermitInput{
		PermitID:      permitID,
		ApplicationID: "APP-001",
		PermitType:    ledger.TypeFireAlarm,
		Applicant:     ledger.Applicant{Name: "Jane Doe", Email: "jane@example.com"},
		Property:      ledger.Property{Address: "123 Main St", ProjectCost: 250000},
		NFPAData: ledger.NFPAData{
			"fireAlarmType":   ledger.String("addressable"),
			"numberOfDevices": ledger.Int(45),
		},
	}
}

func TestCreatePermit(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	t.Run("creates a draft with mandatory lanes and creation history", func(t *testing.T) {
		p, err := svc.CreatePermit(ctx, createInput("PERMIT-001"))
		require.NoError(t, err)

		assert.Equal(t, ledger.StatusDraft, p.Status)
		assert.Equal(t, 1, p.Version)
		assert.Equal(t, int64(1), p.Seq)

		for _, lane := range ledger.MandatoryLanes() {
			entry, ok := p.Reviewers[lane]
			require.True(t, ok, "missing lane %s", lane)
			assert.Equal(t, ledger.DecisionPending, entry.Decision)
			assert.Equal(t, ledger.PriorityMedium, entry.Priority)
		}

		require.Len(t, p.StatusHistory, 1)
		first := p.StatusHistory[0]
		assert.Equal(t, ledger.StatusDraft, first.From)
		assert.Equal(t, ledger.StatusDraft, first.To)
		assert.Equal(t, "SYSTEM", first.UpdatedBy)
		assert.Equal(t, "Initial permit creation", first.Reason)
		assert.NotEmpty(t, first.DocHash)

		assert.Equal(t, p.SubmittedDate.AddDate(1, 0, 0), p.ExpirationDate)
		assert.False(t, p.Fees.Paid)
	})

	t.Run("duplicate create fails", func(t *testing.T) {
		_, err := svc.CreatePermit(ctx, createInput("PERMIT-001"))
		assert.True(t, fault.IsKind(err, fault.AlreadyExists))
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		input := createInput("PERMIT-BAD")
		input.PermitType = "DEMOLITION"
		_, err := svc.CreatePermit(ctx, input)
		assert.True(t, fault.IsKind(err, fault.InvalidInput))

		input = createInput("")
		_, err = svc.CreatePermit(ctx, input)
		assert.True(t, fault.IsKind(err, fault.InvalidInput))
	})
}

func TestLifecycle(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.CreatePermit(ctx, createInput("PERMIT-001"))
	require.NoError(t, err)

	steps := []struct {
		to       ledger.PermitStatus
		reviewer ReviewerInfo
	}{
		{ledger.StatusSubmitted, ReviewerInfo{Name: "Jane Doe", Reason: "Submitted for review"}},
		{ledger.StatusUnderReview, ReviewerInfo{Name: "Intake Clerk"}},
		{ledger.StatusApproved, ReviewerInfo{
			Lane: ledger.LaneFire, Name: "Fire Marshal",
			Decision: ledger.DecisionApproved, Comments: "Meets NFPA 72",
		}},
	}

	for _, step := range steps {
		_, err := svc.UpdateStatus(ctx, "PERMIT-001", step.to, step.reviewer)
		require.NoError(t, err, "transition to %s", step.to)
	}

	p, err := svc.ReadPermit(ctx, "PERMIT-001")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusApproved, p.Status)

	// Creation entry plus one per transition.
	require.Len(t, p.StatusHistory, 4)
	assert.Equal(t, ledger.StatusUnderReview, p.StatusHistory[3].From)
	assert.Equal(t, ledger.StatusApproved, p.StatusHistory[3].To)

	// The fire lane carries the recorded review.
	fire := p.Reviewers[ledger.LaneFire]
	assert.Equal(t, ledger.DecisionApproved, fire.Decision)
	assert.Equal(t, "Fire Marshal", fire.Reviewer)
	assert.Equal(t, "Meets NFPA 72", fire.Comments)

	// One revision per commit, replayable oldest first.
	revisions, err := svc.GetPermitHistory(ctx, "PERMIT-001")
	require.NoError(t, err)
	require.Len(t, revisions, 4)
	assert.Equal(t, ledger.StatusDraft, revisions[0].Permit.Status)
	assert.Equal(t, ledger.StatusApproved, revisions[3].Permit.Status)
}

func TestUpdateStatusGuards(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.CreatePermit(ctx, createInput("PERMIT-001"))
	require.NoError(t, err)

	t.Run("refuses skipping the pipeline", func(t *testing.T) {
		_, err := svc.UpdateStatus(ctx, "PERMIT-001", ledger.StatusApproved, ReviewerInfo{Name: "x"})
		assert.True(t, fault.IsKind(err, fault.InvalidStateTransition))
	})

	t.Run("refuses unknown status", func(t *testing.T) {
		_, err := svc.UpdateStatus(ctx, "PERMIT-001", "PENDING", ReviewerInfo{Name: "x"})
		assert.True(t, fault.IsKind(err, fault.InvalidInput))
	})

	t.Run("refuses unknown review lane", func(t *testing.T) {
		_, err := svc.UpdateStatus(ctx, "PERMIT-001", ledger.StatusSubmitted, ReviewerInfo{
			Lane: "landscaping", Name: "x",
		})
		assert.True(t, fault.IsKind(err, fault.InvalidInput))
	})

	t.Run("refuses transitions out of a terminal status", func(t *testing.T) {
		_, err := svc.UpdateStatus(ctx, "PERMIT-001", ledger.StatusRejected, ReviewerInfo{Name: "x", Reason: "Withdrawn"})
		require.NoError(t, err)

		_, err = svc.UpdateStatus(ctx, "PERMIT-001", ledger.StatusSubmitted, ReviewerInfo{Name: "x"})
		assert.True(t, fault.IsKind(err, fault.InvalidStateTransition))
	})

	t.Run("unknown permit is NotFound", func(t *testing.T) {
		_, err := svc.UpdateStatus(ctx, "MISSING", ledger.StatusSubmitted, ReviewerInfo{Name: "x"})
		assert.True(t, fault.IsNotFound(err))
	})
}

func TestUpdateNFPAData(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	created, err := svc.CreatePermit(ctx, createInput("PERMIT-001"))
	require.NoError(t, err)

	t.Run("identical data records nothing", func(t *testing.T) {
		same := ledger.NFPAData{
			"fireAlarmType":   ledger.String("addressable"),
			"numberOfDevices": ledger.Int(45),
		}
		p, err := svc.UpdateNFPAData(ctx, "PERMIT-001", same, UpdaterInfo{Name: "Jane Doe"})
		require.NoError(t, err)

		assert.Equal(t, created.Version, p.Version)
		assert.False(t, p.IsRedlined)
		assert.Empty(t, p.RedlineHistory)
	})

	t.Run("changed data bumps version and records the diff", func(t *testing.T) {
		changed := ledger.NFPAData{
			"fireAlarmType":   ledger.String("conventional"),
			"numberOfDevices": ledger.Int(45),
			"testResults":     ledger.Bool(true),
		}
		p, err := svc.UpdateNFPAData(ctx, "PERMIT-001", changed, UpdaterInfo{
			Name: "Reviewer", Reason: "Field correction",
		})
		require.NoError(t, err)

		assert.Equal(t, 2, p.Version)
		assert.True(t, p.IsRedlined)
		require.Len(t, p.RedlineHistory, 1)

		entry := p.RedlineHistory[0]
		assert.Equal(t, 2, entry.Version)
		assert.Len(t, entry.Changes, 2)
		assert.Equal(t, "Field correction", entry.Reason)
		assert.Empty(t, entry.ApprovedBy)
	})

	t.Run("admin updates are self-approved", func(t *testing.T) {
		p, err := svc.UpdateNFPAData(ctx, "PERMIT-001", ledger.NFPAData{
			"fireAlarmType": ledger.String("hybrid"),
		}, UpdaterInfo{Name: "Admin User", Role: "ADMIN"})
		require.NoError(t, err)

		last := p.RedlineHistory[len(p.RedlineHistory)-1]
		assert.Equal(t, "Admin User", last.ApprovedBy)
	})

	t.Run("nil data is invalid", func(t *testing.T) {
		_, err := svc.UpdateNFPAData(ctx, "PERMIT-001", nil, UpdaterInfo{Name: "x"})
		assert.True(t, fault.IsKind(err, fault.InvalidInput))
	})
}

func TestProcessPayment(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.CreatePermit(ctx, createInput("PERMIT-001"))
	require.NoError(t, err)

	t.Run("records the first payment", func(t *testing.T) {
		p, err := svc.ProcessPayment(ctx, "PERMIT-001", PaymentInfo{
			Method: "card", TransactionID: "tx-1", Amount: 500, PaidBy: "Jane Doe",
		})
		require.NoError(t, err)

		assert.True(t, p.Fees.Paid)
		assert.Equal(t, "tx-1", p.Fees.TransactionID)
		assert.Equal(t, 500.0, p.Fees.TotalAmount)
		require.NotNil(t, p.Fees.PaidDate)
	})

	t.Run("second payment fails and changes nothing", func(t *testing.T) {
		_, err := svc.ProcessPayment(ctx, "PERMIT-001", PaymentInfo{
			Method: "card", TransactionID: "tx-2", Amount: 999,
		})
		assert.True(t, fault.IsKind(err, fault.AlreadyPaid))

		p, err := svc.ReadPermit(ctx, "PERMIT-001")
		require.NoError(t, err)
		assert.Equal(t, "tx-1", p.Fees.TransactionID)
		assert.Equal(t, 500.0, p.Fees.TotalAmount)
	})

	t.Run("rejects bad payment input", func(t *testing.T) {
		_, err := svc.ProcessPayment(ctx, "PERMIT-001", PaymentInfo{TransactionID: ""})
		assert.True(t, fault.IsKind(err, fault.InvalidInput))

		_, err = svc.ProcessPayment(ctx, "PERMIT-001", PaymentInfo{TransactionID: "tx-3", Amount: -1})
		assert.True(t, fault.IsKind(err, fault.InvalidInput))
	})
}

// stubReviewer returns a fixed review or error.
type stubReviewer struct {
	review ledger.AIReview
	err    error
}

func (s *stubReviewer) Review(ctx context.Context, p *ledger.Permit) (ledger.AIReview, error) {
	return s.review, s.err
}

func TestPerformAIReview(t *testing.T) {
	ctx := context.Background()

	t.Run("records and overwrites reviews", func(t *testing.T) {
		svc, client := setupService(t)
		_, err := svc.CreatePermit(ctx, createInput("PERMIT-001"))
		require.NoError(t, err)

		reviewer := &stubReviewer{review: ledger.AIReview{Score: 85, ModelVersion: "v1", Timestamp: time.Now().UTC()}}
		svc = NewService(client, client, reviewer, nil)

		p, err := svc.PerformAIReview(ctx, "PERMIT-001")
		require.NoError(t, err)
		require.NotNil(t, p.AIReview)
		assert.Equal(t, 85.0, p.AIReview.Score)

		// Last write wins.
		reviewer.review.Score = 60
		p, err = svc.PerformAIReview(ctx, "PERMIT-001")
		require.NoError(t, err)
		assert.Equal(t, 60.0, p.AIReview.Score)
	})

	t.Run("reviewer failure surfaces as collaborator unavailable", func(t *testing.T) {
		svc, client := setupService(t)
		_, err := svc.CreatePermit(ctx, createInput("PERMIT-001"))
		require.NoError(t, err)

		svc = NewService(client, client, &stubReviewer{err: errors.New("model offline")}, nil)
		_, err = svc.PerformAIReview(ctx, "PERMIT-001")
		assert.True(t, fault.IsKind(err, fault.CollaboratorUnavailable))
	})

	t.Run("no reviewer configured", func(t *testing.T) {
		svc, _ := setupService(t)
		_, err := svc.PerformAIReview(ctx, "PERMIT-001")
		assert.True(t, fault.IsKind(err, fault.CollaboratorUnavailable))
	})
}

func TestAttachDocument(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.CreatePermit(ctx, createInput("PERMIT-001"))
	require.NoError(t, err)

	t.Run("sets singular and appends plural categories", func(t *testing.T) {
		p, err := svc.AttachDocument(ctx, "PERMIT-001", "plans", "sha256:abc", "Jane Doe")
		require.NoError(t, err)
		assert.Equal(t, "sha256:abc", p.Documents.Plans)

		p, err = svc.AttachDocument(ctx, "PERMIT-001", "drawings", "sha256:d1", "Jane Doe")
		require.NoError(t, err)
		p, err = svc.AttachDocument(ctx, "PERMIT-001", "drawings", "sha256:d2", "Jane Doe")
		require.NoError(t, err)
		assert.Equal(t, []string{"sha256:d1", "sha256:d2"}, p.Documents.Drawings)
	})

	t.Run("unknown category is invalid", func(t *testing.T) {
		_, err := svc.AttachDocument(ctx, "PERMIT-001", "blueprints", "ref", "x")
		assert.True(t, fault.IsKind(err, fault.InvalidInput))
	})

	t.Run("empty reference is invalid", func(t *testing.T) {
		_, err := svc.AttachDocument(ctx, "PERMIT-001", "plans", "", "x")
		assert.True(t, fault.IsKind(err, fault.InvalidInput))
	})
}
