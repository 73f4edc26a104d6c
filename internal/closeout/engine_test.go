package closeout

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahjlabs/fireline/internal/documents"
	"github.com/ahjlabs/fireline/internal/permit"
	"github.com/ahjlabs/fireline/internal/signatures"
	"github.com/ahjlabs/fireline/pkg/fault"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

// Content that passes both the compliance and completeness checks for its
// document type.
const (
	acceptanceCardContent = "permit number PERMIT-001, completion date 2026-03-01, " +
		"inspector signature on file, contractor information attached"
	asBuiltContent = "title block, scale 1:100, revision date 2026-02-20, engineer seal, " +
		"fire protection systems shown with sprinkler layout and egress exit paths"
)

func setupEngine(t *testing.T) (*Engine, *permit.Service, *ledger.Client) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := ledger.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	svc := permit.NewService(client, client, nil, nil)
	engine := NewEngine(client, svc, documents.NewLocalManager(), signatures.NewLocalManager(), DefaultConfig())

	return engine, svc, client
}

// approvedPermit creates a permit and walks it to APPROVED.
func approvedPermit(t *testing.T, svc *permit.Service, permitID string, cost float64, nfpa ledger.NFPAData) {
	t.Helper()
	ctx := context.Background()

	if nfpa == nil {
		nfpa = ledger.NFPAData{"fireAlarmType": ledger.String("addressable")}
	}

	_, err := svc.CreatePermit(ctx, permit.CreatePermitInput{
		PermitID:      permitID,
		ApplicationID: "APP-" + permitID,
		PermitType:    ledger.TypeFireAlarm,
		Applicant:     ledger.Applicant{Name: "Jane Doe", Email: "jane@example.com"},
		Property:      ledger.Property{Address: "123 Main St", ProjectCost: cost},
		NFPAData:      nfpa,
	})
	require.NoError(t, err)

	for _, status := range []ledger.PermitStatus{
		ledger.StatusSubmitted, ledger.StatusUnderReview, ledger.StatusApproved,
	} {
		_, err := svc.UpdateStatus(ctx, permitID, status, permit.ReviewerInfo{Name: "Reviewer"})
		require.NoError(t, err)
	}
}

func passedInspection(e *Engine) ledger.InspectionResults {
	return ledger.InspectionResults{
		Approved:    true,
		Inspector:   "Patricia Thompson",
		CompletedAt: e.now(),
		Notes:       "All systems operational",
	}
}

func TestInitiateCloseout(t *testing.T) {
	ctx := context.Background()

	t.Run("starts the workflow for an approved permit", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		approvedPermit(t, svc, "PERMIT-001", 250000, nil)

		r, err := engine.InitiateCloseout(ctx, "PERMIT-001", "inspector", passedInspection(engine))
		require.NoError(t, err)

		assert.Equal(t, ledger.CloseoutPendingDocuments, r.Status)
		assert.Equal(t, ledger.RiskStandard, r.RiskClass)
		assert.Equal(t, []ledger.DocumentType{ledger.DocAcceptanceCard, ledger.DocAsBuilt}, r.RequiredDocuments)
		assert.Equal(t, int64(1), r.Seq)
		assert.True(t, r.Checks.InspectionApproved)
		assert.False(t, r.Checks.OverallCompliant)

		names := make([]string, 0, len(r.Timeline))
		for _, m := range r.Timeline {
			names = append(names, m.Name)
		}
		assert.Equal(t, []string{"inspection_approved", "documents_required"}, names)
	})

	t.Run("high project cost classifies complex", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		approvedPermit(t, svc, "PERMIT-002", 2_500_000, nil)

		r, err := engine.InitiateCloseout(ctx, "PERMIT-002", "inspector", passedInspection(engine))
		require.NoError(t, err)

		assert.Equal(t, ledger.RiskComplex, r.RiskClass)
		assert.Contains(t, r.RequiredDocuments, ledger.DocTestReports)
		assert.Contains(t, r.RequiredDocuments, ledger.DocCommissioningReports)
	})

	t.Run("declared special hazards classify hazmat", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		approvedPermit(t, svc, "PERMIT-003", 100000, ledger.NFPAData{
			ledger.FieldSpecialHazards: ledger.List("flammable storage"),
		})

		r, err := engine.InitiateCloseout(ctx, "PERMIT-003", "inspector", passedInspection(engine))
		require.NoError(t, err)

		assert.Equal(t, ledger.RiskHazmat, r.RiskClass)
		assert.Len(t, r.RequiredDocuments, 6)
	})

	t.Run("configured override wins", func(t *testing.T) {
		engine, svc, client := setupEngine(t)
		cfg := DefaultConfig()
		cfg.RiskOverrides = map[ledger.PermitType]ledger.RiskClass{
			ledger.TypeFireAlarm: ledger.RiskComplex,
		}
		engine = NewEngine(client, svc, documents.NewLocalManager(), signatures.NewLocalManager(), cfg)

		approvedPermit(t, svc, "PERMIT-004", 100000, nil)
		r, err := engine.InitiateCloseout(ctx, "PERMIT-004", "inspector", passedInspection(engine))
		require.NoError(t, err)
		assert.Equal(t, ledger.RiskComplex, r.RiskClass)
	})

	t.Run("refuses a permit that is not approved", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		_, err := svc.CreatePermit(ctx, permit.CreatePermitInput{
			PermitID: "PERMIT-005", ApplicationID: "APP-005", PermitType: ledger.TypeSprinkler,
			Applicant: ledger.Applicant{Name: "Jane Doe"},
		})
		require.NoError(t, err)

		_, err = engine.InitiateCloseout(ctx, "PERMIT-005", "inspector", passedInspection(engine))
		assert.True(t, fault.IsKind(err, fault.InvalidStateTransition))
	})

	t.Run("refuses a failed inspection", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		approvedPermit(t, svc, "PERMIT-006", 100000, nil)

		_, err := engine.InitiateCloseout(ctx, "PERMIT-006", "inspector", ledger.InspectionResults{Approved: false})
		assert.True(t, fault.IsKind(err, fault.InspectionNotApproved))
	})

	t.Run("refuses a second closeout", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		approvedPermit(t, svc, "PERMIT-007", 100000, nil)

		_, err := engine.InitiateCloseout(ctx, "PERMIT-007", "inspector", passedInspection(engine))
		require.NoError(t, err)

		_, err = engine.InitiateCloseout(ctx, "PERMIT-007", "inspector", passedInspection(engine))
		assert.True(t, fault.IsKind(err, fault.AlreadyExists))
	})
}

func TestUploadDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("records a verified document without advancing early", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		approvedPermit(t, svc, "PERMIT-001", 250000, nil)
		_, err := engine.InitiateCloseout(ctx, "PERMIT-001", "inspector", passedInspection(engine))
		require.NoError(t, err)

		r, err := engine.UploadDocument(ctx, "PERMIT-001", ledger.DocAcceptanceCard, documents.File{
			Name: "card.pdf", Content: []byte(acceptanceCardContent),
		}, "contractor")
		require.NoError(t, err)

		assert.Equal(t, ledger.CloseoutPendingDocuments, r.Status)
		require.Len(t, r.Documents, 1)
		assert.Equal(t, ledger.DocumentVerified, r.Documents[0].Status)
		assert.Empty(t, r.Signatures)
	})

	t.Run("completing the set derives signatures in the same commit", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		approvedPermit(t, svc, "PERMIT-001", 250000, nil)
		_, err := engine.InitiateCloseout(ctx, "PERMIT-001", "inspector", passedInspection(engine))
		require.NoError(t, err)

		_, err = engine.UploadDocument(ctx, "PERMIT-001", ledger.DocAcceptanceCard, documents.File{
			Name: "card.pdf", Content: []byte(acceptanceCardContent),
		}, "contractor")
		require.NoError(t, err)

		r, err := engine.UploadDocument(ctx, "PERMIT-001", ledger.DocAsBuilt, documents.File{
			Name: "asbuilt.pdf", Content: []byte(asBuiltContent),
		}, "engineer")
		require.NoError(t, err)

		assert.Equal(t, ledger.CloseoutPendingSignatures, r.Status)

		// Inspector for the acceptance card, engineer and contractor for
		// the as-built drawings.
		require.Len(t, r.Signatures, 3)
		roles := map[ledger.SignatureRole]int{}
		for _, sig := range r.Signatures {
			roles[sig.Role]++
			assert.Equal(t, ledger.SignaturePending, sig.Status)
		}
		assert.Equal(t, map[ledger.SignatureRole]int{
			ledger.RoleInspector: 1, ledger.RoleEngineer: 1, ledger.RoleContractor: 1,
		}, roles)

		// One commit per upload plus initiation.
		assert.Equal(t, int64(3), r.Seq)
	})

	t.Run("replaces a rejected document on re-upload", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		approvedPermit(t, svc, "PERMIT-001", 250000, nil)
		_, err := engine.InitiateCloseout(ctx, "PERMIT-001", "inspector", passedInspection(engine))
		require.NoError(t, err)

		r, err := engine.UploadDocument(ctx, "PERMIT-001", ledger.DocAcceptanceCard, documents.File{
			Name: "card.pdf", Content: []byte("completion certificate with no sign-off"),
		}, "contractor")
		require.NoError(t, err)
		assert.Equal(t, ledger.DocumentRejected, r.Documents[0].Status)

		r, err = engine.UploadDocument(ctx, "PERMIT-001", ledger.DocAcceptanceCard, documents.File{
			Name: "card-v2.pdf", Content: []byte(acceptanceCardContent),
		}, "contractor")
		require.NoError(t, err)
		require.Len(t, r.Documents, 1)
		assert.Equal(t, ledger.DocumentVerified, r.Documents[0].Status)
		assert.Equal(t, "card-v2.pdf", r.Documents[0].FileName)
	})

	t.Run("refuses a type the risk class does not require", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		approvedPermit(t, svc, "PERMIT-001", 250000, nil)
		_, err := engine.InitiateCloseout(ctx, "PERMIT-001", "inspector", passedInspection(engine))
		require.NoError(t, err)

		_, err = engine.UploadDocument(ctx, "PERMIT-001", ledger.DocSafetyDataSheets, documents.File{
			Name: "sds.pdf", Content: []byte("safety data"),
		}, "contractor")
		assert.True(t, fault.IsKind(err, fault.DocumentTypeNotRequired))
	})

	t.Run("refuses replacing a verified document", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		approvedPermit(t, svc, "PERMIT-001", 250000, nil)
		_, err := engine.InitiateCloseout(ctx, "PERMIT-001", "inspector", passedInspection(engine))
		require.NoError(t, err)

		_, err = engine.UploadDocument(ctx, "PERMIT-001", ledger.DocAcceptanceCard, documents.File{
			Name: "card.pdf", Content: []byte(acceptanceCardContent),
		}, "contractor")
		require.NoError(t, err)

		_, err = engine.UploadDocument(ctx, "PERMIT-001", ledger.DocAcceptanceCard, documents.File{
			Name: "card-v2.pdf", Content: []byte(acceptanceCardContent),
		}, "contractor")
		assert.True(t, fault.IsKind(err, fault.AlreadyVerified))
	})

	t.Run("unknown permit is NotFound", func(t *testing.T) {
		engine, _, _ := setupEngine(t)
		_, err := engine.UploadDocument(ctx, "MISSING", ledger.DocAcceptanceCard, documents.File{
			Name: "card.pdf", Content: []byte("x"),
		}, "contractor")
		assert.True(t, fault.IsNotFound(err))
	})
}

// readyForSignatures walks a standard-risk closeout to PENDING_SIGNATURES.
func readyForSignatures(t *testing.T, engine *Engine, svc *permit.Service, permitID string, cost float64) *ledger.CloseoutRecord {
	t.Helper()
	ctx := context.Background()

	approvedPermit(t, svc, permitID, cost, nil)
	_, err := engine.InitiateCloseout(ctx, permitID, "inspector", passedInspection(engine))
	require.NoError(t, err)

	_, err = engine.UploadDocument(ctx, permitID, ledger.DocAcceptanceCard, documents.File{
		Name: "card.pdf", Content: []byte(acceptanceCardContent),
	}, "contractor")
	require.NoError(t, err)

	r, err := engine.UploadDocument(ctx, permitID, ledger.DocAsBuilt, documents.File{
		Name: "asbuilt.pdf", Content: []byte(asBuiltContent),
	}, "engineer")
	require.NoError(t, err)
	require.Equal(t, ledger.CloseoutPendingSignatures, r.Status)

	return r
}

func signAll(t *testing.T, engine *Engine, r *ledger.CloseoutRecord) *ledger.CloseoutRecord {
	t.Helper()
	ctx := context.Background()

	var latest *ledger.CloseoutRecord
	for i, sig := range r.Signatures {
		var err error
		latest, err = engine.ProcessSignature(ctx, sig.SignatureID,
			[]byte(fmt.Sprintf("signature payload %d", i)),
			ledger.SignerCredentials{Email: sig.Signer.Email, LicenseNumber: sig.Signer.LicenseNumber})
		require.NoError(t, err)
	}
	return latest
}

func TestProcessSignature(t *testing.T) {
	ctx := context.Background()

	t.Run("completing the signatures auto-closes an eligible record", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		r := readyForSignatures(t, engine, svc, "PERMIT-001", 250000)

		final := signAll(t, engine, r)

		assert.Equal(t, ledger.CloseoutClosed, final.Status)
		require.NotNil(t, final.Certificate)
		assert.Equal(t, "automatic", final.Certificate.ClosureType)
		assert.Equal(t, "SYSTEM", final.Certificate.IssuedBy)
		assert.Equal(t, 2, final.Certificate.DocumentsVerified)
		assert.Equal(t, 3, final.Certificate.SignaturesCompleted)
		assert.NotEmpty(t, final.Certificate.DigitalSignature)
		assert.True(t, final.Checks.OverallCompliant)

		names := make([]string, 0, len(final.Timeline))
		for _, m := range final.Timeline {
			names = append(names, m.Name)
		}
		assert.Contains(t, names, "signatures_complete")
		assert.Contains(t, names, "under_review")
		assert.Contains(t, names, "closed")

		// Closure finalizes the underlying permit.
		p, err := svc.ReadPermit(ctx, "PERMIT-001")
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusFinalized, p.Status)
	})

	t.Run("cost above the ceiling goes to manual review", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		r := readyForSignatures(t, engine, svc, "PERMIT-001", 6_000_000)

		final := signAll(t, engine, r)

		assert.Equal(t, ledger.CloseoutUnderReview, final.Status)
		assert.Nil(t, final.Certificate)

		p, err := svc.ReadPermit(ctx, "PERMIT-001")
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusApproved, p.Status)
	})

	t.Run("credential mismatch rejects the single entry", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		r := readyForSignatures(t, engine, svc, "PERMIT-001", 250000)

		sig := r.Signatures[0]
		updated, err := engine.ProcessSignature(ctx, sig.SignatureID, []byte("payload"),
			ledger.SignerCredentials{Email: "imposter@example.com"})
		require.NoError(t, err)

		entry := updated.SignatureByID(sig.SignatureID)
		require.NotNil(t, entry)
		assert.Equal(t, ledger.SignatureRejected, entry.Status)
		assert.Equal(t, "email mismatch", entry.Reason)
		assert.Equal(t, ledger.CloseoutPendingSignatures, updated.Status)
	})

	t.Run("re-processing a verified signature is a no-op", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		r := readyForSignatures(t, engine, svc, "PERMIT-001", 6_000_000)
		signAll(t, engine, r)

		sig := r.Signatures[0]
		before, err := engine.GetCloseout(ctx, "PERMIT-001")
		require.NoError(t, err)

		after, err := engine.ProcessSignature(ctx, sig.SignatureID, []byte("different payload"),
			ledger.SignerCredentials{Email: sig.Signer.Email})
		require.NoError(t, err)
		assert.Equal(t, before.Seq, after.Seq)
	})

	t.Run("unknown signature is NotFound", func(t *testing.T) {
		engine, _, _ := setupEngine(t)
		_, err := engine.ProcessSignature(ctx, "no-such-sig", []byte("x"), ledger.SignerCredentials{})
		assert.True(t, fault.IsNotFound(err))
	})
}

func TestClosePermit(t *testing.T) {
	ctx := context.Background()

	t.Run("manual closure after review", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		r := readyForSignatures(t, engine, svc, "PERMIT-001", 6_000_000)
		signAll(t, engine, r)

		final, err := engine.ClosePermit(ctx, "PERMIT-001", "Fire Marshal", "Reviewed and approved")
		require.NoError(t, err)

		assert.Equal(t, ledger.CloseoutClosed, final.Status)
		require.NotNil(t, final.Certificate)
		assert.Equal(t, "manual", final.Certificate.ClosureType)
		assert.Equal(t, "Fire Marshal", final.Certificate.IssuedBy)
	})

	t.Run("closing an already closed record returns it unchanged", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		r := readyForSignatures(t, engine, svc, "PERMIT-001", 250000)
		closed := signAll(t, engine, r)
		require.Equal(t, ledger.CloseoutClosed, closed.Status)

		again, err := engine.ClosePermit(ctx, "PERMIT-001", "Fire Marshal", "")
		require.NoError(t, err)
		assert.Equal(t, closed.Seq, again.Seq)
		assert.Equal(t, closed.Certificate.CertificateID, again.Certificate.CertificateID)
	})

	t.Run("outstanding requirements block closure with details", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		approvedPermit(t, svc, "PERMIT-001", 250000, nil)
		_, err := engine.InitiateCloseout(ctx, "PERMIT-001", "inspector", passedInspection(engine))
		require.NoError(t, err)

		_, err = engine.ClosePermit(ctx, "PERMIT-001", "Fire Marshal", "")
		require.True(t, fault.IsKind(err, fault.CannotClose))

		blockers := fault.DetailsOf(err)
		assert.Contains(t, blockers, "required document acceptance_card not uploaded")
		assert.Contains(t, blockers, "required document as_built not uploaded")
		assert.Contains(t, blockers, "no signatures requested")
	})

	t.Run("rejected closeout cannot close", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		approvedPermit(t, svc, "PERMIT-001", 250000, nil)
		_, err := engine.InitiateCloseout(ctx, "PERMIT-001", "inspector", passedInspection(engine))
		require.NoError(t, err)
		_, err = engine.RejectCloseout(ctx, "PERMIT-001", "Fire Marshal", "Falsified records")
		require.NoError(t, err)

		_, err = engine.ClosePermit(ctx, "PERMIT-001", "Fire Marshal", "")
		assert.True(t, fault.IsKind(err, fault.InvalidStateTransition))
	})
}

func TestRejectCloseout(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects a pending closeout", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		approvedPermit(t, svc, "PERMIT-001", 250000, nil)
		_, err := engine.InitiateCloseout(ctx, "PERMIT-001", "inspector", passedInspection(engine))
		require.NoError(t, err)

		r, err := engine.RejectCloseout(ctx, "PERMIT-001", "Fire Marshal", "Incomplete work")
		require.NoError(t, err)
		assert.Equal(t, ledger.CloseoutRejected, r.Status)
	})

	t.Run("cannot reject a closed closeout", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		r := readyForSignatures(t, engine, svc, "PERMIT-001", 250000)
		signAll(t, engine, r)

		_, err := engine.RejectCloseout(ctx, "PERMIT-001", "Fire Marshal", "too late")
		assert.True(t, fault.IsKind(err, fault.InvalidStateTransition))
	})

	t.Run("rejection is terminal", func(t *testing.T) {
		engine, svc, _ := setupEngine(t)
		approvedPermit(t, svc, "PERMIT-001", 250000, nil)
		_, err := engine.InitiateCloseout(ctx, "PERMIT-001", "inspector", passedInspection(engine))
		require.NoError(t, err)
		_, err = engine.RejectCloseout(ctx, "PERMIT-001", "Fire Marshal", "Incomplete work")
		require.NoError(t, err)

		_, err = engine.UploadDocument(ctx, "PERMIT-001", ledger.DocAcceptanceCard, documents.File{
			Name: "card.pdf", Content: []byte(acceptanceCardContent),
		}, "contractor")
		assert.True(t, fault.IsKind(err, fault.InvalidStateTransition))
	})
}

func TestStatus(t *testing.T) {
	ctx := context.Background()

	engine, svc, _ := setupEngine(t)
	approvedPermit(t, svc, "PERMIT-001", 250000, nil)
	_, err := engine.InitiateCloseout(ctx, "PERMIT-001", "inspector", passedInspection(engine))
	require.NoError(t, err)

	t.Run("reports progress while documents are pending", func(t *testing.T) {
		progress, err := engine.Status(ctx, "PERMIT-001")
		require.NoError(t, err)

		assert.Equal(t, ledger.CloseoutPendingDocuments, progress.Status)
		assert.Equal(t, 25, progress.PercentComplete)
		assert.Equal(t, "Upload required closeout documents", progress.NextAction)
		assert.Equal(t, 2, progress.RequiredDocuments)
		assert.Equal(t, 0, progress.VerifiedDocuments)
		require.NotNil(t, progress.EstimatedCompletion)
	})

	t.Run("closed record reports full progress", func(t *testing.T) {
		_, err = engine.UploadDocument(ctx, "PERMIT-001", ledger.DocAcceptanceCard, documents.File{
			Name: "card.pdf", Content: []byte(acceptanceCardContent),
		}, "contractor")
		require.NoError(t, err)
		r, err := engine.UploadDocument(ctx, "PERMIT-001", ledger.DocAsBuilt, documents.File{
			Name: "asbuilt.pdf", Content: []byte(asBuiltContent),
		}, "engineer")
		require.NoError(t, err)
		signAll(t, engine, r)

		progress, err := engine.Status(ctx, "PERMIT-001")
		require.NoError(t, err)
		assert.Equal(t, ledger.CloseoutClosed, progress.Status)
		assert.Equal(t, 100, progress.PercentComplete)
		assert.Nil(t, progress.EstimatedCompletion)
		assert.Equal(t, 2, progress.VerifiedDocuments)
		assert.Equal(t, 0, progress.PendingSignatures)
	})

	t.Run("unknown permit is NotFound", func(t *testing.T) {
		_, err := engine.Status(ctx, "MISSING")
		assert.True(t, fault.IsNotFound(err))
	})
}
