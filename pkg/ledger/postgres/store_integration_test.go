//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ahjlabs/fireline/pkg/fault"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

// setupPostgres starts a Postgres container and returns a connected store.
func setupPostgres(t *testing.T) (*Store, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "fireline",
			"POSTGRES_PASSWORD": "fireline",
			"POSTGRES_DB":       "fireline",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(30 * time.Second),
	}

	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}

	host, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://fireline:fireline@%s:%s/fireline?sslmode=disable", host, port.Port())

	store, err := Open(dsn)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	cleanup := func() {
		store.Close()
		if err := pgC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Postgres container: %v", err)
		}
	}

	return store, cleanup
}

func integrationPermit(permitID string) *ledger.Permit {
	now := time.Now().UTC()
	reviewers := map[ledger.ReviewLane]ledger.ReviewerEntry{}
	for _, lane := range ledger.MandatoryLanes() {
		reviewers[lane] = ledger.ReviewerEntry{
			Decision:  ledger.DecisionPending,
			Timestamp: now,
			Priority:  ledger.PriorityMedium,
		}
	}

	return &ledger.Permit{
		PermitID:      permitID,
		ApplicationID: "APP-001",
		PermitType:    ledger.TypeFireAlarm,
		Status:        ledger.StatusDraft,
		Applicant:     ledger.Applicant{Name: "Jane Doe", Email: "jane@example.com"},
		Property:      ledger.Property{Address: "123 Main St", ProjectCost: 250000},
		NFPAData: ledger.NFPAData{
			"fireAlarmType": ledger.String("addressable"),
		},
		Reviewers:      reviewers,
		SubmittedDate:  now,
		LastModified:   now,
		ExpirationDate: now.AddDate(1, 0, 0),
		Version:        1,
		StatusHistory: []ledger.StatusChange{{
			From: ledger.StatusDraft, To: ledger.StatusDraft,
			Timestamp: now, UpdatedBy: "SYSTEM", Reason: "Initial permit creation",
		}},
	}
}

func TestPostgresStore_PermitRoundTrip(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := integrationPermit("PERMIT-001")
	if err := store.PutPermit(ctx, p, 0); err != nil {
		t.Fatalf("Failed to create permit: %v", err)
	}
	if p.Seq != 1 {
		t.Errorf("Expected seq 1 after create, got %d", p.Seq)
	}

	fetched, err := store.GetPermit(ctx, "PERMIT-001")
	if err != nil {
		t.Fatalf("Failed to read permit: %v", err)
	}
	if fetched.Applicant.Name != "Jane Doe" {
		t.Errorf("Expected applicant Jane Doe, got %s", fetched.Applicant.Name)
	}

	exists, err := store.PermitExists(ctx, "PERMIT-001")
	if err != nil || !exists {
		t.Errorf("Expected permit to exist, got %v / %v", exists, err)
	}

	if _, err := store.GetPermit(ctx, "MISSING"); !fault.IsNotFound(err) {
		t.Errorf("Expected NotFound for missing permit, got %v", err)
	}
}

func TestPostgresStore_SequenceConflict(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := integrationPermit("PERMIT-001")
	if err := store.PutPermit(ctx, p, 0); err != nil {
		t.Fatalf("Failed to create permit: %v", err)
	}

	// Duplicate create collides.
	dup := integrationPermit("PERMIT-001")
	if err := store.PutPermit(ctx, dup, 0); !fault.IsKind(err, fault.Conflict) {
		t.Errorf("Expected Conflict for duplicate create, got %v", err)
	}

	// Two readers race; the second commit carries a stale seq.
	first, err := store.GetPermit(ctx, "PERMIT-001")
	if err != nil {
		t.Fatalf("Failed to read permit: %v", err)
	}
	second, err := store.GetPermit(ctx, "PERMIT-001")
	if err != nil {
		t.Fatalf("Failed to read permit: %v", err)
	}

	first.Status = ledger.StatusSubmitted
	first.StatusHistory = append(first.StatusHistory, ledger.StatusChange{
		From: ledger.StatusDraft, To: ledger.StatusSubmitted,
		Timestamp: time.Now().UTC(), UpdatedBy: "Jane Doe", Reason: "Submitted",
	})
	if err := store.PutPermit(ctx, first, first.Seq); err != nil {
		t.Fatalf("First commit should win: %v", err)
	}

	if err := store.PutPermit(ctx, second, second.Seq); !fault.IsKind(err, fault.Conflict) {
		t.Errorf("Expected Conflict for stale commit, got %v", err)
	}

	revisions, err := store.PermitHistory(ctx, "PERMIT-001")
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}
	if len(revisions) != 2 {
		t.Errorf("Expected 2 revisions, got %d", len(revisions))
	}
	if revisions[0].Permit.Status != ledger.StatusDraft {
		t.Errorf("Expected oldest revision DRAFT, got %s", revisions[0].Permit.Status)
	}
}

func TestPostgresStore_Queries(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, id := range []string{"PERMIT-001", "PERMIT-002"} {
		if err := store.PutPermit(ctx, integrationPermit(id), 0); err != nil {
			t.Fatalf("Failed to create %s: %v", id, err)
		}
	}

	drafts, err := store.QueryPermitsByStatus(ctx, ledger.StatusDraft)
	if err != nil {
		t.Fatalf("Failed to query by status: %v", err)
	}
	if len(drafts) != 2 {
		t.Errorf("Expected 2 drafts, got %d", len(drafts))
	}

	alarms, err := store.QueryPermitsByType(ctx, ledger.TypeFireAlarm)
	if err != nil {
		t.Fatalf("Failed to query by type: %v", err)
	}
	if len(alarms) != 2 {
		t.Errorf("Expected 2 fire alarm permits, got %d", len(alarms))
	}

	if _, err := store.QueryPermitsByStatus(ctx, "PENDING"); !fault.IsKind(err, fault.InvalidInput) {
		t.Errorf("Expected InvalidInput for unknown status, got %v", err)
	}
}

func TestPostgresStore_CloseoutAndSignatureIndex(t *testing.T) {
	store, cleanup := setupPostgres(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	r := &ledger.CloseoutRecord{
		CloseoutID:        "co-1",
		PermitID:          "PERMIT-001",
		Status:            ledger.CloseoutPendingSignatures,
		InitiatedBy:       "inspector",
		InitiatedAt:       now,
		Inspection:        ledger.InspectionResults{Approved: true},
		RiskClass:         ledger.RiskStandard,
		RequiredDocuments: []ledger.DocumentType{ledger.DocAcceptanceCard, ledger.DocAsBuilt},
		Signatures: []ledger.SignatureEntry{{
			SignatureID: "sig-1",
			DocumentID:  "doc-1",
			Role:        ledger.RoleInspector,
			Signer:      ledger.SignerInfo{Name: "Patricia Thompson", Email: "pthompson@city.gov"},
			Status:      ledger.SignaturePending,
			RequestedAt: now,
			ExpiresAt:   now.AddDate(0, 0, 7),
		}},
		DocumentDeadline: now.AddDate(0, 0, 30),
	}

	if err := store.PutCloseout(ctx, r, 0); err != nil {
		t.Fatalf("Failed to create closeout: %v", err)
	}

	fetched, err := store.GetCloseout(ctx, "PERMIT-001")
	if err != nil {
		t.Fatalf("Failed to read closeout: %v", err)
	}
	if fetched.CloseoutID != "co-1" {
		t.Errorf("Expected closeout co-1, got %s", fetched.CloseoutID)
	}

	bySig, err := store.CloseoutBySignature(ctx, "sig-1")
	if err != nil {
		t.Fatalf("Failed to resolve signature: %v", err)
	}
	if bySig.PermitID != "PERMIT-001" {
		t.Errorf("Expected permit PERMIT-001, got %s", bySig.PermitID)
	}

	if _, err := store.CloseoutBySignature(ctx, "no-such-sig"); !fault.IsNotFound(err) {
		t.Errorf("Expected NotFound for unknown signature, got %v", err)
	}

	if err := store.PutCloseout(ctx, fetched, 0); !fault.IsKind(err, fault.Conflict) {
		t.Errorf("Expected Conflict for duplicate create, got %v", err)
	}
}
