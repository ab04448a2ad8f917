package services

import (
	"context"
	"testing"

	"github.com/leadbeacon/leadbeacon-go/internal/domain/events"
	"github.com/leadbeacon/leadbeacon-go/internal/domain/identity"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/persistence/database"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/persistence/visitor"
)

func newTestIdentityService(t *testing.T) (*IdentityService, identity.VisitorRepository, identity.LeadRepository) {
	t.Helper()

	db, err := database.NewConnection("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	// Each sqlite :memory: connection is its own database; pin the pool to
	// one connection so every query sees the created schema.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := database.NewTableCreator().CreateSchema(db.DB); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	logger := logging.NewTestLogger()
	visitors := visitor.NewSQLVisitorRepository(db, logger)
	leads := visitor.NewSQLLeadRepository(db, logger)
	return NewIdentityService(visitors, leads, logger), visitors, leads
}

func enrichedWith(eventType string, visitorID string, data map[string]any) events.EnrichedEvent {
	return events.EnrichedEvent{
		Type:              eventType,
		Data:              data,
		OriginalVisitorID: visitorID,
		OriginalSessionID: "s1",
	}
}

func TestExtractSignalsGeneratesFallbackVisitorID(t *testing.T) {
	svc, _, _ := newTestIdentityService(t)

	batch := []events.EnrichedEvent{enrichedWith("page_view", "", nil)}
	signals := svc.ExtractSignals(batch)

	if signals.VisitorID == "" {
		t.Fatal("expected generated fallback visitor id")
	}
	if signals.VisitorID[:8] != "visitor-" {
		t.Errorf("fallback visitor id %q missing visitor- prefix", signals.VisitorID)
	}
}

func TestExtractSignalsScansForEmail(t *testing.T) {
	svc, _, _ := newTestIdentityService(t)

	tests := []struct {
		name       string
		batch      []events.EnrichedEvent
		wantEmail  string
		wantSHA256 string
	}{
		{
			name: "plain email field on a later event",
			batch: []events.EnrichedEvent{
				enrichedWith("page_view", "v1", nil),
				enrichedWith("email_captured", "v1", map[string]any{
					"email":     "j@co.com",
					"emailHash": "deadbeef",
				}),
			},
			wantEmail:  "j@co.com",
			wantSHA256: "deadbeef",
		},
		{
			name: "scanned emails payload",
			batch: []events.EnrichedEvent{
				enrichedWith("browser_emails_scanned", "v1", map[string]any{
					"emails": []any{
						map[string]any{"email": "found@co.com", "hash": "cafe"},
					},
				}),
			},
			wantEmail:  "found@co.com",
			wantSHA256: "cafe",
		},
		{
			name: "value without @ is ignored",
			batch: []events.EnrichedEvent{
				enrichedWith("email_captured", "v1", map[string]any{"email": "not-an-email"}),
			},
			wantEmail: "",
		},
		{
			name: "first email wins in arrival order",
			batch: []events.EnrichedEvent{
				enrichedWith("email_captured", "v1", map[string]any{"email": "first@co.com"}),
				enrichedWith("email_captured", "v1", map[string]any{"email": "second@co.com"}),
			},
			wantEmail: "first@co.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := svc.ExtractSignals(tt.batch)
			if signals.Email != tt.wantEmail {
				t.Errorf("email = %q, want %q", signals.Email, tt.wantEmail)
			}
			if tt.wantSHA256 != "" && signals.EmailHashes.SHA256 != tt.wantSHA256 {
				t.Errorf("sha256 = %q, want %q", signals.EmailHashes.SHA256, tt.wantSHA256)
			}
		})
	}
}

func TestResolveTrackingIDOwnsBatchAsLead(t *testing.T) {
	svc, _, _ := newTestIdentityService(t)
	ctx := context.Background()

	signals := BatchSignals{VisitorID: "v1", TrackingID: "abc123", Email: "j@co.com"}

	first, err := svc.Resolve(ctx, signals)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if first.Owner != identity.OwnerLead || !first.Identified {
		t.Fatalf("expected lead owner, got %+v", first)
	}
	if first.LeadID == "" {
		t.Fatal("expected resolved lead id")
	}
	if first.OwnerVisitorRef() != nil {
		t.Error("lead-owned resolution must not carry a visitor ref")
	}

	// Same tracking id resolves to the same lead.
	second, err := svc.Resolve(ctx, BatchSignals{VisitorID: "v2", TrackingID: "abc123"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if second.LeadID != first.LeadID {
		t.Errorf("tracking id resolved to different leads: %s vs %s", first.LeadID, second.LeadID)
	}
}

func TestResolveAnonymousIsIdempotent(t *testing.T) {
	svc, _, _ := newTestIdentityService(t)
	ctx := context.Background()

	first, err := svc.Resolve(ctx, BatchSignals{VisitorID: "v-anon"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if first.Owner != identity.OwnerVisitor || first.Identified {
		t.Fatalf("expected anonymous visitor owner, got %+v", first)
	}

	second, err := svc.Resolve(ctx, BatchSignals{VisitorID: "v-anon"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if second.VisitorRowID != first.VisitorRowID {
		t.Errorf("same visitor_id produced different rows: %s vs %s", first.VisitorRowID, second.VisitorRowID)
	}
	if second.OwnerLeadRef() != nil {
		t.Error("visitor-owned resolution must not carry a lead ref")
	}
}

func TestResolveEmailPerformsIdentifyTransition(t *testing.T) {
	svc, visitors, _ := newTestIdentityService(t)
	ctx := context.Background()

	resolution, err := svc.Resolve(ctx, BatchSignals{
		VisitorID: "v-ident",
		Email:     "jane@co.com",
		FirstName: "Jane",
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolution.Owner != identity.OwnerLead || !resolution.Identified {
		t.Fatalf("expected identified lead owner, got %+v", resolution)
	}
	if !resolution.NewlyIdentified {
		t.Error("first identification should report NewlyIdentified")
	}

	status, err := visitors.CheckIdentification(ctx, "v-ident")
	if err != nil {
		t.Fatalf("CheckIdentification: %v", err)
	}
	if !status.IsIdentified || status.LeadID == nil || *status.LeadID != resolution.LeadID {
		t.Errorf("visitor row not linked to lead: %+v", status)
	}
}

func TestIdentificationIsSticky(t *testing.T) {
	svc, _, _ := newTestIdentityService(t)
	ctx := context.Background()

	identified, err := svc.Resolve(ctx, BatchSignals{VisitorID: "v-sticky", Email: "s@co.com"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	// A later batch with the same email resolves to the same lead without
	// a second transition.
	again, err := svc.Resolve(ctx, BatchSignals{VisitorID: "v-sticky", Email: "s@co.com"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if again.LeadID != identified.LeadID {
		t.Errorf("identification not sticky: %s vs %s", identified.LeadID, again.LeadID)
	}
	if again.NewlyIdentified {
		t.Error("repeat identification must not report NewlyIdentified")
	}
}

func TestResolveHashOnlyStaysAnonymous(t *testing.T) {
	svc, visitors, _ := newTestIdentityService(t)
	ctx := context.Background()

	// Hashes without a plaintext email never create a lead; the signals
	// extractor only emits hashes alongside a plaintext hit, so a batch
	// carrying hashes but whose email field lacked an @ resolves anonymous.
	resolution, err := svc.Resolve(ctx, BatchSignals{
		VisitorID:   "v-hash",
		EmailHashes: identity.EmailHashes{SHA256: "facade"},
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolution.Owner != identity.OwnerVisitor || resolution.Identified {
		t.Fatalf("expected anonymous owner, got %+v", resolution)
	}

	status, err := visitors.CheckIdentification(ctx, "v-hash")
	if err != nil {
		t.Fatalf("CheckIdentification: %v", err)
	}
	if status.IsIdentified {
		t.Error("hash-only signals must not identify the visitor")
	}
}

func TestResolveAnonymousStoresEmailHashes(t *testing.T) {
	svc, visitors, _ := newTestIdentityService(t)
	ctx := context.Background()

	// The anonymous branch stores captured hashes for later reconciliation
	// when it runs with an email present (i.e. after the identify path
	// degraded).
	resolution, err := svc.resolveAnonymous(ctx, BatchSignals{
		VisitorID:   "v-pending",
		Email:       "pending@co.com",
		EmailHashes: identity.EmailHashes{SHA256: "aa11", SHA1: "bb22", MD5: "cc33"},
	})
	if err != nil {
		t.Fatalf("resolveAnonymous returned error: %v", err)
	}
	if resolution.Owner != identity.OwnerVisitor {
		t.Fatalf("expected visitor owner, got %+v", resolution)
	}

	visitorID, err := visitors.FindByEmailHash(ctx, "aa11")
	if err != nil {
		t.Fatalf("FindByEmailHash: %v", err)
	}
	if visitorID != "v-pending" {
		t.Errorf("FindByEmailHash = %q, want %q", visitorID, "v-pending")
	}

	status, err := visitors.CheckIdentification(ctx, "v-pending")
	if err != nil {
		t.Fatalf("CheckIdentification: %v", err)
	}
	if status.IsIdentified {
		t.Error("stored hashes must not flip the identification flag")
	}
}
