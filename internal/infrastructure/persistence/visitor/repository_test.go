package visitor

import (
	"context"
	"testing"

	"github.com/leadbeacon/leadbeacon-go/internal/domain/events"
	"github.com/leadbeacon/leadbeacon-go/internal/domain/identity"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/persistence/database"
)

func newTestDB(t *testing.T) *database.DB {
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
	return db
}

func strPtr(s string) *string { return &s }

func TestVisitorFindOrCreateIdempotent(t *testing.T) {
	db := newTestDB(t)
	logger := logging.NewTestLogger()
	repo := NewSQLVisitorRepository(db, logger)
	ctx := context.Background()

	first, err := repo.FindOrCreate(ctx, "visitor-abc", strPtr("fp-1"), strPtr("b-1"))
	if err != nil {
		t.Fatalf("first FindOrCreate: %v", err)
	}
	second, err := repo.FindOrCreate(ctx, "visitor-abc", nil, nil)
	if err != nil {
		t.Fatalf("second FindOrCreate: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("row ids differ: %q vs %q", first.ID, second.ID)
	}
	if second.VisitorID != "visitor-abc" {
		t.Errorf("visitorId = %q", second.VisitorID)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM web_visitors").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("visitor rows = %d, want 1", count)
	}
}

func TestCheckIdentificationUnknownVisitor(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLVisitorRepository(db, logging.NewTestLogger())

	status, err := repo.CheckIdentification(context.Background(), "visitor-missing")
	if err != nil {
		t.Fatalf("CheckIdentification: %v", err)
	}
	if status.IsIdentified || status.LeadID != nil {
		t.Errorf("unknown visitor reported identified: %+v", status)
	}
}

func TestIdentifyVisitorTransition(t *testing.T) {
	db := newTestDB(t)
	logger := logging.NewTestLogger()
	visitors := NewSQLVisitorRepository(db, logger)
	leads := NewSQLLeadRepository(db, logger)
	ctx := context.Background()

	if _, err := visitors.FindOrCreate(ctx, "visitor-x", nil, nil); err != nil {
		t.Fatalf("create visitor: %v", err)
	}

	leadID, created, err := leads.IdentifyVisitor(ctx, "visitor-x", "ada@acme.test", strPtr("Ada"), strPtr("Lovelace"), "email_capture")
	if err != nil {
		t.Fatalf("IdentifyVisitor: %v", err)
	}
	if !created || leadID == "" {
		t.Fatalf("expected a new lead, got created=%v id=%q", created, leadID)
	}

	status, err := visitors.CheckIdentification(ctx, "visitor-x")
	if err != nil {
		t.Fatalf("CheckIdentification: %v", err)
	}
	if !status.IsIdentified || status.LeadID == nil || *status.LeadID != leadID {
		t.Fatalf("visitor not linked after identify: %+v", status)
	}

	// Same email again must reuse the lead, not mint another.
	again, created, err := leads.IdentifyVisitor(ctx, "visitor-x", "ada@acme.test", nil, nil, "email_capture")
	if err != nil {
		t.Fatalf("second IdentifyVisitor: %v", err)
	}
	if created || again != leadID {
		t.Errorf("expected sticky lead %q, got %q created=%v", leadID, again, created)
	}
}

func TestLeadFindOrCreateByTrackingID(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLLeadRepository(db, logging.NewTestLogger())
	ctx := context.Background()

	first, err := repo.FindOrCreate(ctx, strPtr("trk-1"), nil)
	if err != nil {
		t.Fatalf("first FindOrCreate: %v", err)
	}
	second, err := repo.FindOrCreate(ctx, strPtr("trk-1"), nil)
	if err != nil {
		t.Fatalf("second FindOrCreate: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("lead ids differ: %q vs %q", first.ID, second.ID)
	}

	found, err := repo.FindByTrackingID(ctx, "trk-1")
	if err != nil {
		t.Fatalf("FindByTrackingID: %v", err)
	}
	if found == nil || found.ID != first.ID {
		t.Errorf("lookup mismatch: %+v", found)
	}

	missing, err := repo.FindByTrackingID(ctx, "trk-none")
	if err != nil {
		t.Fatalf("FindByTrackingID miss: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown tracking id, got %+v", missing)
	}
}

func TestLeadEmailNaturalKeyUnique(t *testing.T) {
	db := newTestDB(t)
	repo := NewSQLLeadRepository(db, logging.NewTestLogger())
	ctx := context.Background()

	first, err := repo.FindOrCreate(ctx, nil, strPtr("dup@co.com"))
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	// The store itself must reject a second row for the same email; the
	// find-or-create select is not the only line of defense.
	_, err = db.Exec(
		`INSERT INTO leads (id, work_email, identified_at, identification_method)
		 VALUES (?, ?, ?, ?)`,
		"lead-dup", "dup@co.com", "2026-08-30T10:00:00Z", "email_capture",
	)
	if err == nil {
		t.Fatal("store accepted a second lead for the same work_email")
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM leads WHERE work_email = ?", "dup@co.com").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("leads for dup@co.com = %d, want 1", count)
	}

	// Repeated find-or-create by email reuses the row.
	second, err := repo.FindOrCreate(ctx, nil, strPtr("dup@co.com"))
	if err != nil {
		t.Fatalf("second FindOrCreate: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("lead ids differ: %q vs %q", first.ID, second.ID)
	}

	// NULL emails are not part of the natural key; tracking-id-only leads
	// must still coexist.
	if _, err := repo.FindOrCreate(ctx, strPtr("trk-a"), nil); err != nil {
		t.Fatalf("tracking-id lead: %v", err)
	}
	if _, err := repo.FindOrCreate(ctx, strPtr("trk-b"), nil); err != nil {
		t.Fatalf("second tracking-id lead: %v", err)
	}
}

func TestSessionCreateOwnerExclusivity(t *testing.T) {
	db := newTestDB(t)
	logger := logging.NewTestLogger()
	visitors := NewSQLVisitorRepository(db, logger)
	sessions := NewSQLSessionRepository(db, logger)
	ctx := context.Background()

	v, err := visitors.FindOrCreate(ctx, "visitor-s", nil, nil)
	if err != nil {
		t.Fatalf("create visitor: %v", err)
	}

	tests := []struct {
		name       string
		visitorRef *string
		leadRef    *string
		wantErr    bool
	}{
		{"visitor owner", &v.ID, nil, false},
		{"both owners", &v.ID, strPtr("lead-1"), true},
		{"no owner", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sessions.Create(ctx, "cs-"+tt.name, tt.visitorRef, tt.leadRef, identity.SessionSnapshot{FirstPage: "/"})
			if tt.wantErr {
				if err != ErrOwnerExclusivity {
					t.Errorf("err = %v, want ErrOwnerExclusivity", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestEventInsertBatch(t *testing.T) {
	db := newTestDB(t)
	logger := logging.NewTestLogger()
	visitors := NewSQLVisitorRepository(db, logger)
	eventRepo := NewSQLEventRepository(db, logger)
	ctx := context.Background()

	v, err := visitors.FindOrCreate(ctx, "visitor-e", nil, nil)
	if err != nil {
		t.Fatalf("create visitor: %v", err)
	}

	batch := []events.EnrichedEvent{
		{
			Category:   events.CategoryWebsite,
			Type:       "page_view",
			SessionID:  "sess-1",
			VisitorRef: v.ID,
			URL:        "https://example.com/",
			Data:       map[string]any{"title": "Home"},
			CreatedAt:  "2026-08-30T10:00:00Z",
		},
		{
			Category:   events.CategoryWebsite,
			Type:       "click",
			SessionID:  "sess-1",
			VisitorRef: v.ID,
			URL:        "https://example.com/",
		},
	}
	if err := eventRepo.InsertBatch(ctx, batch); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM events WHERE web_visitor_id = ?", v.ID).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("events = %d, want 2", count)
	}

	// Rows without a client timestamp still get created_at stamped.
	var createdAt string
	if err := db.QueryRow("SELECT created_at FROM events WHERE type = 'click'").Scan(&createdAt); err != nil {
		t.Fatalf("scan created_at: %v", err)
	}
	if createdAt == "" {
		t.Error("created_at not stamped on insert")
	}
}

func TestEventInsertBatchRejectsOwnerless(t *testing.T) {
	db := newTestDB(t)
	eventRepo := NewSQLEventRepository(db, logging.NewTestLogger())

	err := eventRepo.InsertBatch(context.Background(), []events.EnrichedEvent{
		{Category: events.CategoryWebsite, Type: "page_view", SessionID: "sess-1"},
	})
	if err == nil {
		t.Fatal("expected owner validation error for event with no owner")
	}
}

func TestUpdateEmailHashesAndLookup(t *testing.T) {
	db := newTestDB(t)
	logger := logging.NewTestLogger()
	visitors := NewSQLVisitorRepository(db, logger)
	ctx := context.Background()

	v, err := visitors.FindOrCreate(ctx, "visitor-h", nil, nil)
	if err != nil {
		t.Fatalf("create visitor: %v", err)
	}

	hashes := identity.EmailHashes{SHA256: "aa", SHA1: "bb", MD5: "cc"}
	if err := visitors.UpdateEmailHashes(ctx, v.ID, hashes, "acme.test"); err != nil {
		t.Fatalf("UpdateEmailHashes: %v", err)
	}

	visitorID, err := visitors.FindByEmailHash(ctx, "aa")
	if err != nil {
		t.Fatalf("FindByEmailHash: %v", err)
	}
	if visitorID != "visitor-h" {
		t.Errorf("FindByEmailHash = %q, want visitor-h", visitorID)
	}

	// Hashes alone never flip the identification flag.
	status, err := visitors.CheckIdentification(ctx, "visitor-h")
	if err != nil {
		t.Fatalf("CheckIdentification: %v", err)
	}
	if status.IsIdentified {
		t.Error("hash-only visitor reported identified")
	}
}
