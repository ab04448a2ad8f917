package services

import (
	"context"
	"testing"
	"time"

	"github.com/leadbeacon/leadbeacon-go/internal/domain/events"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/caching/manager"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/caching/stores"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/messaging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/performance"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/persistence/database"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/persistence/visitor"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/tasks"
)

type ingestFixture struct {
	svc    *IngestService
	db     *database.DB
	runner *tasks.Runner
}

func newIngestFixture(t *testing.T) *ingestFixture {
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
	sessions := visitor.NewSQLSessionRepository(db, logger)
	eventRepo := visitor.NewSQLEventRepository(db, logger)

	cache := manager.NewManagerWithStore(stores.NewMemoryStore(time.Minute, logger), logger)
	t.Cleanup(func() { cache.Close() })

	runner := tasks.NewRunner(64, logger)
	feed := messaging.NewFeedHub(logger)
	go feed.Run()
	tracker := performance.NewTracker(nil)

	svc := NewIngestService(
		NewEnrichmentService(),
		NewIdentityService(visitors, leads, logger),
		sessions, eventRepo, visitors, leads,
		cache, runner, feed, nil, tracker, logger,
	)
	return &ingestFixture{svc: svc, db: db, runner: runner}
}

func (f *ingestFixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.runner.Drain(ctx); err != nil {
		t.Fatalf("runner drain: %v", err)
	}
}

func (f *ingestFixture) countRows(t *testing.T, query string, args ...any) int {
	t.Helper()
	var count int
	if err := f.db.QueryRow(query, args...).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	return count
}

func TestProcessBatchAnonymousRoundTrip(t *testing.T) {
	f := newIngestFixture(t)

	batch := events.EventBatch{
		Events: []events.TrackingEvent{
			{Type: "page_view", Timestamp: time.Now().UnixMilli(), SessionID: "s1", URL: "https://example.com/"},
			{Type: "click", Timestamp: time.Now().UnixMilli(), SessionID: "s1", URL: "https://example.com/"},
		},
		Meta: events.BatchMeta{SentAt: time.Now().UnixMilli()},
	}

	result := f.svc.ProcessBatch(context.Background(), batch, events.RequestContext{IP: "203.0.113.7", Country: "US"})

	if !result.EventsStored {
		t.Fatalf("expected events stored, got error %q", result.Error)
	}
	if result.EventsReceived != 2 {
		t.Errorf("eventsReceived = %d, want 2", result.EventsReceived)
	}

	f.drain(t)

	if got := f.countRows(t, `SELECT COUNT(*) FROM web_visitors`); got != 1 {
		t.Errorf("visitor rows = %d, want 1", got)
	}
	if got := f.countRows(t, `SELECT COUNT(*) FROM sessions WHERE web_visitor_id IS NOT NULL AND lead_id IS NULL`); got != 1 {
		t.Errorf("visitor-owned sessions = %d, want 1", got)
	}
	if got := f.countRows(t, `SELECT COUNT(*) FROM events WHERE web_visitor_id IS NOT NULL AND lead_id IS NULL`); got != 2 {
		t.Errorf("visitor-owned events = %d, want 2", got)
	}
	// Deferred aggregate refresh ran after drain.
	if got := f.countRows(t, `SELECT total_pageviews FROM web_visitors`); got != 1 {
		t.Errorf("total_pageviews = %d, want 1", got)
	}
}

func TestProcessBatchTrackingIDOwnsEverythingAsLead(t *testing.T) {
	f := newIngestFixture(t)

	batch := events.EventBatch{
		Events: []events.TrackingEvent{
			{
				Type:      "page_view",
				Timestamp: time.Now().UnixMilli(),
				SessionID: "s1",
				URL:       "https://example.com/",
				Data:      map[string]any{"tracking_id": "abc123", "email": "j@co.com"},
			},
		},
	}

	result := f.svc.ProcessBatch(context.Background(), batch, events.RequestContext{})
	if !result.EventsStored {
		t.Fatalf("expected events stored, got error %q", result.Error)
	}
	f.drain(t)

	if got := f.countRows(t, `SELECT COUNT(*) FROM leads WHERE tracking_id = ?`, "abc123"); got != 1 {
		t.Errorf("leads with tracking id = %d, want 1", got)
	}
	if got := f.countRows(t, `SELECT COUNT(*) FROM web_visitors`); got != 0 {
		t.Errorf("visitor rows = %d, want 0 for a tracking id batch", got)
	}
	if got := f.countRows(t, `SELECT COUNT(*) FROM sessions WHERE lead_id IS NOT NULL AND web_visitor_id IS NULL`); got != 1 {
		t.Errorf("lead-owned sessions = %d, want 1", got)
	}
	if got := f.countRows(t, `SELECT COUNT(*) FROM events WHERE lead_id IS NOT NULL AND web_visitor_id IS NULL`); got != 1 {
		t.Errorf("lead-owned events = %d, want 1", got)
	}
}

func TestProcessBatchEmptyBatchIsStored(t *testing.T) {
	f := newIngestFixture(t)

	result := f.svc.ProcessBatch(context.Background(), events.EventBatch{}, events.RequestContext{})
	if !result.EventsStored || result.EventsReceived != 0 {
		t.Errorf("empty batch should be acknowledged as stored, got %+v", result)
	}
}

func TestProcessBatchReportsStorageFailure(t *testing.T) {
	f := newIngestFixture(t)

	// Closing the database makes every store call fail; the batch must be
	// acknowledged with EventsStored false rather than an error.
	f.db.Close()

	batch := events.EventBatch{
		Events: []events.TrackingEvent{
			{Type: "page_view", Timestamp: time.Now().UnixMilli(), SessionID: "s1", URL: "https://example.com/"},
		},
	}

	result := f.svc.ProcessBatch(context.Background(), batch, events.RequestContext{})
	if result.EventsStored {
		t.Error("expected EventsStored false after storage failure")
	}
	if result.Error == "" {
		t.Error("expected error message for observability")
	}
	if result.EventsReceived != 1 {
		t.Errorf("eventsReceived = %d, want 1", result.EventsReceived)
	}
}

func TestProcessRedirectClickStoresDeferredEvent(t *testing.T) {
	f := newIngestFixture(t)

	f.svc.ProcessRedirectClick("tok-1", "https://example.com/offer", events.RequestContext{IP: "198.51.100.4"})
	f.drain(t)

	if got := f.countRows(t, `SELECT COUNT(*) FROM events WHERE type = 'email_click'`); got != 1 {
		t.Errorf("email_click events = %d, want 1", got)
	}
	// The token doubles as a tracking id, so the click lands on a lead.
	if got := f.countRows(t, `SELECT COUNT(*) FROM leads WHERE tracking_id = ?`, "tok-1"); got != 1 {
		t.Errorf("leads for redirect token = %d, want 1", got)
	}
}
