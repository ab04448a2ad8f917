package services

import (
	"context"
	"testing"
	"time"

	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/caching/manager"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/caching/stores"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/performance"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/persistence/database"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/persistence/visitor"
)

type personalizationFixture struct {
	svc      *PersonalizationService
	visitors *visitor.SQLVisitorRepository
	leads    *visitor.SQLLeadRepository
	tracker  *performance.Tracker
	db       *database.DB
}

func newPersonalizationFixture(t *testing.T) *personalizationFixture {
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
	cache := manager.NewManagerWithStore(stores.NewMemoryStore(time.Minute, logger), logger)
	t.Cleanup(func() { cache.Close() })
	tracker := performance.NewTracker(nil)

	return &personalizationFixture{
		svc:      NewPersonalizationService(visitors, leads, cache, tracker, logger),
		visitors: visitors,
		leads:    leads,
		tracker:  tracker,
		db:       db,
	}
}

func TestLookupIdentityUnknownToken(t *testing.T) {
	f := newPersonalizationFixture(t)

	profile, err := f.svc.LookupIdentity(context.Background(), "tok-unknown")
	if err != nil {
		t.Fatalf("LookupIdentity: %v", err)
	}
	if profile != nil {
		t.Errorf("unknown token returned profile: %+v", profile)
	}
}

func TestLookupIdentityStoreFallbackAndCacheWriteBack(t *testing.T) {
	f := newPersonalizationFixture(t)
	ctx := context.Background()

	trackingID := "tok-ada"
	email := "ada@acme.test"
	if _, err := f.leads.FindOrCreate(ctx, &trackingID, &email); err != nil {
		t.Fatalf("create lead: %v", err)
	}

	profile, err := f.svc.LookupIdentity(ctx, trackingID)
	if err != nil {
		t.Fatalf("LookupIdentity: %v", err)
	}
	if profile == nil || profile.Email != email {
		t.Fatalf("profile = %+v, want email %q", profile, email)
	}

	// Second lookup must be served from cache: drop the store row and the
	// profile is still answered.
	if _, err := f.db.Exec("DELETE FROM leads"); err != nil {
		t.Fatalf("delete lead: %v", err)
	}
	cached, err := f.svc.LookupIdentity(ctx, trackingID)
	if err != nil {
		t.Fatalf("cached LookupIdentity: %v", err)
	}
	if cached == nil || cached.Email != email {
		t.Errorf("cached profile = %+v, want email %q", cached, email)
	}
}

func TestLookupIdentityRecordsCacheMetrics(t *testing.T) {
	f := newPersonalizationFixture(t)
	ctx := context.Background()

	trackingID := "tok-metrics"
	email := "metrics@acme.test"
	if _, err := f.leads.FindOrCreate(ctx, &trackingID, &email); err != nil {
		t.Fatalf("create lead: %v", err)
	}

	// First lookup misses the cache, the second hits the write-back.
	for i := 0; i < 2; i++ {
		if _, err := f.svc.LookupIdentity(ctx, trackingID); err != nil {
			t.Fatalf("LookupIdentity %d: %v", i, err)
		}
	}

	var hits, misses int
	for _, m := range f.tracker.GetRecentMetrics(time.Minute) {
		if m.Operation != "identity_lookup" {
			continue
		}
		hits += m.CacheHits
		misses += m.CacheMisses
	}
	if misses != 1 || hits != 1 {
		t.Errorf("cache metrics hits=%d misses=%d, want 1 and 1", hits, misses)
	}
}

func TestPersonalizeAnonymousVisitor(t *testing.T) {
	f := newPersonalizationFixture(t)
	ctx := context.Background()

	if _, err := f.visitors.FindOrCreate(ctx, "visitor-anon", nil, nil); err != nil {
		t.Fatalf("create visitor: %v", err)
	}

	tests := []struct{ name, vid string }{
		{"known anonymous visitor", "visitor-anon"},
		{"unknown visitor", "visitor-nobody"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.svc.Personalize(ctx, tt.vid)
			if err != nil {
				t.Fatalf("Personalize: %v", err)
			}
			if p.Personalized {
				t.Errorf("anonymous vid %q personalized", tt.vid)
			}
		})
	}
}

func TestPersonalizeIdentifiedVisitor(t *testing.T) {
	f := newPersonalizationFixture(t)
	ctx := context.Background()

	if _, err := f.visitors.FindOrCreate(ctx, "visitor-id", nil, nil); err != nil {
		t.Fatalf("create visitor: %v", err)
	}
	first := "Grace"
	last := "Hopper"
	if _, _, err := f.leads.IdentifyVisitor(ctx, "visitor-id", "grace@navy.test", &first, &last, "email_capture"); err != nil {
		t.Fatalf("IdentifyVisitor: %v", err)
	}

	p, err := f.svc.Personalize(ctx, "visitor-id")
	if err != nil {
		t.Fatalf("Personalize: %v", err)
	}
	if !p.Personalized {
		t.Fatal("identified visitor not personalized")
	}
	if p.Email != "grace@navy.test" || p.PersonName != "Grace Hopper" {
		t.Errorf("payload = %+v", p)
	}
}

func TestPersonalizeByTrackingToken(t *testing.T) {
	f := newPersonalizationFixture(t)
	ctx := context.Background()

	trackingID := "tok-lead"
	email := "lead@corp.test"
	if _, err := f.leads.FindOrCreate(ctx, &trackingID, &email); err != nil {
		t.Fatalf("create lead: %v", err)
	}

	p, err := f.svc.Personalize(ctx, trackingID)
	if err != nil {
		t.Fatalf("Personalize: %v", err)
	}
	if !p.Personalized || p.Email != email {
		t.Errorf("payload = %+v", p)
	}
}
