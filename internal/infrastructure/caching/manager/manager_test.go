package manager

import (
	"context"
	"testing"
	"time"

	"github.com/leadbeacon/leadbeacon-go/internal/domain/identity"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/caching/stores"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManagerWithStore(stores.NewMemoryStore(time.Minute, logging.NewTestLogger()), logging.NewTestLogger())
	t.Cleanup(func() { m.Close() })
	return m
}

func TestIdentityRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, found := m.GetIdentity(ctx, "tok-1"); found {
		t.Fatal("cold cache reported a hit")
	}

	profile := &identity.Profile{
		TrackingID: "tok-1",
		Email:      "ada@acme.test",
		FirstName:  "Ada",
		Company:    "Acme",
	}
	m.SetIdentity(ctx, "tok-1", profile)

	cached, found := m.GetIdentity(ctx, "tok-1")
	if !found {
		t.Fatal("expected cache hit after SetIdentity")
	}
	if cached.Email != profile.Email || cached.Company != profile.Company {
		t.Errorf("cached profile = %+v", cached)
	}
}

func TestInvalidateIdentity(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.SetIdentity(ctx, "tok-2", &identity.Profile{TrackingID: "tok-2"})
	m.InvalidateIdentity(ctx, "tok-2")

	if _, found := m.GetIdentity(ctx, "tok-2"); found {
		t.Error("entry served after invalidation")
	}
}

func TestPersonalizationRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	p := &identity.Personalization{
		Personalized:   true,
		Profile:        identity.Profile{Email: "ada@acme.test"},
		TotalVisits:    3,
		TotalPageviews: 12,
	}
	m.SetPersonalization(ctx, "visitor-1", p)

	cached, found := m.GetPersonalization(ctx, "visitor-1")
	if !found {
		t.Fatal("expected cache hit after SetPersonalization")
	}
	if !cached.Personalized || cached.TotalVisits != 3 || cached.TotalPageviews != 12 {
		t.Errorf("cached payload = %+v", cached)
	}
}

func TestIdentityKeysDoNotCollideWithPersonalization(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.SetIdentity(ctx, "same", &identity.Profile{Email: "a@b.test"})
	if _, found := m.GetPersonalization(ctx, "same"); found {
		t.Error("identity entry visible through personalization lookup")
	}
}
