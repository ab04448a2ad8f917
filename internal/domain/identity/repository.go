package identity

import (
	"context"

	"github.com/leadbeacon/leadbeacon-go/internal/domain/events"
)

// VisitorRepository is the store boundary for anonymous visitor rows.
// Find-or-create operations must be safe under concurrent duplicate calls:
// implementations treat a duplicate-key failure as "someone else already
// created it" and re-fetch.
type VisitorRepository interface {
	// FindOrCreate looks a visitor up by its client visitor_id, touching
	// last_seen_at on a hit and inserting an anonymous row on a miss.
	FindOrCreate(ctx context.Context, visitorID string, deviceFingerprint, browserID *string) (*Visitor, error)

	// FindByVisitorID returns the visitor row or (nil, nil) when unseen.
	FindByVisitorID(ctx context.Context, visitorID string) (*Visitor, error)

	// CheckIdentification reports whether a visitor_id is already linked
	// to a lead.
	CheckIdentification(ctx context.Context, visitorID string) (IdentificationStatus, error)

	// UpdateEmailHashes stores captured email hashes on an anonymous
	// visitor row for later reconciliation.
	UpdateEmailHashes(ctx context.Context, visitorRowID string, hashes EmailHashes, emailDomain string) error

	// FindByEmailHash resolves a visitor_id from a previously captured
	// sha256 email hash, or (""), nil when unknown.
	FindByEmailHash(ctx context.Context, sha256 string) (string, error)

	// UpdateAggregates recomputes pageview/click/session counts from the
	// visitor's event and session history.
	UpdateAggregates(ctx context.Context, visitorRowID string) error
}

// LeadRepository is the store boundary for identified leads.
type LeadRepository interface {
	// FindOrCreate resolves a lead by tracking id first, then by work or
	// personal email, inserting a new lead when neither matches.
	FindOrCreate(ctx context.Context, trackingID, email *string) (*Lead, error)

	// FindByID returns the lead or (nil, nil).
	FindByID(ctx context.Context, id string) (*Lead, error)

	// FindByTrackingID returns the lead or (nil, nil).
	FindByTrackingID(ctx context.Context, trackingID string) (*Lead, error)

	// IdentifyVisitor performs the atomic anonymous-to-identified
	// transition: find or create the lead for email, link the visitor row
	// and flip is_identified, all in one store-side transaction. Returns
	// the lead id and whether the lead was created by this call.
	IdentifyVisitor(ctx context.Context, visitorID, email string, firstName, lastName *string, method string) (string, bool, error)
}

// SessionRepository is the store boundary for session rows.
type SessionRepository interface {
	// Create inserts a session stamped with exactly one owner. It rejects
	// owner-XOR violations before touching the store.
	Create(ctx context.Context, clientSessionID string, visitorRef, leadRef *string, snapshot SessionSnapshot) (*Session, error)
}

// SessionSnapshot is the enrichment snapshot captured once at session creation.
type SessionSnapshot struct {
	FirstPage  string
	Country    string
	DeviceType string
}

// EventRepository is the store boundary for bulk event inserts.
type EventRepository interface {
	// InsertBatch validates the owner-XOR invariant on every event and
	// performs one all-or-nothing bulk insert.
	InsertBatch(ctx context.Context, batch []events.EnrichedEvent) error
}
