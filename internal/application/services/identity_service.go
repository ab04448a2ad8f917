package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/leadbeacon/leadbeacon-go/internal/domain/events"
	"github.com/leadbeacon/leadbeacon-go/internal/domain/identity"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/security"
)

// Well-known event data fields scanned for a plaintext email and its hashes.
const (
	dataKeyEmail     = "email"
	dataKeyEmailHash = "emailHash"
)

// BatchSignals are the identity signals extracted from one inbound batch.
// Visitor-scoped signals come from the first event only; the email scan walks
// events in arrival order. One batch resolves to exactly one owner, so
// conflicting signals on later events are ignored.
type BatchSignals struct {
	VisitorID         string
	TrackingID        string
	DeviceFingerprint string
	BrowserID         string
	Email             string
	EmailHashes       identity.EmailHashes
	FirstName         string
	LastName          string
}

// IdentityService decides the owner of each inbound batch: a known or newly
// created Lead, or an anonymous Visitor. Resolution is best-effort; every
// failure on a lead path degrades to anonymous attribution rather than
// failing the batch.
type IdentityService struct {
	visitors identity.VisitorRepository
	leads    identity.LeadRepository
	logger   *logging.ChanneledLogger
}

// NewIdentityService creates the identity resolver.
func NewIdentityService(visitors identity.VisitorRepository, leads identity.LeadRepository, logger *logging.ChanneledLogger) *IdentityService {
	return &IdentityService{
		visitors: visitors,
		leads:    leads,
		logger:   logger,
	}
}

// ExtractSignals pulls the batch's identity signals out of the enriched
// events. When the client reported no visitor id a fallback id is minted so
// the batch can still be attributed anonymously.
func (s *IdentityService) ExtractSignals(batch []events.EnrichedEvent) BatchSignals {
	var signals BatchSignals
	if len(batch) == 0 {
		return signals
	}

	first := batch[0]
	signals.VisitorID = first.OriginalVisitorID
	if signals.VisitorID == "" {
		signals.VisitorID = "visitor-" + security.GenerateULID()
	}
	signals.TrackingID = stringField(first.Data, "tracking_id")
	signals.DeviceFingerprint = stringField(first.Data, "deviceFingerprint")
	signals.BrowserID = stringField(first.Data, "browserId")
	signals.FirstName = stringField(first.Data, "firstName")
	signals.LastName = stringField(first.Data, "lastName")

	signals.Email, signals.EmailHashes = scanForEmail(batch)
	return signals
}

// Resolve decides the batch owner. Priority: campaign tracking id, then
// plaintext email, then anonymous visitor.
func (s *IdentityService) Resolve(ctx context.Context, signals BatchSignals) (*identity.Resolution, error) {
	start := time.Now()
	s.logger.Identity().Debug("Resolving batch owner",
		"visitorId", signals.VisitorID,
		"hasTrackingId", signals.TrackingID != "",
		"hasEmail", signals.Email != "")

	if signals.TrackingID != "" {
		resolution, err := s.resolveByTrackingID(ctx, signals)
		if err == nil {
			s.logger.Identity().Info("Batch owner resolved via tracking id",
				"trackingId", signals.TrackingID, "leadId", resolution.LeadID, "duration", time.Since(start))
			return resolution, nil
		}
		s.logger.Identity().Error("Tracking id resolution failed, degrading",
			"trackingId", signals.TrackingID, "error", err.Error())
	}

	if signals.Email != "" {
		resolution, err := s.resolveByEmail(ctx, signals)
		if err == nil {
			s.logger.Identity().Info("Batch owner resolved via email",
				"visitorId", signals.VisitorID, "leadId", resolution.LeadID,
				"newlyIdentified", resolution.NewlyIdentified, "duration", time.Since(start))
			return resolution, nil
		}
		s.logger.Identity().Error("Email identification failed, degrading to anonymous",
			"visitorId", signals.VisitorID, "error", err.Error())
	}

	resolution, err := s.resolveAnonymous(ctx, signals)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve anonymous visitor %s: %w", signals.VisitorID, err)
	}
	s.logger.Identity().Info("Batch attributed to anonymous visitor",
		"visitorId", signals.VisitorID, "visitorRowId", resolution.VisitorRowID, "duration", time.Since(start))
	return resolution, nil
}

func (s *IdentityService) resolveByTrackingID(ctx context.Context, signals BatchSignals) (*identity.Resolution, error) {
	var email *string
	if signals.Email != "" {
		email = &signals.Email
	}
	trackingID := signals.TrackingID

	lead, err := s.leads.FindOrCreate(ctx, &trackingID, email)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, fmt.Errorf("lead lookup by tracking id %s returned no row", trackingID)
	}

	return &identity.Resolution{
		Owner:      identity.OwnerLead,
		LeadID:     lead.ID,
		Identified: true,
	}, nil
}

func (s *IdentityService) resolveByEmail(ctx context.Context, signals BatchSignals) (*identity.Resolution, error) {
	status, err := s.visitors.CheckIdentification(ctx, signals.VisitorID)
	if err != nil {
		return nil, fmt.Errorf("identification status lookup: %w", err)
	}

	if status.IsIdentified && status.LeadID != nil {
		return &identity.Resolution{
			Owner:      identity.OwnerLead,
			LeadID:     *status.LeadID,
			Identified: true,
		}, nil
	}

	// Ensure the anonymous row exists so history before this batch stays
	// attached to it, then perform the identify transition.
	if _, err := s.visitors.FindOrCreate(ctx, signals.VisitorID, nilIfEmpty(signals.DeviceFingerprint), nilIfEmpty(signals.BrowserID)); err != nil {
		return nil, fmt.Errorf("ensure visitor row: %w", err)
	}

	leadID, created, err := s.leads.IdentifyVisitor(ctx,
		signals.VisitorID, signals.Email,
		nilIfEmpty(signals.FirstName), nilIfEmpty(signals.LastName),
		"email_capture")
	if err != nil {
		return nil, fmt.Errorf("identify transition: %w", err)
	}

	return &identity.Resolution{
		Owner:           identity.OwnerLead,
		LeadID:          leadID,
		Identified:      true,
		NewlyIdentified: created,
	}, nil
}

func (s *IdentityService) resolveAnonymous(ctx context.Context, signals BatchSignals) (*identity.Resolution, error) {
	visitor, err := s.visitors.FindOrCreate(ctx, signals.VisitorID, nilIfEmpty(signals.DeviceFingerprint), nilIfEmpty(signals.BrowserID))
	if err != nil {
		return nil, err
	}

	// Captured hashes are stored pending reconciliation. Hashes alone never
	// create a lead: without the plaintext confirming them at capture time
	// they are not proof of identity.
	if signals.Email != "" && !signals.EmailHashes.Empty() {
		domain := emailDomain(signals.Email)
		if err := s.visitors.UpdateEmailHashes(ctx, visitor.ID, signals.EmailHashes, domain); err != nil {
			s.logger.Identity().Error("Failed to store email hashes",
				"visitorRowId", visitor.ID, "error", err.Error())
		}
	}

	return &identity.Resolution{
		Owner:        identity.OwnerVisitor,
		VisitorRowID: visitor.ID,
	}, nil
}

// scanForEmail walks the batch in arrival order and returns the first
// plaintext email found, either on a well-known data field or as the first
// entry of a browser_emails_scanned payload.
func scanForEmail(batch []events.EnrichedEvent) (string, identity.EmailHashes) {
	for _, event := range batch {
		if email := stringField(event.Data, dataKeyEmail); strings.Contains(email, "@") {
			return email, identity.EmailHashes{
				SHA256: firstStringField(event.Data, dataKeyEmailHash, "sha256"),
				SHA1:   stringField(event.Data, "sha1"),
				MD5:    stringField(event.Data, "md5"),
			}
		}

		if event.Type != "browser_emails_scanned" {
			continue
		}
		entries, ok := event.Data["emails"].([]any)
		if !ok || len(entries) == 0 {
			continue
		}
		entry, ok := entries[0].(map[string]any)
		if !ok {
			continue
		}
		if email := stringField(entry, dataKeyEmail); strings.Contains(email, "@") {
			return email, identity.EmailHashes{
				SHA256: firstStringField(entry, "sha256", "hash"),
				SHA1:   stringField(entry, "sha1"),
				MD5:    stringField(entry, "md5"),
			}
		}
	}
	return "", identity.EmailHashes{}
}

func firstStringField(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if v := stringField(data, key); v != "" {
			return v
		}
	}
	return ""
}

func emailDomain(email string) string {
	if idx := strings.LastIndex(email, "@"); idx >= 0 {
		return email[idx+1:]
	}
	return ""
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
