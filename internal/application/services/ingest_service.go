package services

import (
	"context"
	"fmt"
	"time"

	"github.com/leadbeacon/leadbeacon-go/internal/domain/events"
	"github.com/leadbeacon/leadbeacon-go/internal/domain/identity"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/caching/manager"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/email"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/messaging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/performance"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/security"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/tasks"
	"github.com/leadbeacon/leadbeacon-go/pkg/config"
)

// IngestResult is the outcome reported to the collector. Storage failures do
// not fail the request: the batch is acknowledged with EventsStored false so
// the client's at-least-once retries do not compound into duplicate storms.
type IngestResult struct {
	EventsReceived int
	EventsStored   bool
	Error          string
}

// IngestService orchestrates a batch through enrichment, identity resolution
// and persistence, then queues the best-effort follow-up work.
type IngestService struct {
	enrichment *EnrichmentService
	identity   *IdentityService
	sessions   identity.SessionRepository
	events     identity.EventRepository
	visitors   identity.VisitorRepository
	leads      identity.LeadRepository
	cache      *manager.Manager
	runner     *tasks.Runner
	feed       *messaging.FeedHub
	notifier   email.Service
	tracker    *performance.Tracker
	logger     *logging.ChanneledLogger
}

// NewIngestService creates the ingestion orchestrator. notifier may be nil
// when outbound email is not configured.
func NewIngestService(
	enrichment *EnrichmentService,
	identitySvc *IdentityService,
	sessions identity.SessionRepository,
	eventRepo identity.EventRepository,
	visitors identity.VisitorRepository,
	leads identity.LeadRepository,
	cache *manager.Manager,
	runner *tasks.Runner,
	feed *messaging.FeedHub,
	notifier email.Service,
	tracker *performance.Tracker,
	logger *logging.ChanneledLogger,
) *IngestService {
	return &IngestService{
		enrichment: enrichment,
		identity:   identitySvc,
		sessions:   sessions,
		events:     eventRepo,
		visitors:   visitors,
		leads:      leads,
		cache:      cache,
		runner:     runner,
		feed:       feed,
		notifier:   notifier,
		tracker:    tracker,
		logger:     logger,
	}
}

// ProcessBatch ingests one event batch. Enrichment runs per event; identity
// resolution runs once per batch from the first event's signals, so every
// event in the batch shares one owner.
func (s *IngestService) ProcessBatch(ctx context.Context, batch events.EventBatch, reqCtx events.RequestContext) IngestResult {
	start := time.Now()
	marker := s.tracker.StartOperation("ingest_batch")
	defer marker.Complete()

	result := IngestResult{EventsReceived: len(batch.Events)}
	if len(batch.Events) == 0 {
		result.EventsStored = true
		marker.SetSuccess(true)
		return result
	}

	s.logger.Ingest().Debug("Processing event batch",
		"events", len(batch.Events), "sentAt", batch.Meta.SentAt)

	enriched := make([]events.EnrichedEvent, len(batch.Events))
	for i, event := range batch.Events {
		enriched[i] = s.enrichment.Enrich(event, reqCtx)
	}
	marker.AddMetadata("events", len(enriched))

	if err := s.store(ctx, enriched); err != nil {
		s.logger.Ingest().Error("Failed to store event batch",
			"events", len(enriched), "error", err.Error())
		result.Error = err.Error()
		marker.SetError(err)
		return result
	}

	result.EventsStored = true
	marker.SetSuccess(true)
	s.logger.Ingest().Info("Event batch stored",
		"events", len(enriched), "duration", time.Since(start))
	return result
}

// ProcessRedirectClick queues an email_click event for a /go redirect. The
// redirect itself never waits on storage.
func (s *IngestService) ProcessRedirectClick(token, destination string, reqCtx events.RequestContext) {
	visitorID := token
	clickEvent := events.TrackingEvent{
		Type:      "email_click",
		Timestamp: time.Now().UnixMilli(),
		SessionID: "email-click-" + security.GenerateULID(),
		VisitorID: &visitorID,
		URL:       destination,
		Referrer:  reqCtx.RefererHeader,
		Data: map[string]any{
			"destination": destination,
			"tracking_id": token,
		},
	}

	enriched := s.enrichment.Enrich(clickEvent, reqCtx)
	s.runner.Defer("redirect_click", func(ctx context.Context) error {
		return s.store(ctx, []events.EnrichedEvent{enriched})
	})
}

// store resolves the batch owner, creates the session and bulk-inserts the
// events, then queues the deferred follow-up work.
func (s *IngestService) store(ctx context.Context, enriched []events.EnrichedEvent) error {
	signals := s.identity.ExtractSignals(enriched)

	storeCtx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
	defer cancel()

	resolution, err := s.identity.Resolve(storeCtx, signals)
	if err != nil {
		return fmt.Errorf("identity resolution: %w", err)
	}

	session, err := s.createSession(storeCtx, enriched[0], resolution)
	if err != nil {
		return fmt.Errorf("session creation: %w", err)
	}

	visitorRef := resolution.OwnerVisitorRef()
	leadRef := resolution.OwnerLeadRef()
	for i := range enriched {
		enriched[i].SessionID = session.ID
		enriched[i].VisitorRef = derefOrEmpty(visitorRef)
		enriched[i].LeadRef = derefOrEmpty(leadRef)
	}

	if err := s.events.InsertBatch(storeCtx, enriched); err != nil {
		return fmt.Errorf("event insert: %w", err)
	}

	s.queueFollowUps(enriched, signals, resolution)
	return nil
}

func (s *IngestService) createSession(ctx context.Context, first events.EnrichedEvent, resolution *identity.Resolution) (*identity.Session, error) {
	snapshot := identity.SessionSnapshot{
		FirstPage:  first.URL,
		Country:    first.Country,
		DeviceType: first.DeviceType,
	}

	session, err := s.sessions.Create(ctx, first.OriginalSessionID,
		resolution.OwnerVisitorRef(), resolution.OwnerLeadRef(), snapshot)
	if err == nil {
		return session, nil
	}
	s.logger.Ingest().Error("Session creation failed, retrying with fallback id",
		"clientSessionId", first.OriginalSessionID, "error", err.Error())

	// One retry under a fresh client session id; a malformed or colliding
	// client id must not lose the batch.
	return s.sessions.Create(ctx, "fallback-"+security.GenerateULID(),
		resolution.OwnerVisitorRef(), resolution.OwnerLeadRef(), snapshot)
}

func (s *IngestService) queueFollowUps(enriched []events.EnrichedEvent, signals BatchSignals, resolution *identity.Resolution) {
	if resolution.Owner == identity.OwnerVisitor && resolution.VisitorRowID != "" {
		visitorRowID := resolution.VisitorRowID
		s.runner.Defer("update_aggregates", func(ctx context.Context) error {
			return s.visitors.UpdateAggregates(ctx, visitorRowID)
		})
	}

	if resolution.NewlyIdentified {
		s.cache.InvalidateIdentity(context.Background(), signals.VisitorID)
		s.queueLeadNotification(enriched, signals, resolution.LeadID)
	}

	for _, e := range enriched {
		s.feed.Publish(messaging.FeedEvent{
			EventType:  e.Type,
			Category:   string(e.Category),
			URL:        e.URL,
			SessionID:  e.SessionID,
			VisitorRef: e.VisitorRef,
			LeadRef:    e.LeadRef,
			Country:    e.Country,
			DeviceType: e.DeviceType,
			Timestamp:  time.Now().UTC(),
		})
	}
}

func (s *IngestService) queueLeadNotification(enriched []events.EnrichedEvent, signals BatchSignals, leadID string) {
	if s.notifier == nil || config.NotifyEmailTo == "" {
		return
	}

	firstPage := enriched[0].URL
	notification := email.LeadIdentifiedNotification{
		LeadEmail: signals.Email,
		Name:      joinName(signals.FirstName, signals.LastName),
		FirstPage: firstPage,
		Method:    "email_capture",
	}
	leadRef := leadID

	s.runner.Defer("lead_identified_email", func(ctx context.Context) error {
		if lead, err := s.leads.FindByID(ctx, leadRef); err == nil && lead != nil {
			if lead.CompanyName != nil {
				notification.Company = *lead.CompanyName
			}
			notification.Method = lead.IdentificationMethod
		}
		return s.notifier.SendLeadIdentifiedEmail(config.NotifyEmailTo, notification)
	})
}

func joinName(first, last string) string {
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	default:
		return last
	}
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
