// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"

	"github.com/leadbeacon/leadbeacon-go/internal/application/services"
	"github.com/leadbeacon/leadbeacon-go/internal/domain/identity"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/caching/manager"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/email"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/messaging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/performance"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/persistence/database"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/persistence/visitor"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/tasks"
	"github.com/leadbeacon/leadbeacon-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies.
type Container struct {
	// Infrastructure
	Logger       *logging.ChanneledLogger
	PerfTracker  *performance.Tracker
	DB           *database.DB
	CacheManager *manager.Manager
	TaskRunner   *tasks.Runner
	FeedHub      *messaging.FeedHub
	EmailService email.Service

	// Repositories (Attribution Store Adapter)
	VisitorRepo identity.VisitorRepository
	LeadRepo    identity.LeadRepository
	SessionRepo identity.SessionRepository
	EventRepo   identity.EventRepository

	// Application services
	EnrichmentService      *services.EnrichmentService
	IdentityService        *services.IdentityService
	IngestService          *services.IngestService
	PersonalizationService *services.PersonalizationService
	LeadAnalyticsService   *services.LeadAnalyticsService
	AuthService            *services.AuthService
}

// NewContainer creates and wires all singleton services.
func NewContainer(logger *logging.ChanneledLogger, db *database.DB) (*Container, error) {
	cacheManager, err := manager.NewManager(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache manager: %w", err)
	}

	perfTracker := performance.NewTracker(nil)
	taskRunner := tasks.NewRunner(config.TaskQueueSize, logger)

	feedHub := messaging.NewFeedHub(logger)
	go feedHub.Run()

	var emailService email.Service
	if config.ResendAPIKey != "" {
		emailService, err = email.NewService()
		if err != nil {
			logger.Startup().Error("Email service unavailable, notifications disabled", "error", err.Error())
			emailService = nil
		}
	}

	visitorRepo := visitor.NewSQLVisitorRepository(db, logger)
	leadRepo := visitor.NewSQLLeadRepository(db, logger)
	sessionRepo := visitor.NewSQLSessionRepository(db, logger)
	eventRepo := visitor.NewSQLEventRepository(db, logger)

	enrichmentService := services.NewEnrichmentService()
	identityService := services.NewIdentityService(visitorRepo, leadRepo, logger)
	ingestService := services.NewIngestService(
		enrichmentService, identityService,
		sessionRepo, eventRepo, visitorRepo, leadRepo,
		cacheManager, taskRunner, feedHub, emailService,
		perfTracker, logger,
	)

	return &Container{
		Logger:       logger,
		PerfTracker:  perfTracker,
		DB:           db,
		CacheManager: cacheManager,
		TaskRunner:   taskRunner,
		FeedHub:      feedHub,
		EmailService: emailService,

		VisitorRepo: visitorRepo,
		LeadRepo:    leadRepo,
		SessionRepo: sessionRepo,
		EventRepo:   eventRepo,

		EnrichmentService:      enrichmentService,
		IdentityService:        identityService,
		IngestService:          ingestService,
		PersonalizationService: services.NewPersonalizationService(visitorRepo, leadRepo, cacheManager, perfTracker, logger),
		LeadAnalyticsService:   services.NewLeadAnalyticsService(db, logger),
		AuthService:            services.NewAuthService(logger),
	}, nil
}
