package services

import (
	"context"
	"fmt"
	"time"

	"github.com/leadbeacon/leadbeacon-go/internal/domain/identity"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/caching/manager"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/performance"
	"github.com/leadbeacon/leadbeacon-go/pkg/config"
)

// PersonalizationService serves the auxiliary read paths: identity token
// lookup and visitor personalization. Both are cache-first with store
// fallback and write-back.
type PersonalizationService struct {
	visitors identity.VisitorRepository
	leads    identity.LeadRepository
	cache    *manager.Manager
	tracker  *performance.Tracker
	logger   *logging.ChanneledLogger
}

// NewPersonalizationService creates the read-path service.
func NewPersonalizationService(visitors identity.VisitorRepository, leads identity.LeadRepository, cache *manager.Manager, tracker *performance.Tracker, logger *logging.ChanneledLogger) *PersonalizationService {
	return &PersonalizationService{
		visitors: visitors,
		leads:    leads,
		cache:    cache,
		tracker:  tracker,
		logger:   logger,
	}
}

// LookupIdentity resolves a tracking token to its lead profile. Returns
// (nil, nil) when the token is unknown everywhere.
func (s *PersonalizationService) LookupIdentity(ctx context.Context, token string) (*identity.Profile, error) {
	start := time.Now()
	marker := s.tracker.StartOperation("identity_lookup")
	defer marker.Complete()

	if profile, found := s.cache.GetIdentity(ctx, token); found {
		marker.AddCacheHit()
		s.logger.Identity().Debug("Identity served from cache", "token", token, "duration", time.Since(start))
		return profile, nil
	}
	marker.AddCacheMiss()

	storeCtx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
	defer cancel()

	lead, err := s.leads.FindByTrackingID(storeCtx, token)
	if err != nil {
		return nil, fmt.Errorf("identity lookup for token %s: %w", token, err)
	}
	if lead == nil {
		return nil, nil
	}

	profile := ProfileFromLead(lead)
	s.cache.SetIdentity(ctx, token, profile)
	s.logger.Identity().Info("Identity resolved from store", "token", token, "duration", time.Since(start))
	return profile, nil
}

// Personalize resolves a visitor or lead id to its personalization payload.
// Anonymous visitors get {personalized:false}: behavioral history is never
// exposed without an identified lead behind it.
func (s *PersonalizationService) Personalize(ctx context.Context, vid string) (*identity.Personalization, error) {
	marker := s.tracker.StartOperation("personalize")
	defer marker.Complete()

	if cached, found := s.cache.GetPersonalization(ctx, vid); found {
		marker.AddCacheHit()
		return cached, nil
	}
	if profile, found := s.cache.GetIdentity(ctx, vid); found {
		marker.AddCacheHit()
		return &identity.Personalization{Personalized: true, Profile: *profile}, nil
	}
	marker.AddCacheMiss()

	storeCtx, cancel := context.WithTimeout(ctx, config.StoreTimeout)
	defer cancel()

	// The vid may be a campaign tracking token for a lead.
	lead, err := s.leads.FindByTrackingID(storeCtx, vid)
	if err != nil {
		return nil, fmt.Errorf("personalization lead lookup for %s: %w", vid, err)
	}
	if lead != nil {
		p := &identity.Personalization{Personalized: true, Profile: *ProfileFromLead(lead)}
		s.cache.SetPersonalization(ctx, vid, p)
		return p, nil
	}

	visitor, err := s.visitors.FindByVisitorID(storeCtx, vid)
	if err != nil {
		return nil, fmt.Errorf("personalization visitor lookup for %s: %w", vid, err)
	}
	if visitor == nil {
		return &identity.Personalization{Personalized: false}, nil
	}

	if !visitor.IsIdentified || visitor.LeadID == nil {
		return &identity.Personalization{Personalized: false}, nil
	}

	linkedLead, err := s.leads.FindByID(storeCtx, *visitor.LeadID)
	if err != nil {
		return nil, fmt.Errorf("personalization linked lead lookup for %s: %w", vid, err)
	}
	if linkedLead == nil {
		s.logger.Identity().Error("Identified visitor points at a missing lead",
			"visitorId", vid, "leadId", *visitor.LeadID)
		return &identity.Personalization{Personalized: false}, nil
	}

	p := &identity.Personalization{
		Personalized:   true,
		Profile:        *ProfileFromLead(linkedLead),
		TotalVisits:    visitor.TotalSessions,
		TotalPageviews: visitor.TotalPageviews,
	}
	s.cache.SetPersonalization(ctx, vid, p)
	return p, nil
}

// ProfileFromLead flattens a lead row into the profile payload served on the
// read paths.
func ProfileFromLead(lead *identity.Lead) *identity.Profile {
	profile := &identity.Profile{
		TrackingID:         deref(lead.TrackingID),
		Email:              lead.Email(),
		FirstName:          deref(lead.FirstName),
		LastName:           deref(lead.LastName),
		Phone:              deref(lead.Phone),
		Linkedin:           deref(lead.LinkedinURL),
		Company:            deref(lead.CompanyName),
		CompanyName:        deref(lead.CompanyName),
		CompanyDescription: deref(lead.CompanyDescription),
		CompanySize:        deref(lead.CompanyHeadcount),
		Revenue:            deref(lead.CompanyRevenue),
		Industry:           deref(lead.CompanyIndustry),
		Department:         deref(lead.JobDepartment),
		CompanyWebsite:     deref(lead.CompanyWebsite),
		CompanyLinkedin:    deref(lead.CompanyLinkedin),
		JobTitle:           deref(lead.JobTitle),
		Seniority:          deref(lead.JobSeniority),
	}

	if profile.FirstName != "" && profile.LastName != "" {
		profile.PersonName = profile.FirstName + " " + profile.LastName
	}

	profile.Domain = profile.CompanyWebsite
	if profile.Domain == "" && profile.Email != "" {
		profile.Domain = emailDomain(profile.Email)
	}

	return profile
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
