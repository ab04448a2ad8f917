package services

import (
	"context"
	"fmt"
	"time"

	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/persistence/database"
)

// LeadMetrics is the admin read surface's summary of identification activity.
type LeadMetrics struct {
	TotalLeads         int            `json:"totalLeads"`
	TotalVisitors      int            `json:"totalVisitors"`
	IdentifiedVisitors int            `json:"identifiedVisitors"`
	ConversionRate     float64        `json:"conversionRate"`
	LeadSources        map[string]int `json:"leadSources"`
	RecentLeads        []RecentLead   `json:"recentLeads"`
}

// RecentLead is one row of the recent-identifications list.
type RecentLead struct {
	ID           string    `json:"id"`
	Email        string    `json:"email,omitempty"`
	TrackingID   string    `json:"trackingId,omitempty"`
	Method       string    `json:"method"`
	IdentifiedAt time.Time `json:"identifiedAt"`
}

// LeadAnalyticsService computes lead metrics for the authenticated read
// surface, straight from the store.
type LeadAnalyticsService struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewLeadAnalyticsService creates the analytics service.
func NewLeadAnalyticsService(db *database.DB, logger *logging.ChanneledLogger) *LeadAnalyticsService {
	return &LeadAnalyticsService{db: db, logger: logger}
}

// ComputeLeadMetrics aggregates lead and visitor counts, identification
// sources and the most recent identifications.
func (s *LeadAnalyticsService) ComputeLeadMetrics(ctx context.Context) (*LeadMetrics, error) {
	start := time.Now()

	metrics := &LeadMetrics{
		LeadSources: make(map[string]int),
		RecentLeads: []RecentLead{},
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`).Scan(&metrics.TotalLeads); err != nil {
		return nil, fmt.Errorf("failed to count leads: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM web_visitors`).Scan(&metrics.TotalVisitors); err != nil {
		return nil, fmt.Errorf("failed to count visitors: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM web_visitors WHERE is_identified = 1`).Scan(&metrics.IdentifiedVisitors); err != nil {
		return nil, fmt.Errorf("failed to count identified visitors: %w", err)
	}

	if metrics.TotalVisitors > 0 {
		metrics.ConversionRate = float64(metrics.IdentifiedVisitors) / float64(metrics.TotalVisitors) * 100
	}

	if err := s.loadLeadSources(ctx, metrics); err != nil {
		return nil, err
	}
	if err := s.loadRecentLeads(ctx, metrics); err != nil {
		return nil, err
	}

	s.logger.Database().Info("Lead metrics computed",
		"totalLeads", metrics.TotalLeads, "duration", time.Since(start))
	return metrics, nil
}

func (s *LeadAnalyticsService) loadLeadSources(ctx context.Context, metrics *LeadMetrics) error {
	const query = `SELECT identification_method, COUNT(*) FROM leads GROUP BY identification_method`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query lead sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var method string
		var count int
		if err := rows.Scan(&method, &count); err != nil {
			return fmt.Errorf("failed to scan lead source row: %w", err)
		}
		metrics.LeadSources[method] = count
	}
	return rows.Err()
}

func (s *LeadAnalyticsService) loadRecentLeads(ctx context.Context, metrics *LeadMetrics) error {
	const query = `
		SELECT id, COALESCE(work_email, personal_email, ''), COALESCE(tracking_id, ''),
		       identification_method, identified_at
		FROM leads
		ORDER BY identified_at DESC
		LIMIT 20`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query recent leads: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var lead RecentLead
		if err := rows.Scan(&lead.ID, &lead.Email, &lead.TrackingID, &lead.Method, &lead.IdentifiedAt); err != nil {
			return fmt.Errorf("failed to scan recent lead row: %w", err)
		}
		metrics.RecentLeads = append(metrics.RecentLeads, lead)
	}
	return rows.Err()
}
