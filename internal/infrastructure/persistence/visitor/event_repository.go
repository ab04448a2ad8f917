package visitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leadbeacon/leadbeacon-go/internal/domain/events"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/persistence/database"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/security"
	"github.com/leadbeacon/leadbeacon-go/pkg/config"
)

// SQLEventRepository is the SQL-based implementation of the EventRepository.
type SQLEventRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLEventRepository creates a new instance of the repository.
func NewSQLEventRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLEventRepository {
	return &SQLEventRepository{
		db:     db,
		logger: logger,
	}
}

const eventInsertQuery = `
	INSERT INTO events (id, category, type, session_id, web_visitor_id, lead_id,
	                    url, referrer, referer_header, data,
	                    ip_address, company_identifier, country, city, region, continent,
	                    postal_code, metro_code, latitude, longitude, timezone, colo,
	                    asn, organization_identifier, user_agent, default_language,
	                    url_parms, utm_source, utm_medium, utm_campaign, utm_term, utm_content,
	                    gclid, fbclid, device_type, is_eu_country,
	                    tls_version, tls_cipher, http_protocol,
	                    campaign_id, message_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
	        ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertBatch validates the owner-XOR invariant on every event, then performs
// the whole insert in one transaction so the batch is all-or-nothing.
func (r *SQLEventRepository) InsertBatch(ctx context.Context, batch []events.EnrichedEvent) error {
	if len(batch) == 0 {
		return nil
	}

	for i := range batch {
		hasVisitor := batch[i].VisitorRef != ""
		hasLead := batch[i].LeadRef != ""
		if hasVisitor == hasLead {
			return fmt.Errorf("event %d (%s): %w", i, batch[i].Type, ErrOwnerExclusivity)
		}
	}

	start := time.Now()
	r.logger.Database().Debug("Executing bulk event insert", "count", len(batch))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Database().Error("Failed to begin event insert transaction", "error", err.Error())
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, eventInsertQuery)
	if err != nil {
		r.logger.Database().Error("Failed to prepare event insert", "error", err.Error())
		return err
	}
	defer stmt.Close()

	// Rows are immutable after insert; updated_at is stamped once here.
	updatedAt := time.Now().UTC().Format(time.RFC3339Nano)

	for i := range batch {
		ev := &batch[i]

		createdAt := ev.CreatedAt
		if createdAt == "" {
			createdAt = updatedAt
		}

		var dataJSON *string
		if len(ev.Data) > 0 {
			raw, err := json.Marshal(ev.Data)
			if err != nil {
				return fmt.Errorf("event %d (%s): marshal data: %w", i, ev.Type, err)
			}
			s := string(raw)
			dataJSON = &s
		}

		_, err = stmt.ExecContext(ctx,
			security.GenerateULID(),
			string(ev.Category),
			ev.Type,
			ev.SessionID,
			nullIfEmpty(ev.VisitorRef),
			nullIfEmpty(ev.LeadRef),
			nullIfEmpty(ev.URL),
			nullIfEmpty(ev.Referrer),
			nullIfEmpty(ev.RefererHeader),
			dataJSON,
			nullIfEmpty(ev.IPAddress),
			nullIfEmpty(ev.CompanyIdentifier),
			nullIfEmpty(ev.Country),
			nullIfEmpty(ev.City),
			nullIfEmpty(ev.Region),
			nullIfEmpty(ev.Continent),
			nullIfEmpty(ev.PostalCode),
			nullIfEmpty(ev.MetroCode),
			nullIfEmpty(ev.Latitude),
			nullIfEmpty(ev.Longitude),
			nullIfEmpty(ev.Timezone),
			nullIfEmpty(ev.Colo),
			ev.ASN,
			nullIfEmpty(ev.Organization),
			nullIfEmpty(ev.UserAgent),
			nullIfEmpty(ev.DefaultLanguage),
			nullIfEmpty(ev.URLParams),
			nullIfEmpty(ev.UTMSource),
			nullIfEmpty(ev.UTMMedium),
			nullIfEmpty(ev.UTMCampaign),
			nullIfEmpty(ev.UTMTerm),
			nullIfEmpty(ev.UTMContent),
			nullIfEmpty(ev.GCLID),
			nullIfEmpty(ev.FBCLID),
			nullIfEmpty(ev.DeviceType),
			ev.IsEUCountry,
			nullIfEmpty(ev.TLSVersion),
			nullIfEmpty(ev.TLSCipher),
			nullIfEmpty(ev.HTTPProtocol),
			nullIfEmpty(ev.CampaignID),
			nullIfEmpty(ev.MessageID),
			createdAt,
			updatedAt,
		)
		if err != nil {
			r.logger.Database().Error("Event insert failed", "error", err.Error(), "index", i, "type", ev.Type)
			return fmt.Errorf("insert event %d (%s): %w", i, ev.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Database().Error("Event insert commit failed", "error", err.Error(), "count", len(batch))
		return err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Bulk event insert completed", "count", len(batch), "duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery("BULK_EVENT_INSERT", duration, "event_repository")
	}
	return nil
}
