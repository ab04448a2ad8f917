package visitor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/leadbeacon/leadbeacon-go/internal/domain/identity"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/persistence/database"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/security"
	"github.com/leadbeacon/leadbeacon-go/pkg/config"
)

const leadColumns = `id, tracking_id, work_email, personal_email, first_name, last_name,
	phone, linkedin_url, company_name, company_description, company_headcount,
	company_revenue, company_industry, company_website, company_linkedin,
	job_title, job_seniority, job_department, identified_at, identification_method`

// SQLLeadRepository is the SQL-based implementation of the LeadRepository.
type SQLLeadRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLLeadRepository creates a new instance of the repository.
func NewSQLLeadRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLLeadRepository {
	return &SQLLeadRepository{
		db:     db,
		logger: logger,
	}
}

// FindByID retrieves a Lead by its unique identifier.
func (r *SQLLeadRepository) FindByID(ctx context.Context, id string) (*identity.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = ?`

	start := time.Now()
	r.logger.Database().Debug("Loading lead by ID", "id", id)

	row := r.db.QueryRowContext(ctx, query, id)
	lead, err := r.scanLead(row)
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Database().Debug("Lead not found by ID", "id", id)
			return nil, nil
		}
		r.logger.Database().Error("Failed to load lead by ID", "error", err.Error(), "id", id)
		return nil, err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Lead loaded by ID", "id", id, "duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "lead_repository")
	}
	return lead, nil
}

// FindByTrackingID retrieves a Lead by its campaign tracking token.
func (r *SQLLeadRepository) FindByTrackingID(ctx context.Context, trackingID string) (*identity.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE tracking_id = ?`

	start := time.Now()
	r.logger.Database().Debug("Loading lead by tracking_id", "trackingId", trackingID)

	row := r.db.QueryRowContext(ctx, query, trackingID)
	lead, err := r.scanLead(row)
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Database().Debug("Lead not found by tracking_id", "trackingId", trackingID)
			return nil, nil
		}
		r.logger.Database().Error("Failed to load lead by tracking_id", "error", err.Error(), "trackingId", trackingID)
		return nil, err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Lead loaded by tracking_id", "trackingId", trackingID, "leadId", lead.ID, "duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "lead_repository")
	}
	return lead, nil
}

// FindByEmail retrieves a Lead by work or personal email, first match wins.
func (r *SQLLeadRepository) FindByEmail(ctx context.Context, email string) (*identity.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE work_email = ? OR personal_email = ? LIMIT 1`

	start := time.Now()
	r.logger.Database().Debug("Loading lead by email", "email", email)

	row := r.db.QueryRowContext(ctx, query, email, email)
	lead, err := r.scanLead(row)
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Database().Debug("Lead not found by email", "email", email)
			return nil, nil
		}
		r.logger.Database().Error("Failed to load lead by email", "error", err.Error(), "email", email)
		return nil, err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Lead loaded by email", "email", email, "leadId", lead.ID, "duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "lead_repository")
	}
	return lead, nil
}

// FindOrCreate resolves a Lead by tracking id first, then by email, inserting
// a new lead row when neither matches. Duplicate-key failures on insert mean
// a concurrent request won the race; the winner's row is re-fetched.
func (r *SQLLeadRepository) FindOrCreate(ctx context.Context, trackingID, email *string) (*identity.Lead, error) {
	if trackingID != nil && *trackingID != "" {
		lead, err := r.FindByTrackingID(ctx, *trackingID)
		if err != nil {
			return nil, err
		}
		if lead != nil {
			return lead, nil
		}
	}

	if email != nil && *email != "" {
		lead, err := r.FindByEmail(ctx, *email)
		if err != nil {
			return nil, err
		}
		if lead != nil {
			return lead, nil
		}
	}

	method := "tracking_id"
	if email != nil && *email != "" {
		method = "email_capture"
	}

	const insertQuery = `
		INSERT INTO leads (id, tracking_id, work_email, identified_at, identification_method)
		VALUES (?, ?, ?, ?, ?)`

	start := time.Now()
	now := time.Now().UTC()
	leadID := security.GenerateULID()
	r.logger.Database().Debug("Executing lead insert", "id", leadID, "trackingId", trackingID)

	_, err := r.db.ExecContext(ctx, insertQuery, leadID, emptyToNil(trackingID), emptyToNil(email), now, method)
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent insert won the natural key; re-fetch that row.
			if trackingID != nil && *trackingID != "" {
				r.logger.Database().Debug("Lead insert hit unique constraint, re-fetching", "trackingId", *trackingID)
				return r.FindByTrackingID(ctx, *trackingID)
			}
			if email != nil && *email != "" {
				r.logger.Database().Debug("Lead insert hit unique constraint, re-fetching by email")
				return r.FindByEmail(ctx, *email)
			}
		}
		r.logger.Database().Error("Lead insert failed", "error", err.Error(), "id", leadID)
		return nil, err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Lead insert completed", "id", leadID, "method", method, "duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(insertQuery, duration, "lead_repository")
	}

	return &identity.Lead{
		ID:                   leadID,
		TrackingID:           emptyToNil(trackingID),
		WorkEmail:            emptyToNil(email),
		IdentifiedAt:         now,
		IdentificationMethod: method,
	}, nil
}

// IdentifyVisitor performs the anonymous-to-identified transition in one
// transaction: find or create the lead for the email, link the visitor row
// and flip is_identified. A partial failure rolls the whole transition back.
func (r *SQLLeadRepository) IdentifyVisitor(ctx context.Context, visitorID, email string, firstName, lastName *string, method string) (string, bool, error) {
	start := time.Now()
	r.logger.Database().Debug("Identifying visitor", "visitorId", visitorID, "method", method)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Database().Error("Failed to begin identify transaction", "error", err.Error(), "visitorId", visitorID)
		return "", false, err
	}
	defer tx.Rollback()

	var leadID string
	created := false
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM leads WHERE work_email = ? OR personal_email = ? LIMIT 1`,
		email, email,
	).Scan(&leadID)
	if err == sql.ErrNoRows {
		leadID = security.GenerateULID()
		created = true
		_, err = tx.ExecContext(ctx,
			`INSERT INTO leads (id, work_email, first_name, last_name, identified_at, identification_method)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			leadID, email, firstName, lastName, time.Now().UTC(), method,
		)
		if err != nil && isUniqueViolation(err) {
			// A concurrent identify committed this email first; link to
			// that lead instead.
			created = false
			err = tx.QueryRowContext(ctx,
				`SELECT id FROM leads WHERE work_email = ? OR personal_email = ? LIMIT 1`,
				email, email,
			).Scan(&leadID)
		}
	}
	if err != nil {
		r.logger.Database().Error("Identify transition lead step failed", "error", err.Error(), "visitorId", visitorID)
		return "", false, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE web_visitors
		 SET is_identified = 1, lead_id = ?, identified_at = ?, last_seen_at = ?
		 WHERE visitor_id = ?`,
		leadID, time.Now().UTC(), time.Now().UTC(), visitorID,
	)
	if err != nil {
		r.logger.Database().Error("Identify transition link step failed", "error", err.Error(), "visitorId", visitorID)
		return "", false, err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return "", false, fmt.Errorf("identify transition: no visitor row for visitor_id %q", visitorID)
	}

	if err := tx.Commit(); err != nil {
		r.logger.Database().Error("Identify transaction commit failed", "error", err.Error(), "visitorId", visitorID)
		return "", false, err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Visitor identified", "visitorId", visitorID, "leadId", leadID, "created", created, "duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery("IDENTIFY_VISITOR_TRANSACTION", duration, "lead_repository")
	}
	return leadID, created, nil
}

func (r *SQLLeadRepository) scanLead(row *sql.Row) (*identity.Lead, error) {
	var l identity.Lead
	err := row.Scan(
		&l.ID,
		&l.TrackingID,
		&l.WorkEmail,
		&l.PersonalEmail,
		&l.FirstName,
		&l.LastName,
		&l.Phone,
		&l.LinkedinURL,
		&l.CompanyName,
		&l.CompanyDescription,
		&l.CompanyHeadcount,
		&l.CompanyRevenue,
		&l.CompanyIndustry,
		&l.CompanyWebsite,
		&l.CompanyLinkedin,
		&l.JobTitle,
		&l.JobSeniority,
		&l.JobDepartment,
		&l.IdentifiedAt,
		&l.IdentificationMethod,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
