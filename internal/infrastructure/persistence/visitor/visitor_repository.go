// Package visitor provides the concrete SQL-based implementations of
// the attribution store repositories (Visitor, Lead, Session, Event).
package visitor

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/leadbeacon/leadbeacon-go/internal/domain/identity"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/persistence/database"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/security"
	"github.com/leadbeacon/leadbeacon-go/pkg/config"
)

// isUniqueViolation reports whether err is a duplicate-key failure from the
// backing store. Both sqlite and libsql surface it in the message text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLITE_CONSTRAINT")
}

const visitorColumns = `id, visitor_id, device_fingerprint, browser_id, first_seen_at, last_seen_at,
	is_identified, lead_id, email_sha256, email_sha1, email_md5, email_domain,
	total_pageviews, total_clicks, total_sessions, identified_at`

// SQLVisitorRepository is the SQL-based implementation of the VisitorRepository.
type SQLVisitorRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLVisitorRepository creates a new instance of the repository.
func NewSQLVisitorRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLVisitorRepository {
	return &SQLVisitorRepository{
		db:     db,
		logger: logger,
	}
}

// FindByVisitorID retrieves a Visitor by its client-generated visitor_id.
func (r *SQLVisitorRepository) FindByVisitorID(ctx context.Context, visitorID string) (*identity.Visitor, error) {
	query := `SELECT ` + visitorColumns + ` FROM web_visitors WHERE visitor_id = ?`

	start := time.Now()
	r.logger.Database().Debug("Loading visitor by visitor_id", "visitorId", visitorID)

	row := r.db.QueryRowContext(ctx, query, visitorID)
	visitor, err := r.scanVisitor(row)
	if err != nil {
		if err == sql.ErrNoRows {
			r.logger.Database().Debug("Visitor not found by visitor_id", "visitorId", visitorID)
			return nil, nil
		}
		r.logger.Database().Error("Failed to load visitor by visitor_id", "error", err.Error(), "visitorId", visitorID)
		return nil, err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Visitor loaded by visitor_id", "visitorId", visitorID, "id", visitor.ID, "duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "visitor_repository")
	}
	return visitor, nil
}

// FindOrCreate looks a visitor up by visitor_id, touching last_seen_at on a
// hit and inserting a fresh anonymous row on a miss. A UNIQUE violation on
// insert means a concurrent request created the row first; the row is
// re-fetched rather than treated as an error.
func (r *SQLVisitorRepository) FindOrCreate(ctx context.Context, visitorID string, deviceFingerprint, browserID *string) (*identity.Visitor, error) {
	existing, err := r.FindByVisitorID(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := r.touchLastSeen(ctx, existing.ID); err != nil {
			r.logger.Database().Error("Failed to touch visitor last_seen_at", "error", err.Error(), "id", existing.ID)
		}
		existing.LastSeenAt = time.Now().UTC()
		return existing, nil
	}

	const insertQuery = `
		INSERT INTO web_visitors (id, visitor_id, device_fingerprint, browser_id,
		                          first_seen_at, last_seen_at, is_identified)
		VALUES (?, ?, ?, ?, ?, ?, 0)`

	start := time.Now()
	now := time.Now().UTC()
	rowID := security.GenerateULID()
	r.logger.Database().Debug("Executing visitor insert", "id", rowID, "visitorId", visitorID)

	_, err = r.db.ExecContext(ctx, insertQuery, rowID, visitorID, deviceFingerprint, browserID, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race: another request inserted this visitor_id.
			r.logger.Database().Debug("Visitor insert hit unique constraint, re-fetching", "visitorId", visitorID)
			return r.FindByVisitorID(ctx, visitorID)
		}
		r.logger.Database().Error("Visitor insert failed", "error", err.Error(), "visitorId", visitorID)
		return nil, err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Visitor insert completed", "id", rowID, "visitorId", visitorID, "duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(insertQuery, duration, "visitor_repository")
	}

	return &identity.Visitor{
		ID:                rowID,
		VisitorID:         visitorID,
		DeviceFingerprint: deviceFingerprint,
		BrowserID:         browserID,
		FirstSeenAt:       now,
		LastSeenAt:        now,
		IsIdentified:      false,
	}, nil
}

// CheckIdentification reports whether a visitor_id is already linked to a Lead.
func (r *SQLVisitorRepository) CheckIdentification(ctx context.Context, visitorID string) (identity.IdentificationStatus, error) {
	const query = `SELECT is_identified, lead_id FROM web_visitors WHERE visitor_id = ?`

	start := time.Now()
	r.logger.Database().Debug("Checking visitor identification", "visitorId", visitorID)

	var status identity.IdentificationStatus
	err := r.db.QueryRowContext(ctx, query, visitorID).Scan(&status.IsIdentified, &status.LeadID)
	if err != nil {
		if err == sql.ErrNoRows {
			return identity.IdentificationStatus{}, nil
		}
		r.logger.Database().Error("Failed to check visitor identification", "error", err.Error(), "visitorId", visitorID)
		return identity.IdentificationStatus{}, err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Visitor identification checked", "visitorId", visitorID, "isIdentified", status.IsIdentified, "duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "visitor_repository")
	}
	return status, nil
}

// UpdateEmailHashes stores captured email hashes on an anonymous visitor row
// for later reconciliation. Hashes never identify on their own.
func (r *SQLVisitorRepository) UpdateEmailHashes(ctx context.Context, visitorRowID string, hashes identity.EmailHashes, emailDomain string) error {
	const query = `
		UPDATE web_visitors
		SET email_sha256 = ?, email_sha1 = ?, email_md5 = ?, email_domain = ?
		WHERE id = ?`

	start := time.Now()
	r.logger.Database().Debug("Updating visitor email hashes", "id", visitorRowID)

	_, err := r.db.ExecContext(ctx, query,
		nullIfEmpty(hashes.SHA256),
		nullIfEmpty(hashes.SHA1),
		nullIfEmpty(hashes.MD5),
		nullIfEmpty(emailDomain),
		visitorRowID,
	)
	if err != nil {
		r.logger.Database().Error("Visitor email hash update failed", "error", err.Error(), "id", visitorRowID)
		return err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Visitor email hashes updated", "id", visitorRowID, "duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "visitor_repository")
	}
	return nil
}

// FindByEmailHash resolves a visitor_id from a previously captured sha256 hash.
func (r *SQLVisitorRepository) FindByEmailHash(ctx context.Context, sha256 string) (string, error) {
	const query = `SELECT visitor_id FROM web_visitors WHERE email_sha256 = ? LIMIT 1`

	start := time.Now()
	var visitorID string
	err := r.db.QueryRowContext(ctx, query, sha256).Scan(&visitorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		r.logger.Database().Error("Failed to find visitor by email hash", "error", err.Error())
		return "", err
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "visitor_repository")
	}
	return visitorID, nil
}

// UpdateAggregates recomputes pageview/click/session counts for a visitor
// from its event and session history. Best-effort; runs off the request path.
func (r *SQLVisitorRepository) UpdateAggregates(ctx context.Context, visitorRowID string) error {
	const query = `
		UPDATE web_visitors
		SET total_pageviews = (SELECT COUNT(*) FROM events WHERE web_visitor_id = ? AND type = 'page_view'),
		    total_clicks    = (SELECT COUNT(*) FROM events WHERE web_visitor_id = ? AND type = 'click'),
		    total_sessions  = (SELECT COUNT(*) FROM sessions WHERE web_visitor_id = ?),
		    last_seen_at    = ?
		WHERE id = ?`

	start := time.Now()
	r.logger.Database().Debug("Updating visitor aggregates", "id", visitorRowID)

	_, err := r.db.ExecContext(ctx, query, visitorRowID, visitorRowID, visitorRowID, time.Now().UTC(), visitorRowID)
	if err != nil {
		r.logger.Database().Error("Visitor aggregate update failed", "error", err.Error(), "id", visitorRowID)
		return err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Visitor aggregates updated", "id", visitorRowID, "duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "visitor_repository")
	}
	return nil
}

func (r *SQLVisitorRepository) touchLastSeen(ctx context.Context, rowID string) error {
	const query = `UPDATE web_visitors SET last_seen_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, time.Now().UTC(), rowID)
	return err
}

func (r *SQLVisitorRepository) scanVisitor(row *sql.Row) (*identity.Visitor, error) {
	var v identity.Visitor
	err := row.Scan(
		&v.ID,
		&v.VisitorID,
		&v.DeviceFingerprint,
		&v.BrowserID,
		&v.FirstSeenAt,
		&v.LastSeenAt,
		&v.IsIdentified,
		&v.LeadID,
		&v.EmailSHA256,
		&v.EmailSHA1,
		&v.EmailMD5,
		&v.EmailDomain,
		&v.TotalPageviews,
		&v.TotalClicks,
		&v.TotalSessions,
		&v.IdentifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
