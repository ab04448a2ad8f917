package visitor

import (
	"context"
	"errors"
	"time"

	"github.com/leadbeacon/leadbeacon-go/internal/domain/identity"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/persistence/database"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/security"
	"github.com/leadbeacon/leadbeacon-go/pkg/config"
)

// ErrOwnerExclusivity is returned when a session or event would be written
// with both or neither of its owner references set.
var ErrOwnerExclusivity = errors.New("exactly one of web_visitor_id or lead_id must be set")

// SQLSessionRepository is the SQL-based implementation of the SessionRepository.
type SQLSessionRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLSessionRepository creates a new instance of the repository.
func NewSQLSessionRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLSessionRepository {
	return &SQLSessionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a session row stamped with exactly one owner. The owner-XOR
// check runs before the store is touched; the schema CHECK backs it up.
func (r *SQLSessionRepository) Create(ctx context.Context, clientSessionID string, visitorRef, leadRef *string, snapshot identity.SessionSnapshot) (*identity.Session, error) {
	if (visitorRef == nil) == (leadRef == nil) {
		return nil, ErrOwnerExclusivity
	}

	const query = `
		INSERT INTO sessions (id, client_session_id, web_visitor_id, lead_id,
		                      start_time, first_page, country, device_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	now := time.Now().UTC()
	sessionID := security.GenerateULID()
	r.logger.Database().Debug("Executing session insert", "id", sessionID, "clientSessionId", clientSessionID)

	_, err := r.db.ExecContext(ctx, query,
		sessionID,
		clientSessionID,
		visitorRef,
		leadRef,
		now,
		nullIfEmpty(snapshot.FirstPage),
		nullIfEmpty(snapshot.Country),
		nullIfEmpty(snapshot.DeviceType),
	)
	if err != nil {
		r.logger.Database().Error("Session insert failed", "error", err.Error(), "clientSessionId", clientSessionID)
		return nil, err
	}

	duration := time.Since(start)
	r.logger.Database().Info("Session insert completed", "id", sessionID, "clientSessionId", clientSessionID, "duration", duration)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery(query, duration, "session_repository")
	}

	return &identity.Session{
		ID:              sessionID,
		ClientSessionID: clientSessionID,
		VisitorRowID:    visitorRef,
		LeadID:          leadRef,
		StartTime:       now,
		FirstPage:       nullIfEmpty(snapshot.FirstPage),
		Country:         nullIfEmpty(snapshot.Country),
		DeviceType:      nullIfEmpty(snapshot.DeviceType),
	}, nil
}
