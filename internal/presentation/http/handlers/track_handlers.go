package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/leadbeacon/leadbeacon-go/internal/application/services"
	"github.com/leadbeacon/leadbeacon-go/internal/domain/events"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
)

// TrackHandlers serves the collector-facing ingestion surface.
type TrackHandlers struct {
	ingestService *services.IngestService
	logger        *logging.ChanneledLogger
}

// NewTrackHandlers creates track handlers with injected dependencies.
func NewTrackHandlers(ingestService *services.IngestService, logger *logging.ChanneledLogger) *TrackHandlers {
	return &TrackHandlers{
		ingestService: ingestService,
		logger:        logger,
	}
}

// PostTrack handles POST /track. Storage failures still answer 200 with
// eventsStored false; the collector's at-least-once retries must not be
// amplified by 5xx responses.
func (h *TrackHandlers) PostTrack(c *gin.Context) {
	start := time.Now()

	var batch events.EventBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		h.logger.Ingest().Error("Invalid track payload", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid payload: events must be an array",
		})
		return
	}
	if batch.Events == nil {
		h.logger.Ingest().Error("Invalid track payload", "error", "events missing or not an array")
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid payload: events must be an array",
		})
		return
	}

	reqCtx := buildRequestContext(c)
	result := h.ingestService.ProcessBatch(c.Request.Context(), batch, reqCtx)

	response := gin.H{
		"success":        true,
		"eventsReceived": result.EventsReceived,
		"eventsStored":   result.EventsStored,
	}
	if result.Error != "" {
		response["error"] = result.Error
	}

	h.logger.Ingest().Debug("Track request completed",
		"events", result.EventsReceived, "stored", result.EventsStored, "duration", time.Since(start))
	c.JSON(http.StatusOK, response)
}

// GetHealth handles GET /health.
func (h *TrackHandlers) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}
