package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/leadbeacon/leadbeacon-go/internal/application/services"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/messaging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/performance"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = 54 * time.Second
)

// AdminHandlers serves the authenticated read surface: login, lead metrics
// and the live event feed.
type AdminHandlers struct {
	authService   *services.AuthService
	leadAnalytics *services.LeadAnalyticsService
	feedHub       *messaging.FeedHub
	tracker       *performance.Tracker
	upgrader      websocket.Upgrader
	logger        *logging.ChanneledLogger
}

// NewAdminHandlers creates admin handlers with injected dependencies.
func NewAdminHandlers(authService *services.AuthService, leadAnalytics *services.LeadAnalyticsService, feedHub *messaging.FeedHub, tracker *performance.Tracker, logger *logging.ChanneledLogger) *AdminHandlers {
	return &AdminHandlers{
		authService:   authService,
		leadAnalytics: leadAnalytics,
		feedHub:       feedHub,
		tracker:       tracker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The route is already JWT-guarded; the dashboard may be
			// served from any allow-listed origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// PostLogin handles POST /api/v1/auth/login.
func (h *AdminHandlers) PostLogin(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password required"})
		return
	}

	result := h.authService.AuthenticateAdmin(req.Password)
	if !result.Success {
		c.JSON(http.StatusUnauthorized, gin.H{"error": result.Error})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetLeadMetrics handles GET /api/v1/analytics/leads.
func (h *AdminHandlers) GetLeadMetrics(c *gin.Context) {
	metrics, err := h.leadAnalytics.ComputeLeadMetrics(c.Request.Context())
	if err != nil {
		h.logger.Database().Error("Lead metrics computation failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute lead metrics"})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// GetPerformanceMetrics handles GET /api/v1/analytics/performance: operation
// stats, recent completed markers and in-flight operations.
func (h *AdminHandlers) GetPerformanceMetrics(c *gin.Context) {
	h.tracker.Cleanup()

	recentMarkers := h.tracker.GetRecentMetrics(15 * time.Minute)
	recent := make([]gin.H, 0, len(recentMarkers))
	for _, m := range recentMarkers {
		recent = append(recent, gin.H{
			"operation":     m.Operation,
			"duration":      m.Duration.String(),
			"success":       m.Success,
			"cacheHitRatio": m.GetCacheHitRatio(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":       h.tracker.GetOverallStats(),
		"recent":      recent,
		"active":      h.tracker.GetActiveOperations(),
		"feedClients": h.feedHub.ClientCount(),
	})
}

// GetEventStream handles GET /api/v1/events/stream: upgrades to a websocket
// and pushes ingested-event summaries until the client goes away.
func (h *AdminHandlers) GetEventStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Feed().Error("Websocket upgrade failed", "error", err.Error())
		return
	}

	client := &messaging.FeedClient{
		Conn: conn,
		Send: make(chan []byte, 64),
	}
	h.feedHub.Register(client)

	go h.writePump(client)
	go h.readPump(client)
}

// writePump drains the client's send channel onto the socket and keeps the
// connection alive with pings.
func (h *AdminHandlers) writePump(client *messaging.FeedClient) {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; its job is to notice the disconnect and
// unregister the client.
func (h *AdminHandlers) readPump(client *messaging.FeedClient) {
	defer func() {
		h.feedHub.Unregister(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(512)
	client.Conn.SetReadDeadline(time.Now().Add(feedPongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(feedPongWait))
		return nil
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
