// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/leadbeacon/leadbeacon-go/internal/application/container"
	"github.com/leadbeacon/leadbeacon-go/internal/presentation/http/handlers"
	"github.com/leadbeacon/leadbeacon-go/internal/presentation/http/middleware"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	originValidator := middleware.NewOriginValidator(container.Logger)
	r.Use(middleware.CORSMiddleware(originValidator))

	trackHandlers := handlers.NewTrackHandlers(container.IngestService, container.Logger)
	identityHandlers := handlers.NewIdentityHandlers(container.PersonalizationService, container.IngestService, container.Logger)
	pixelHandlers := handlers.NewPixelHandlers()
	adminHandlers := handlers.NewAdminHandlers(container.AuthService, container.LeadAnalyticsService, container.FeedHub, container.PerfTracker, container.Logger)

	// Collector-facing surface; origin allow-list enforced on ingestion.
	r.POST("/track", originValidator.ValidateOrigin(), trackHandlers.PostTrack)
	r.GET("/identify", identityHandlers.GetIdentify)
	r.GET("/personalize", identityHandlers.GetPersonalize)
	r.GET("/go", identityHandlers.GetRedirect)
	r.GET("/health", trackHandlers.GetHealth)
	r.GET("/pixel.js", pixelHandlers.GetPixel)

	// Authenticated admin read surface.
	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", adminHandlers.PostLogin)

		authed := api.Group("")
		authed.Use(middleware.AdminAuthMiddleware(container.AuthService))
		{
			authed.GET("/analytics/leads", adminHandlers.GetLeadMetrics)
			authed.GET("/analytics/performance", adminHandlers.GetPerformanceMetrics)
			authed.GET("/events/stream", adminHandlers.GetEventStream)
		}
	}

	return r
}
