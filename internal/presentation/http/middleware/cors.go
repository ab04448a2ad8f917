package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware provides CORS configuration driven by the origin allow-list.
// Preflights from disallowed origins get no CORS headers.
func CORSMiddleware(validator *OriginValidator) gin.HandlerFunc {
	config := cors.Config{
		AllowOriginFunc: validator.Allowed,
		AllowMethods: []string{
			"GET", "POST", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
		},
		ExposeHeaders: []string{
			"Content-Type", "Cache-Control",
		},
		MaxAge: 24 * time.Hour,
	}

	return cors.New(config)
}
