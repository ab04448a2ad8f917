package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/pkg/config"
)

// OriginValidator checks request origins against the configured allow-list.
// Entries are exact origin strings or patterns with * wildcards.
type OriginValidator struct {
	exact    map[string]bool
	patterns []*regexp.Regexp
	devMode  bool
	logger   *logging.ChanneledLogger
}

// NewOriginValidator compiles the allow-list from configuration.
func NewOriginValidator(logger *logging.ChanneledLogger) *OriginValidator {
	return newOriginValidator(config.AllowedOrigins, config.Environment == "development", logger)
}

func newOriginValidator(allowed []string, devMode bool, logger *logging.ChanneledLogger) *OriginValidator {
	v := &OriginValidator{
		exact:   make(map[string]bool),
		devMode: devMode,
		logger:  logger,
	}

	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "*") {
			v.exact[entry] = true
			continue
		}
		pattern := "^" + strings.ReplaceAll(regexp.QuoteMeta(entry), `\*`, ".*") + "$"
		re, err := regexp.Compile(pattern)
		if err != nil {
			logger.System().Error("Invalid origin pattern, skipping", "pattern", entry, "error", err.Error())
			continue
		}
		v.patterns = append(v.patterns, re)
	}
	return v
}

// Allowed reports whether an origin passes the allow-list. Development mode
// allows everything; webflow preview hosts are always accepted so staged
// sites can test the collector.
func (v *OriginValidator) Allowed(origin string) bool {
	if v.devMode {
		return true
	}

	if strings.Contains(origin, ".canvas.webflow.com") || strings.Contains(origin, ".preview.webflow.com") {
		return true
	}

	if v.exact[origin] {
		return true
	}
	for _, re := range v.patterns {
		if re.MatchString(origin) {
			return true
		}
	}
	return false
}

// ValidateOrigin rejects tracking requests from disallowed origins with 403.
// CORS preflights pass through so the cors layer can answer them.
func (v *OriginValidator) ValidateOrigin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		origin := c.GetHeader("Origin")
		if v.Allowed(origin) {
			c.Next()
			return
		}

		v.logger.Ingest().Error("Origin not allowed", "origin", origin, "path", c.Request.URL.Path)
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "Origin not allowed",
			"origin":  origin,
		})
		c.Abort()
	}
}
