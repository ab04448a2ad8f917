package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/leadbeacon/leadbeacon-go/internal/application/services"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
)

// IdentityHandlers serves the auxiliary read paths: identity lookup,
// personalization and the attributed click redirect.
type IdentityHandlers struct {
	personalization *services.PersonalizationService
	ingestService   *services.IngestService
	logger          *logging.ChanneledLogger
}

// NewIdentityHandlers creates identity handlers with injected dependencies.
func NewIdentityHandlers(personalization *services.PersonalizationService, ingestService *services.IngestService, logger *logging.ChanneledLogger) *IdentityHandlers {
	return &IdentityHandlers{
		personalization: personalization,
		ingestService:   ingestService,
		logger:          logger,
	}
}

// GetIdentify handles GET /identify?i=<token>: cache-first token resolution
// with store fallback and write-back.
func (h *IdentityHandlers) GetIdentify(c *gin.Context) {
	token := c.Query("i")
	if token == "" {
		c.String(http.StatusBadRequest, "Missing identity parameter")
		return
	}

	profile, err := h.personalization.LookupIdentity(c.Request.Context(), token)
	if err != nil {
		h.logger.Identity().Error("Identity lookup failed", "token", token, "error", err.Error())
		c.String(http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if profile == nil {
		c.String(http.StatusNotFound, "Identity not found")
		return
	}

	c.Header("Cache-Control", "public, max-age=3600")
	c.JSON(http.StatusOK, profile)
}

// GetPersonalize handles GET /personalize?vid=<id>. Unknown and anonymous
// visitors get {personalized:false}.
func (h *IdentityHandlers) GetPersonalize(c *gin.Context) {
	vid := c.Query("vid")
	if vid == "" {
		c.String(http.StatusBadRequest, "Missing visitor ID")
		return
	}

	p, err := h.personalization.Personalize(c.Request.Context(), vid)
	if err != nil {
		h.logger.Identity().Error("Personalization failed", "vid", vid, "error", err.Error())
		c.String(http.StatusInternalServerError, "Internal Server Error")
		return
	}

	if p.Personalized {
		c.Header("Cache-Control", "public, max-age=60")
	}
	c.JSON(http.StatusOK, p)
}

// GetRedirect handles GET /go?i=<token>&to=<url>: logs an email_click in the
// background, then 302-redirects with the identity token carried forward.
func (h *IdentityHandlers) GetRedirect(c *gin.Context) {
	token := c.Query("i")
	destination := c.Query("to")
	if destination == "" {
		destination = "/"
	}

	if token == "" {
		c.Redirect(http.StatusFound, destination)
		return
	}

	h.ingestService.ProcessRedirectClick(token, destination, buildRequestContext(c))

	c.Redirect(http.StatusFound, appendIdentityParam(destination, token))
}

func appendIdentityParam(destination, token string) string {
	parsed, err := url.Parse(destination)
	if err != nil {
		return destination
	}
	query := parsed.Query()
	query.Set("i", token)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
