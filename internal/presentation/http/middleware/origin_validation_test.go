package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
)

func TestOriginValidatorAllowed(t *testing.T) {
	logger := logging.NewTestLogger()
	allowed := []string{"https://example.com", "https://*.customer.io", " https://spaced.com "}

	v := newOriginValidator(allowed, false, logger)

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"exact match", "https://example.com", true},
		{"exact mismatch", "https://evil.com", false},
		{"glob subdomain", "https://app.customer.io", true},
		{"glob nested subdomain", "https://a.b.customer.io", true},
		{"glob wrong suffix", "https://customer.io.evil.com", false},
		{"trimmed entry", "https://spaced.com", true},
		{"webflow canvas preview", "https://site-123.canvas.webflow.com", true},
		{"webflow preview", "https://site-123.preview.webflow.com", true},
		{"empty origin", "", false},
		{"scheme mismatch", "http://example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.Allowed(tt.origin); got != tt.want {
				t.Errorf("Allowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestOriginValidatorDevModeAllowsAll(t *testing.T) {
	v := newOriginValidator(nil, true, logging.NewTestLogger())

	if !v.Allowed("https://anything.example") {
		t.Error("development mode should allow every origin")
	}
	if !v.Allowed("") {
		t.Error("development mode should allow requests without an origin")
	}
}

func TestValidateOriginMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := newOriginValidator([]string{"https://example.com"}, false, logging.NewTestLogger())

	router := gin.New()
	router.Use(v.ValidateOrigin())
	router.POST("/track", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.OPTIONS("/track", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	t.Run("allowed origin passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/track", nil)
		req.Header.Set("Origin", "https://example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("disallowed origin gets 403", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/track", nil)
		req.Header.Set("Origin", "https://evil.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("preflight bypasses origin check", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/track", nil)
		req.Header.Set("Origin", "https://evil.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
	})
}
