package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadbeacon/leadbeacon-go/web/pixel"
)

// PixelHandlers serves the bundled collector script.
type PixelHandlers struct{}

// NewPixelHandlers creates the pixel asset handler.
func NewPixelHandlers() *PixelHandlers {
	return &PixelHandlers{}
}

// GetPixel handles GET /pixel.js. Short cache lifetime with revalidation so
// deployed sites pick up collector updates quickly.
func (h *PixelHandlers) GetPixel(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=300, must-revalidate")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Data(http.StatusOK, "application/javascript", pixel.Script)
}
