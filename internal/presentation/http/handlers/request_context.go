// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"crypto/tls"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/leadbeacon/leadbeacon-go/internal/domain/events"
)

// buildRequestContext assembles the enrichment inputs from the inbound
// request once, so enrichment itself stays a pure function. Geo fields come
// from the CDN's visitor-location headers when the service runs behind one;
// absent headers simply leave the fields empty.
func buildRequestContext(c *gin.Context) events.RequestContext {
	reqCtx := events.RequestContext{
		IP:             clientIP(c),
		Country:        c.GetHeader("CF-IPCountry"),
		City:           c.GetHeader("CF-IPCity"),
		Region:         c.GetHeader("CF-Region"),
		Continent:      c.GetHeader("CF-IPContinent"),
		PostalCode:     c.GetHeader("CF-Postal-Code"),
		MetroCode:      c.GetHeader("CF-Metro-Code"),
		Latitude:       c.GetHeader("CF-IPLatitude"),
		Longitude:      c.GetHeader("CF-IPLongitude"),
		Timezone:       c.GetHeader("CF-Timezone"),
		Colo:           coloFromRay(c.GetHeader("CF-Ray")),
		Organization:   c.GetHeader("CF-AS-Organization"),
		UserAgent:      c.GetHeader("User-Agent"),
		AcceptLanguage: c.GetHeader("Accept-Language"),
		RefererHeader:  c.GetHeader("Referer"),
		DeviceType:     c.GetHeader("CF-Device-Type"),
		IsEUCountry:    c.GetHeader("CF-IPisEUCountry") == "1",
		HTTPProtocol:   c.Request.Proto,
	}

	if asn := c.GetHeader("CF-ASN"); asn != "" {
		if parsed, err := strconv.ParseInt(asn, 10, 64); err == nil {
			reqCtx.ASN = parsed
		}
	}

	if state := c.Request.TLS; state != nil {
		reqCtx.TLSVersion = tls.VersionName(state.Version)
		reqCtx.TLSCipher = tls.CipherSuiteName(state.CipherSuite)
	}

	return reqCtx
}

func clientIP(c *gin.Context) string {
	if ip := c.GetHeader("CF-Connecting-IP"); ip != "" {
		return ip
	}
	return c.ClientIP()
}

// coloFromRay extracts the serving datacenter code from a CF-Ray header
// ("8a1b2c3d4e5f6789-SYD" -> "SYD").
func coloFromRay(ray string) string {
	if idx := strings.LastIndex(ray, "-"); idx >= 0 && idx < len(ray)-1 {
		return ray[idx+1:]
	}
	return ""
}
