// Package services provides the ingestion, identity and read-path business logic.
package services

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leadbeacon/leadbeacon-go/internal/domain/events"
)

// eventTypeAliases maps legacy client event names to their canonical form.
var eventTypeAliases = map[string]string{
	"email_identified": "email_captured",
	"pageview":         "page_view",
}

var emailCategoryTypes = map[string]bool{
	"email_sent":    true,
	"email_bounced": true,
	"email_replied": true,
	"email_click":   true,
}

var systemCategoryTypes = map[string]bool{
	"email_captured":         true,
	"identify":               true,
	"browser_emails_scanned": true,
}

// EnrichmentService augments raw client events with request-derived context.
// It is a pure transform: no I/O, deterministic for identical inputs.
type EnrichmentService struct{}

// NewEnrichmentService creates the enrichment service.
func NewEnrichmentService() *EnrichmentService {
	return &EnrichmentService{}
}

// Enrich produces the store-ready record for one raw event. The client
// identity fields are carried on the side until the batch owner is resolved.
func (s *EnrichmentService) Enrich(event events.TrackingEvent, reqCtx events.RequestContext) events.EnrichedEvent {
	normalizedType := NormalizeEventType(event.Type)

	params := parseQueryParams(event.URL)

	data := make(map[string]any, len(event.Data)+1)
	for k, v := range event.Data {
		data[k] = v
	}
	data["_originalSessionId"] = event.SessionID

	enriched := events.EnrichedEvent{
		Category: CategorizeEventType(normalizedType),
		Type:     normalizedType,
		URL:      event.URL,
		Referrer: event.Referrer,
		Data:     data,

		IPAddress:         reqCtx.IP,
		CompanyIdentifier: CompanyIdentifier(reqCtx.IP),
		Country:           reqCtx.Country,
		City:              reqCtx.City,
		Region:            reqCtx.Region,
		Continent:         reqCtx.Continent,
		PostalCode:        reqCtx.PostalCode,
		MetroCode:         reqCtx.MetroCode,
		Latitude:          reqCtx.Latitude,
		Longitude:         reqCtx.Longitude,
		Timezone:          reqCtx.Timezone,
		Colo:              reqCtx.Colo,
		ASN:               reqCtx.ASN,
		Organization:      reqCtx.Organization,
		UserAgent:         reqCtx.UserAgent,
		DefaultLanguage:   reqCtx.AcceptLanguage,
		RefererHeader:     reqCtx.RefererHeader,

		URLParams:   encodeParams(params),
		UTMSource:   params["utm_source"],
		UTMMedium:   params["utm_medium"],
		UTMCampaign: params["utm_campaign"],
		UTMTerm:     params["utm_term"],
		UTMContent:  params["utm_content"],
		GCLID:       params["gclid"],
		FBCLID:      params["fbclid"],

		DeviceType:   reqCtx.DeviceType,
		IsEUCountry:  reqCtx.IsEUCountry,
		TLSVersion:   reqCtx.TLSVersion,
		TLSCipher:    reqCtx.TLSCipher,
		HTTPProtocol: reqCtx.HTTPProtocol,

		CampaignID: validUUIDOrEmpty(stringField(event.Data, "campaign_id")),
		MessageID:  validUUIDOrEmpty(stringField(event.Data, "message_id")),

		CreatedAt: time.UnixMilli(event.Timestamp).UTC().Format(time.RFC3339Nano),

		OriginalSessionID: event.SessionID,
		OriginalTimestamp: event.Timestamp,
	}

	if event.VisitorID != nil {
		enriched.OriginalVisitorID = *event.VisitorID
	}

	return enriched
}

// NormalizeEventType resolves legacy aliases to canonical event type names.
func NormalizeEventType(eventType string) string {
	if canonical, ok := eventTypeAliases[eventType]; ok {
		return canonical
	}
	return eventType
}

// CategorizeEventType classifies a normalized type into its processing family.
func CategorizeEventType(eventType string) events.Category {
	if emailCategoryTypes[eventType] {
		return events.CategoryEmail
	}
	if systemCategoryTypes[eventType] {
		return events.CategorySystem
	}
	return events.CategoryWebsite
}

// CompanyIdentifier derives a coarse same-network grouping token from the
// first two octets of the client IP. The hash is the 32-bit rolling hash
// h = h*31 + c rendered in base 36, matching the token format already stored
// by earlier deployments. Non-cryptographic and not reversible.
func CompanyIdentifier(ip string) string {
	if ip == "" {
		return ""
	}
	octets := strings.Split(ip, ".")
	prefix := strings.Join(octets[:min(2, len(octets))], ".")

	var hash int32
	for _, c := range prefix {
		hash = (hash << 5) - hash + int32(c)
	}
	return strconv.FormatInt(int64(hash), 36)
}

// parseQueryParams lifts the query string off the page URL. A URL that fails
// to parse yields an empty set rather than failing the event.
func parseQueryParams(rawURL string) map[string]string {
	params := make(map[string]string)
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return params
	}
	for key, values := range parsed.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params
}

func encodeParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// validUUIDOrEmpty gates campaign/message ids to the canonical 36-character
// 8-4-4-4-12 form; anything else is dropped rather than stored.
func validUUIDOrEmpty(s string) string {
	if len(s) != 36 {
		return ""
	}
	if _, err := uuid.Parse(s); err != nil {
		return ""
	}
	return s
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
