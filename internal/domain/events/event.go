// Package events defines the wire-level tracking event types exchanged
// with the browser collector.
package events

// TrackingEvent is the client-reported event shape delivered by the collector.
type TrackingEvent struct {
	Type      string         `json:"type" binding:"required"`
	Timestamp int64          `json:"timestamp"` // epoch milliseconds, client clock
	SessionID string         `json:"sessionId"`
	VisitorID *string        `json:"visitorId"`
	URL       string         `json:"url"`
	Referrer  string         `json:"referrer"`
	Data      map[string]any `json:"data,omitempty"`
}

// BatchMeta carries client-side delivery metadata for a batch.
type BatchMeta struct {
	SentAt int64 `json:"sentAt"`
}

// EventBatch is the POST /track request body.
type EventBatch struct {
	Events []TrackingEvent `json:"events"`
	Meta   BatchMeta       `json:"meta"`
}

// Category classifies events by processing family.
type Category string

const (
	CategoryWebsite Category = "website"
	CategoryEmail   Category = "email"
	CategorySystem  Category = "system"
)

// RequestContext holds the inbound request metadata used to enrich events.
// It is assembled once per request at the HTTP boundary so enrichment itself
// stays a pure function.
type RequestContext struct {
	IP             string
	Country        string
	City           string
	Region         string
	Continent      string
	PostalCode     string
	MetroCode      string
	Latitude       string
	Longitude      string
	Timezone       string
	Colo           string
	ASN            int64
	Organization   string
	UserAgent      string
	AcceptLanguage string
	RefererHeader  string
	DeviceType     string
	IsEUCountry    bool
	TLSVersion     string
	TLSCipher      string
	HTTPProtocol   string
}

// EnrichedEvent is a TrackingEvent augmented with request-derived context,
// ready for ownership stamping and insertion.
type EnrichedEvent struct {
	Category   Category       `json:"category"`
	Type       string         `json:"type"`
	SessionID  string         `json:"session_id"`
	VisitorRef string         `json:"web_visitor_id"`
	LeadRef    string         `json:"lead_id"`
	URL        string         `json:"url"`
	Referrer   string         `json:"referrer"`
	Data       map[string]any `json:"data"`

	IPAddress         string `json:"ip_address"`
	CompanyIdentifier string `json:"company_identifier"`
	Country           string `json:"country"`
	City              string `json:"city"`
	Region            string `json:"region"`
	Continent         string `json:"continent"`
	PostalCode        string `json:"postal_code"`
	MetroCode         string `json:"metro_code"`
	Latitude          string `json:"latitude"`
	Longitude         string `json:"longitude"`
	Timezone          string `json:"timezone"`
	Colo              string `json:"colo"`
	ASN               int64  `json:"asn"`
	Organization      string `json:"organization_identifier"`
	UserAgent         string `json:"user_agent"`
	DefaultLanguage   string `json:"default_language"`
	RefererHeader     string `json:"referer_header"`

	URLParams   string `json:"url_parms"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMTerm     string `json:"utm_term"`
	UTMContent  string `json:"utm_content"`
	GCLID       string `json:"gclid"`
	FBCLID      string `json:"fbclid"`

	DeviceType   string `json:"device_type"`
	IsEUCountry  bool   `json:"is_eu_country"`
	TLSVersion   string `json:"tls_version"`
	TLSCipher    string `json:"tls_cipher"`
	HTTPProtocol string `json:"http_protocol"`

	CampaignID string `json:"campaign_id"`
	MessageID  string `json:"message_id"`

	CreatedAt string `json:"created_at"`

	// Client-reported identity; carried alongside until the batch owner
	// is resolved, never persisted on the event row.
	OriginalSessionID string `json:"-"`
	OriginalVisitorID string `json:"-"`
	OriginalTimestamp int64  `json:"-"`
}
