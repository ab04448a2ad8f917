package database

import (
	"database/sql"
	"fmt"
)

// TableCreator handles the creation of the attribution store schema.
type TableCreator struct{}

// NewTableCreator creates a new TableCreator.
func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema executes all necessary queries to build the tables and indexes.
// Deduplication under concurrent find-or-create depends on the UNIQUE
// constraints declared here; the CHECK constraints are the final line of
// defense for the owner-XOR invariant.
func (tc *TableCreator) CreateSchema(db *sql.DB) error {
	for _, tableSQL := range tables {
		if _, err := db.Exec(tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}

var tables = []string{
	`CREATE TABLE IF NOT EXISTS web_visitors (
		id TEXT PRIMARY KEY,
		visitor_id TEXT NOT NULL UNIQUE,
		device_fingerprint TEXT,
		browser_id TEXT,
		first_seen_at TIMESTAMP NOT NULL,
		last_seen_at TIMESTAMP NOT NULL,
		is_identified BOOLEAN NOT NULL DEFAULT 0,
		lead_id TEXT,
		email_sha256 TEXT,
		email_sha1 TEXT,
		email_md5 TEXT,
		email_domain TEXT,
		total_pageviews INTEGER NOT NULL DEFAULT 0,
		total_clicks INTEGER NOT NULL DEFAULT 0,
		total_sessions INTEGER NOT NULL DEFAULT 0,
		identified_at TIMESTAMP,
		FOREIGN KEY (lead_id) REFERENCES leads(id)
	)`,
	`CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY,
		tracking_id TEXT UNIQUE,
		work_email TEXT,
		personal_email TEXT,
		first_name TEXT,
		last_name TEXT,
		phone TEXT,
		linkedin_url TEXT,
		company_name TEXT,
		company_description TEXT,
		company_headcount TEXT,
		company_revenue TEXT,
		company_industry TEXT,
		company_website TEXT,
		company_linkedin TEXT,
		job_title TEXT,
		job_seniority TEXT,
		job_department TEXT,
		identified_at TIMESTAMP NOT NULL,
		identification_method TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		client_session_id TEXT NOT NULL,
		web_visitor_id TEXT,
		lead_id TEXT,
		start_time TIMESTAMP NOT NULL,
		first_page TEXT,
		country TEXT,
		device_type TEXT,
		FOREIGN KEY (web_visitor_id) REFERENCES web_visitors(id),
		FOREIGN KEY (lead_id) REFERENCES leads(id),
		CHECK ((web_visitor_id IS NULL) != (lead_id IS NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		type TEXT NOT NULL,
		session_id TEXT NOT NULL,
		web_visitor_id TEXT,
		lead_id TEXT,
		url TEXT,
		referrer TEXT,
		referer_header TEXT,
		data TEXT,
		ip_address TEXT,
		company_identifier TEXT,
		country TEXT,
		city TEXT,
		region TEXT,
		continent TEXT,
		postal_code TEXT,
		metro_code TEXT,
		latitude TEXT,
		longitude TEXT,
		timezone TEXT,
		colo TEXT,
		asn INTEGER,
		organization_identifier TEXT,
		user_agent TEXT,
		default_language TEXT,
		url_parms TEXT,
		utm_source TEXT,
		utm_medium TEXT,
		utm_campaign TEXT,
		utm_term TEXT,
		utm_content TEXT,
		gclid TEXT,
		fbclid TEXT,
		device_type TEXT,
		is_eu_country BOOLEAN NOT NULL DEFAULT 0,
		tls_version TEXT,
		tls_cipher TEXT,
		http_protocol TEXT,
		campaign_id TEXT,
		message_id TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id),
		FOREIGN KEY (web_visitor_id) REFERENCES web_visitors(id),
		FOREIGN KEY (lead_id) REFERENCES leads(id),
		CHECK ((web_visitor_id IS NULL) != (lead_id IS NULL))
	)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_web_visitors_lead_id ON web_visitors(lead_id)`,
	`CREATE INDEX IF NOT EXISTS idx_web_visitors_email_sha256 ON web_visitors(email_sha256)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_work_email ON leads(work_email) WHERE work_email IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_personal_email ON leads(personal_email) WHERE personal_email IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_web_visitor_id ON sessions(web_visitor_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_lead_id ON sessions(lead_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_session_id ON events(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_web_visitor_id ON events(web_visitor_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_lead_id ON events(lead_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)`,
}
