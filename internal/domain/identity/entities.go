// Package identity defines the core entities of the attribution model:
// anonymous Visitors, identified Leads, and the Sessions and Events that
// belong to exactly one of them.
package identity

import "time"

// Visitor is an anonymous tracked entity keyed by a client-persisted opaque
// visitor_id. A Visitor is either identified (LeadID set, IsIdentified true)
// or not, never partially.
type Visitor struct {
	ID                string     `json:"id"` // server-minted row id (ULID)
	VisitorID         string     `json:"visitorId"`
	DeviceFingerprint *string    `json:"deviceFingerprint,omitempty"`
	BrowserID         *string    `json:"browserId,omitempty"`
	FirstSeenAt       time.Time  `json:"firstSeenAt"`
	LastSeenAt        time.Time  `json:"lastSeenAt"`
	IsIdentified      bool       `json:"isIdentified"`
	LeadID            *string    `json:"leadId,omitempty"`
	EmailSHA256       *string    `json:"emailSha256,omitempty"`
	EmailSHA1         *string    `json:"emailSha1,omitempty"`
	EmailMD5          *string    `json:"emailMd5,omitempty"`
	EmailDomain       *string    `json:"emailDomain,omitempty"`
	TotalPageviews    int        `json:"totalPageviews"`
	TotalClicks       int        `json:"totalClicks"`
	TotalSessions     int        `json:"totalSessions"`
	IdentifiedAt      *time.Time `json:"identifiedAt,omitempty"`
}

// Lead is an identified entity, resolvable by campaign tracking id or by
// work/personal email (tracking id takes priority).
type Lead struct {
	ID                   string    `json:"id"`
	TrackingID           *string   `json:"trackingId,omitempty"`
	WorkEmail            *string   `json:"workEmail,omitempty"`
	PersonalEmail        *string   `json:"personalEmail,omitempty"`
	FirstName            *string   `json:"firstName,omitempty"`
	LastName             *string   `json:"lastName,omitempty"`
	Phone                *string   `json:"phone,omitempty"`
	LinkedinURL          *string   `json:"linkedin,omitempty"`
	CompanyName          *string   `json:"companyName,omitempty"`
	CompanyDescription   *string   `json:"companyDescription,omitempty"`
	CompanyHeadcount     *string   `json:"companySize,omitempty"`
	CompanyRevenue       *string   `json:"revenue,omitempty"`
	CompanyIndustry      *string   `json:"industry,omitempty"`
	CompanyWebsite       *string   `json:"companyWebsite,omitempty"`
	CompanyLinkedin      *string   `json:"companyLinkedin,omitempty"`
	JobTitle             *string   `json:"jobTitle,omitempty"`
	JobSeniority         *string   `json:"seniority,omitempty"`
	JobDepartment        *string   `json:"department,omitempty"`
	IdentifiedAt         time.Time `json:"identifiedAt"`
	IdentificationMethod string    `json:"identificationMethod"`
}

// Email returns the lead's best email, work address first.
func (l *Lead) Email() string {
	if l.WorkEmail != nil && *l.WorkEmail != "" {
		return *l.WorkEmail
	}
	if l.PersonalEmail != nil && *l.PersonalEmail != "" {
		return *l.PersonalEmail
	}
	return ""
}

// Session groups events temporally and is owned by exactly one of
// {Visitor, Lead}.
type Session struct {
	ID              string    `json:"id"`
	ClientSessionID string    `json:"clientSessionId"`
	VisitorRowID    *string   `json:"webVisitorId,omitempty"`
	LeadID          *string   `json:"leadId,omitempty"`
	StartTime       time.Time `json:"startTime"`
	FirstPage       *string   `json:"firstPage,omitempty"`
	Country         *string   `json:"country,omitempty"`
	DeviceType      *string   `json:"deviceType,omitempty"`
}

// EmailHashes carries the hash set captured alongside a scanned or submitted
// email, stored on anonymous visitors pending reconciliation.
type EmailHashes struct {
	SHA256 string
	SHA1   string
	MD5    string
}

// Empty reports whether no hash was captured at all.
func (h EmailHashes) Empty() bool {
	return h.SHA256 == "" && h.SHA1 == "" && h.MD5 == ""
}

// OwnerKind tags the resolved owner of a batch.
type OwnerKind string

const (
	OwnerVisitor OwnerKind = "visitor"
	OwnerLead    OwnerKind = "lead"
)

// Resolution is the Identity Resolver's decision for one batch: exactly one
// owner for the whole batch.
type Resolution struct {
	Owner           OwnerKind
	VisitorRowID    string // set when Owner == OwnerVisitor
	LeadID          string // set when Owner == OwnerLead
	Identified      bool
	NewlyIdentified bool // true when this batch performed the identify transition
}

// OwnerVisitorRef returns the visitor reference to stamp on sessions/events,
// nil for lead-owned batches.
func (r *Resolution) OwnerVisitorRef() *string {
	if r.Identified {
		return nil
	}
	if r.VisitorRowID == "" {
		return nil
	}
	v := r.VisitorRowID
	return &v
}

// OwnerLeadRef returns the lead reference to stamp on sessions/events,
// nil for visitor-owned batches.
func (r *Resolution) OwnerLeadRef() *string {
	if !r.Identified || r.LeadID == "" {
		return nil
	}
	l := r.LeadID
	return &l
}

// IdentificationStatus reports whether a visitor_id has already been linked
// to a lead.
type IdentificationStatus struct {
	IsIdentified bool
	LeadID       *string
}

// Profile is the identity payload served on the /identify and /personalize
// read paths and cached in the identity KV store.
type Profile struct {
	TrackingID         string `json:"trackingId,omitempty"`
	Email              string `json:"email,omitempty"`
	FirstName          string `json:"firstName,omitempty"`
	LastName           string `json:"lastName,omitempty"`
	PersonName         string `json:"personName,omitempty"`
	Phone              string `json:"phone,omitempty"`
	Linkedin           string `json:"linkedin,omitempty"`
	Company            string `json:"company,omitempty"`
	CompanyName        string `json:"companyName,omitempty"`
	CompanyDescription string `json:"companyDescription,omitempty"`
	CompanySize        string `json:"companySize,omitempty"`
	Revenue            string `json:"revenue,omitempty"`
	Industry           string `json:"industry,omitempty"`
	Department         string `json:"department,omitempty"`
	CompanyWebsite     string `json:"companyWebsite,omitempty"`
	CompanyLinkedin    string `json:"companyLinkedin,omitempty"`
	JobTitle           string `json:"jobTitle,omitempty"`
	Seniority          string `json:"seniority,omitempty"`
	Domain             string `json:"domain,omitempty"`
}

// Personalization is the /personalize response body: a Profile merged with
// behavioral aggregates.
type Personalization struct {
	Personalized bool `json:"personalized"`
	Profile
	TotalVisits    int `json:"totalVisits,omitempty"`
	TotalPageviews int `json:"totalPageviews,omitempty"`
}
