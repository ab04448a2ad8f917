// Package templates provides email template components
package templates

import (
	"bytes"
	"html/template"
	"log"
)

type LeadIdentifiedProps struct {
	Email     string
	Name      string
	Company   string
	FirstPage string
	Method    string
}

var leadIdentifiedTemplate = template.Must(template.New("leadIdentified").Parse(`
    <h2 style="font-family: Helvetica, sans-serif; font-size: 20px; font-weight: bold; margin: 0 0 16px;">New lead identified</h2>
    <p style="font-family: Helvetica, sans-serif; font-size: 16px; margin: 0 0 16px;">A visitor on your site has just been identified.</p>
    <table role="presentation" border="0" cellpadding="0" cellspacing="0" style="width: 100%; font-size: 15px;">
      <tr><td style="padding: 4px 0; color: #6b7280;">Email</td><td style="padding: 4px 0;">{{.Email}}</td></tr>
      {{if .Name}}<tr><td style="padding: 4px 0; color: #6b7280;">Name</td><td style="padding: 4px 0;">{{.Name}}</td></tr>{{end}}
      {{if .Company}}<tr><td style="padding: 4px 0; color: #6b7280;">Company</td><td style="padding: 4px 0;">{{.Company}}</td></tr>{{end}}
      {{if .FirstPage}}<tr><td style="padding: 4px 0; color: #6b7280;">First page</td><td style="padding: 4px 0;">{{.FirstPage}}</td></tr>{{end}}
      <tr><td style="padding: 4px 0; color: #6b7280;">Identified via</td><td style="padding: 4px 0;">{{.Method}}</td></tr>
    </table>`))

// GetLeadIdentifiedContent renders the body block for the lead-identified
// notification email.
func GetLeadIdentifiedContent(props LeadIdentifiedProps) string {
	var buf bytes.Buffer
	if err := leadIdentifiedTemplate.Execute(&buf, props); err != nil {
		log.Printf("failed to render lead identified email: %v", err)
		return ""
	}
	return buf.String()
}
