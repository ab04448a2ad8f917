// Package email provides the email client for sending transactional emails.
package email

import (
	"fmt"

	"github.com/resendlabs/resend-go"

	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/email/templates"
	"github.com/leadbeacon/leadbeacon-go/pkg/config"
)

// Service defines the interface for sending emails, allowing for mock implementations in tests.
type Service interface {
	SendLeadIdentifiedEmail(toEmail string, props LeadIdentifiedNotification) error
}

// LeadIdentifiedNotification carries the fields of the lead-identified alert.
type LeadIdentifiedNotification struct {
	LeadEmail string
	Name      string
	Company   string
	FirstPage string
	Method    string
}

// ResendClient is the concrete implementation of the email Service using the Resend API.
type ResendClient struct {
	client    *resend.Client
	fromEmail string
	fromName  string
}

// NewService creates a new email service client, returning the Service interface.
func NewService() (Service, error) {
	if config.ResendAPIKey == "" {
		return nil, fmt.Errorf("RESEND_API_KEY environment variable is required")
	}

	return &ResendClient{
		client:    resend.NewClient(config.ResendAPIKey),
		fromEmail: config.NotifyEmailFrom,
		fromName:  config.NotifyFromName,
	}, nil
}

// SendLeadIdentifiedEmail composes and sends the lead-identified notification.
func (c *ResendClient) SendLeadIdentifiedEmail(toEmail string, props LeadIdentifiedNotification) error {
	subject := fmt.Sprintf("New lead identified: %s", props.LeadEmail)

	content := templates.GetLeadIdentifiedContent(templates.LeadIdentifiedProps{
		Email:     props.LeadEmail,
		Name:      props.Name,
		Company:   props.Company,
		FirstPage: props.FirstPage,
		Method:    props.Method,
	})

	htmlContent := templates.GetEmailLayout(templates.EmailLayoutProps{
		Preheader: subject,
		Content:   content,
	})

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromEmail),
		To:      []string{toEmail},
		Subject: subject,
		Html:    htmlContent,
	}

	_, err := c.client.Emails.Send(params)
	if err != nil {
		return fmt.Errorf("failed to send lead identified email via Resend: %w", err)
	}

	return nil
}
