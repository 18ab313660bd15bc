package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gcswan/ding/internal/domain"
)

const twilioBaseURL = "https://api.twilio.com"

// SMSChannel sends the ding alert as a text message through the Twilio
// Messages API. Owner-specific recipients take precedence over the
// configured defaults.
type SMSChannel struct {
	accountSID        string
	authToken         string
	fromNumber        string
	defaultRecipients []string

	baseURL string
	client  *http.Client
}

func NewSMSChannel(accountSID, authToken, fromNumber string, defaultRecipients []string) *SMSChannel {
	return &SMSChannel{
		accountSID:        accountSID,
		authToken:         authToken,
		fromNumber:        fromNumber,
		defaultRecipients: defaultRecipients,
		baseURL:           twilioBaseURL,
		client:            &http.Client{},
	}
}

func (s *SMSChannel) Name() string { return "sms" }

func (s *SMSChannel) Send(ctx context.Context, contact domain.OwnerContact, event domain.DingEvent) error {
	if s.accountSID == "" || s.authToken == "" || s.fromNumber == "" {
		return ErrNoTarget
	}

	recipients := s.resolveRecipients(contact)
	if len(recipients) == 0 {
		return ErrNoTarget
	}

	body := smsBody(event)
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)

	var errs []error
	for _, recipient := range recipients {
		if err := s.sendOne(ctx, endpoint, recipient, body); err != nil {
			errs = append(errs, fmt.Errorf("sms to %s: %w", recipient, err))
		}
	}
	return errors.Join(errs...)
}

func (s *SMSChannel) resolveRecipients(contact domain.OwnerContact) []string {
	source := contact.SMSRecipients
	if len(source) == 0 {
		source = s.defaultRecipients
	}

	recipients := make([]string, 0, len(source))
	for _, number := range source {
		if number != "" {
			recipients = append(recipients, number)
		}
	}
	return recipients
}

func (s *SMSChannel) sendOne(ctx context.Context, endpoint, recipient, body string) error {
	form := url.Values{}
	form.Set("From", s.fromNumber)
	form.Set("To", recipient)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.accountSID, s.authToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("twilio returned status %d", resp.StatusCode)
	}
	return nil
}

func smsBody(event domain.DingEvent) string {
	device := event.VisitorDeviceID
	if device == "" {
		device = "unknown device"
	}

	base := "Someone is at the door."
	if event.VisitorLocation != "" {
		base += fmt.Sprintf(" Location: %s.", event.VisitorLocation)
	}
	return fmt.Sprintf("Ding alert for %s. Session %s from %s. %s",
		event.OwnerID, event.SessionID, device, base)
}
