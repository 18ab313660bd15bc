package domain

import "time"

// OwnerContact holds an owner's notification targets. Upserted independently
// of sessions; the dispatcher reads it to resolve fan-out targets.
type OwnerContact struct {
	OwnerID       string            `json:"owner_id"`
	SMSRecipients []string          `json:"sms_recipients,omitempty"`
	WebhookURL    string            `json:"webhook_url,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// DingEvent is the payload fanned out to notification channels when a
// visitor scans a code.
type DingEvent struct {
	Type            string    `json:"type"`
	SessionID       string    `json:"session_id"`
	OwnerID         string    `json:"owner_id"`
	VisitorDeviceID string    `json:"visitor_device_id"`
	VisitorLocation string    `json:"visitor_location,omitempty"`
	Message         string    `json:"message"`
	Timestamp       time.Time `json:"timestamp"`
}

// EventTypeDingRequest is the event type for a fresh scan.
const EventTypeDingRequest = "ding_request"

// NewDingEvent builds the notification payload for a pending session.
func NewDingEvent(s Session, now time.Time) DingEvent {
	return DingEvent{
		Type:            EventTypeDingRequest,
		SessionID:       s.ID,
		OwnerID:         s.OwnerID,
		VisitorDeviceID: s.VisitorDeviceID,
		VisitorLocation: s.VisitorLocation,
		Message:         "Someone is at your door and wants to talk!",
		Timestamp:       now,
	}
}
