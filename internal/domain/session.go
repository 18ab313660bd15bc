package domain

import "time"

// SessionStatus is the lifecycle state of a doorbell session.
//
// Legal transitions:
//
//	pending → video_chat_starting → active → ended
//	pending → declined
//
// "declined" and "ended" are terminal. A session that expires without a
// response is declined with DeclineReason "expired".
type SessionStatus string

const (
	StatusPending           SessionStatus = "pending"
	StatusVideoChatStarting SessionStatus = "video_chat_starting"
	StatusActive            SessionStatus = "active"
	StatusEnded             SessionStatus = "ended"
	StatusDeclined          SessionStatus = "declined"
)

// Terminal reports whether no further transitions are allowed from s.
func (s SessionStatus) Terminal() bool {
	return s == StatusDeclined || s == StatusEnded
}

// DeclineReasonExpired marks sessions declined by the expiry sweeper rather
// than by the owner.
const DeclineReasonExpired = "expired"

// VideoSessionPrefix is prepended to a session ID to form its video session
// ID. The derivation is deterministic so either side can recompute it.
const VideoSessionPrefix = "video_"

// VideoSessionID derives the video session identifier for a session.
func VideoSessionID(sessionID string) string {
	return VideoSessionPrefix + sessionID
}

// Session is one visitor-to-owner interaction, from scan to close.
// ID and OwnerID are immutable once created; Status is the only field with
// constrained transitions.
type Session struct {
	ID              string        `json:"session_id"`
	OwnerID         string        `json:"owner_id"`
	VisitorDeviceID string        `json:"visitor_device_id"`
	VisitorLocation string        `json:"visitor_location,omitempty"`
	QRCodeID        string        `json:"qr_code_id"`
	Status          SessionStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	RespondedAt     *time.Time    `json:"responded_at,omitempty"`
	ClosedAt        *time.Time    `json:"closed_at,omitempty"`
	VideoSessionID  string        `json:"video_session_id,omitempty"`
	ResponseKind    ResponseKind  `json:"response_kind,omitempty"`
	ResponseMessage string        `json:"response_message,omitempty"`
	DeclineReason   string        `json:"decline_reason,omitempty"`
}

// SessionPatch is a field-wise overwrite applied to a session. Nil fields
// are left untouched; there is no deep merge.
type SessionPatch struct {
	Status          *SessionStatus `json:"status,omitempty"`
	RespondedAt     *time.Time     `json:"responded_at,omitempty"`
	ClosedAt        *time.Time     `json:"closed_at,omitempty"`
	VideoSessionID  *string        `json:"video_session_id,omitempty"`
	ResponseKind    *ResponseKind  `json:"response_kind,omitempty"`
	ResponseMessage *string        `json:"response_message,omitempty"`
	DeclineReason   *string        `json:"decline_reason,omitempty"`
}

// Apply copies the patch's non-nil fields onto s.
func (p SessionPatch) Apply(s *Session) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.RespondedAt != nil {
		s.RespondedAt = p.RespondedAt
	}
	if p.ClosedAt != nil {
		s.ClosedAt = p.ClosedAt
	}
	if p.VideoSessionID != nil {
		s.VideoSessionID = *p.VideoSessionID
	}
	if p.ResponseKind != nil {
		s.ResponseKind = *p.ResponseKind
	}
	if p.ResponseMessage != nil {
		s.ResponseMessage = *p.ResponseMessage
	}
	if p.DeclineReason != nil {
		s.DeclineReason = *p.DeclineReason
	}
}
