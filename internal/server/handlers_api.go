package server

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/gcswan/ding/internal/doorbell"
	"github.com/gcswan/ding/internal/domain"
	"github.com/gcswan/ding/internal/errors"
)

type scanRequest struct {
	QRCodeID        string `json:"qr_code_id"`
	ScannerDeviceID string `json:"scanner_device_id"`
	ScannerLocation string `json:"scanner_location,omitempty"`
}

type scanResponse struct {
	Success               bool   `json:"success"`
	Message               string `json:"message"`
	SessionID             string `json:"session_id"`
	DoorOwnerID           string `json:"door_owner_id"`
	EstimatedResponseTime int    `json:"estimated_response_time"`
}

func (s *Server) handleScan(c echo.Context) error {
	var req scanRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}
	if req.QRCodeID == "" || req.ScannerDeviceID == "" {
		return errors.ValidationError("qr_code_id and scanner_device_id are required")
	}

	ctx := c.Request().Context()
	session, err := s.doorbell.Scan(ctx, req.QRCodeID, req.ScannerDeviceID, req.ScannerLocation)
	if err != nil {
		return errors.FromDomain(err, "QR code not found or expired")
	}

	// Fan-out is best-effort and must not delay the scanner's feedback:
	// the doorbell rang even if no channel delivered it.
	go s.dispatcher.Dispatch(context.WithoutCancel(ctx), session)

	return c.JSON(http.StatusOK, scanResponse{
		Success:               true,
		Message:               "QR code scanned successfully. Door owner has been notified.",
		SessionID:             session.ID,
		DoorOwnerID:           session.OwnerID,
		EstimatedResponseTime: s.config.EstimatedResponseSeconds,
	})
}

type respondRequest struct {
	SessionID     string `json:"session_id"`
	DoorOwnerID   string `json:"door_owner_id"`
	ResponseType  string `json:"response_type"`
	CustomMessage string `json:"custom_message,omitempty"`
}

type respondResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	VideoSessionID string `json:"video_session_id,omitempty"`
}

func (s *Server) handleRespond(c echo.Context) error {
	var req respondRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}
	if req.SessionID == "" || req.DoorOwnerID == "" {
		return errors.ValidationError("session_id and door_owner_id are required")
	}

	kind, err := domain.ParseResponseKind(req.ResponseType)
	if err != nil {
		return errors.ValidationError(fmt.Sprintf("invalid response_type %q", req.ResponseType))
	}

	session, err := s.doorbell.Respond(c.Request().Context(), req.SessionID, req.DoorOwnerID, kind, req.CustomMessage)
	if err != nil {
		return respondError(err)
	}

	return c.JSON(http.StatusOK, respondResponse{
		Success:        true,
		Message:        domain.VisitorMessage(kind, req.CustomMessage),
		VideoSessionID: session.VideoSessionID,
	})
}

func respondError(err error) *errors.Error {
	switch {
	case stderrors.Is(err, domain.ErrForbidden):
		return errors.ForbiddenError("Unauthorized to respond to this session")
	case stderrors.Is(err, domain.ErrInvalidState):
		return errors.ConflictError("Session already responded to")
	default:
		return errors.FromDomain(err, "Session not found or expired")
	}
}

type generateQRCodeRequest struct {
	DoorOwnerID     string     `json:"door_owner_id"`
	Label           string     `json:"label,omitempty"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
	SMSRecipients   []string   `json:"sms_recipients,omitempty"`
	TeamsWebhookURL *string    `json:"teams_webhook_url,omitempty"`
}

type generateQRCodeResponse struct {
	QRCodeID   string     `json:"qr_code_id"`
	QRCodeURL  string     `json:"qr_code_url"`
	QRCodeData string     `json:"qr_code_data"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) handleGenerateQRCode(c echo.Context) error {
	var req generateQRCodeRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}
	if req.DoorOwnerID == "" {
		return errors.ValidationError("door_owner_id is required")
	}

	qr, err := s.doorbell.IssueQRCode(c.Request().Context(), doorbell.IssueQRCodeRequest{
		OwnerID:       req.DoorOwnerID,
		Label:         req.Label,
		ExpiresAt:     req.ExpiryDate,
		SMSRecipients: req.SMSRecipients,
		WebhookURL:    req.TeamsWebhookURL,
	})
	if err != nil {
		return errors.FromDomain(err, "failed to issue QR code")
	}

	scanURL := fmt.Sprintf("%s/%s", s.config.ScanBaseURL, qr.ID)
	png, err := qrcode.Encode(scanURL, qrcode.Medium, 256)
	if err != nil {
		return errors.InternalError("failed to render QR code image", err)
	}

	return c.JSON(http.StatusOK, generateQRCodeResponse{
		QRCodeID:   qr.ID,
		QRCodeURL:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		QRCodeData: scanURL,
		CreatedAt:  qr.CreatedAt,
		ExpiresAt:  qr.ExpiresAt,
	})
}

type sessionInfoResponse struct {
	SessionID       string     `json:"session_id"`
	DoorOwnerID     string     `json:"door_owner_id"`
	VisitorDeviceID string     `json:"visitor_device_id"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	VideoSessionID  string     `json:"video_session_id,omitempty"`
}

func (s *Server) handleGetSession(c echo.Context) error {
	session, err := s.doorbell.GetSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return errors.FromDomain(err, "Session not found or expired")
	}

	return c.JSON(http.StatusOK, sessionInfoResponse{
		SessionID:       session.ID,
		DoorOwnerID:     session.OwnerID,
		VisitorDeviceID: session.VisitorDeviceID,
		Status:          string(session.Status),
		CreatedAt:       session.CreatedAt,
		StartedAt:       session.RespondedAt,
		EndedAt:         session.ClosedAt,
		VideoSessionID:  session.VideoSessionID,
	})
}
