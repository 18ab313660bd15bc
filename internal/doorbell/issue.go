package doorbell

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gcswan/ding/internal/domain"
)

// IssueQRCodeRequest carries the issuance parameters. Nil notification
// fields keep the owner's existing targets; non-nil fields replace them.
type IssueQRCodeRequest struct {
	OwnerID       string
	Label         string
	ExpiresAt     *time.Time
	SMSRecipients []string
	WebhookURL    *string
}

// IssueQRCode creates a new QR code for an owner and refreshes the owner's
// contact record. Image rendering is the API layer's concern; the service
// only owns the metadata.
func (s *Service) IssueQRCode(ctx context.Context, req IssueQRCodeRequest) (domain.QRCode, error) {
	qr := domain.QRCode{
		ID:        newQRCodeID(),
		OwnerID:   req.OwnerID,
		Label:     req.Label,
		CreatedAt: s.clock.Now(),
		ExpiresAt: req.ExpiresAt,
	}

	if err := s.store.CreateQRCode(ctx, qr); err != nil {
		return domain.QRCode{}, err
	}

	if err := s.refreshOwnerContact(ctx, req, qr.ID); err != nil {
		// The code is already issued; a contact update failure only
		// degrades notification targeting.
		slog.Error("Failed to refresh owner contact", "owner_id", req.OwnerID, "error", err)
	}

	slog.Info("QR code issued", "qr_code_id", qr.ID, "owner_id", qr.OwnerID, "label", qr.Label)
	return qr, nil
}

func (s *Service) refreshOwnerContact(ctx context.Context, req IssueQRCodeRequest, qrCodeID string) error {
	existing, err := s.store.GetOwnerContact(ctx, req.OwnerID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	contact := domain.OwnerContact{
		OwnerID:       req.OwnerID,
		SMSRecipients: existing.SMSRecipients,
		WebhookURL:    existing.WebhookURL,
		Metadata:      map[string]string{},
	}
	for k, v := range existing.Metadata {
		contact.Metadata[k] = v
	}

	if req.SMSRecipients != nil {
		contact.SMSRecipients = req.SMSRecipients
	}
	if req.WebhookURL != nil {
		contact.WebhookURL = *req.WebhookURL
	}
	contact.Metadata["last_qr_code_id"] = qrCodeID
	if req.Label != "" {
		contact.Metadata["label"] = req.Label
	}

	return s.store.UpsertOwnerContact(ctx, contact)
}
