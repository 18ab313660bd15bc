package domain

import "time"

// QRCode is an issued doorbell code. Immutable after issuance except for
// ScanCount and LastScanned, which the store updates atomically on scan.
type QRCode struct {
	ID          string     `json:"qr_code_id"`
	OwnerID     string     `json:"owner_id"`
	Label       string     `json:"label,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ScanCount   int        `json:"scan_count"`
	LastScanned *time.Time `json:"last_scanned,omitempty"`
}

// Expired reports whether the code is past its expiry at the given instant.
// Codes without an expiry never expire.
func (q QRCode) Expired(now time.Time) bool {
	return q.ExpiresAt != nil && now.After(*q.ExpiresAt)
}
