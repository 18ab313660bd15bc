// Package store provides the in-memory implementation of the doorbell
// state store and the live notification sink registry.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/gcswan/ding/internal/domain"
)

// Memory is the in-process domain.Store. One mutex guards the three maps;
// every operation is a single lock acquisition, so no partial update is
// ever observable. The relay hub keeps its own state - store contention
// never sits on the frame-relay hot path.
type Memory struct {
	mu       sync.RWMutex
	qrCodes  map[string]domain.QRCode
	sessions map[string]domain.Session
	contacts map[string]domain.OwnerContact
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		qrCodes:  make(map[string]domain.QRCode),
		sessions: make(map[string]domain.Session),
		contacts: make(map[string]domain.OwnerContact),
	}
}

// --- QR codes ---

func (m *Memory) CreateQRCode(_ context.Context, qr domain.QRCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.qrCodes[qr.ID]; exists {
		return domain.ErrAlreadyExists
	}
	m.qrCodes[qr.ID] = qr
	return nil
}

func (m *Memory) GetQRCode(_ context.Context, id string) (domain.QRCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	qr, ok := m.qrCodes[id]
	if !ok {
		return domain.QRCode{}, domain.ErrNotFound
	}
	return qr, nil
}

func (m *Memory) RecordScan(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	qr, ok := m.qrCodes[id]
	if !ok {
		return domain.ErrNotFound
	}
	qr.ScanCount++
	qr.LastScanned = &at
	m.qrCodes[id] = qr
	return nil
}

// --- Sessions ---

func (m *Memory) CreateSession(_ context.Context, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return domain.ErrAlreadyExists
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) GetSession(_ context.Context, id string) (domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *Memory) UpdateSession(_ context.Context, id string, patch domain.SessionPatch) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	patch.Apply(&s)
	m.sessions[id] = s
	return s, nil
}

func (m *Memory) TransitionSession(_ context.Context, id string, from domain.SessionStatus, patch domain.SessionPatch) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	if s.Status != from {
		return domain.Session{}, domain.ErrInvalidState
	}
	patch.Apply(&s)
	m.sessions[id] = s
	return s, nil
}

func (m *Memory) ListSessionsByStatus(_ context.Context, status domain.SessionStatus) ([]domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Session
	for _, s := range m.sessions {
		if s.Status == status {
			out = append(out, s)
		}
	}
	return out, nil
}

// --- Owner contacts ---

func (m *Memory) UpsertOwnerContact(_ context.Context, c domain.OwnerContact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[c.OwnerID] = c
	return nil
}

func (m *Memory) GetOwnerContact(_ context.Context, ownerID string) (domain.OwnerContact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contacts[ownerID]
	if !ok {
		return domain.OwnerContact{}, domain.ErrNotFound
	}
	return c, nil
}
