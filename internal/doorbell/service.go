// Package doorbell implements the session lifecycle state machine: scan,
// respond, expiry, and the video-session status bookkeeping driven by the
// relay hub.
package doorbell

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/gcswan/ding/internal/domain"
	"github.com/gcswan/ding/internal/metrics"
)

const sweepInterval = 5 * time.Second

// Service is the only writer of session status. All transitions funnel
// through the store's atomic TransitionSession, which serializes racing
// responds and expiries per session.
type Service struct {
	store      domain.Store
	clock      clockwork.Clock
	pendingTTL time.Duration

	// collapses concurrent first-join activations of a video session
	activation singleflight.Group

	sweepStopCh chan struct{}
	stopOnce    sync.Once
}

// NewService creates the lifecycle service and starts the pending-session
// expiry sweeper. Call Stop to halt the sweeper.
func NewService(store domain.Store, clock clockwork.Clock, pendingTTL time.Duration) *Service {
	s := &Service{
		store:       store,
		clock:       clock,
		pendingTTL:  pendingTTL,
		sweepStopCh: make(chan struct{}),
	}
	s.startExpirySweeper()
	return s
}

func newSessionID() string {
	u := uuid.New()
	return "session_" + hex.EncodeToString(u[:])
}

func newQRCodeID() string {
	u := uuid.New()
	return "qr_" + hex.EncodeToString(u[:])
}

// Scan validates the QR code and creates a pending session. It does not
// notify anyone - the caller composes Scan with the dispatcher so that a
// notification failure can never fail the scan.
func (s *Service) Scan(ctx context.Context, qrCodeID, visitorDeviceID, visitorLocation string) (domain.Session, error) {
	qr, err := s.store.GetQRCode(ctx, qrCodeID)
	if err != nil {
		return domain.Session{}, err
	}

	now := s.clock.Now()
	if qr.Expired(now) {
		// An expired code behaves exactly like an unknown one.
		return domain.Session{}, domain.ErrNotFound
	}

	sess := domain.Session{
		ID:              newSessionID(),
		OwnerID:         qr.OwnerID,
		VisitorDeviceID: visitorDeviceID,
		VisitorLocation: visitorLocation,
		QRCodeID:        qr.ID,
		Status:          domain.StatusPending,
		CreatedAt:       now,
	}

	if err := s.store.CreateSession(ctx, sess); err != nil {
		// IDs are UUID-derived; a collision means the generation invariant broke.
		return domain.Session{}, fmt.Errorf("session ID collision for %s: %w", sess.ID, err)
	}

	if err := s.store.RecordScan(ctx, qr.ID, now); err != nil {
		slog.Error("Failed to record scan", "qr_code_id", qr.ID, "error", err)
	}

	metrics.SessionsCreatedTotal.Inc()
	slog.Info("Session created", "session_id", sess.ID, "owner_id", sess.OwnerID, "qr_code_id", qr.ID)
	return sess, nil
}

// Respond applies the owner's answer to a pending session. A session may be
// responded to exactly once: the second of two racing responds observes
// ErrInvalidState. Accepting derives the video session ID deterministically.
func (s *Service) Respond(ctx context.Context, sessionID, ownerID string, kind domain.ResponseKind, customMessage string) (domain.Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.OwnerID != ownerID {
		return domain.Session{}, domain.ErrForbidden
	}

	now := s.clock.Now()
	patch := domain.SessionPatch{
		RespondedAt:     &now,
		ResponseKind:    &kind,
		ResponseMessage: &customMessage,
	}

	var target domain.SessionStatus
	if kind == domain.ResponseAccept {
		target = domain.StatusVideoChatStarting
		videoID := domain.VideoSessionID(sessionID)
		patch.Status = &target
		patch.VideoSessionID = &videoID
	} else {
		target = domain.StatusDeclined
		reason := string(kind)
		patch.Status = &target
		patch.ClosedAt = &now
		patch.DeclineReason = &reason
	}

	updated, err := s.store.TransitionSession(ctx, sessionID, domain.StatusPending, patch)
	if err != nil {
		return domain.Session{}, err
	}

	metrics.SessionTransitionsTotal.WithLabelValues(string(target)).Inc()
	slog.Info("Session responded", "session_id", sessionID, "response_type", kind, "status", updated.Status)
	return updated, nil
}

// Expire declines a pending session that ran out its response window.
// Racing against a late Respond, whichever reaches the store first wins;
// the loser observes ErrInvalidState.
func (s *Service) Expire(ctx context.Context, sessionID string) error {
	now := s.clock.Now()
	status := domain.StatusDeclined
	reason := domain.DeclineReasonExpired
	_, err := s.store.TransitionSession(ctx, sessionID, domain.StatusPending, domain.SessionPatch{
		Status:        &status,
		ClosedAt:      &now,
		DeclineReason: &reason,
	})
	if err != nil {
		return err
	}
	metrics.SessionsExpiredTotal.Inc()
	slog.Info("Session expired", "session_id", sessionID, "ttl", s.pendingTTL)
	return nil
}

// GetSession returns a session snapshot.
func (s *Service) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// SessionForVideo resolves a video session ID back to its session.
func (s *Service) SessionForVideo(ctx context.Context, videoSessionID string) (domain.Session, error) {
	sessionID, ok := strings.CutPrefix(videoSessionID, domain.VideoSessionPrefix)
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return s.store.GetSession(ctx, sessionID)
}

// ActivateVideo marks the owning session active when the first participant
// joins the relay group. Both participants race to join, so concurrent
// activations collapse into one store transition.
func (s *Service) ActivateVideo(ctx context.Context, videoSessionID string) error {
	_, err, _ := s.activation.Do(videoSessionID, func() (any, error) {
		sessionID, ok := strings.CutPrefix(videoSessionID, domain.VideoSessionPrefix)
		if !ok {
			return nil, domain.ErrNotFound
		}

		status := domain.StatusActive
		_, err := s.store.TransitionSession(ctx, sessionID, domain.StatusVideoChatStarting, domain.SessionPatch{
			Status: &status,
		})
		if errors.Is(err, domain.ErrInvalidState) {
			// A reconnect after a brief drop finds the session already
			// active - that is fine.
			cur, getErr := s.store.GetSession(ctx, sessionID)
			if getErr == nil && cur.Status == domain.StatusActive {
				return nil, nil
			}
			return nil, err
		}
		if err != nil {
			return nil, err
		}
		metrics.SessionTransitionsTotal.WithLabelValues(string(domain.StatusActive)).Inc()
		slog.Info("Video session active", "video_session_id", videoSessionID)
		return nil, nil
	})
	return err
}

// EndVideo closes the owning session when its relay group is deleted.
// Ending an already-terminal session is a no-op.
func (s *Service) EndVideo(ctx context.Context, videoSessionID string) error {
	sessionID, ok := strings.CutPrefix(videoSessionID, domain.VideoSessionPrefix)
	if !ok {
		return domain.ErrNotFound
	}

	now := s.clock.Now()
	status := domain.StatusEnded
	_, err := s.store.TransitionSession(ctx, sessionID, domain.StatusActive, domain.SessionPatch{
		Status:   &status,
		ClosedAt: &now,
	})
	if errors.Is(err, domain.ErrInvalidState) {
		return nil
	}
	if err != nil {
		return err
	}
	metrics.SessionTransitionsTotal.WithLabelValues(string(domain.StatusEnded)).Inc()
	slog.Info("Video session ended", "video_session_id", videoSessionID)
	return nil
}

// --- Expiry sweeper ---

func (s *Service) startExpirySweeper() {
	ticker := s.clock.NewTicker(sweepInterval)
	go func() {
		for {
			select {
			case <-ticker.Chan():
				s.sweepExpired(context.Background())
			case <-s.sweepStopCh:
				ticker.Stop()
				return
			}
		}
	}()
	slog.Info("Expiry sweeper started", "interval", sweepInterval, "pending_ttl", s.pendingTTL)
}

func (s *Service) sweepExpired(ctx context.Context) {
	start := s.clock.Now()
	defer func() {
		metrics.ExpirySweepDuration.Observe(s.clock.Since(start).Seconds())
	}()

	pending, err := s.store.ListSessionsByStatus(ctx, domain.StatusPending)
	if err != nil {
		slog.Error("Expiry sweep failed to list pending sessions", "error", err)
		return
	}

	deadline := start.Add(-s.pendingTTL)
	for _, sess := range pending {
		if sess.CreatedAt.After(deadline) {
			continue
		}
		if err := s.Expire(ctx, sess.ID); err != nil {
			if errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrNotFound) {
				// Lost the race to a late respond; the responder won.
				slog.Debug("Skipped expiry, session already transitioned", "session_id", sess.ID)
				continue
			}
			slog.Error("Failed to expire session", "session_id", sess.ID, "error", err)
		}
	}
}

// Stop halts the expiry sweeper.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.sweepStopCh)
	})
}
