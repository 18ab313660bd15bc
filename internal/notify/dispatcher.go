// Package notify fans a ding event out to the owner's notification
// channels: live push over a registered sink, SMS via Twilio, and a
// Teams-style chat webhook. Channels are independent; one failing or
// timing out never blocks or fails the others.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/gcswan/ding/internal/domain"
	"github.com/gcswan/ding/internal/metrics"
)

// ErrNoTarget signals that a channel has no configured destination for the
// owner. The dispatcher records it as a skip, not a failure.
var ErrNoTarget = errors.New("no notification target configured")

// Channel delivers a ding event to one destination type.
type Channel interface {
	Name() string
	Send(ctx context.Context, contact domain.OwnerContact, event domain.DingEvent) error
}

// Dispatcher resolves an owner's contact record and delivers the event on
// every channel concurrently. Dispatch never returns an error: delivery
// problems are logged and counted, nothing more.
type Dispatcher struct {
	store    domain.Store
	clock    clockwork.Clock
	timeout  time.Duration
	channels []Channel
}

func NewDispatcher(store domain.Store, clock clockwork.Clock, timeout time.Duration, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		store:    store,
		clock:    clock,
		timeout:  timeout,
		channels: channels,
	}
}

// Dispatch fans the event for a freshly created session out to all channels
// and blocks until every delivery attempt has finished or timed out.
func (d *Dispatcher) Dispatch(ctx context.Context, session domain.Session) {
	event := domain.NewDingEvent(session, d.clock.Now())

	contact, err := d.store.GetOwnerContact(ctx, session.OwnerID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("Failed to load owner contact, using channel defaults",
				"owner_id", session.OwnerID, "error", err)
		}
		contact = domain.OwnerContact{OwnerID: session.OwnerID}
	}

	var wg sync.WaitGroup
	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			d.deliver(ctx, ch, contact, event)
		}(ch)
	}
	wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, contact domain.OwnerContact, event domain.DingEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Notification channel panicked",
				"channel", ch.Name(), "session_id", event.SessionID, "panic", r)
			metrics.NotifyDeliveriesTotal.WithLabelValues(ch.Name(), "error").Inc()
		}
	}()

	// The scan request may already be answered by the time delivery runs;
	// give each channel its own deadline instead of the request's.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	start := time.Now()
	err := ch.Send(ctx, contact, event)
	metrics.NotifyChannelDuration.WithLabelValues(ch.Name()).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.NotifyDeliveriesTotal.WithLabelValues(ch.Name(), "ok").Inc()
		slog.Info("Notification delivered",
			"channel", ch.Name(), "session_id", event.SessionID, "owner_id", event.OwnerID)
	case errors.Is(err, ErrNoTarget):
		metrics.NotifySkippedTotal.WithLabelValues(ch.Name()).Inc()
		slog.Debug("Notification channel skipped, no target configured",
			"channel", ch.Name(), "owner_id", event.OwnerID)
	default:
		metrics.NotifyDeliveriesTotal.WithLabelValues(ch.Name(), "error").Inc()
		slog.Error("Notification delivery failed",
			"channel", ch.Name(), "session_id", event.SessionID, "error", err)
	}
}
