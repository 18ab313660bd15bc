package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gcswan/ding/internal/domain"
)

// PushChannel delivers the event to the owner's live websocket sink, if one
// is currently connected.
type PushChannel struct {
	sinks domain.SinkRegistry
}

func NewPushChannel(sinks domain.SinkRegistry) *PushChannel {
	return &PushChannel{sinks: sinks}
}

func (p *PushChannel) Name() string { return "push" }

func (p *PushChannel) Send(_ context.Context, _ domain.OwnerContact, event domain.DingEvent) error {
	sink, ok := p.sinks.Get(event.OwnerID)
	if !ok {
		return ErrNoTarget
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal ding event: %w", err)
	}

	if err := sink.Send(payload); err != nil {
		return fmt.Errorf("failed to push to owner sink: %w", err)
	}
	return nil
}
