package app

import (
	"context"
	"fmt"

	"github.com/pscheid92/dashpulse/internal/domain"
)

// LocalPublisher delivers events to this instance's clients only.
type LocalPublisher struct {
	broadcaster domain.Broadcaster
}

var _ domain.EventPublisher = (*LocalPublisher)(nil)

func NewLocalPublisher(b domain.Broadcaster) *LocalPublisher {
	return &LocalPublisher{broadcaster: b}
}

func (p *LocalPublisher) Publish(ctx context.Context, channel string, event domain.Event) error {
	if _, err := p.broadcaster.Broadcast(ctx, event, channel); err != nil {
		return fmt.Errorf("broadcast %s to %q: %w", event.Type, channel, err)
	}
	return nil
}
