package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/dashpulse/internal/domain"
)

type published struct {
	channel string
	event   domain.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{channel: channel, event: event})
	return p.err
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

func (p *recordingPublisher) channels() []string {
	var out []string
	for _, e := range p.all() {
		out = append(out, e.channel)
	}
	return out
}

var errPublishFailed = errors.New("publish failed")

var testNow = time.Date(2026, time.February, 10, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *recordingPublisher, *clockwork.FakeClock) {
	t.Helper()
	pub := &recordingPublisher{}
	clock := clockwork.NewFakeClockAt(testNow)
	return NewService(NewSeededMemoryStore(), pub, clock), pub, clock
}

func ptrTo[T any](v T) *T { return &v }
