package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/pscheid92/dashpulse/internal/domain"
)

const (
	scopeAll     = "all"
	scopeChannel = "channel"
)

// Dispatcher fans a message out to connections. It never mutates the
// registry or the subscription index.
type Dispatcher struct {
	registry      *Registry
	subscriptions *Subscriptions
	metrics       *metrics.HubMetrics
}

var _ domain.Broadcaster = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher over the given registry and index.
// hubMetrics may be nil.
func NewDispatcher(registry *Registry, subscriptions *Subscriptions, hubMetrics *metrics.HubMetrics) *Dispatcher {
	return &Dispatcher{registry: registry, subscriptions: subscriptions, metrics: hubMetrics}
}

// Broadcast serializes message once and delivers it to every subscriber of
// channel, or to every registered connection when channel is empty.
//
// A failed send is logged and counted; it never aborts the remaining
// deliveries and never surfaces as an error. The returned error is only set
// when message cannot be serialized, in which case nothing is delivered.
func (d *Dispatcher) Broadcast(ctx context.Context, message any, channel string) (domain.BroadcastResult, error) {
	result := domain.BroadcastResult{Channel: channel}

	data, err := encodePayload(message)
	if err != nil {
		return result, err
	}

	var recipients []domain.Connection
	scope := scopeAll
	if channel != "" {
		scope = scopeChannel
		recipients = d.subscriptions.SubscribersOf(channel)
	} else {
		recipients = d.registry.Snapshot()
	}
	result.Recipients = len(recipients)

	start := time.Now()
	for _, conn := range recipients {
		if err := d.deliver(ctx, conn, data); err != nil {
			result.Failed++
			slog.WarnContext(ctx, "Broadcast delivery failed",
				"connection_id", conn.ID(),
				"channel", channel,
				"error", err,
			)
			continue
		}
		result.Delivered++
	}

	d.observe(scope, len(data), result, time.Since(start))
	if result.Recipients > 0 {
		slog.DebugContext(ctx, "Broadcast delivered",
			"channel", channel,
			"recipients", result.Recipients,
			"delivered", result.Delivered,
			"failed", result.Failed,
		)
	}
	return result, nil
}

func (d *Dispatcher) deliver(ctx context.Context, conn domain.Connection, data []byte) error {
	if conn.Closed() {
		return domain.ErrConnectionClosed
	}
	if err := conn.Send(ctx, data); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (d *Dispatcher) observe(scope string, size int, result domain.BroadcastResult, elapsed time.Duration) {
	if d.metrics == nil {
		return
	}
	d.metrics.Broadcasts.WithLabelValues(scope).Inc()
	d.metrics.Deliveries.WithLabelValues("delivered").Add(float64(result.Delivered))
	d.metrics.Deliveries.WithLabelValues("failed").Add(float64(result.Failed))
	d.metrics.PayloadBytes.Observe(float64(size))
	d.metrics.BroadcastDuration.Observe(elapsed.Seconds())
}

// encodePayload turns message into one text frame. Raw byte payloads are
// passed through but must already be valid JSON.
func encodePayload(message any) ([]byte, error) {
	switch m := message.(type) {
	case json.RawMessage:
		return validJSON(m)
	case []byte:
		return validJSON(m)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
	}
	return data, nil
}

func validJSON(data []byte) ([]byte, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: raw payload is not valid JSON", domain.ErrInvalidPayload)
	}
	return data, nil
}
