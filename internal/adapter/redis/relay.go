package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/pscheid92/dashpulse/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

// envelope is the message published on the shared topic.
type envelope struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// DefaultSubscribePolicy bounds how long Run keeps trying to subscribe.
var DefaultSubscribePolicy = retry.Policy{
	MaxAttempts:    10,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     30 * time.Second,
}

// Relay fans events out across instances through one Redis Pub/Sub topic.
// Every instance, including the publisher, receives the envelope in Run and
// broadcasts it to its own clients. While Run holds no subscription, or Redis
// is unavailable, Publish delivers to the local clients directly.
type Relay struct {
	rdb        *goredis.Client
	topic      string
	local      domain.Broadcaster
	metrics    *metrics.RelayMetrics
	policy     retry.Policy
	subscribed atomic.Bool
}

var _ domain.EventPublisher = (*Relay)(nil)

type RelayOption func(*Relay)

// WithSubscribePolicy replaces DefaultSubscribePolicy.
func WithSubscribePolicy(p retry.Policy) RelayOption {
	return func(r *Relay) { r.policy = p }
}

// NewRelay creates a relay on topic. relayMetrics may be nil.
func NewRelay(rdb *goredis.Client, topic string, local domain.Broadcaster, relayMetrics *metrics.RelayMetrics, opts ...RelayOption) *Relay {
	r := &Relay{rdb: rdb, topic: topic, local: local, metrics: relayMetrics, policy: DefaultSubscribePolicy}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribed reports whether Run currently holds the topic subscription.
func (r *Relay) Subscribed() bool { return r.subscribed.Load() }

func (r *Relay) Publish(ctx context.Context, channel string, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Type, err)
	}
	data, err := json.Marshal(envelope{Channel: channel, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	if err := r.rdb.Publish(ctx, r.topic, data).Err(); err != nil {
		r.countPublished("fallback")
		slog.WarnContext(ctx, "Redis publish failed, delivering locally", "channel", channel, "event_type", event.Type, "error", err)
		return r.deliverLocally(ctx, channel, payload)
	}

	// peers got it; our own clients only hear it through a live subscription
	if !r.subscribed.Load() {
		r.countPublished("local")
		return r.deliverLocally(ctx, channel, payload)
	}

	r.countPublished("ok")
	return nil
}

func (r *Relay) deliverLocally(ctx context.Context, channel string, payload json.RawMessage) error {
	if _, err := r.local.Broadcast(ctx, payload, channel); err != nil {
		return fmt.Errorf("local fallback broadcast: %w", err)
	}
	return nil
}

// Run subscribes to the topic and re-broadcasts every envelope locally until
// ctx is done. Subscribing is retried with the relay's policy; Run returns an
// error once that is exhausted. A subscription that ends while ctx is still
// live is set up again.
func (r *Relay) Run(ctx context.Context) error {
	for {
		sub, err := r.subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("subscribe to %s: %w", r.topic, err)
		}

		r.consume(ctx, sub)
		if ctx.Err() != nil {
			return nil
		}
		slog.WarnContext(ctx, "Relay subscription ended, resubscribing", "topic", r.topic)
	}
}

func (r *Relay) subscribe(ctx context.Context) (*goredis.PubSub, error) {
	policy := r.policy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.WarnContext(ctx, "Relay subscribe failed, retrying", "topic", r.topic, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return retry.Do(ctx, policy, retry.Transient, func(ctx context.Context) (*goredis.PubSub, error) {
		sub := r.rdb.Subscribe(ctx, r.topic)
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			return nil, err
		}
		return sub, nil
	})
}

func (r *Relay) consume(ctx context.Context, sub *goredis.PubSub) {
	defer func() { _ = sub.Close() }()

	r.subscribed.Store(true)
	defer r.subscribed.Store(false)
	slog.InfoContext(ctx, "Relay subscribed", "topic", r.topic)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			r.handle(ctx, msg.Payload)
		}
	}
}

func (r *Relay) handle(ctx context.Context, raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || len(env.Payload) == 0 {
		r.countReceived("malformed")
		slog.WarnContext(ctx, "Dropping malformed relay message", "error", err)
		return
	}

	result, err := r.local.Broadcast(ctx, env.Payload, env.Channel)
	if err != nil {
		r.countReceived("failed")
		slog.WarnContext(ctx, "Relay broadcast failed", "channel", env.Channel, "error", err)
		return
	}

	r.countReceived("ok")
	slog.DebugContext(ctx, "Relayed event delivered",
		"channel", env.Channel,
		"recipients", result.Recipients,
		"failed", result.Failed,
	)
}

// Ping reports whether Redis is reachable.
func (r *Relay) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Relay) countPublished(result string) {
	if r.metrics != nil {
		r.metrics.Published.WithLabelValues(result).Inc()
	}
}

func (r *Relay) countReceived(result string) {
	if r.metrics != nil {
		r.metrics.Received.WithLabelValues(result).Inc()
	}
}
