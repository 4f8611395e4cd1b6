package redis

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/pscheid92/dashpulse/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type broadcastCall struct {
	channel string
	payload string
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, message any, channel string) (domain.BroadcastResult, error) {
	raw, ok := message.(json.RawMessage)
	if !ok {
		data, err := json.Marshal(message)
		if err != nil {
			return domain.BroadcastResult{}, err
		}
		raw = data
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcastCall{channel: channel, payload: string(raw)})
	return domain.BroadcastResult{Channel: channel, Recipients: 1, Delivered: 1}, nil
}

func (b *recordingBroadcaster) snapshot() []broadcastCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastCall(nil), b.calls...)
}

func unreachableClient(t *testing.T) *goredis.Client {
	t.Helper()
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRelay_PublishFallsBackToLocal(t *testing.T) {
	local := &recordingBroadcaster{}
	relayMetrics := metrics.NewRelayMetrics(prometheus.NewRegistry())
	relay := NewRelay(unreachableClient(t), "dashpulse:events", local, relayMetrics)

	event := domain.Event{
		Type:      domain.EventTaskUpdate,
		Data:      map[string]string{"id": "task-001"},
		Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
	require.NoError(t, relay.Publish(context.Background(), domain.ChannelTasks, event))

	calls := local.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.ChannelTasks, calls[0].channel)
	assert.JSONEq(t, `{"type":"task_update","data":{"id":"task-001"},"timestamp":"2024-01-15T10:30:00Z"}`, calls[0].payload)
	assert.InDelta(t, 1.0, testutil.ToFloat64(relayMetrics.Published.WithLabelValues("fallback")), 0.001)
}

func TestRelay_PingUnreachable(t *testing.T) {
	relay := NewRelay(unreachableClient(t), "dashpulse:events", &recordingBroadcaster{}, nil)
	assert.Error(t, relay.Ping(context.Background()))
}

func TestRelay_HandleDropsMalformed(t *testing.T) {
	local := &recordingBroadcaster{}
	relayMetrics := metrics.NewRelayMetrics(prometheus.NewRegistry())
	relay := NewRelay(unreachableClient(t), "dashpulse:events", local, relayMetrics)

	relay.handle(context.Background(), "not json")
	relay.handle(context.Background(), `{"channel":"tasks"}`)
	relay.handle(context.Background(), `{"channel":"","payload":{"type":"agent_status"}}`)

	calls := local.snapshot()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].channel)
	assert.JSONEq(t, `{"type":"agent_status"}`, calls[0].payload)
	assert.InDelta(t, 2.0, testutil.ToFloat64(relayMetrics.Received.WithLabelValues("malformed")), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(relayMetrics.Received.WithLabelValues("ok")), 0.001)
}

func TestRelay_RunReturnsErrorWhenSubscribeRetriesExhausted(t *testing.T) {
	local := &recordingBroadcaster{}
	relay := NewRelay(unreachableClient(t), "dashpulse:events", local, nil,
		WithSubscribePolicy(retry.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond}))

	err := relay.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe to dashpulse:events")
	assert.False(t, relay.Subscribed())

	event := domain.Event{Type: domain.EventAgentStatus, Data: map[string]string{"id": "agent-001"}, Timestamp: time.Now().UTC()}
	require.NoError(t, relay.Publish(context.Background(), domain.ChannelAgents, event))
	require.Len(t, local.snapshot(), 1)
	assert.Equal(t, domain.ChannelAgents, local.snapshot()[0].channel)
}

func TestRelay_RunStopsQuietlyOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	relay := NewRelay(unreachableClient(t), "dashpulse:events", &recordingBroadcaster{}, nil,
		WithSubscribePolicy(retry.Policy{MaxAttempts: 5, InitialBackoff: time.Millisecond}))
	assert.NoError(t, relay.Run(ctx))
}
