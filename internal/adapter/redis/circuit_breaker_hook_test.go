package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingProcess(err error) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error { return err }
}

func TestCircuitBreakerHook_NormalOperation(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	assert.Equal(t, gobreaker.StateClosed, hook.GetState())

	ctx := context.Background()
	process := hook.ProcessHook(failingProcess(nil))
	for range 10 {
		assert.NoError(t, process(ctx, goredis.NewIntCmd(ctx, "publish", "topic", "msg")))
	}

	assert.Equal(t, gobreaker.StateClosed, hook.GetState())
	counts := hook.GetCounts()
	assert.Equal(t, uint32(10), counts.Requests)
	assert.Equal(t, uint32(10), counts.TotalSuccesses)
	assert.Equal(t, uint32(0), counts.TotalFailures)
}

func TestCircuitBreakerHook_NilIsNotAFailure(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	ctx := context.Background()

	process := hook.ProcessHook(failingProcess(goredis.Nil))
	for range 10 {
		err := process(ctx, goredis.NewStringCmd(ctx, "get", "missing"))
		assert.ErrorIs(t, err, goredis.Nil)
	}

	assert.Equal(t, gobreaker.StateClosed, hook.GetState())
}

func TestCircuitBreakerHook_TransientFailures(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	ctx := context.Background()

	process := hook.ProcessHook(failingProcess(errors.New("connection refused")))
	for range 2 {
		err := process(ctx, goredis.NewIntCmd(ctx, "publish", "topic", "msg"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	assert.Equal(t, gobreaker.StateClosed, hook.GetState())
}

func TestCircuitBreakerHook_OpensAndFailsFast(t *testing.T) {
	reg := prometheus.NewRegistry()
	relayMetrics := metrics.NewRelayMetrics(reg)
	hook := NewCircuitBreakerHook(relayMetrics)
	ctx := context.Background()

	process := hook.ProcessHook(failingProcess(errors.New("redis down")))
	for range 5 {
		_ = process(ctx, goredis.NewIntCmd(ctx, "publish", "topic", "msg"))
	}
	require.Equal(t, gobreaker.StateOpen, hook.GetState())
	assert.InDelta(t, 2.0, testutil.ToFloat64(relayMetrics.BreakerState), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(relayMetrics.BreakerTransitions.WithLabelValues("open")), 0.001)

	called := false
	process = hook.ProcessHook(func(ctx context.Context, cmd goredis.Cmder) error {
		called = true
		return nil
	})
	cmd := goredis.NewIntCmd(ctx, "publish", "topic", "msg")
	err := process(ctx, cmd)

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, cmd.Err(), ErrCircuitOpen)
	assert.False(t, called, "redis must not be called while the circuit is open")
}

func TestCircuitBreakerHook_RecoversThroughHalfOpen(t *testing.T) {
	hook := newCircuitBreakerHook(gobreaker.Settings{
		Name:        "redis-test",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}, nil)
	ctx := context.Background()

	failing := hook.ProcessHook(failingProcess(errors.New("failure")))
	for range 3 {
		_ = failing(ctx, goredis.NewIntCmd(ctx, "publish", "topic", "msg"))
	}
	require.Equal(t, gobreaker.StateOpen, hook.GetState())

	require.Eventually(t, func() bool {
		return hook.GetState() == gobreaker.StateHalfOpen
	}, time.Second, 10*time.Millisecond)

	healthy := hook.ProcessHook(failingProcess(nil))
	require.NoError(t, healthy(ctx, goredis.NewIntCmd(ctx, "publish", "topic", "msg")))
	assert.Equal(t, gobreaker.StateClosed, hook.GetState())
}

func TestCircuitBreakerHook_Pipeline(t *testing.T) {
	hook := newCircuitBreakerHook(gobreaker.Settings{
		Name:        "redis-test",
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 1 },
		Timeout:     time.Minute,
	}, nil)
	ctx := context.Background()

	pipeline := hook.ProcessPipelineHook(func(ctx context.Context, cmds []goredis.Cmder) error {
		return errors.New("broken pipe")
	})
	cmds := []goredis.Cmder{goredis.NewIntCmd(ctx, "publish", "a", "1"), goredis.NewIntCmd(ctx, "publish", "b", "2")}
	require.Error(t, pipeline(ctx, cmds))
	require.Equal(t, gobreaker.StateOpen, hook.GetState())

	err := pipeline(ctx, cmds)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	for _, cmd := range cmds {
		assert.ErrorIs(t, cmd.Err(), ErrCircuitOpen)
	}
}
