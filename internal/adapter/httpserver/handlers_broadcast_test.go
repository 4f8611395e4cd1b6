package httpserver

import (
	"net/http"
	"testing"

	"github.com/pscheid92/dashpulse/internal/broadcast"
	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcast_ToChannel(t *testing.T) {
	env := newTestEnv(t)
	alerts := env.subscribe("alerts")
	other := env.subscribe("metrics")

	rec := env.do(t, http.MethodPost, "/api/broadcast", `{"channel":"alerts","message":{"text":"deploy started"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[domain.BroadcastResult](t, rec.Body.Bytes())
	assert.Equal(t, "alerts", result.Channel)
	assert.Equal(t, 1, result.Recipients)
	assert.Equal(t, 1, result.Delivered)
	assert.Zero(t, result.Failed)

	require.Len(t, alerts.messages(), 1)
	assert.JSONEq(t, `{"text":"deploy started"}`, alerts.messages()[0])
	assert.Empty(t, other.messages())
}

func TestBroadcast_ToEveryone(t *testing.T) {
	env := newTestEnv(t)
	a := env.subscribe()
	b := env.subscribe("alerts")

	rec := env.do(t, http.MethodPost, "/api/broadcast", `{"message":"maintenance at noon"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[domain.BroadcastResult](t, rec.Body.Bytes())
	assert.Equal(t, 2, result.Recipients)
	assert.Equal(t, 2, result.Delivered)
	assert.Equal(t, []string{`"maintenance at noon"`}, a.messages())
	assert.Equal(t, []string{`"maintenance at noon"`}, b.messages())
}

func TestBroadcast_NoSubscribers(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/broadcast", `{"channel":"empty","message":1}`)

	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[domain.BroadcastResult](t, rec.Body.Bytes())
	assert.Zero(t, result.Recipients)
}

func TestBroadcast_MissingMessage(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/broadcast", `{"channel":"alerts"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChannels(t *testing.T) {
	env := newTestEnv(t)
	env.subscribe("alerts", "metrics")
	env.subscribe("alerts")
	env.subscribe()

	rec := env.do(t, http.MethodGet, "/api/channels", "")

	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[broadcast.Stats](t, rec.Body.Bytes())
	assert.Equal(t, 3, stats.Connections)
	assert.Equal(t, map[string]int{"alerts": 2, "metrics": 1}, stats.Channels)
}
