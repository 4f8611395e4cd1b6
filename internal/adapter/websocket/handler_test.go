package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/dashpulse/internal/broadcast"
	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func startServer(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func newHubServer(t *testing.T, opts Options) (*broadcast.Hub, string) {
	t.Helper()
	hub := broadcast.NewHub(nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = hub.Controller.Shutdown(ctx)
	})
	return hub, startServer(t, NewHandler(hub.Controller, nil, nil, opts))
}

func subscribe(t *testing.T, hub *broadcast.Hub, ws *websocket.Conn, channel string) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(map[string]string{"action": "subscribe", "channel": channel}))
	require.Eventually(t, func() bool {
		return len(hub.Subscriptions.SubscribersOf(channel)) > 0
	}, waitFor, 10*time.Millisecond)
}

func TestHandler_SubscribeAndReceive(t *testing.T) {
	hub, url := newHubServer(t, DefaultOptions())
	ws := dial(t, url)

	subscribe(t, hub, ws, domain.ChannelTasks)

	result, err := hub.Dispatcher.Broadcast(context.Background(), map[string]any{"type": "task_update", "data": map[string]string{"id": "task-001"}}, domain.ChannelTasks)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Delivered)

	_ = ws.SetReadDeadline(time.Now().Add(waitFor))
	var got map[string]any
	require.NoError(t, ws.ReadJSON(&got))
	assert.Equal(t, "task_update", got["type"])
}

func TestHandler_UnsubscribeStopsDelivery(t *testing.T) {
	hub, url := newHubServer(t, DefaultOptions())
	ws := dial(t, url)

	subscribe(t, hub, ws, domain.ChannelAgents)
	require.NoError(t, ws.WriteJSON(map[string]string{"action": "unsubscribe", "channel": domain.ChannelAgents}))
	require.Eventually(t, func() bool {
		return len(hub.Subscriptions.SubscribersOf(domain.ChannelAgents)) == 0
	}, waitFor, 10*time.Millisecond)

	result, err := hub.Dispatcher.Broadcast(context.Background(), map[string]string{"type": "agent_status"}, domain.ChannelAgents)
	require.NoError(t, err)
	assert.Zero(t, result.Recipients)

	// still registered, so a global broadcast reaches it
	result, err = hub.Dispatcher.Broadcast(context.Background(), map[string]string{"type": "ping"}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Delivered)
}

func TestHandler_ClientCloseCleansUp(t *testing.T) {
	hub, url := newHubServer(t, DefaultOptions())
	ws := dial(t, url)
	subscribe(t, hub, ws, domain.ChannelWorkflows)

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	assert.Eventually(t, func() bool {
		return hub.Registry.Len() == 0 && hub.Subscriptions.Len() == 0
	}, waitFor, 10*time.Millisecond)
}

func TestHandler_MalformedFrameKeepsSessionOpen(t *testing.T) {
	hub, url := newHubServer(t, DefaultOptions())
	ws := dial(t, url)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	subscribe(t, hub, ws, domain.ChannelSuggestions)

	assert.Equal(t, 1, hub.Registry.Len())
}

func TestHandler_ShutdownClosesClients(t *testing.T) {
	hub, url := newHubServer(t, DefaultOptions())
	ws := dial(t, url)
	require.Eventually(t, func() bool { return hub.Registry.Len() == 1 }, waitFor, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, hub.Controller.Shutdown(ctx))

	_ = ws.SetReadDeadline(time.Now().Add(waitFor))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestHandler_IdleTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hub, url := newHubServer(t, Options{PingInterval: 10 * time.Second, IdleTimeout: time.Minute, Clock: clock})
	ws := dial(t, url)
	require.Eventually(t, func() bool { return hub.Registry.Len() == 1 }, waitFor, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(2 * time.Minute)

	_ = ws.SetReadDeadline(time.Now().Add(waitFor))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Eventually(t, func() bool { return hub.Registry.Len() == 0 }, waitFor, 10*time.Millisecond)
}

func TestHandler_ConnectionLimits(t *testing.T) {
	hub := broadcast.NewHub(nil)
	limits := NewConnectionLimits(1, 10, 100, 100, clockwork.NewRealClock())
	url := startServer(t, NewHandler(hub.Controller, limits, nil, DefaultOptions()))

	dial(t, url)
	require.Eventually(t, func() bool { return hub.Registry.Len() == 1 }, waitFor, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandler_OriginRejected(t *testing.T) {
	hub := broadcast.NewHub(nil)
	url := startServer(t, NewHandler(hub.Controller, nil, NewCheckOrigin("https://dashpulse.example.com", nil, false), DefaultOptions()))

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, hub.Registry.Len())
}

type captureServer struct {
	conns chan domain.Transport
}

func (s *captureServer) Serve(ctx context.Context, t domain.Transport) error {
	s.conns <- t
	for {
		if _, err := t.Receive(ctx); err != nil {
			return nil
		}
	}
}

func TestConn_SendAfterClose(t *testing.T) {
	server := &captureServer{conns: make(chan domain.Transport, 1)}
	url := startServer(t, NewHandler(server, nil, nil, DefaultOptions()))
	ws := dial(t, url)

	var conn domain.Transport
	select {
	case conn = <-server.conns:
	case <-time.After(waitFor):
		t.Fatal("no connection accepted")
	}

	require.NoError(t, conn.Send(context.Background(), []byte(`{"hello":"world"}`)))
	_ = ws.SetReadDeadline(time.Now().Add(waitFor))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(data))

	assert.False(t, conn.Closed())
	require.NoError(t, conn.Close())
	assert.True(t, conn.Closed())
	assert.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.Send(context.Background(), []byte(`{}`)), domain.ErrConnectionClosed)
}

func acceptConn(t *testing.T) (domain.Transport, *websocket.Conn) {
	t.Helper()
	server := &captureServer{conns: make(chan domain.Transport, 1)}
	url := startServer(t, NewHandler(server, nil, nil, Options{SendBuffer: 64}))
	ws := dial(t, url)

	select {
	case conn := <-server.conns:
		return conn, ws
	case <-time.After(waitFor):
		t.Fatal("no connection accepted")
		return nil, nil
	}
}

func TestConn_SendRacingCloseNeverLosesAcceptedFrames(t *testing.T) {
	for range 25 {
		conn, ws := acceptConn(t)

		var (
			mu       sync.Mutex
			accepted []string
			wg       sync.WaitGroup
		)
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := range 4 {
					frame := fmt.Sprintf(`{"sender":%d,"seq":%d}`, i, j)
					if conn.Send(context.Background(), []byte(frame)) == nil {
						mu.Lock()
						accepted = append(accepted, frame)
						mu.Unlock()
					}
				}
			}()
		}
		require.NoError(t, conn.Close())
		wg.Wait()

		assert.ErrorIs(t, conn.Send(context.Background(), []byte(`{}`)), domain.ErrConnectionClosed)

		var received []string
		_ = ws.SetReadDeadline(time.Now().Add(waitFor))
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected read error: %v", err)
				break
			}
			received = append(received, string(data))
		}
		assert.ElementsMatch(t, accepted, received)
	}
}
