package broadcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/pscheid92/dashpulse/internal/platform/correlation"
)

// ErrControllerStopped is returned by Serve once Shutdown has been called.
var ErrControllerStopped = errors.New("controller stopped")

type sessionState int

const (
	stateConnecting sessionState = iota
	stateOpen
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateOpen:
		return "open"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type session struct {
	transport domain.Transport
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu    sync.Mutex // guards state; held while a control frame is applied
	state sessionState
}

func (s *session) currentState() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Controller drives one session per accepted transport: it registers the
// connection, applies subscribe/unsubscribe frames until the transport closes
// and then removes the connection from the index and the registry.
type Controller struct {
	registry      *Registry
	subscriptions *Subscriptions
	metrics       *metrics.HubMetrics

	mu       sync.Mutex
	sessions map[string]*session
	stopped  bool
	wg       sync.WaitGroup
}

// NewController creates a lifecycle controller. hubMetrics may be nil.
func NewController(registry *Registry, subscriptions *Subscriptions, hubMetrics *metrics.HubMetrics) *Controller {
	return &Controller{
		registry:      registry,
		subscriptions: subscriptions,
		metrics:       hubMetrics,
		sessions:      make(map[string]*session),
	}
}

// Serve runs the session for t and blocks until it is closed, either by the
// peer, by a receive error, by Disconnect/Shutdown or by ctx being done.
// Cleanup has completed when Serve returns. An orderly close returns nil.
func (c *Controller) Serve(ctx context.Context, t domain.Transport) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		_ = t.Close()
		return ErrControllerStopped
	}
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	if _, ok := correlation.ID(ctx); !ok {
		ctx = correlation.WithID(ctx, correlation.NewID())
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &session{transport: t, cancel: cancel, state: stateConnecting}
	if err := c.open(ctx, s); err != nil {
		// the registered session with this ID stays untouched
		slog.WarnContext(ctx, "Rejecting duplicate connection", "connection_id", t.ID(), "error", err)
		if cerr := t.Close(); cerr != nil {
			slog.DebugContext(ctx, "Transport close returned error", "connection_id", t.ID(), "error", cerr)
		}
		return nil
	}
	defer c.close(ctx, s)

	stop := context.AfterFunc(ctx, func() { c.close(ctx, s) })
	defer stop()

	for {
		data, err := t.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, domain.ErrConnectionClosed) {
				return nil
			}
			return fmt.Errorf("receive from %s: %w", t.ID(), err)
		}
		c.handleFrame(ctx, s, data)
	}
}

func (c *Controller) open(ctx context.Context, s *session) error {
	id := s.transport.ID()

	if err := c.registry.Register(s.transport); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.ActiveConnections.Inc()
	}

	c.mu.Lock()
	c.sessions[id] = s
	c.mu.Unlock()

	s.mu.Lock()
	s.state = stateOpen
	s.mu.Unlock()

	slog.InfoContext(ctx, "Client connected", "connection_id", id, "total_connections", c.registry.Len())
	return nil
}

// close moves s to Closed and runs cleanup exactly once, whichever trigger
// gets here first.
func (c *Controller) close(ctx context.Context, s *session) {
	s.closeOnce.Do(func() {
		id := s.transport.ID()

		s.mu.Lock()
		s.state = stateClosed
		s.mu.Unlock()

		left := c.subscriptions.UnsubscribeAll(s.transport)
		removed := c.registry.Unregister(s.transport)

		c.mu.Lock()
		if c.sessions[id] == s {
			delete(c.sessions, id)
		}
		c.mu.Unlock()

		s.cancel()
		if err := s.transport.Close(); err != nil {
			slog.DebugContext(ctx, "Transport close returned error", "connection_id", id, "error", err)
		}

		if c.metrics != nil {
			if removed {
				c.metrics.ActiveConnections.Dec()
			}
			c.metrics.ActiveChannels.Set(float64(c.subscriptions.Len()))
		}

		slog.InfoContext(ctx, "Client disconnected",
			"connection_id", id,
			"channels_left", len(left),
			"total_connections", c.registry.Len(),
		)
	})
}

func (c *Controller) handleFrame(ctx context.Context, s *session, data []byte) {
	id := s.transport.ID()

	frame, err := parseControlFrame(data)
	if err != nil {
		reason := "malformed"
		var perr *protocolError
		if errors.As(err, &perr) {
			reason = perr.Reason
		}
		if c.metrics != nil {
			c.metrics.ProtocolErrors.WithLabelValues(reason).Inc()
		}
		slog.WarnContext(ctx, "Ignoring control frame", "connection_id", id, "reason", reason, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return
	}

	var changed bool
	switch frame.Action {
	case ActionSubscribe:
		changed = c.subscriptions.Subscribe(s.transport, frame.Channel)
	case ActionUnsubscribe:
		changed = c.subscriptions.Unsubscribe(s.transport, frame.Channel)
	}

	if c.metrics != nil {
		c.metrics.ControlFrames.WithLabelValues(string(frame.Action)).Inc()
		c.metrics.ActiveChannels.Set(float64(c.subscriptions.Len()))
	}
	slog.DebugContext(ctx, "Control frame applied",
		"connection_id", id,
		"action", frame.Action,
		"channel", frame.Channel,
		"changed", changed,
	)
}

// Disconnect closes the session with the given connection ID. Returns false
// if no such session is open. Safe to call concurrently with the session's
// own receive loop and more than once.
func (c *Controller) Disconnect(ctx context.Context, connectionID string) bool {
	c.mu.Lock()
	s, exists := c.sessions[connectionID]
	c.mu.Unlock()
	if !exists {
		return false
	}
	c.close(ctx, s)
	return true
}

// Sessions returns the number of open sessions.
func (c *Controller) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Shutdown closes every session, rejects new ones and waits for all Serve
// calls to return or ctx to be done.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = true
	open := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		open = append(open, s)
	}
	c.mu.Unlock()

	for _, s := range open {
		c.close(ctx, s)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.InfoContext(ctx, "Controller stopped", "closed_sessions", len(open))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for sessions: %w", ctx.Err())
	}
}
