package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/pscheid92/dashpulse/internal/domain"
)

const maxInboundMessageBytes = 64 << 10

// Options tunes a single connection.
type Options struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	IdleTimeout  time.Duration // 0 disables
	Clock        clockwork.Clock
	Metrics      *metrics.WebSocketMetrics
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		SendBuffer:   16,
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
		Clock:        clockwork.NewRealClock(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.Clock == nil {
		o.Clock = d.Clock
	}
	return o
}

// Conn adapts a gorilla websocket connection to domain.Transport. Outbound
// frames go through a bounded buffer drained by a single writer goroutine,
// so Send never blocks on a slow peer.
type Conn struct {
	id   string
	ws   *websocket.Conn
	opts Options

	sendCh chan []byte
	doneCh chan struct{}
	closed atomic.Bool
	sendMu sync.RWMutex // orders Send's enqueue against Close

	stopOnce sync.Once
	wg       sync.WaitGroup

	activityMu   sync.Mutex
	lastActivity time.Time
}

var _ domain.Transport = (*Conn)(nil)

// NewConn takes ownership of ws and starts its writer goroutine.
func NewConn(ws *websocket.Conn, opts Options) *Conn {
	opts = opts.withDefaults()
	c := &Conn{
		id:           uuid.NewString(),
		ws:           ws,
		opts:         opts,
		sendCh:       make(chan []byte, opts.SendBuffer),
		doneCh:       make(chan struct{}),
		lastActivity: opts.Clock.Now(),
	}

	ws.SetReadLimit(maxInboundMessageBytes)
	c.extendReadDeadline()
	ws.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		c.recordActivity()
		return nil
	})

	c.wg.Add(1)
	go c.run()
	return c
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Closed() bool { return c.closed.Load() }

// Send queues data for the writer. It fails fast with ErrSendBufferFull when
// the peer is not keeping up. A nil return means the frame is written before
// the close frame, unless the socket itself fails.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	if c.closed.Load() {
		return domain.ErrConnectionClosed
	}
	select {
	case <-c.doneCh:
		return domain.ErrConnectionClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.sendCh <- data:
		return nil
	default:
		return domain.ErrSendBufferFull
	}
}

// Receive returns the next text or binary frame. A close frame from the peer
// yields io.EOF and a local Close yields ErrConnectionClosed.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		switch {
		case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
			return nil, io.EOF
		case c.closed.Load():
			return nil, domain.ErrConnectionClosed
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nil, fmt.Errorf("read message: %w", err)
		}
	}

	c.extendReadDeadline()
	c.recordActivity()
	return data, nil
}

// Close stops the writer, sends a normal close frame and closes the socket.
// Safe to call more than once and concurrently.
func (c *Conn) Close() error {
	var err error
	c.stopOnce.Do(func() {
		c.sendMu.Lock()
		c.closed.Store(true)
		close(c.doneCh)
		c.sendMu.Unlock()

		// the writer must be gone before the close frame is written
		c.wg.Wait()

		c.writeClose(websocket.CloseNormalClosure, "")
		err = c.ws.Close()
		if errors.Is(err, websocket.ErrCloseSent) {
			err = nil
		}
	})
	return err
}

func (c *Conn) run() {
	defer c.wg.Done()

	ticker := c.opts.Clock.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.sendCh:
			start := c.opts.Clock.Now()
			c.extendWriteDeadline()
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.abort()
				return
			}
			if c.opts.Metrics != nil {
				c.opts.Metrics.SendDuration.Observe(c.opts.Clock.Since(start).Seconds())
			}
		case <-ticker.Chan():
			if c.idle() {
				if c.opts.Metrics != nil {
					c.opts.Metrics.IdleDisconnects.Inc()
				}
				c.writeClose(websocket.CloseGoingAway, "idle timeout")
				c.abort()
				return
			}
			c.extendWriteDeadline()
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				if c.opts.Metrics != nil {
					c.opts.Metrics.PingFailures.Inc()
				}
				c.abort()
				return
			}
		case <-c.doneCh:
			c.flush()
			return
		}
	}
}

// flush writes frames queued before Close.
func (c *Conn) flush() {
	for {
		select {
		case msg := <-c.sendCh:
			c.extendWriteDeadline()
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// abort marks the connection dead from inside the writer. The blocked reader
// then fails and the session closes through the normal path.
func (c *Conn) abort() {
	c.closed.Store(true)
	_ = c.ws.Close()
}

func (c *Conn) idle() bool {
	if c.opts.IdleTimeout <= 0 {
		return false
	}
	c.activityMu.Lock()
	defer c.activityMu.Unlock()
	return c.opts.Clock.Since(c.lastActivity) >= c.opts.IdleTimeout
}

func (c *Conn) recordActivity() {
	c.activityMu.Lock()
	defer c.activityMu.Unlock()
	c.lastActivity = c.opts.Clock.Now()
}

func (c *Conn) writeClose(code int, reason string) {
	c.extendWriteDeadline()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

// Socket deadlines are wall-clock; the injected clock only drives pings and
// idle tracking.
func (c *Conn) extendWriteDeadline() {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
}

func (c *Conn) extendReadDeadline() {
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * c.opts.PingInterval))
}
