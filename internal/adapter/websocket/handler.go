package websocket

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/dashpulse/internal/adapter/metrics"
	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/pscheid92/dashpulse/internal/platform/correlation"
)

// SessionServer runs a session over an accepted transport until it closes.
type SessionServer interface {
	Serve(ctx context.Context, t domain.Transport) error
}

// Handler upgrades HTTP requests to websocket connections and hands them to
// the session server.
type Handler struct {
	server   SessionServer
	limits   *ConnectionLimits
	upgrader websocket.Upgrader
	opts     Options
	metrics  *metrics.WebSocketMetrics
}

// NewHandler creates the upgrade handler. limits and checkOrigin may be nil.
func NewHandler(server SessionServer, limits *ConnectionLimits, checkOrigin func(*http.Request) bool, opts Options) *Handler {
	opts = opts.withDefaults()
	return &Handler{
		server: server,
		limits: limits,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		opts:    opts,
		metrics: opts.Metrics,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, _ := correlation.Ensure(r.Context(), r.Header.Get(correlation.Header))
	ip := clientIP(r)

	if h.limits != nil {
		ok, reason := h.limits.Acquire(ip)
		if !ok {
			h.reject(string(reason))
			slog.WarnContext(ctx, "WebSocket connection rejected", "reason", reason, "ip", ip)
			status := http.StatusTooManyRequests
			if reason == LimitReasonGlobal {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, http.StatusText(status), status)
			return
		}
		defer h.limits.Release(ip)
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		h.reject("upgrade_failed")
		slog.DebugContext(ctx, "WebSocket upgrade failed", "ip", ip, "error", err)
		return
	}
	if h.metrics != nil {
		h.metrics.ConnectionsAccepted.Inc()
	}

	conn := NewConn(ws, h.opts)
	if err := h.server.Serve(ctx, conn); err != nil {
		slog.InfoContext(ctx, "WebSocket session ended with error", "connection_id", conn.ID(), "error", err)
	}
}

func (h *Handler) reject(reason string) {
	if h.metrics != nil {
		h.metrics.ConnectionsRejected.WithLabelValues(reason).Inc()
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
