package broadcast

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory transport. Frames pushed with deliverFrame are
// returned by Receive; peerClose makes Receive report an orderly close.
type fakeConn struct {
	id string

	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	closed  bool

	closeCalls int
	inbox      chan []byte
	peerDone   chan struct{}
	localDone  chan struct{}
	recvErr    chan error
	peerOnce   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		id:        uuid.NewString(),
		inbox:     make(chan []byte, 16),
		peerDone:  make(chan struct{}),
		localDone: make(chan struct{}),
		recvErr:   make(chan error, 1),
	}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	if f.closed {
		return domain.ErrConnectionClosed
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.inbox:
		return data, nil
	case <-f.peerDone:
		return nil, io.EOF
	case <-f.localDone:
		return nil, domain.ErrConnectionClosed
	case err := <-f.recvErr:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if !f.closed {
		f.closed = true
		close(f.localDone)
	}
	return nil
}

func (f *fakeConn) failSends(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

func (f *fakeConn) deliverFrame(frame string) { f.inbox <- []byte(frame) }

func (f *fakeConn) peerClose() { f.peerOnce.Do(func() { close(f.peerDone) }) }

func (f *fakeConn) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = string(m)
	}
	return out
}

func (f *fakeConn) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

var errBrokenPipe = errors.New("broken pipe")

// serve starts a session for conn and returns a channel yielding Serve's result.
func serve(t *testing.T, c *Controller, conn *fakeConn) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Serve(context.Background(), conn) }()
	require.Eventually(t, func() bool { return c.registry.Contains(conn) }, time.Second, time.Millisecond)
	return done
}

func waitServe(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func ids(conns []domain.Connection) []string {
	out := make([]string, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.ID())
	}
	return out
}
