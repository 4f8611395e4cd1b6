package domain

import "context"

// Connection is a live client session that can receive pushed messages.
// Equality is by ID; two handles with the same ID are the same connection.
type Connection interface {
	ID() string
	Send(ctx context.Context, data []byte) error
	Closed() bool
}

// Transport is the receiving side of an accepted connection. Receive blocks
// until the next inbound frame arrives, the peer closes, or ctx is done.
type Transport interface {
	Connection
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}
