package domain

import "context"

// BroadcastResult summarises one broadcast call.
type BroadcastResult struct {
	Channel    string `json:"channel,omitempty"`
	Recipients int    `json:"recipients"`
	Delivered  int    `json:"delivered"`
	Failed     int    `json:"failed"`
}

// Broadcaster pushes a message to every live connection (channel == "")
// or to the subscribers of one channel. The only returned error is a
// payload that cannot be serialized.
type Broadcaster interface {
	Broadcast(ctx context.Context, message any, channel string) (BroadcastResult, error)
}

// EventPublisher publishes dashboard events to a channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, event Event) error
}
