package broadcast

import (
	"sync"

	"github.com/pscheid92/dashpulse/internal/domain"
)

type connSet map[string]domain.Connection

// Subscriptions maps channel names to their subscribers. A reverse index
// (connection -> channels) keeps UnsubscribeAll proportional to the number
// of channels the connection actually joined.
//
// Invariant: no channel maps to an empty set.
type Subscriptions struct {
	mu        sync.RWMutex
	byChannel map[string]connSet
	byConn    map[string]map[string]struct{}
}

func NewSubscriptions() *Subscriptions {
	return &Subscriptions{
		byChannel: make(map[string]connSet),
		byConn:    make(map[string]map[string]struct{}),
	}
}

// Subscribe adds conn to channel, creating the channel if needed.
// Returns false if conn was already subscribed.
func (s *Subscriptions) Subscribe(conn domain.Connection, channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	subscribers, exists := s.byChannel[channel]
	if !exists {
		subscribers = make(connSet)
		s.byChannel[channel] = subscribers
	}
	if _, already := subscribers[conn.ID()]; already {
		return false
	}
	subscribers[conn.ID()] = conn

	channels, exists := s.byConn[conn.ID()]
	if !exists {
		channels = make(map[string]struct{})
		s.byConn[conn.ID()] = channels
	}
	channels[channel] = struct{}{}
	return true
}

// Unsubscribe removes conn from channel. Unknown channels and connections
// are a no-op. Returns false if nothing changed.
func (s *Subscriptions) Unsubscribe(conn domain.Connection, channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(conn.ID(), channel)
}

// UnsubscribeAll removes conn from every channel and returns the channels it left.
func (s *Subscriptions) UnsubscribeAll(conn domain.Connection) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels := s.byConn[conn.ID()]
	left := make([]string, 0, len(channels))
	for channel := range channels {
		if s.removeLocked(conn.ID(), channel) {
			left = append(left, channel)
		}
	}
	return left
}

func (s *Subscriptions) removeLocked(connID, channel string) bool {
	subscribers, exists := s.byChannel[channel]
	if !exists {
		return false
	}
	if _, member := subscribers[connID]; !member {
		return false
	}

	delete(subscribers, connID)
	if len(subscribers) == 0 {
		delete(s.byChannel, channel)
	}

	if channels, ok := s.byConn[connID]; ok {
		delete(channels, channel)
		if len(channels) == 0 {
			delete(s.byConn, connID)
		}
	}
	return true
}

// SubscribersOf returns a copy of the subscriber set of channel, empty if
// the channel does not exist.
func (s *Subscriptions) SubscribersOf(channel string) []domain.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subscribers := s.byChannel[channel]
	out := make([]domain.Connection, 0, len(subscribers))
	for _, conn := range subscribers {
		out = append(out, conn)
	}
	return out
}

// ChannelsOf returns the channels conn is subscribed to.
func (s *Subscriptions) ChannelsOf(conn domain.Connection) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channels := s.byConn[conn.ID()]
	out := make([]string, 0, len(channels))
	for channel := range channels {
		out = append(out, channel)
	}
	return out
}

// Channels returns every channel with its subscriber count.
func (s *Subscriptions) Channels() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int, len(s.byChannel))
	for channel, subscribers := range s.byChannel {
		out[channel] = len(subscribers)
	}
	return out
}

// Len returns the number of channels with at least one subscriber.
func (s *Subscriptions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byChannel)
}
