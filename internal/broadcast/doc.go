// Package broadcast implements the connection registry, the channel subscription index,
// the broadcast dispatcher and the per-connection lifecycle controller.
//
// Registry and Subscriptions guard their maps with short critical sections. The Dispatcher
// snapshots recipients under those locks and delivers outside of them, so network I/O never
// blocks a subscribe, an unsubscribe or another broadcast.
package broadcast
