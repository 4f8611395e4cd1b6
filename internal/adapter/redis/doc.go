// Package redis relays dashboard events between instances over Redis
// Pub/Sub and guards the client with a circuit breaker.
package redis
