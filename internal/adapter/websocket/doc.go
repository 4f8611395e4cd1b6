// Package websocket carries hub sessions over gorilla/websocket. It owns the
// upgrade handler, the per-connection writer and the admission limits.
package websocket
