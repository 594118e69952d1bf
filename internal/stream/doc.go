// Package stream implements the streaming market-data channel client.
//
// A Client wraps one WebSocket connection:
//   - a read loop that timestamps and forwards every frame
//   - a keepalive loop that pings the server and flags stale connections
//   - Close is idempotent and Done reports when the connection is gone
//
// Clients are never reused. A Dialer hands out a fresh, connected Client per
// attempt, so reconnect logic lives in the caller.
//
// Wire protocol (JSON text frames):
//
//	client -> server  {"action":"subscribe","symbol":"BTC"}
//	server -> client  {"type":"history","symbol":"BTC","points":[{"timestamp":ms,"price":p},...]}
//	server -> client  {"type":"price","symbol":"BTC","price":p,"ts":ms}
package stream
