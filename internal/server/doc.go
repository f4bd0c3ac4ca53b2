// Package server exposes the client-facing websocket endpoint. Each accepted
// connection becomes a session registered with the gateway demand table;
// inbound sub/unsub requests drive Attach/Detach, and the table delivers
// market data back through the session's buffered send queue.
package server
