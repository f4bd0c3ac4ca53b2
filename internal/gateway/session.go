package gateway

import jsoniter "github.com/json-iterator/go"

// Outbound is one message queued for delivery to a client. Either Data or
// Error is set. DataID carries the routing key of market-data publications
// (phase included) so clients can tell snapshots from updates.
type Outbound struct {
	DataID string              `json:"data_id,omitempty"`
	Data   jsoniter.RawMessage `json:"data,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// Session is one connected client, the observer of the demand table.
// Implementations must preserve the order of Deliver calls per session and
// must not block: a slow client lags or drops, it never stalls fan-out.
type Session interface {
	Deliver(msg Outbound)
}
