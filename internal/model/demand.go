package model

// Action is a demand-message instruction from the gateway to the controller.
type Action string

const (
	// ActionSub starts the continuous update task for a stream.
	ActionSub Action = "sub"
	// ActionUnsub stops the update task for a stream.
	ActionUnsub Action = "unsub"
	// ActionGetStarting requests the one-shot starting payload for a stream,
	// or a listing recompute when data_id is the listing sentinel.
	ActionGetStarting Action = "get_starting"
)

// Demand is the gateway → controller instruction carried on the demand queue.
type Demand struct {
	Action Action `json:"action"`
	DataID string `json:"data_id"`
}

// Known returns whether the action is one of sub, unsub or get_starting.
func (a Action) Known() bool {
	return a == ActionSub || a == ActionUnsub || a == ActionGetStarting
}

// ErrorMessage is published on the error subject for every non-fatal
// protocol failure. ErrorPlace carries the offending data_id when the
// failure is attributable to one stream.
type ErrorMessage struct {
	ErrorPlace string `json:"error_place,omitempty"`
	Message    string `json:"message"`
}

// Listing maps an exchange name to its valid timeframes and pairs. Wire
// form: {exchange: [[timeframes], [pairs]]}.
type Listing map[string]ListingEntry

// ListingEntry holds the valid timeframes and pairs of one exchange.
type ListingEntry struct {
	Timeframes []string
	Pairs      []string
}

// MarshalJSON encodes the entry as [timeframes, pairs].
func (e ListingEntry) MarshalJSON() ([]byte, error) {
	return marshalTuple(e.Timeframes, e.Pairs)
}

// UnmarshalJSON decodes the [timeframes, pairs] form.
func (e *ListingEntry) UnmarshalJSON(data []byte) error {
	return unmarshalTuple(data, &e.Timeframes, &e.Pairs)
}

// HasPair reports whether pair is listed on the exchange.
func (e ListingEntry) HasPair(pair string) bool {
	for _, p := range e.Pairs {
		if p == pair {
			return true
		}
	}
	return false
}

// HasTimeframe reports whether timeframe is valid on the exchange.
func (e ListingEntry) HasTimeframe(timeframe string) bool {
	for _, tf := range e.Timeframes {
		if tf == timeframe {
			return true
		}
	}
	return false
}
