package controller

import (
	"github.com/cryptoview/market-data/internal/model"
)

// Validation error messages, published on the error subject with the
// offending data_id as error_place.
const (
	errNotJSON      = "Message not is JSON"
	errNotAction    = "Not 'action' value"
	errNotDataID    = "Not 'data_id' value"
	errBadAction    = "Invalid 'action' value"
	errBadDataID    = "Bad 'data_type' value"
	errBadExchange  = "Invalid 'exchange' value"
	errBadPair      = "Invalid 'pair' value"
	errBadTimeframe = "Invalid 'time_frame' value"
	errBadListing   = "Listing information send only if 'action' = 'get_starting'"
)

// verdict is the outcome of demand validation. Exactly one of err, listing,
// or id is meaningful: a non-empty err rejects the demand, listing marks the
// listing sentinel, otherwise id is the validated stream identifier.
type verdict struct {
	err     string
	listing bool
	id      model.StreamID
}

// validate runs the demand validation chain. The first failing check wins.
func (c *Controller) validate(demand model.Demand) verdict {
	if demand.Action == "" {
		return verdict{err: errNotAction}
	}
	if !demand.Action.Known() {
		return verdict{err: errBadAction}
	}
	if demand.DataID == "" {
		return verdict{err: errNotDataID}
	}

	// The listing sentinel is only legal with get_starting.
	if demand.DataID == model.ListingID {
		if demand.Action != model.ActionGetStarting {
			return verdict{err: errBadListing}
		}
		return verdict{listing: true}
	}

	id, err := model.ParseStreamID(demand.DataID)
	if err != nil {
		return verdict{err: errBadDataID}
	}

	if _, ok := c.registry.Get(id.Exchange); !ok {
		return verdict{err: errBadExchange}
	}

	entry, ok := c.cache.Lookup(id.Exchange)
	if !ok || !entry.HasPair(id.Pair) {
		return verdict{err: errBadPair}
	}
	if id.Kind == model.KindCandles && !entry.HasTimeframe(id.Timeframe) {
		return verdict{err: errBadTimeframe}
	}

	return verdict{id: id}
}
