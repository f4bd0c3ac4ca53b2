package model

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// MaxDepthLevels caps each side of a depth payload.
const MaxDepthLevels = 20

// Ticker is the best bid/ask pair for a market. Wire form: [bid, ask].
type Ticker struct {
	Bid string
	Ask string
}

// MarshalJSON encodes the ticker as [bid, ask].
func (t Ticker) MarshalJSON() ([]byte, error) {
	return marshalTuple(t.Bid, t.Ask)
}

// UnmarshalJSON decodes the [bid, ask] form.
func (t *Ticker) UnmarshalJSON(data []byte) error {
	return unmarshalTuple(data, &t.Bid, &t.Ask)
}

// Ordered reports whether bid <= ask. Unparsable prices report false.
func (t Ticker) Ordered() bool {
	bid, err := decimal.NewFromString(t.Bid)
	if err != nil {
		return false
	}
	ask, err := decimal.NewFromString(t.Ask)
	if err != nil {
		return false
	}
	return bid.LessThanOrEqual(ask)
}

// Candle is one OHLCV bar. Wire form: [open, high, low, close, volume, time].
type Candle struct {
	Open   string
	High   string
	Low    string
	Close  string
	Volume string
	Time   int64 // bar open, Unix seconds
}

// MarshalJSON encodes the candle as [open, high, low, close, volume, time].
func (c Candle) MarshalJSON() ([]byte, error) {
	return marshalTuple(c.Open, c.High, c.Low, c.Close, c.Volume, c.Time)
}

// UnmarshalJSON decodes the [open, high, low, close, volume, time] form.
func (c *Candle) UnmarshalJSON(data []byte) error {
	return unmarshalTuple(data, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Time)
}

// Normalize enforces high = max(o,h,l,c) and low = min(o,h,l,c). Candles with
// unparsable prices are returned unchanged.
func (c Candle) Normalize() Candle {
	prices := make([]decimal.Decimal, 0, 4)
	for _, s := range []string{c.Open, c.High, c.Low, c.Close} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return c
		}
		prices = append(prices, d)
	}

	high, low := prices[0], prices[0]
	for _, d := range prices[1:] {
		if d.GreaterThan(high) {
			high = d
		}
		if d.LessThan(low) {
			low = d
		}
	}

	c.High = high.String()
	c.Low = low.String()
	return c
}

// PriceLevel is one order-book level. Wire form: [price, volume].
type PriceLevel struct {
	Price  string
	Volume string
}

// MarshalJSON encodes the level as [price, volume].
func (l PriceLevel) MarshalJSON() ([]byte, error) {
	return marshalTuple(l.Price, l.Volume)
}

// UnmarshalJSON decodes the [price, volume] form.
func (l *PriceLevel) UnmarshalJSON(data []byte) error {
	return unmarshalTuple(data, &l.Price, &l.Volume)
}

// Depth is an order-book snapshot. Wire form: [bids, asks]. Bids are sorted
// best (highest) price first, asks best (lowest) price first.
type Depth struct {
	Bids []PriceLevel
	Asks []PriceLevel
}

// MarshalJSON encodes the depth as [bids, asks]. Empty sides encode as [].
func (d Depth) MarshalJSON() ([]byte, error) {
	bids := d.Bids
	if bids == nil {
		bids = []PriceLevel{}
	}
	asks := d.Asks
	if asks == nil {
		asks = []PriceLevel{}
	}
	return marshalTuple(bids, asks)
}

// UnmarshalJSON decodes the [bids, asks] form.
func (d *Depth) UnmarshalJSON(data []byte) error {
	return unmarshalTuple(data, &d.Bids, &d.Asks)
}

// Normalize sorts both sides best-first and caps them to MaxDepthLevels.
// Levels with unparsable prices sort last.
func (d Depth) Normalize() Depth {
	d.Bids = sortLevels(d.Bids, func(a, b decimal.Decimal) bool { return a.GreaterThan(b) })
	d.Asks = sortLevels(d.Asks, func(a, b decimal.Decimal) bool { return a.LessThan(b) })
	if len(d.Bids) > MaxDepthLevels {
		d.Bids = d.Bids[:MaxDepthLevels]
	}
	if len(d.Asks) > MaxDepthLevels {
		d.Asks = d.Asks[:MaxDepthLevels]
	}
	return d
}

func sortLevels(levels []PriceLevel, better func(a, b decimal.Decimal) bool) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	copy(out, levels)

	sort.SliceStable(out, func(i, j int) bool {
		a, errA := decimal.NewFromString(out[i].Price)
		b, errB := decimal.NewFromString(out[j].Price)
		if errA != nil {
			return false
		}
		if errB != nil {
			return true
		}
		return better(a, b)
	})
	return out
}

// marshalTuple encodes its arguments as a JSON array, preserving order.
func marshalTuple(items ...any) ([]byte, error) {
	return json.Marshal(items)
}

// unmarshalTuple decodes a JSON array into the given element pointers. The
// array length must match exactly.
func unmarshalTuple(data []byte, ptrs ...any) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != len(ptrs) {
		return fmt.Errorf("expected %d elements, got %d", len(ptrs), len(raw))
	}
	for i, r := range raw {
		if err := json.Unmarshal(r, ptrs[i]); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}
