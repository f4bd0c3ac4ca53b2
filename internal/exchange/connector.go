package exchange

import (
	"context"

	"github.com/cryptoview/market-data/internal/model"
)

// Connector adapts one exchange to the platform. Pair names are unified:
// upper case, no separator symbols. Timeframes use the unified vocabulary
// (M1, M5, ... 1W); each connector translates internally.
//
// Stream methods run until the context is cancelled or the upstream fails;
// they are not restartable: a stopped stream requires a fresh call. Emitted
// payloads are already normalized (candle OHLC bounds, depth order and cap).
type Connector interface {
	// Name is the exchange name as it appears in stream identifiers.
	Name() string

	// Timeframes lists the supported unified timeframes.
	Timeframes() []string

	// Symbols returns all tradeable pairs in unified form.
	Symbols(ctx context.Context) ([]string, error)

	// Ticker returns the current best bid/ask.
	Ticker(ctx context.Context, pair string) (model.Ticker, error)

	// Candles returns the available OHLCV history, oldest first.
	Candles(ctx context.Context, pair, timeframe string) ([]model.Candle, error)

	// Depth returns the current order book, capped per side.
	Depth(ctx context.Context, pair string) (model.Depth, error)

	// StreamTicker emits each best bid/ask change.
	StreamTicker(ctx context.Context, pair string, emit func(model.Ticker) error) error

	// StreamCandles emits the most recent candle on every change.
	StreamCandles(ctx context.Context, pair, timeframe string, emit func(model.Candle) error) error

	// StreamDepth emits order-book snapshots as they change.
	StreamDepth(ctx context.Context, pair string, emit func(model.Depth) error) error
}
