package binance

import (
	"context"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/cryptoview/market-data/internal/exchange"
	"github.com/cryptoview/market-data/internal/model"
)

// StreamTicker emits each best bid/ask change from the @ticker stream.
func (c *Connector) StreamTicker(ctx context.Context, pair string, emit func(model.Ticker) error) error {
	return c.readStream(ctx, strings.ToLower(pair)+"@ticker", func(message []byte) error {
		var event struct {
			Bid string `json:"b"`
			Ask string `json:"a"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			return fmt.Errorf("decode ticker event: %w", err)
		}
		return emit(model.Ticker{Bid: event.Bid, Ask: event.Ask})
	})
}

// StreamCandles emits the forming candle on every change from the @kline
// stream.
func (c *Connector) StreamCandles(ctx context.Context, pair, timeframe string, emit func(model.Candle) error) error {
	interval, ok := timeframes[timeframe]
	if !ok {
		return fmt.Errorf("unknown timeframe %q", timeframe)
	}

	stream := strings.ToLower(pair) + "@kline_" + interval
	return c.readStream(ctx, stream, func(message []byte) error {
		var event struct {
			Kline struct {
				Time   int64  `json:"t"`
				Open   string `json:"o"`
				High   string `json:"h"`
				Low    string `json:"l"`
				Close  string `json:"c"`
				Volume string `json:"v"`
			} `json:"k"`
		}
		if err := json.Unmarshal(message, &event); err != nil {
			return fmt.Errorf("decode kline event: %w", err)
		}
		k := event.Kline
		candle := model.Candle{
			Open:   k.Open,
			High:   k.High,
			Low:    k.Low,
			Close:  k.Close,
			Volume: k.Volume,
			Time:   k.Time / 1000,
		}
		return emit(candle.Normalize())
	})
}

// StreamDepth polls the order book. Binance's incremental depth stream would
// require local book reconstruction, so snapshots are fetched instead.
func (c *Connector) StreamDepth(ctx context.Context, pair string, emit func(model.Depth) error) error {
	return exchange.Poll(ctx, pollInterval, func(ctx context.Context) (model.Depth, error) {
		return c.Depth(ctx, pair)
	}, emit)
}

// readStream dials one websocket stream and feeds every text message to
// handle until the context is cancelled or the connection fails.
func (c *Connector) readStream(ctx context.Context, stream string, handle func([]byte) error) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL+"/"+stream, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", stream, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Unblock the read loop when the producer task is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read %s: %w", stream, err)
		}
		if err := handle(message); err != nil {
			return err
		}
	}
}
