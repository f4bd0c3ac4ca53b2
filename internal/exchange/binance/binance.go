package binance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/cryptoview/market-data/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// Name is the exchange name as used in stream identifiers.
	Name = "Binance"

	defaultRESTURL = "https://api.binance.com"
	defaultWSURL   = "wss://stream.binance.com:9443/ws"

	maxCandles   = 1000
	pollInterval = 2 * time.Second
)

// timeframes maps unified timeframes to Binance kline intervals.
var timeframes = map[string]string{
	"M1":  "1m",
	"M5":  "5m",
	"M15": "15m",
	"M30": "30m",
	"H1":  "1h",
	"H4":  "4h",
	"D1":  "1d",
	"1W":  "1w",
}

// timeframeOrder keeps the listing stable.
var timeframeOrder = []string{"M1", "M5", "M15", "M30", "H1", "H4", "D1", "1W"}

// Connector talks to Binance. Binance symbols are already in unified form
// (upper case, no separator), so no pair translation is needed.
type Connector struct {
	restURL    string
	wsURL      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Connector.
type Option func(*Connector)

// WithURLs overrides the REST and websocket endpoints.
func WithURLs(rest, ws string) Option {
	return func(c *Connector) {
		c.restURL = rest
		c.wsURL = ws
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Connector) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connector) {
		c.logger = logger
	}
}

// New creates a Binance connector.
func New(opts ...Option) *Connector {
	c := &Connector{
		restURL: defaultRESTURL,
		wsURL:   defaultWSURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the exchange name.
func (c *Connector) Name() string { return Name }

// Timeframes lists the supported unified timeframes.
func (c *Connector) Timeframes() []string {
	return append([]string(nil), timeframeOrder...)
}

// Symbols returns all tradeable pairs.
func (c *Connector) Symbols(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, "/api/v3/ticker/price", nil)
	if err != nil {
		return nil, err
	}

	var prices []struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(body, &prices); err != nil {
		return nil, fmt.Errorf("decode symbols: %w", err)
	}

	symbols := make([]string, 0, len(prices))
	for _, p := range prices {
		symbols = append(symbols, p.Symbol)
	}
	return symbols, nil
}

// Ticker returns the current best bid/ask.
func (c *Connector) Ticker(ctx context.Context, pair string) (model.Ticker, error) {
	body, err := c.get(ctx, "/api/v3/ticker/bookTicker", url.Values{"symbol": {pair}})
	if err != nil {
		return model.Ticker{}, err
	}

	var book struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	if err := json.Unmarshal(body, &book); err != nil {
		return model.Ticker{}, fmt.Errorf("decode ticker: %w", err)
	}
	return model.Ticker{Bid: book.BidPrice, Ask: book.AskPrice}, nil
}

// Candles returns up to maxCandles bars, oldest first.
func (c *Connector) Candles(ctx context.Context, pair, timeframe string) ([]model.Candle, error) {
	interval, ok := timeframes[timeframe]
	if !ok {
		return nil, fmt.Errorf("unknown timeframe %q", timeframe)
	}

	body, err := c.get(ctx, "/api/v1/klines", url.Values{
		"symbol":   {pair},
		"interval": {interval},
		"limit":    {strconv.Itoa(maxCandles)},
	})
	if err != nil {
		return nil, err
	}

	// Each kline row is a mixed array: open time in milliseconds followed
	// by OHLCV strings, then fields this service does not use.
	var rows [][]jsoniter.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline row has %d fields", len(row))
		}
		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			return nil, fmt.Errorf("decode kline time: %w", err)
		}
		candle := model.Candle{Time: openTime / 1000}
		for i, dst := range []*string{&candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume} {
			if err := json.Unmarshal(row[i+1], dst); err != nil {
				return nil, fmt.Errorf("decode kline field %d: %w", i+1, err)
			}
		}
		candles = append(candles, candle.Normalize())
	}
	return candles, nil
}

// Depth returns the current order book, capped per side.
func (c *Connector) Depth(ctx context.Context, pair string) (model.Depth, error) {
	body, err := c.get(ctx, "/api/v1/depth", url.Values{
		"symbol": {pair},
		"limit":  {strconv.Itoa(model.MaxDepthLevels)},
	})
	if err != nil {
		return model.Depth{}, err
	}

	var book struct {
		Bids []model.PriceLevel `json:"bids"`
		Asks []model.PriceLevel `json:"asks"`
	}
	if err := json.Unmarshal(body, &book); err != nil {
		return model.Depth{}, fmt.Errorf("decode depth: %w", err)
	}
	return model.Depth{Bids: book.Bids, Asks: book.Asks}.Normalize(), nil
}

// get performs a REST request and returns the response body.
func (c *Connector) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.restURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("binance api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
