package bittrex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/cryptoview/market-data/internal/exchange"
	"github.com/cryptoview/market-data/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// Name is the exchange name as used in stream identifiers.
	Name = "Bittrex"

	defaultRESTURL = "https://api.bittrex.com"

	pollInterval = 2 * time.Second
)

// timeframes maps unified timeframes to Bittrex candle intervals.
var timeframes = map[string]string{
	"M1": "MINUTE_1",
	"M5": "MINUTE_5",
	"H1": "HOUR_1",
	"D1": "DAY_1",
}

var timeframeOrder = []string{"M1", "M5", "H1", "D1"}

// Connector talks to Bittrex.
type Connector struct {
	restURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// Unified pair → hyphenated market symbol, filled lazily from /v3/markets.
	marketsMu sync.RWMutex
	markets   map[string]string
}

// Option configures a Connector.
type Option func(*Connector)

// WithURL overrides the REST endpoint.
func WithURL(rest string) Option {
	return func(c *Connector) {
		c.restURL = rest
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

// New creates a Bittrex connector.
func New(opts ...Option) *Connector {
	c := &Connector{
		restURL: defaultRESTURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  slog.Default(),
		markets: make(map[string]string),
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

// Symbols returns all tradeable pairs in unified form.
func (c *Connector) Symbols(ctx context.Context) ([]string, error) {
	markets, err := c.loadMarkets(ctx)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(markets))
	for unified := range markets {
		symbols = append(symbols, unified)
	}
	return symbols, nil
}

// Ticker returns the current best bid/ask.
func (c *Connector) Ticker(ctx context.Context, pair string) (model.Ticker, error) {
	market, err := c.translate(ctx, pair)
	if err != nil {
		return model.Ticker{}, err
	}

	body, err := c.get(ctx, "/v3/markets/"+market+"/ticker")
	if err != nil {
		return model.Ticker{}, err
	}

	var ticker struct {
		BidRate string `json:"bidRate"`
		AskRate string `json:"askRate"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return model.Ticker{}, fmt.Errorf("decode ticker: %w", err)
	}
	return model.Ticker{Bid: ticker.BidRate, Ask: ticker.AskRate}, nil
}

// Candles returns the available history for the interval, oldest first.
func (c *Connector) Candles(ctx context.Context, pair, timeframe string) ([]model.Candle, error) {
	interval, ok := timeframes[timeframe]
	if !ok {
		return nil, fmt.Errorf("unknown timeframe %q", timeframe)
	}

	market, err := c.translate(ctx, pair)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, "/v3/markets/"+market+"/candles?candleInterval="+interval)
	if err != nil {
		return nil, err
	}
	return parseCandles(body)
}

// Depth returns the current order book, capped per side.
func (c *Connector) Depth(ctx context.Context, pair string) (model.Depth, error) {
	market, err := c.translate(ctx, pair)
	if err != nil {
		return model.Depth{}, err
	}

	body, err := c.get(ctx, "/v3/markets/"+market+"/orderbook")
	if err != nil {
		return model.Depth{}, err
	}

	var book struct {
		Bid []bookEntry `json:"bid"`
		Ask []bookEntry `json:"ask"`
	}
	if err := json.Unmarshal(body, &book); err != nil {
		return model.Depth{}, fmt.Errorf("decode orderbook: %w", err)
	}
	return model.Depth{Bids: levels(book.Bid), Asks: levels(book.Ask)}.Normalize(), nil
}

// StreamTicker polls the ticker endpoint.
func (c *Connector) StreamTicker(ctx context.Context, pair string, emit func(model.Ticker) error) error {
	return exchange.Poll(ctx, pollInterval, func(ctx context.Context) (model.Ticker, error) {
		return c.Ticker(ctx, pair)
	}, emit)
}

// StreamCandles polls the candle endpoint and emits the most recent bar.
func (c *Connector) StreamCandles(ctx context.Context, pair, timeframe string, emit func(model.Candle) error) error {
	return exchange.Poll(ctx, pollInterval, func(ctx context.Context) (model.Candle, error) {
		candles, err := c.Candles(ctx, pair, timeframe)
		if err != nil {
			return model.Candle{}, err
		}
		if len(candles) == 0 {
			return model.Candle{}, fmt.Errorf("no candles for %s %s", pair, timeframe)
		}
		return candles[len(candles)-1], nil
	}, emit)
}

// StreamDepth polls the order book.
func (c *Connector) StreamDepth(ctx context.Context, pair string, emit func(model.Depth) error) error {
	return exchange.Poll(ctx, pollInterval, func(ctx context.Context) (model.Depth, error) {
		return c.Depth(ctx, pair)
	}, emit)
}

type bookEntry struct {
	Quantity string `json:"quantity"`
	Rate     string `json:"rate"`
}

func levels(entries []bookEntry) []model.PriceLevel {
	out := make([]model.PriceLevel, len(entries))
	for i, e := range entries {
		out[i] = model.PriceLevel{Price: e.Rate, Volume: e.Quantity}
	}
	return out
}

func parseCandles(body []byte) ([]model.Candle, error) {
	var rows []struct {
		StartsAt string `json:"startsAt"`
		Open     string `json:"open"`
		High     string `json:"high"`
		Low      string `json:"low"`
		Close    string `json:"close"`
		Volume   string `json:"volume"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339, row.StartsAt)
		if err != nil {
			return nil, fmt.Errorf("parse candle time %q: %w", row.StartsAt, err)
		}
		candle := model.Candle{
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
			Time:   ts.Unix(),
		}
		candles = append(candles, candle.Normalize())
	}
	return candles, nil
}

// translate maps a unified pair to the hyphenated market symbol.
func (c *Connector) translate(ctx context.Context, pair string) (string, error) {
	c.marketsMu.RLock()
	market, ok := c.markets[pair]
	c.marketsMu.RUnlock()
	if ok {
		return market, nil
	}

	markets, err := c.loadMarkets(ctx)
	if err != nil {
		return "", err
	}
	if market, ok = markets[pair]; !ok {
		return "", fmt.Errorf("unknown pair %q", pair)
	}
	return market, nil
}

// loadMarkets fetches /v3/markets and refreshes the translation table.
func (c *Connector) loadMarkets(ctx context.Context) (map[string]string, error) {
	body, err := c.get(ctx, "/v3/markets")
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode markets: %w", err)
	}

	markets := make(map[string]string, len(rows))
	for _, row := range rows {
		markets[strings.ReplaceAll(row.Symbol, "-", "")] = row.Symbol
	}

	c.marketsMu.Lock()
	c.markets = markets
	c.marketsMu.Unlock()
	return markets, nil
}

// get performs a REST request and returns the response body.
func (c *Connector) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.restURL+path, nil)
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
		return nil, fmt.Errorf("bittrex api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
