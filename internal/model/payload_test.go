package model

import (
	"encoding/json"
	"testing"
)

func TestTicker_WireForm(t *testing.T) {
	data, err := json.Marshal(Ticker{Bid: "10724.8", Ask: "10726.8"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `["10724.8","10726.8"]` {
		t.Errorf("wire form = %s", data)
	}

	var got Ticker
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Bid != "10724.8" || got.Ask != "10726.8" {
		t.Errorf("round trip = %+v", got)
	}
}

func TestTicker_Ordered(t *testing.T) {
	tests := []struct {
		name   string
		ticker Ticker
		want   bool
	}{
		{"bid below ask", Ticker{Bid: "100.1", Ask: "100.2"}, true},
		{"equal", Ticker{Bid: "100", Ask: "100.00"}, true},
		{"crossed", Ticker{Bid: "101", Ask: "100"}, false},
		{"unparsable", Ticker{Bid: "n/a", Ask: "100"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ticker.Ordered(); got != tt.want {
				t.Errorf("Ordered() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCandle_WireForm(t *testing.T) {
	c := Candle{Open: "0.0010", High: "0.0025", Low: "0.0008", Close: "0.0020", Volume: "1000", Time: 1499040000}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `["0.0010","0.0025","0.0008","0.0020","1000",1499040000]` {
		t.Errorf("wire form = %s", data)
	}

	var got Candle
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != c {
		t.Errorf("round trip = %+v, want %+v", got, c)
	}
}

func TestCandle_Normalize(t *testing.T) {
	// High below close, low above open: both must be recomputed.
	c := Candle{Open: "5", High: "8", Low: "6", Close: "10", Volume: "1", Time: 1}
	n := c.Normalize()

	if n.High != "10" {
		t.Errorf("High = %q, want 10", n.High)
	}
	if n.Low != "5" {
		t.Errorf("Low = %q, want 5", n.Low)
	}
	if n.Open != c.Open || n.Close != c.Close {
		t.Errorf("Normalize changed open/close: %+v", n)
	}

	// Unparsable candles pass through untouched.
	bad := Candle{Open: "x", High: "1", Low: "1", Close: "1"}
	if got := bad.Normalize(); got != bad {
		t.Errorf("Normalize(bad) = %+v", got)
	}
}

func TestDepth_WireForm(t *testing.T) {
	d := Depth{
		Bids: []PriceLevel{{Price: "4.00", Volume: "431"}},
		Asks: []PriceLevel{{Price: "4.02", Volume: "12"}},
	}

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `[[["4.00","431"]],[["4.02","12"]]]` {
		t.Errorf("wire form = %s", data)
	}

	var got Depth
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Bids) != 1 || got.Bids[0].Price != "4.00" {
		t.Errorf("round trip bids = %+v", got.Bids)
	}
}

func TestDepth_MarshalEmptySides(t *testing.T) {
	data, err := json.Marshal(Depth{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `[[],[]]` {
		t.Errorf("wire form = %s", data)
	}
}

func TestDepth_Normalize(t *testing.T) {
	d := Depth{
		Bids: []PriceLevel{
			{Price: "99", Volume: "1"},
			{Price: "101", Volume: "2"},
			{Price: "100", Volume: "3"},
		},
		Asks: []PriceLevel{
			{Price: "104", Volume: "1"},
			{Price: "102", Volume: "2"},
			{Price: "103", Volume: "3"},
		},
	}

	n := d.Normalize()

	wantBids := []string{"101", "100", "99"}
	for i, p := range wantBids {
		if n.Bids[i].Price != p {
			t.Errorf("Bids[%d].Price = %q, want %q", i, n.Bids[i].Price, p)
		}
	}

	wantAsks := []string{"102", "103", "104"}
	for i, p := range wantAsks {
		if n.Asks[i].Price != p {
			t.Errorf("Asks[%d].Price = %q, want %q", i, n.Asks[i].Price, p)
		}
	}

	// Input slices must not be reordered in place.
	if d.Bids[0].Price != "99" {
		t.Errorf("Normalize mutated input: %+v", d.Bids)
	}
}

func TestDepth_NormalizeCapsLevels(t *testing.T) {
	var d Depth
	for i := 0; i < MaxDepthLevels+5; i++ {
		d.Bids = append(d.Bids, PriceLevel{Price: "1", Volume: "1"})
		d.Asks = append(d.Asks, PriceLevel{Price: "1", Volume: "1"})
	}

	n := d.Normalize()
	if len(n.Bids) != MaxDepthLevels {
		t.Errorf("len(Bids) = %d, want %d", len(n.Bids), MaxDepthLevels)
	}
	if len(n.Asks) != MaxDepthLevels {
		t.Errorf("len(Asks) = %d, want %d", len(n.Asks), MaxDepthLevels)
	}
}

func TestListingEntry_WireForm(t *testing.T) {
	l := Listing{
		"Binance": {Timeframes: []string{"M1", "H1"}, Pairs: []string{"BTCUSDT"}},
	}

	data, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"Binance":[["M1","H1"],["BTCUSDT"]]}` {
		t.Errorf("wire form = %s", data)
	}

	var got Listing
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	entry := got["Binance"]
	if !entry.HasPair("BTCUSDT") || entry.HasPair("ETHBTC") {
		t.Errorf("HasPair wrong: %+v", entry)
	}
	if !entry.HasTimeframe("H1") || entry.HasTimeframe("D1") {
		t.Errorf("HasTimeframe wrong: %+v", entry)
	}
}
