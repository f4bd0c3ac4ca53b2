package model

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the type of market data carried by a stream.
type Kind string

const (
	KindTicker  Kind = "ticker"
	KindCandles Kind = "candles"
	KindDepth   Kind = "depth"
)

// ListingID is the sentinel data_id used to request listing information.
// It is not a market-data stream: it is only legal with action "get_starting".
const ListingID = "listing_info"

// Phase is the first routing-key token of a market-data publication.
type Phase string

const (
	// PhaseStarting marks the one-shot initial snapshot for a stream.
	PhaseStarting Phase = "starting"
	// PhaseUpdate marks an incremental payload for current subscribers.
	PhaseUpdate Phase = "update"
)

// MarketDataPattern matches every market-data subject
// (phase.kind.exchange.pair[.timeframe]) on the bus.
const MarketDataPattern = "*.*.*.>"

// Stream identifier parse errors.
var (
	ErrEmptyStreamID    = errors.New("empty stream id")
	ErrUnknownKind      = errors.New("unknown stream kind")
	ErrBadFragmentCount = errors.New("wrong number of stream id fragments")
)

// StreamID identifies one market-data stream. The zero value is invalid;
// construct through ParseStreamID or the typed constructors. Equality is
// plain struct equality, which matches canonical-string equality because
// every component is stored in canonical form.
type StreamID struct {
	Kind      Kind
	Exchange  string
	Pair      string
	Timeframe string // set only for candles
}

// TickerID returns the stream identifier for a ticker stream.
func TickerID(exchange, pair string) StreamID {
	return StreamID{Kind: KindTicker, Exchange: exchange, Pair: pair}
}

// CandlesID returns the stream identifier for a candle stream.
func CandlesID(exchange, pair, timeframe string) StreamID {
	return StreamID{Kind: KindCandles, Exchange: exchange, Pair: pair, Timeframe: timeframe}
}

// DepthID returns the stream identifier for an order-book depth stream.
func DepthID(exchange, pair string) StreamID {
	return StreamID{Kind: KindDepth, Exchange: exchange, Pair: pair}
}

// ParseStreamID parses the canonical dotted form
// kind.exchange.pair[.timeframe]. Candle identifiers require a timeframe
// fragment, ticker and depth identifiers must not carry one. The listing
// sentinel is not a StreamID and is rejected here.
func ParseStreamID(s string) (StreamID, error) {
	if s == "" {
		return StreamID{}, ErrEmptyStreamID
	}

	fragments := strings.Split(s, ".")
	kind := Kind(fragments[0])

	switch kind {
	case KindTicker, KindDepth:
		if len(fragments) != 3 {
			return StreamID{}, fmt.Errorf("%q: %w", s, ErrBadFragmentCount)
		}
	case KindCandles:
		if len(fragments) != 4 {
			return StreamID{}, fmt.Errorf("%q: %w", s, ErrBadFragmentCount)
		}
	default:
		return StreamID{}, fmt.Errorf("%q: %w", s, ErrUnknownKind)
	}

	for _, f := range fragments {
		if f == "" {
			return StreamID{}, fmt.Errorf("%q: %w", s, ErrBadFragmentCount)
		}
	}

	id := StreamID{Kind: kind, Exchange: fragments[1], Pair: fragments[2]}
	if kind == KindCandles {
		id.Timeframe = fragments[3]
	}
	return id, nil
}

// String returns the canonical dotted form.
func (id StreamID) String() string {
	if id.Kind == KindCandles {
		return string(id.Kind) + "." + id.Exchange + "." + id.Pair + "." + id.Timeframe
	}
	return string(id.Kind) + "." + id.Exchange + "." + id.Pair
}

// Subject returns the bus routing key for a publication of the given phase.
func (id StreamID) Subject(phase Phase) string {
	return string(phase) + "." + id.String()
}

// SplitSubject splits a market-data routing key back into its phase and
// stream identifier.
func SplitSubject(subject string) (Phase, StreamID, error) {
	head, rest, ok := strings.Cut(subject, ".")
	if !ok {
		return "", StreamID{}, fmt.Errorf("subject %q has no phase", subject)
	}

	phase := Phase(head)
	if phase != PhaseStarting && phase != PhaseUpdate {
		return "", StreamID{}, fmt.Errorf("subject %q: unknown phase %q", subject, head)
	}

	id, err := ParseStreamID(rest)
	if err != nil {
		return "", StreamID{}, err
	}
	return phase, id, nil
}
