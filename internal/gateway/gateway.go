package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/emirpasic/gods/sets/linkedhashset"
	jsoniter "github.com/json-iterator/go"

	"github.com/cryptoview/market-data/internal/bus"
	"github.com/cryptoview/market-data/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client-facing error messages.
const (
	errSecondSub = "You already subscribed to this data"
	errBadStream = "Bad 'data_type' value"
)

// Config holds the gateway's bus subjects.
type Config struct {
	// DemandQueue is the subject demand messages are sent on.
	DemandQueue string
	// ListingSubject carries the controller's listing publications.
	ListingSubject string
	// ErrorSubject carries the controller's error publications.
	ErrorSubject string
}

// Stats contains runtime statistics.
type Stats struct {
	Streams        int
	Waiters        int
	Subscribers    int
	ListingWaiters int
}

// demandState tracks the sessions interested in one stream. Waiters keep
// attach order; a session is in at most one of the two sets.
type demandState struct {
	waiters     *linkedhashset.Set
	subscribers map[Session]struct{}
}

func newDemandState() *demandState {
	return &demandState{
		waiters:     linkedhashset.New(),
		subscribers: make(map[Session]struct{}),
	}
}

// Gateway is the per-process demand table.
type Gateway struct {
	cfg    Config
	bus    bus.Bus
	logger *slog.Logger

	mu             sync.Mutex
	table          map[model.StreamID]*demandState
	listingWaiters *linkedhashset.Set

	subs []bus.Subscription
}

// New creates a Gateway. Start must be called before payloads flow.
func New(cfg Config, b bus.Bus, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:            cfg,
		bus:            b,
		logger:         logger,
		table:          make(map[model.StreamID]*demandState),
		listingWaiters: linkedhashset.New(),
	}
}

// Start binds the gateway to the market-data pattern and to the listing and
// error subjects.
func (g *Gateway) Start(ctx context.Context) error {
	bindings := []struct {
		pattern string
		handler bus.Handler
	}{
		{model.MarketDataPattern, g.handleMarketData},
		{g.cfg.ListingSubject, g.handleListing},
		{g.cfg.ErrorSubject, g.handleError},
	}

	for _, b := range bindings {
		sub, err := g.bus.Subscribe(b.pattern, b.handler)
		if err != nil {
			g.unsubscribeAll()
			return fmt.Errorf("bind %s: %w", b.pattern, err)
		}
		g.subs = append(g.subs, sub)
	}

	g.logger.Info("gateway started",
		"market_data_pattern", model.MarketDataPattern,
		"demand_queue", g.cfg.DemandQueue,
	)
	return nil
}

// Stop unbinds the gateway from the bus.
func (g *Gateway) Stop(ctx context.Context) error {
	g.unsubscribeAll()
	g.logger.Info("gateway stopped")
	return nil
}

func (g *Gateway) unsubscribeAll() {
	for _, sub := range g.subs {
		if err := sub.Unsubscribe(); err != nil {
			g.logger.Warn("unsubscribe failed", "error", err)
		}
	}
	g.subs = nil
}

// Stats returns current statistics.
func (g *Gateway) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Stats{
		Streams:        len(g.table),
		ListingWaiters: g.listingWaiters.Size(),
	}
	for _, st := range g.table {
		s.Waiters += st.waiters.Size()
		s.Subscribers += len(st.subscribers)
	}
	return s
}

// -----------------------------------------------------------------------------
// Client side: attach / detach
// -----------------------------------------------------------------------------

// Attach registers the session's interest in one data_id. The session joins
// the waiter set; a get_starting demand is emitted on the 0→1 waiter
// transition. Attaching twice is a duplicate-subscription error delivered
// only to the offending session, with no state change.
func (g *Gateway) Attach(s Session, dataID string) {
	if dataID == model.ListingID {
		g.attachListing(s)
		return
	}

	id, err := model.ParseStreamID(dataID)
	if err != nil {
		s.Deliver(Outbound{DataID: dataID, Error: errBadStream})
		return
	}

	g.mu.Lock()
	st, ok := g.table[id]
	if !ok {
		st = newDemandState()
		g.table[id] = st
	}

	if _, subscribed := st.subscribers[s]; subscribed || st.waiters.Contains(s) {
		g.mu.Unlock()
		s.Deliver(Outbound{DataID: dataID, Error: errSecondSub})
		return
	}

	if st.waiters.Size() == 0 {
		g.sendDemand(model.ActionGetStarting, dataID)
	}
	st.waiters.Add(s)
	g.mu.Unlock()
}

// attachListing registers a listing_info request. Every attach triggers a
// get_starting demand: listing demand is also the explicit refresh signal.
func (g *Gateway) attachListing(s Session) {
	g.mu.Lock()
	if g.listingWaiters.Contains(s) {
		g.mu.Unlock()
		s.Deliver(Outbound{DataID: model.ListingID, Error: errSecondSub})
		return
	}
	g.listingWaiters.Add(s)
	g.sendDemand(model.ActionGetStarting, model.ListingID)
	g.mu.Unlock()
}

// Detach removes the session from one stream. Emits unsub when the removed
// session was the last subscriber. Unknown sessions and streams are no-ops.
func (g *Gateway) Detach(s Session, dataID string) {
	if dataID == model.ListingID {
		g.mu.Lock()
		g.listingWaiters.Remove(s)
		g.mu.Unlock()
		return
	}

	id, err := model.ParseStreamID(dataID)
	if err != nil {
		return
	}

	g.mu.Lock()
	if g.detachLocked(s, id) {
		g.sendDemand(model.ActionUnsub, id.String())
	}
	g.mu.Unlock()
}

// DetachAll removes the session from every stream it appears in, emitting
// one unsub per subscriber set it empties. Used on transport close.
func (g *Gateway) DetachAll(s Session) {
	g.mu.Lock()
	for id := range g.table {
		if g.detachLocked(s, id) {
			g.sendDemand(model.ActionUnsub, id.String())
		}
	}
	g.listingWaiters.Remove(s)
	g.mu.Unlock()
}

// detachLocked removes the session from one stream's state and prunes the
// entry when both sets empty. Reports whether an unsub demand is due.
// Caller holds g.mu.
func (g *Gateway) detachLocked(s Session, id model.StreamID) bool {
	st, ok := g.table[id]
	if !ok {
		return false
	}

	st.waiters.Remove(s)
	_, wasSubscriber := st.subscribers[s]
	delete(st.subscribers, s)

	if st.waiters.Size() == 0 && len(st.subscribers) == 0 {
		delete(g.table, id)
	}
	return wasSubscriber && len(st.subscribers) == 0
}

// -----------------------------------------------------------------------------
// Bus side: fan-out
// -----------------------------------------------------------------------------

// handleMarketData routes one starting/update publication.
func (g *Gateway) handleMarketData(subject string, data []byte) {
	phase, id, err := model.SplitSubject(subject)
	if err != nil {
		g.logger.Warn("unroutable market data", "subject", subject, "error", err)
		return
	}

	switch phase {
	case model.PhaseStarting:
		g.promote(subject, id, data)
	case model.PhaseUpdate:
		g.fanOutUpdate(subject, id, data)
	}
}

// promote delivers the snapshot to every waiter and moves them to the
// subscriber set. The sub demand is emitted only when the subscriber set
// transitions from empty: the producer task is already running otherwise.
func (g *Gateway) promote(subject string, id model.StreamID, data []byte) {
	g.mu.Lock()
	st, ok := g.table[id]
	if !ok || st.waiters.Size() == 0 {
		g.mu.Unlock()
		return
	}

	promoted := st.waiters.Values()
	st.waiters.Clear()

	if len(st.subscribers) == 0 {
		g.sendDemand(model.ActionSub, id.String())
	}
	for _, v := range promoted {
		st.subscribers[v.(Session)] = struct{}{}
	}
	g.mu.Unlock()

	msg := Outbound{DataID: subject, Data: data}
	for _, v := range promoted {
		v.(Session).Deliver(msg)
	}
}

// fanOutUpdate delivers an update to current subscribers only. Sessions
// still waiting receive nothing until their snapshot arrives.
func (g *Gateway) fanOutUpdate(subject string, id model.StreamID, data []byte) {
	g.mu.Lock()
	st, ok := g.table[id]
	if !ok {
		g.mu.Unlock()
		return
	}
	targets := make([]Session, 0, len(st.subscribers))
	for s := range st.subscribers {
		targets = append(targets, s)
	}
	g.mu.Unlock()

	msg := Outbound{DataID: subject, Data: data}
	for _, s := range targets {
		s.Deliver(msg)
	}
}

// handleListing delivers a listing publication to every listing waiter and
// clears the waiter set. Listing has no subscribers: each request is
// answered exactly once.
func (g *Gateway) handleListing(_ string, data []byte) {
	g.mu.Lock()
	waiting := g.listingWaiters.Values()
	g.listingWaiters.Clear()
	g.mu.Unlock()

	msg := Outbound{DataID: model.ListingID, Data: data}
	for _, v := range waiting {
		v.(Session).Deliver(msg)
	}
}

// handleError delivers an error publication to every waiter and subscriber
// of the offending stream and drops the stream's entry. The producer task
// deregisters itself on failure, so interest must be re-expressed from
// scratch; keeping the waiters would swallow the next get_starting.
func (g *Gateway) handleError(_ string, data []byte) {
	var errMsg model.ErrorMessage
	if err := json.Unmarshal(data, &errMsg); err != nil {
		g.logger.Warn("malformed error publication", "error", err)
		return
	}
	if errMsg.ErrorPlace == "" {
		return
	}

	id, err := model.ParseStreamID(errMsg.ErrorPlace)
	if err != nil {
		return
	}

	g.mu.Lock()
	st, ok := g.table[id]
	if !ok {
		g.mu.Unlock()
		return
	}
	targets := make([]Session, 0, st.waiters.Size()+len(st.subscribers))
	for _, v := range st.waiters.Values() {
		targets = append(targets, v.(Session))
	}
	for s := range st.subscribers {
		targets = append(targets, s)
	}
	delete(g.table, id)
	g.mu.Unlock()

	msg := Outbound{DataID: errMsg.ErrorPlace, Error: errMsg.Message}
	for _, s := range targets {
		s.Deliver(msg)
	}
}

// sendDemand publishes one demand message on the demand queue. Callers hold
// g.mu, so publication order always matches state-transition order: a detach
// racing a promotion cannot put its unsub on the wire before the sub.
func (g *Gateway) sendDemand(action model.Action, dataID string) {
	data, err := json.Marshal(model.Demand{Action: action, DataID: dataID})
	if err != nil {
		g.logger.Error("demand marshal failed", "error", err)
		return
	}
	if err := g.bus.Publish(g.cfg.DemandQueue, data); err != nil {
		g.logger.Error("demand publish failed", "action", action, "data_id", dataID, "error", err)
	}
}
