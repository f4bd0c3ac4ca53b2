package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/cryptoview/market-data/internal/bus"
	"github.com/cryptoview/market-data/internal/model"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type busMsg struct {
	subject string
	data    []byte
}

// fakeBus records publications and delivers to registered handlers.
type fakeBus struct {
	mu        sync.Mutex
	published []busMsg
	handlers  map[string]bus.Handler
	closed    chan struct{}
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		handlers: make(map[string]bus.Handler),
		closed:   make(chan struct{}),
	}
}

func (f *fakeBus) Publish(subject string, data []byte) error {
	f.mu.Lock()
	f.published = append(f.published, busMsg{subject: subject, data: data})
	f.mu.Unlock()
	return nil
}

func (f *fakeBus) Subscribe(pattern string, h bus.Handler) (bus.Subscription, error) {
	f.mu.Lock()
	f.handlers[pattern] = h
	f.mu.Unlock()
	return fakeSub{}, nil
}

func (f *fakeBus) QueueSubscribe(pattern, _ string, h bus.Handler) (bus.Subscription, error) {
	return f.Subscribe(pattern, h)
}

func (f *fakeBus) Closed() <-chan struct{} { return f.closed }
func (f *fakeBus) Close()                  {}

// deliver invokes the handler registered for the pattern.
func (f *fakeBus) deliver(pattern, subject string, data []byte) {
	f.mu.Lock()
	h := f.handlers[pattern]
	f.mu.Unlock()
	if h != nil {
		h(subject, data)
	}
}

// demands decodes every demand message published on the demand queue.
func (f *fakeBus) demands(t *testing.T) []model.Demand {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.Demand
	for _, m := range f.published {
		if m.subject != testDemandQueue {
			continue
		}
		var d model.Demand
		if err := json.Unmarshal(m.data, &d); err != nil {
			t.Fatalf("malformed demand %s: %v", m.data, err)
		}
		out = append(out, d)
	}
	return out
}

type fakeSub struct{}

func (fakeSub) Unsubscribe() error { return nil }

// fakeSession records deliveries in order.
type fakeSession struct {
	name string

	mu       sync.Mutex
	received []Outbound
}

func (s *fakeSession) Deliver(msg Outbound) {
	s.mu.Lock()
	s.received = append(s.received, msg)
	s.mu.Unlock()
}

func (s *fakeSession) messages() []Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Outbound(nil), s.received...)
}

func (s *fakeSession) String() string { return s.name }

// -----------------------------------------------------------------------------
// Harness
// -----------------------------------------------------------------------------

const (
	testDemandQueue = "demand"
	testListing     = "listing"
	testErrors      = "errors"
)

func startGateway(t *testing.T) (*Gateway, *fakeBus) {
	t.Helper()
	fb := newFakeBus()
	g := New(Config{
		DemandQueue:    testDemandQueue,
		ListingSubject: testListing,
		ErrorSubject:   testErrors,
	}, fb, slog.Default())

	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { g.Stop(context.Background()) })
	return g, fb
}

func publishStarting(fb *fakeBus, subject string, payload string) {
	fb.deliver(model.MarketDataPattern, subject, []byte(payload))
}

func publishError(t *testing.T, fb *fakeBus, place, message string) {
	t.Helper()
	data, err := json.Marshal(model.ErrorMessage{ErrorPlace: place, Message: message})
	if err != nil {
		t.Fatalf("marshal error message: %v", err)
	}
	fb.deliver(testErrors, testErrors, data)
}

func wantDemands(t *testing.T, fb *fakeBus, want ...model.Demand) {
	t.Helper()
	got := fb.demands(t)
	if len(got) != len(want) {
		t.Fatalf("demands = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("demand[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

// -----------------------------------------------------------------------------
// Attach
// -----------------------------------------------------------------------------

func TestAttach_FirstWaiterEmitsGetStarting(t *testing.T) {
	g, fb := startGateway(t)
	s1 := &fakeSession{name: "s1"}
	s2 := &fakeSession{name: "s2"}

	g.Attach(s1, "ticker.Binance.BTCUSDT")
	g.Attach(s2, "ticker.Binance.BTCUSDT")

	// Second waiter joins the in-flight snapshot request: one demand only.
	wantDemands(t, fb, model.Demand{Action: model.ActionGetStarting, DataID: "ticker.Binance.BTCUSDT"})
}

func TestAttach_DuplicateIsErrorToOffenderOnly(t *testing.T) {
	g, fb := startGateway(t)
	s1 := &fakeSession{name: "s1"}
	s2 := &fakeSession{name: "s2"}

	g.Attach(s1, "ticker.Binance.BTCUSDT")
	g.Attach(s2, "ticker.Binance.BTCUSDT")
	g.Attach(s1, "ticker.Binance.BTCUSDT")

	msgs := s1.messages()
	if len(msgs) != 1 || msgs[0].Error != errSecondSub {
		t.Errorf("s1 messages = %+v, want one second-sub error", msgs)
	}
	if len(s2.messages()) != 0 {
		t.Errorf("s2 received %+v, want nothing", s2.messages())
	}

	// The duplicate is not appended: still exactly one waiter entry for s1.
	if got := g.Stats().Waiters; got != 2 {
		t.Errorf("Waiters = %d, want 2", got)
	}
	wantDemands(t, fb, model.Demand{Action: model.ActionGetStarting, DataID: "ticker.Binance.BTCUSDT"})
}

func TestAttach_UnparsableDataID(t *testing.T) {
	g, fb := startGateway(t)
	s := &fakeSession{name: "s"}

	g.Attach(s, "bogus")

	msgs := s.messages()
	if len(msgs) != 1 || msgs[0].Error != errBadStream || msgs[0].DataID != "bogus" {
		t.Errorf("messages = %+v", msgs)
	}
	if got := g.Stats().Streams; got != 0 {
		t.Errorf("Streams = %d, want 0", got)
	}
	wantDemands(t, fb) // nothing reaches the controller
}

// -----------------------------------------------------------------------------
// Promotion and fan-out
// -----------------------------------------------------------------------------

func TestSnapshotPromotesAndSubscribes(t *testing.T) {
	g, fb := startGateway(t)
	s1 := &fakeSession{name: "s1"}

	g.Attach(s1, "ticker.Binance.BTCUSDT")
	publishStarting(fb, "starting.ticker.Binance.BTCUSDT", `["100","101"]`)

	msgs := s1.messages()
	if len(msgs) != 1 {
		t.Fatalf("messages = %+v, want snapshot", msgs)
	}
	if msgs[0].DataID != "starting.ticker.Binance.BTCUSDT" {
		t.Errorf("DataID = %q", msgs[0].DataID)
	}
	if string(msgs[0].Data) != `["100","101"]` {
		t.Errorf("Data = %s", msgs[0].Data)
	}

	wantDemands(t, fb,
		model.Demand{Action: model.ActionGetStarting, DataID: "ticker.Binance.BTCUSDT"},
		model.Demand{Action: model.ActionSub, DataID: "ticker.Binance.BTCUSDT"},
	)

	// Updates now reach the promoted subscriber, after the snapshot.
	publishStarting(fb, "update.ticker.Binance.BTCUSDT", `["100","102"]`)
	msgs = s1.messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %+v, want snapshot then update", msgs)
	}
	if msgs[1].DataID != "update.ticker.Binance.BTCUSDT" {
		t.Errorf("DataID = %q", msgs[1].DataID)
	}
}

func TestSecondClientJoinsRunningStream(t *testing.T) {
	g, fb := startGateway(t)
	s1 := &fakeSession{name: "s1"}
	s2 := &fakeSession{name: "s2"}

	g.Attach(s1, "ticker.Binance.BTCUSDT")
	publishStarting(fb, "starting.ticker.Binance.BTCUSDT", `["100","101"]`)

	g.Attach(s2, "ticker.Binance.BTCUSDT")
	publishStarting(fb, "starting.ticker.Binance.BTCUSDT", `["100","101"]`)

	// get_starting for each 0→1 waiter transition, but only one sub.
	wantDemands(t, fb,
		model.Demand{Action: model.ActionGetStarting, DataID: "ticker.Binance.BTCUSDT"},
		model.Demand{Action: model.ActionSub, DataID: "ticker.Binance.BTCUSDT"},
		model.Demand{Action: model.ActionGetStarting, DataID: "ticker.Binance.BTCUSDT"},
	)

	publishStarting(fb, "update.ticker.Binance.BTCUSDT", `["99","100"]`)
	for _, s := range []*fakeSession{s1, s2} {
		msgs := s.messages()
		if len(msgs) == 0 || msgs[len(msgs)-1].DataID != "update.ticker.Binance.BTCUSDT" {
			t.Errorf("%s messages = %+v, want trailing update", s, msgs)
		}
	}
}

func TestUpdate_DoesNotReachWaiters(t *testing.T) {
	g, fb := startGateway(t)
	s := &fakeSession{name: "s"}

	g.Attach(s, "depth.Bittrex.BTCUSDT")
	publishStarting(fb, "update.depth.Bittrex.BTCUSDT", `[[],[]]`)

	if msgs := s.messages(); len(msgs) != 0 {
		t.Errorf("waiter received %+v, want nothing", msgs)
	}
}

func TestStarting_WithoutWaitersIsDropped(t *testing.T) {
	g, fb := startGateway(t)

	publishStarting(fb, "starting.ticker.Binance.BTCUSDT", `["1","2"]`)

	wantDemands(t, fb)
	if got := g.Stats().Streams; got != 0 {
		t.Errorf("Streams = %d, want 0", got)
	}
}

func TestPromotion_OrderFollowsAttachOrder(t *testing.T) {
	g, fb := startGateway(t)

	var order []string
	var orderMu sync.Mutex
	mkSession := func(name string) Session {
		return &sessionFunc{fn: func(msg Outbound) {
			orderMu.Lock()
			order = append(order, name)
			orderMu.Unlock()
		}}
	}

	for i := 0; i < 5; i++ {
		g.Attach(mkSession(fmt.Sprintf("s%d", i)), "ticker.Binance.BTCUSDT")
	}
	publishStarting(fb, "starting.ticker.Binance.BTCUSDT", `["1","2"]`)

	want := []string{"s0", "s1", "s2", "s3", "s4"}
	orderMu.Lock()
	defer orderMu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("deliveries = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("delivery[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

// sessionFunc adapts a callback to the Session interface. A pointer receiver
// keeps sessions usable as table keys.
type sessionFunc struct{ fn func(Outbound) }

func (s *sessionFunc) Deliver(msg Outbound) { s.fn(msg) }

// -----------------------------------------------------------------------------
// Detach
// -----------------------------------------------------------------------------

func TestLastSubscriberDetachEmitsOneUnsub(t *testing.T) {
	g, fb := startGateway(t)
	s1 := &fakeSession{name: "s1"}
	s2 := &fakeSession{name: "s2"}

	g.Attach(s1, "depth.Bittrex.BTCUSDT")
	g.Attach(s2, "depth.Bittrex.BTCUSDT")
	publishStarting(fb, "starting.depth.Bittrex.BTCUSDT", `[[],[]]`)

	g.Detach(s1, "depth.Bittrex.BTCUSDT")
	g.Detach(s2, "depth.Bittrex.BTCUSDT")

	wantDemands(t, fb,
		model.Demand{Action: model.ActionGetStarting, DataID: "depth.Bittrex.BTCUSDT"},
		model.Demand{Action: model.ActionSub, DataID: "depth.Bittrex.BTCUSDT"},
		model.Demand{Action: model.ActionUnsub, DataID: "depth.Bittrex.BTCUSDT"},
	)

	// The emptied entry is pruned.
	if got := g.Stats().Streams; got != 0 {
		t.Errorf("Streams = %d, want 0", got)
	}
}

func TestDetachDuringPromotionKeepsDemandOrder(t *testing.T) {
	g, fb := startGateway(t)

	// The session walks away as soon as its snapshot arrives. The unsub must
	// trail the sub on the wire or the controller is left running a producer
	// task nothing will ever cancel.
	var s Session
	s = &sessionFunc{fn: func(msg Outbound) {
		if msg.Error == "" {
			g.Detach(s, "ticker.Binance.BTCUSDT")
		}
	}}

	g.Attach(s, "ticker.Binance.BTCUSDT")
	publishStarting(fb, "starting.ticker.Binance.BTCUSDT", `["1","2"]`)

	wantDemands(t, fb,
		model.Demand{Action: model.ActionGetStarting, DataID: "ticker.Binance.BTCUSDT"},
		model.Demand{Action: model.ActionSub, DataID: "ticker.Binance.BTCUSDT"},
		model.Demand{Action: model.ActionUnsub, DataID: "ticker.Binance.BTCUSDT"},
	)
	if got := g.Stats().Streams; got != 0 {
		t.Errorf("Streams = %d, want 0", got)
	}
}

func TestDetach_IsIdempotent(t *testing.T) {
	g, fb := startGateway(t)
	s := &fakeSession{name: "s"}

	g.Detach(s, "ticker.Binance.BTCUSDT")
	g.Detach(s, "bogus")
	g.DetachAll(s)

	wantDemands(t, fb)
}

func TestDetach_WaiterDoesNotEmitUnsub(t *testing.T) {
	g, fb := startGateway(t)
	s := &fakeSession{name: "s"}

	g.Attach(s, "ticker.Binance.BTCUSDT")
	g.Detach(s, "ticker.Binance.BTCUSDT")

	wantDemands(t, fb, model.Demand{Action: model.ActionGetStarting, DataID: "ticker.Binance.BTCUSDT"})
	if got := g.Stats().Streams; got != 0 {
		t.Errorf("Streams = %d, want 0 after prune", got)
	}
}

func TestDetachAll_EmitsOneUnsubPerEmptiedStream(t *testing.T) {
	g, fb := startGateway(t)
	s1 := &fakeSession{name: "s1"}
	s2 := &fakeSession{name: "s2"}

	// s1 subscribes to two streams, s2 shares one of them.
	g.Attach(s1, "ticker.Binance.BTCUSDT")
	publishStarting(fb, "starting.ticker.Binance.BTCUSDT", `["1","2"]`)
	g.Attach(s1, "depth.Bittrex.BTCUSDT")
	g.Attach(s2, "ticker.Binance.BTCUSDT")
	publishStarting(fb, "starting.depth.Bittrex.BTCUSDT", `[[],[]]`)
	publishStarting(fb, "starting.ticker.Binance.BTCUSDT", `["1","2"]`)

	g.DetachAll(s1)

	var unsubs []string
	for _, d := range fb.demands(t) {
		if d.Action == model.ActionUnsub {
			unsubs = append(unsubs, d.DataID)
		}
	}
	// ticker still has s2 subscribed: only the depth stream is torn down.
	if len(unsubs) != 1 || unsubs[0] != "depth.Bittrex.BTCUSDT" {
		t.Errorf("unsubs = %v, want [depth.Bittrex.BTCUSDT]", unsubs)
	}

	// s2 keeps receiving updates.
	publishStarting(fb, "update.ticker.Binance.BTCUSDT", `["3","4"]`)
	msgs := s2.messages()
	if len(msgs) == 0 || msgs[len(msgs)-1].DataID != "update.ticker.Binance.BTCUSDT" {
		t.Errorf("s2 messages = %+v", msgs)
	}
	for _, m := range s1.messages() {
		if m.DataID == "update.ticker.Binance.BTCUSDT" && string(m.Data) == `["3","4"]` {
			t.Error("detached session received update")
		}
	}
}

// -----------------------------------------------------------------------------
// Listing and errors
// -----------------------------------------------------------------------------

func TestListing_RequestAndDelivery(t *testing.T) {
	g, fb := startGateway(t)
	s := &fakeSession{name: "s"}

	g.Attach(s, model.ListingID)
	wantDemands(t, fb, model.Demand{Action: model.ActionGetStarting, DataID: model.ListingID})

	payload := `{"Binance":[["M1"],["BTCUSDT"]]}`
	fb.deliver(testListing, testListing, []byte(payload))

	msgs := s.messages()
	if len(msgs) != 1 || msgs[0].DataID != model.ListingID || string(msgs[0].Data) != payload {
		t.Errorf("messages = %+v", msgs)
	}

	// Answered exactly once: a second listing publication is not delivered.
	fb.deliver(testListing, testListing, []byte(payload))
	if got := len(s.messages()); got != 1 {
		t.Errorf("messages after second publication = %d, want 1", got)
	}
}

func TestListing_DuplicateAttach(t *testing.T) {
	g, _ := startGateway(t)
	s := &fakeSession{name: "s"}

	g.Attach(s, model.ListingID)
	g.Attach(s, model.ListingID)

	msgs := s.messages()
	if len(msgs) != 1 || msgs[0].Error != errSecondSub {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestError_ReachesWaitersAndSubscribers(t *testing.T) {
	g, fb := startGateway(t)
	sub := &fakeSession{name: "sub"}
	waiter := &fakeSession{name: "waiter"}

	g.Attach(sub, "ticker.Binance.BTCUSDT")
	publishStarting(fb, "starting.ticker.Binance.BTCUSDT", `["1","2"]`)
	g.Attach(waiter, "ticker.Binance.BTCUSDT")

	publishError(t, fb, "ticker.Binance.BTCUSDT", "upstream gone")

	for _, s := range []*fakeSession{sub, waiter} {
		msgs := s.messages()
		last := msgs[len(msgs)-1]
		if last.Error != "upstream gone" || last.DataID != "ticker.Binance.BTCUSDT" {
			t.Errorf("%s last message = %+v", s, last)
		}
	}
}

func TestError_DropsStreamState(t *testing.T) {
	g, fb := startGateway(t)
	s1 := &fakeSession{name: "s1"}
	s2 := &fakeSession{name: "s2"}

	g.Attach(s1, "ticker.Binance.BTCUSDT")
	publishError(t, fb, "ticker.Binance.BTCUSDT", "upstream gone")

	if got := g.Stats().Streams; got != 0 {
		t.Fatalf("Streams = %d, want 0 after error", got)
	}

	// With the failed waiter gone, a fresh attach restarts the request cycle
	// instead of joining a snapshot request that will never be answered.
	g.Attach(s2, "ticker.Binance.BTCUSDT")
	wantDemands(t, fb,
		model.Demand{Action: model.ActionGetStarting, DataID: "ticker.Binance.BTCUSDT"},
		model.Demand{Action: model.ActionGetStarting, DataID: "ticker.Binance.BTCUSDT"},
	)
}

func TestError_WithoutPlaceIsDropped(t *testing.T) {
	g, fb := startGateway(t)
	s := &fakeSession{name: "s"}
	g.Attach(s, "ticker.Binance.BTCUSDT")

	publishError(t, fb, "", "config broken")

	if got := len(s.messages()); got != 0 {
		t.Errorf("messages = %d, want 0", got)
	}
}
