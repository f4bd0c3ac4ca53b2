package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/robfig/cron/v3"

	"github.com/cryptoview/market-data/internal/bus"
	"github.com/cryptoview/market-data/internal/exchange"
	"github.com/cryptoview/market-data/internal/listing"
	"github.com/cryptoview/market-data/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds the controller settings.
type Config struct {
	// DemandQueue is the subject (and queue group) demand messages arrive on.
	DemandQueue string
	// ListingSubject carries listing publications.
	ListingSubject string
	// ErrorSubject carries error publications.
	ErrorSubject string
	// SnapshotTimeout bounds one-shot connector calls.
	SnapshotTimeout time.Duration
	// ListingRefresh is an optional cron spec (with seconds) for periodic
	// listing recomputation.
	ListingRefresh string
}

// Stats contains runtime statistics.
type Stats struct {
	DemandsReceived int64
	DemandsRejected int64
	RunningTasks    int
}

// Controller consumes demand messages and multiplexes producer tasks.
type Controller struct {
	cfg      Config
	bus      bus.Bus
	registry *exchange.Registry
	cache    *listing.Cache
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	demandSub bus.Subscription
	refresher *cron.Cron

	// Producer task registry. At most one task per stream identifier.
	tasksMu sync.Mutex
	tasks   map[model.StreamID]*task

	statsMu  sync.Mutex
	received int64
	rejected int64
}

// New creates a Controller. Start must be called before it consumes demand.
func New(cfg Config, b bus.Bus, registry *exchange.Registry, cache *listing.Cache, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:      cfg,
		bus:      b,
		registry: registry,
		cache:    cache,
		logger:   logger,
		tasks:    make(map[model.StreamID]*task),
	}
}

// Start populates the listing cache and begins consuming the demand queue.
func (c *Controller) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	// The cache must be populated before any demand is validated.
	if _, err := c.cache.Refresh(c.ctx); err != nil {
		return fmt.Errorf("initial listing refresh: %w", err)
	}

	sub, err := c.bus.QueueSubscribe(c.cfg.DemandQueue, c.cfg.DemandQueue, c.handleDemand)
	if err != nil {
		return fmt.Errorf("consume demand queue: %w", err)
	}
	c.demandSub = sub

	if c.cfg.ListingRefresh != "" {
		c.refresher = cron.New(cron.WithSeconds())
		if _, err := c.refresher.AddFunc(c.cfg.ListingRefresh, c.publishListing); err != nil {
			return fmt.Errorf("listing refresh schedule: %w", err)
		}
		c.refresher.Start()
	}

	c.logger.Info("controller started",
		"demand_queue", c.cfg.DemandQueue,
		"exchanges", c.registry.Names(),
	)
	return nil
}

// Stop cancels every producer task and stops consuming demand.
func (c *Controller) Stop(ctx context.Context) error {
	c.logger.Info("stopping controller")

	if c.demandSub != nil {
		if err := c.demandSub.Unsubscribe(); err != nil {
			c.logger.Warn("demand unsubscribe failed", "error", err)
		}
	}
	if c.refresher != nil {
		c.refresher.Stop()
	}
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("controller stopped")
	case <-ctx.Done():
		c.logger.Warn("controller stop timed out")
	}
	return nil
}

// Stats returns current statistics.
func (c *Controller) Stats() Stats {
	c.statsMu.Lock()
	received, rejected := c.received, c.rejected
	c.statsMu.Unlock()

	c.tasksMu.Lock()
	running := len(c.tasks)
	c.tasksMu.Unlock()

	return Stats{
		DemandsReceived: received,
		DemandsRejected: rejected,
		RunningTasks:    running,
	}
}

// handleDemand processes one demand message from the queue.
func (c *Controller) handleDemand(_ string, data []byte) {
	c.statsMu.Lock()
	c.received++
	c.statsMu.Unlock()

	var demand model.Demand
	if err := json.Unmarshal(data, &demand); err != nil {
		c.reject("", errNotJSON)
		return
	}

	verdict := c.validate(demand)
	if verdict.err != "" {
		c.reject(demand.DataID, verdict.err)
		return
	}

	switch demand.Action {
	case model.ActionGetStarting:
		if verdict.listing {
			c.spawn(c.publishListing)
			return
		}
		c.spawn(func() { c.publishStarting(verdict.id) })
	case model.ActionSub:
		c.subscribe(verdict.id)
	case model.ActionUnsub:
		c.unsubscribe(verdict.id)
	}
}

// spawn runs fn on its own goroutine tracked by the controller's WaitGroup,
// keeping the demand handler non-blocking.
func (c *Controller) spawn(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// publishListing recomputes the listing from all connectors and publishes it.
func (c *Controller) publishListing() {
	fresh, err := c.cache.Refresh(c.ctx)
	if err != nil {
		c.logger.Warn("listing refresh aborted", "error", err)
		return
	}

	data, err := json.Marshal(fresh)
	if err != nil {
		c.logger.Error("listing marshal failed", "error", err)
		return
	}
	if err := c.bus.Publish(c.cfg.ListingSubject, data); err != nil {
		c.logger.Error("listing publish failed", "error", err)
	}
}

// publishStarting fetches the one-shot snapshot for the stream and publishes
// it on the starting routing key. Connector failures degrade to the kind's
// empty payload.
func (c *Controller) publishStarting(id model.StreamID) {
	conn, ok := c.registry.Get(id.Exchange)
	if !ok {
		// Validation checks this; the registry cannot shrink afterwards.
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.SnapshotTimeout)
	defer cancel()

	var payload any
	switch id.Kind {
	case model.KindTicker:
		payload = exchange.Snapshot(ctx, c.logger, id.String(),
			func(ctx context.Context) (model.Ticker, error) { return conn.Ticker(ctx, id.Pair) })
	case model.KindCandles:
		candles := exchange.Snapshot(ctx, c.logger, id.String(),
			func(ctx context.Context) ([]model.Candle, error) { return conn.Candles(ctx, id.Pair, id.Timeframe) })
		if candles == nil {
			candles = []model.Candle{}
		}
		payload = candles
	case model.KindDepth:
		payload = exchange.Snapshot(ctx, c.logger, id.String(),
			func(ctx context.Context) (model.Depth, error) { return conn.Depth(ctx, id.Pair) })
	}

	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("snapshot marshal failed", "stream", id.String(), "error", err)
		return
	}
	if err := c.bus.Publish(id.Subject(model.PhaseStarting), data); err != nil {
		c.logger.Error("snapshot publish failed", "stream", id.String(), "error", err)
	}
}

// reject publishes an error message for an invalid demand.
func (c *Controller) reject(dataID, message string) {
	c.statsMu.Lock()
	c.rejected++
	c.statsMu.Unlock()

	c.logger.Debug("demand rejected", "data_id", dataID, "reason", message)
	c.publishError(dataID, message)
}

func (c *Controller) publishError(place, message string) {
	data, err := json.Marshal(model.ErrorMessage{ErrorPlace: place, Message: message})
	if err != nil {
		c.logger.Error("error marshal failed", "error", err)
		return
	}
	if err := c.bus.Publish(c.cfg.ErrorSubject, data); err != nil {
		c.logger.Error("error publish failed", "error", err)
	}
}
