package listing

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cryptoview/market-data/internal/exchange"
	"github.com/cryptoview/market-data/internal/model"
)

// Cache holds the current listing snapshot.
type Cache struct {
	registry *exchange.Registry
	logger   *slog.Logger

	mu      sync.RWMutex
	listing model.Listing
}

// NewCache creates an empty cache over the given connector registry.
// Call Refresh before serving lookups.
func NewCache(registry *exchange.Registry, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		registry: registry,
		logger:   logger,
		listing:  model.Listing{},
	}
}

// Refresh queries every connector concurrently and atomically replaces the
// snapshot. A connector that fails to list symbols contributes an empty pair
// list rather than failing the refresh.
func (c *Cache) Refresh(ctx context.Context) (model.Listing, error) {
	connectors := c.registry.All()

	fresh := make(model.Listing, len(connectors))
	var freshMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, conn := range connectors {
		conn := conn
		g.Go(func() error {
			pairs := exchange.Snapshot(gctx, c.logger, conn.Name()+" symbols",
				func(ctx context.Context) ([]string, error) { return conn.Symbols(ctx) })

			freshMu.Lock()
			fresh[conn.Name()] = model.ListingEntry{
				Timeframes: conn.Timeframes(),
				Pairs:      pairs,
			}
			freshMu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.listing = fresh
	c.mu.Unlock()

	c.logger.Info("listing refreshed", "exchanges", len(fresh))
	return fresh, nil
}

// Snapshot returns the current listing.
func (c *Cache) Snapshot() model.Listing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.listing
}

// Lookup returns the entry for one exchange.
func (c *Cache) Lookup(exchangeName string) (model.ListingEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.listing[exchangeName]
	return entry, ok
}
