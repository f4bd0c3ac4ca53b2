package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cryptoview/market-data/internal/bus"
	"github.com/cryptoview/market-data/internal/config"
	"github.com/cryptoview/market-data/internal/controller"
	"github.com/cryptoview/market-data/internal/exchange"
	"github.com/cryptoview/market-data/internal/exchange/binance"
	"github.com/cryptoview/market-data/internal/exchange/bittrex"
	"github.com/cryptoview/market-data/internal/listing"
	"github.com/cryptoview/market-data/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/controller.local.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting controller",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	registry := buildRegistry(cfg.Controller.Exchanges, logger)
	logger.Info("connectors enabled", "exchanges", registry.Names())

	logger.Info("connecting to bus", "url", cfg.Bus.URL)
	b, err := bus.Connect(cfg.Bus.URL, logger)
	if err != nil {
		logger.Error("failed to connect to bus", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	cache := listing.NewCache(registry, logger)

	ctrl := controller.New(controller.Config{
		DemandQueue:     cfg.Bus.DemandQueue,
		ListingSubject:  cfg.Bus.ListingSubject,
		ErrorSubject:    cfg.Bus.ErrorSubject,
		SnapshotTimeout: cfg.Controller.SnapshotTimeout,
		ListingRefresh:  cfg.Controller.ListingRefresh,
	}, b, registry, cache, logger)

	if err := ctrl.Start(ctx); err != nil {
		logger.Error("failed to start controller", "error", err)
		os.Exit(1)
	}
	logger.Info("controller running",
		"demand_queue", cfg.Bus.DemandQueue,
		"listing_subject", cfg.Bus.ListingSubject,
	)

	// A bus disconnect is fatal: there is no reconnect, the process restarts.
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-b.Closed():
		logger.Error("bus connection lost, exiting")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := ctrl.Stop(shutdownCtx); err != nil {
		logger.Error("controller stop", "error", err)
	}
	logger.Info("controller stopped")
}

// buildRegistry enables the configured connectors. An empty list enables all
// known exchanges.
func buildRegistry(names []string, logger *slog.Logger) *exchange.Registry {
	known := map[string]exchange.Connector{
		binance.Name: binance.New(binance.WithLogger(logger)),
		bittrex.Name: bittrex.New(bittrex.WithLogger(logger)),
	}

	if len(names) == 0 {
		connectors := make([]exchange.Connector, 0, len(known))
		for _, c := range known {
			connectors = append(connectors, c)
		}
		return exchange.NewRegistry(connectors...)
	}

	var connectors []exchange.Connector
	for _, name := range names {
		c, ok := known[name]
		if !ok {
			logger.Warn("unknown exchange in config, skipping", "exchange", name)
			continue
		}
		connectors = append(connectors, c)
	}
	return exchange.NewRegistry(connectors...)
}
