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
	"github.com/cryptoview/market-data/internal/gateway"
	"github.com/cryptoview/market-data/internal/server"
	"github.com/cryptoview/market-data/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/gateway.local.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gateway",
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

	logger.Info("connecting to bus", "url", cfg.Bus.URL)
	b, err := bus.Connect(cfg.Bus.URL, logger)
	if err != nil {
		logger.Error("failed to connect to bus", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	gw := gateway.New(gateway.Config{
		DemandQueue:    cfg.Bus.DemandQueue,
		ListingSubject: cfg.Bus.ListingSubject,
		ErrorSubject:   cfg.Bus.ErrorSubject,
	}, b, logger)

	if err := gw.Start(ctx); err != nil {
		logger.Error("failed to start gateway", "error", err)
		os.Exit(1)
	}

	srv := server.New(cfg.Gateway, gw, logger)
	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway running",
		"addr", cfg.Gateway.ListenAddr,
		"ws_path", cfg.Gateway.WSPath,
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
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server stop", "error", err)
	}
	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error("gateway stop", "error", err)
	}
	logger.Info("gateway stopped")
}
