// buswatch subscribes to the market-data subjects and prints every
// publication to the console. It can also inject demand messages, which makes
// it a controller smoke tester that needs no running gateway.
//
// Usage:
//
//	go run ./cmd/buswatch --config configs/controller.local.yaml
//	go run ./cmd/buswatch --get ticker.Binance.BTCUSDT
//	go run ./cmd/buswatch --sub candles.Binance.BTCUSDT.M1
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/cryptoview/market-data/internal/bus"
	"github.com/cryptoview/market-data/internal/config"
	"github.com/cryptoview/market-data/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	configPath := flag.String("config", "configs/controller.local.yaml", "path to config file")
	get := flag.String("get", "", "send a get_starting demand for this data_id")
	sub := flag.String("sub", "", "send a sub demand for this data_id")
	unsub := flag.String("unsub", "", "send an unsub demand for this data_id")
	verbose := flag.Bool("verbose", false, "print full payloads instead of a summary")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

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
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	b, err := bus.Connect(cfg.Bus.URL, logger)
	if err != nil {
		logger.Error("failed to connect to bus", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	print := func(subject string, data []byte) {
		if *verbose {
			fmt.Printf("%s  %s  %s\n", time.Now().Format(time.TimeOnly), subject, data)
			return
		}
		payload := string(data)
		if len(payload) > 120 {
			payload = payload[:117] + "..."
		}
		fmt.Printf("%s  %-40s  %s\n", time.Now().Format(time.TimeOnly), subject, payload)
	}

	subjects := []string{model.MarketDataPattern, cfg.Bus.ListingSubject, cfg.Bus.ErrorSubject}
	for _, subject := range subjects {
		if _, err := b.Subscribe(subject, print); err != nil {
			logger.Error("subscribe failed", "subject", subject, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("watching", "subjects", subjects)

	demands := map[model.Action]string{
		model.ActionGetStarting: *get,
		model.ActionSub:         *sub,
		model.ActionUnsub:       *unsub,
	}
	for action, dataID := range demands {
		if dataID == "" {
			continue
		}
		data, err := json.Marshal(model.Demand{Action: action, DataID: dataID})
		if err != nil {
			logger.Error("marshal demand", "error", err)
			os.Exit(1)
		}
		if err := b.Publish(cfg.Bus.DemandQueue, data); err != nil {
			logger.Error("publish demand", "error", err)
			os.Exit(1)
		}
		logger.Info("demand sent", "action", action, "data_id", dataID)
	}

	select {
	case <-ctx.Done():
	case <-b.Closed():
		logger.Error("bus connection lost")
	}
}
