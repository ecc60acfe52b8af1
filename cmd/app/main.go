package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"apex_go/internal/app"
	"apex_go/internal/infra"
	"apex_go/internal/market"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize("configs/config.yaml"); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Seed the demo wallet (DEPOSIT through the ledger)
	if err := bootstrap.SeedDemoWallet(ctx); err != nil {
		slog.Error("❌ Demo wallet seeding failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 5. Market data pipeline: ingest worker -> tick inbox -> oracle cache + store
	go bootstrap.Market.Run(ctx)
	slog.InfoContext(ctx, "✅ Market data service started")

	cfg := bootstrap.Config
	if len(cfg.Market.Symbols) > 0 {
		worker := market.NewBinanceWorker(cfg.Market.WSURL, cfg.Market.Symbols, bootstrap.Market.Inbox())
		if err := worker.Connect(ctx); err != nil {
			slog.Error("Failed to connect Binance", slog.Any("error", err))
		}
		defer worker.Disconnect()
		slog.InfoContext(ctx, "✅ BinanceWorker started", slog.Int("symbols", len(cfg.Market.Symbols)))
	}

	slog.InfoContext(ctx, "✨ Apex Go trading backend operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	snap := infra.GlobalMetrics.Snapshot()
	slog.Info("👋 Shutting down gracefully...",
		slog.Uint64("orders_executed", snap.OrdersExecuted),
		slog.Uint64("orders_filled", snap.OrdersFilled),
		slog.Uint64("orders_rejected", snap.OrdersRejected),
		slog.Uint64("ticks_ingested", snap.TicksIngested))
}
