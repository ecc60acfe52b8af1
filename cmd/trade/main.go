// Command trade executes a single order through the full pipeline against
// the local database. Useful for poking the engine without the service
// running:
//
//	go run ./cmd/trade -user 1 -symbol BTCUSDT -side BUY -qty 10 -key demo-1
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"apex_go/internal/app"
	"apex_go/internal/domain"

	"github.com/google/uuid"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "config file path")
		userID     = flag.Int64("user", 1, "user id")
		symbol     = flag.String("symbol", "BTCUSDT", "trade symbol")
		side       = flag.String("side", "BUY", "BUY or SELL")
		qty        = flag.Int64("qty", 1, "quantity")
		key        = flag.String("key", "", "idempotency key (random when empty)")
	)
	flag.Parse()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	if err := bootstrap.SeedDemoWallet(ctx); err != nil {
		slog.Error("❌ Demo wallet seeding failed", slog.Any("error", err))
		os.Exit(1)
	}

	idempotencyKey := *key
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	order, err := bootstrap.Orchestrator.ExecuteOrder(ctx, *userID, *symbol, domain.Side(*side), *qty, idempotencyKey)
	if err != nil {
		slog.Error("❌ Order execution failed", slog.Any("error", err))
		os.Exit(1)
	}

	fmt.Printf("order:     %s\n", order.ID)
	fmt.Printf("status:    %s\n", order.Status())
	if order.Status() == domain.StatusRejected {
		fmt.Printf("reason:    %s\n", order.RejectionReason)
	} else {
		fmt.Printf("price:     %s\n", order.ExecutionPrice)

		if err := bootstrap.Portfolio.ApplyFill(ctx, order); err != nil {
			slog.Warn("Position update failed", slog.Any("error", err))
		}
	}

	summary, err := bootstrap.Portfolio.Summary(ctx, *userID)
	if err != nil {
		slog.Error("❌ Portfolio summary failed", slog.Any("error", err))
		os.Exit(1)
	}

	fmt.Printf("cash:      %s\n", summary.CashBalance)
	fmt.Printf("total:     %s\n", summary.TotalValue)
	for _, h := range summary.Holdings {
		fmt.Printf("position:  %s x%d @ %s\n", h.Symbol, h.Quantity, h.AveragePrice)
	}
}
