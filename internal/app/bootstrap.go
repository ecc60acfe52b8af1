package app

import (
	"context"
	"errors"
	"log/slog"

	"apex_go/internal/domain"
	"apex_go/internal/execution"
	"apex_go/internal/infra"
	"apex_go/internal/infra/storage"
	"apex_go/internal/ledger"
	"apex_go/internal/market"
	"apex_go/internal/portfolio"
	"apex_go/internal/risk"
)

// Bootstrap orchestrates the application startup sequence and owns the
// wired component graph.
type Bootstrap struct {
	Config       *infra.Config
	Storage      *storage.Storage
	Market       *market.Service
	Ledger       *ledger.Ledger
	Orchestrator *execution.Orchestrator
	Portfolio    *portfolio.Tracker
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization: config, logger, storage,
// and the execution pipeline.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping Apex Go...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized", slog.String("path", cfg.Storage.Path))

	// 4. Market data service (PriceOracle)
	b.Market = market.NewService(store, cfg.Market.TickBuffer)

	// 5. Execution pipeline
	states := domain.NewStateMachine(domain.DefaultTransitions(), store)
	gate := risk.NewGate(risk.Config{
		MaxOrderValue:  cfg.Risk.MaxOrderValue,
		MinBalance:     cfg.Risk.MinBalance,
		MaxDailyTrades: cfg.Risk.MaxDailyTrades,
	}, store, store)
	b.Ledger = ledger.New(store)
	b.Orchestrator = execution.NewOrchestrator(store, b.Market, gate, states, b.Ledger)
	b.Portfolio = portfolio.NewTracker(store, store, b.Market)
	slog.Info("✅ Execution pipeline wired")

	return nil
}

// SeedDemoWallet creates and funds the configured demo wallet if it does
// not exist yet. The deposit goes through the Ledger so the balance equals
// the ledger sum from the very first entry.
func (b *Bootstrap) SeedDemoWallet(ctx context.Context) error {
	userID := b.Config.Demo.UserID
	if userID == 0 {
		return nil
	}

	_, err := b.Storage.WalletByUserID(ctx, userID)
	if err == nil {
		return nil // already seeded
	}
	if !errors.Is(err, domain.ErrWalletNotFound) {
		return err
	}

	if _, err := b.Storage.CreateWallet(ctx, userID); err != nil {
		return err
	}
	if b.Config.Demo.InitialDeposit.IsPositive() {
		if err := b.Ledger.Adjust(ctx, userID, b.Config.Demo.InitialDeposit, domain.TxDeposit); err != nil {
			return err
		}
	}

	slog.InfoContext(ctx, "✅ Demo wallet seeded",
		slog.Int64("user_id", userID),
		slog.String("deposit", b.Config.Demo.InitialDeposit.String()))
	return nil
}
