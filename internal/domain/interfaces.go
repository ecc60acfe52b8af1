package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderRepository defines durable access to orders. CreateOrder must enforce
// the unique constraint on the idempotency key and report a violation as
// ErrDuplicateOrder.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *Order) error
	OrderByIdempotencyKey(ctx context.Context, key string) (*Order, error)
	SaveOrder(ctx context.Context, order *Order) error

	// HasOtherPendingOrder reports whether the user has a PENDING_VALIDATION
	// order for the symbol other than excludeOrderID.
	HasOtherPendingOrder(ctx context.Context, userID int64, symbol, excludeOrderID string) (bool, error)

	// CountOrdersSince counts the user's orders created at or after since.
	CountOrdersSince(ctx context.Context, userID int64, since time.Time) (int64, error)
}

// AuditRecorder appends immutable order transition records.
type AuditRecorder interface {
	AppendAudit(ctx context.Context, entry *OrderAuditLog) error
}

// WalletRepository defines durable access to wallets and the transaction
// ledger. CommitAdjustment must persist the ledger entry and the new cached
// balance as one atomic unit.
type WalletRepository interface {
	CreateWallet(ctx context.Context, userID int64) (*Wallet, error)
	WalletByUserID(ctx context.Context, userID int64) (*Wallet, error)
	CommitAdjustment(ctx context.Context, entry *LedgerEntry, newBalance decimal.Decimal) error
	LedgerSum(ctx context.Context, userID int64) (decimal.Decimal, error)
}

// TickRepository stores and serves market price observations.
type TickRepository interface {
	SaveTick(ctx context.Context, tick *MarketTick) error
	LatestTick(ctx context.Context, symbol string) (*MarketTick, error)
}

// HoldingRepository defines durable access to positions.
type HoldingRepository interface {
	HoldingByUserAndSymbol(ctx context.Context, userID int64, symbol string) (*Holding, error)
	SaveHolding(ctx context.Context, holding *Holding) error
	DeleteHolding(ctx context.Context, holding *Holding) error
	HoldingsByUser(ctx context.Context, userID int64) ([]Holding, error)
}

// PriceOracle returns the latest quoted price for a symbol, or
// ErrNoMarketData when nothing has been ingested for it.
type PriceOracle interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
