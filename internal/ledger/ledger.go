package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"apex_go/internal/domain"
	"apex_go/internal/infra"

	"github.com/shopspring/decimal"
)

// Ledger owns every wallet balance mutation in the system. Each adjustment
// appends one immutable ledger entry and updates the cached wallet balance
// as a single atomic unit, serialized per user so unrelated users proceed
// fully in parallel.
type Ledger struct {
	wallets domain.WalletRepository

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New creates a ledger over the given wallet repository.
func New(wallets domain.WalletRepository) *Ledger {
	return &Ledger{
		wallets: wallets,
		locks:   make(map[int64]*sync.Mutex),
	}
}

// lockFor returns the mutex guarding one user's wallet, creating it on
// first use. The guard mutex is held only for the map access, never across
// a store call.
func (l *Ledger) lockFor(userID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[userID] = lock
	}
	return lock
}

// Adjust applies a signed amount to the user's wallet. For debits the
// prospective balance is checked first: if it would go below zero the call
// fails with InsufficientFundsError and nothing is written. The ledger
// entry and the balance update commit together through the repository.
func (l *Ledger) Adjust(ctx context.Context, userID int64, amount decimal.Decimal, txType domain.TransactionType) error {
	lock := l.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	wallet, err := l.wallets.WalletByUserID(ctx, userID)
	if err != nil {
		return err
	}

	newBalance := wallet.Balance.Add(amount)
	if amount.IsNegative() && newBalance.IsNegative() {
		return &domain.InsufficientFundsError{
			UserID:    userID,
			Required:  amount.Neg(),
			Available: wallet.Balance,
		}
	}

	entry := &domain.LedgerEntry{
		UserID:    userID,
		Amount:    amount,
		Type:      txType,
		Timestamp: time.Now().UTC(),
	}
	if err := l.wallets.CommitAdjustment(ctx, entry, newBalance); err != nil {
		return err
	}
	infra.GlobalMetrics.RecordLedgerAdjustment()

	slog.InfoContext(ctx, "Balance adjusted",
		slog.Int64("user_id", userID),
		slog.String("amount", amount.String()),
		slog.String("type", string(txType)),
		slog.String("new_balance", newBalance.String()))
	return nil
}

// Balance returns the user's current cached balance.
func (l *Ledger) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	wallet, err := l.wallets.WalletByUserID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return wallet.Balance, nil
}
