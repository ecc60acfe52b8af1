package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"apex_go/internal/domain"

	"github.com/shopspring/decimal"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return store
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateOrder_DuplicateIdempotencyKey(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	first := domain.NewOrder(1, "BTCUSDT", domain.SideBuy, 10, "same-key")
	if err := store.CreateOrder(ctx, first); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	second := domain.NewOrder(1, "ETHUSDT", domain.SideSell, 5, "same-key")
	err := store.CreateOrder(ctx, second)
	if !errors.Is(err, domain.ErrDuplicateOrder) {
		t.Fatalf("expected ErrDuplicateOrder, got %v", err)
	}

	// The key still resolves to the winner.
	winner, err := store.OrderByIdempotencyKey(ctx, "same-key")
	if err != nil {
		t.Fatal(err)
	}
	if winner.ID != first.ID {
		t.Errorf("winner = %s, want %s", winner.ID, first.ID)
	}
}

func TestOrder_RoundTrip(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	order := domain.NewOrder(1, "BTCUSDT", domain.SideBuy, 10, "rt-key")
	order.Price = dec("50.25")
	if err := store.CreateOrder(ctx, order); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.OrderByID(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status() != domain.StatusPendingValidation {
		t.Errorf("status = %s", loaded.Status())
	}
	if !loaded.Price.Equal(dec("50.25")) {
		t.Errorf("price = %s", loaded.Price)
	}
	if loaded.Side != domain.SideBuy || loaded.Quantity != 10 {
		t.Errorf("fields lost: %+v", loaded)
	}

	// SaveOrder persists a later state.
	sm := domain.NewStateMachine(domain.DefaultTransitions(), store)
	if err := sm.Transition(ctx, order, domain.StatusValidated); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveOrder(ctx, order); err != nil {
		t.Fatal(err)
	}
	loaded, err = store.OrderByID(ctx, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status() != domain.StatusValidated {
		t.Errorf("saved status = %s", loaded.Status())
	}
}

func TestOrderByIdempotencyKey_NotFound(t *testing.T) {
	store := setupTestStorage(t)

	_, err := store.OrderByIdempotencyKey(context.Background(), "missing")
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestHasOtherPendingOrder(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	mine := domain.NewOrder(1, "BTCUSDT", domain.SideBuy, 1, "k1")
	if err := store.CreateOrder(ctx, mine); err != nil {
		t.Fatal(err)
	}

	// Only my own order exists: excluded, so no conflict.
	pending, err := store.HasOtherPendingOrder(ctx, 1, "BTCUSDT", mine.ID)
	if err != nil {
		t.Fatal(err)
	}
	if pending {
		t.Error("own order must be excluded from the pending check")
	}

	other := domain.NewOrder(1, "BTCUSDT", domain.SideSell, 1, "k2")
	if err := store.CreateOrder(ctx, other); err != nil {
		t.Fatal(err)
	}
	pending, err = store.HasOtherPendingOrder(ctx, 1, "BTCUSDT", mine.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !pending {
		t.Error("expected conflict with another pending order")
	}

	// Different symbol does not conflict.
	pending, err = store.HasOtherPendingOrder(ctx, 1, "ETHUSDT", mine.ID)
	if err != nil {
		t.Fatal(err)
	}
	if pending {
		t.Error("different symbol must not conflict")
	}
}

func TestCountOrdersSince(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		order := domain.NewOrder(1, "BTCUSDT", domain.SideBuy, 1, "count-"+string(rune('a'+i)))
		if err := store.CreateOrder(ctx, order); err != nil {
			t.Fatal(err)
		}
	}

	count, err := store.CountOrdersSince(ctx, 1, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	count, err = store.CountOrdersSince(ctx, 1, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("future cutoff count = %d, want 0", count)
	}
}

func TestAuditTrail_WriteOrder(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	for _, status := range []domain.OrderStatus{domain.StatusValidated, domain.StatusFilled} {
		err := store.AppendAudit(ctx, &domain.OrderAuditLog{
			OrderID:   "order-1",
			NewStatus: status,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	trail, err := store.AuditTrail(ctx, "order-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(trail) != 2 {
		t.Fatalf("trail length = %d", len(trail))
	}
	if trail[0].NewStatus != domain.StatusValidated || trail[1].NewStatus != domain.StatusFilled {
		t.Errorf("trail out of write order: %+v", trail)
	}
}

func TestCommitAdjustment(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	if _, err := store.CreateWallet(ctx, 1); err != nil {
		t.Fatal(err)
	}

	entry := &domain.LedgerEntry{
		UserID:    1,
		Amount:    dec("250.00"),
		Type:      domain.TxDeposit,
		Timestamp: time.Now().UTC(),
	}
	if err := store.CommitAdjustment(ctx, entry, dec("250.00")); err != nil {
		t.Fatal(err)
	}

	wallet, err := store.WalletByUserID(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !wallet.Balance.Equal(dec("250.00")) {
		t.Errorf("balance = %s", wallet.Balance)
	}

	sum, err := store.LedgerSum(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Equal(wallet.Balance) {
		t.Errorf("ledger sum %s != balance %s", sum, wallet.Balance)
	}
}

func TestCommitAdjustment_MissingWalletRollsBack(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	entry := &domain.LedgerEntry{
		UserID:    42,
		Amount:    dec("10.00"),
		Type:      domain.TxDeposit,
		Timestamp: time.Now().UTC(),
	}
	err := store.CommitAdjustment(ctx, entry, dec("10.00"))
	if !errors.Is(err, domain.ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}

	// The transaction rolled back: no orphan ledger entry.
	entries, err := store.LedgerEntries(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("orphan ledger entries persisted: %d", len(entries))
	}
}

func TestWalletByUserID_NotFound(t *testing.T) {
	store := setupTestStorage(t)

	_, err := store.WalletByUserID(context.Background(), 999)
	if !errors.Is(err, domain.ErrWalletNotFound) {
		t.Errorf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestLatestTick(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	_, err := store.LatestTick(ctx, "BTCUSDT")
	if !errors.Is(err, domain.ErrNoMarketData) {
		t.Fatalf("expected ErrNoMarketData, got %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	prices := []string{"100.00", "101.50", "99.75"}
	for i, p := range prices {
		err := store.SaveTick(ctx, &domain.MarketTick{
			Symbol:    "BTCUSDT",
			Price:     dec(p),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	tick, err := store.LatestTick(ctx, "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if !tick.Price.Equal(dec("99.75")) {
		t.Errorf("latest price = %s, want 99.75", tick.Price)
	}
}

func TestHoldings_CRUD(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	none, err := store.HoldingByUserAndSymbol(ctx, 1, "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if none != nil {
		t.Fatal("expected nil for a missing position")
	}

	holding := &domain.Holding{
		UserID:       1,
		Symbol:       "BTCUSDT",
		Quantity:     10,
		AveragePrice: dec("50.00"),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := store.SaveHolding(ctx, holding); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.HoldingByUserAndSymbol(ctx, 1, "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil || loaded.Quantity != 10 || !loaded.AveragePrice.Equal(dec("50.00")) {
		t.Fatalf("loaded holding wrong: %+v", loaded)
	}

	loaded.Quantity = 4
	if err := store.SaveHolding(ctx, loaded); err != nil {
		t.Fatal(err)
	}
	all, err := store.HoldingsByUser(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Quantity != 4 {
		t.Fatalf("update lost: %+v", all)
	}

	if err := store.DeleteHolding(ctx, loaded); err != nil {
		t.Fatal(err)
	}
	gone, err := store.HoldingByUserAndSymbol(ctx, 1, "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if gone != nil {
		t.Error("holding survived delete")
	}
}
