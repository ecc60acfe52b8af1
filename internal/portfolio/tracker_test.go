package portfolio

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"apex_go/internal/domain"

	"github.com/shopspring/decimal"
)

type memHoldings struct {
	positions map[string]*domain.Holding // userID+symbol -> holding
}

func newMemHoldings() *memHoldings {
	return &memHoldings{positions: make(map[string]*domain.Holding)}
}

func key(userID int64, symbol string) string {
	return fmt.Sprintf("%d:%s", userID, symbol)
}

func (m *memHoldings) HoldingByUserAndSymbol(_ context.Context, userID int64, symbol string) (*domain.Holding, error) {
	h, ok := m.positions[key(userID, symbol)]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (m *memHoldings) SaveHolding(_ context.Context, holding *domain.Holding) error {
	cp := *holding
	m.positions[key(holding.UserID, holding.Symbol)] = &cp
	return nil
}

func (m *memHoldings) DeleteHolding(_ context.Context, holding *domain.Holding) error {
	delete(m.positions, key(holding.UserID, holding.Symbol))
	return nil
}

func (m *memHoldings) HoldingsByUser(_ context.Context, userID int64) ([]domain.Holding, error) {
	var out []domain.Holding
	for _, h := range m.positions {
		if h.UserID == userID {
			out = append(out, *h)
		}
	}
	return out, nil
}

type fixedWallet struct {
	balance decimal.Decimal
}

func (f *fixedWallet) CreateWallet(context.Context, int64) (*domain.Wallet, error) {
	return nil, errors.New("not implemented")
}

func (f *fixedWallet) WalletByUserID(_ context.Context, userID int64) (*domain.Wallet, error) {
	return &domain.Wallet{UserID: userID, Balance: f.balance}, nil
}

func (f *fixedWallet) CommitAdjustment(context.Context, *domain.LedgerEntry, decimal.Decimal) error {
	return nil
}

func (f *fixedWallet) LedgerSum(context.Context, int64) (decimal.Decimal, error) {
	return f.balance, nil
}

type fixedOracle struct {
	prices map[string]decimal.Decimal
}

func (f *fixedOracle) LatestPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	price, ok := f.prices[symbol]
	if !ok {
		return decimal.Zero, domain.ErrNoMarketData
	}
	return price, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func filledOrder(side domain.Side, qty int64, execPrice string) *domain.Order {
	order := domain.NewOrder(1, "BTCUSDT", side, qty, "key")
	order.ExecutionPrice = dec(execPrice)
	return domain.OrderFromSnapshot(func() domain.OrderSnapshot {
		s := order.Snapshot()
		s.Status = domain.StatusFilled
		return s
	}())
}

func newTestTracker(oracle domain.PriceOracle) (*Tracker, *memHoldings) {
	holdings := newMemHoldings()
	if oracle == nil {
		oracle = &fixedOracle{prices: map[string]decimal.Decimal{}}
	}
	return NewTracker(holdings, &fixedWallet{balance: dec("1000.00")}, oracle), holdings
}

func TestApplyFill_RejectsNonFilled(t *testing.T) {
	tracker, _ := newTestTracker(nil)
	order := domain.NewOrder(1, "BTCUSDT", domain.SideBuy, 1, "key")

	if err := tracker.ApplyFill(context.Background(), order); err == nil {
		t.Fatal("expected error for a PENDING_VALIDATION order")
	}
}

func TestApplyFill_BuyOpensPosition(t *testing.T) {
	tracker, holdings := newTestTracker(nil)
	ctx := context.Background()

	if err := tracker.ApplyFill(ctx, filledOrder(domain.SideBuy, 10, "50.00")); err != nil {
		t.Fatal(err)
	}

	h, _ := holdings.HoldingByUserAndSymbol(ctx, 1, "BTCUSDT")
	if h == nil {
		t.Fatal("position not created")
	}
	if h.Quantity != 10 || !h.AveragePrice.Equal(dec("50.00")) {
		t.Errorf("holding = %+v", h)
	}
}

func TestApplyFill_BuyMergesAtVWAP(t *testing.T) {
	tracker, holdings := newTestTracker(nil)
	ctx := context.Background()

	if err := tracker.ApplyFill(ctx, filledOrder(domain.SideBuy, 10, "50.00")); err != nil {
		t.Fatal(err)
	}
	if err := tracker.ApplyFill(ctx, filledOrder(domain.SideBuy, 5, "80.00")); err != nil {
		t.Fatal(err)
	}

	// (10*50 + 5*80) / 15 = 900/15 = 60.00
	h, _ := holdings.HoldingByUserAndSymbol(ctx, 1, "BTCUSDT")
	if h.Quantity != 15 {
		t.Errorf("quantity = %d", h.Quantity)
	}
	if !h.AveragePrice.Equal(dec("60.00")) {
		t.Errorf("average price = %s, want 60.00", h.AveragePrice)
	}
}

func TestApplyFill_SellReducesAndCloses(t *testing.T) {
	tracker, holdings := newTestTracker(nil)
	ctx := context.Background()

	if err := tracker.ApplyFill(ctx, filledOrder(domain.SideBuy, 10, "50.00")); err != nil {
		t.Fatal(err)
	}
	if err := tracker.ApplyFill(ctx, filledOrder(domain.SideSell, 4, "55.00")); err != nil {
		t.Fatal(err)
	}

	h, _ := holdings.HoldingByUserAndSymbol(ctx, 1, "BTCUSDT")
	if h.Quantity != 6 {
		t.Errorf("quantity after partial sell = %d", h.Quantity)
	}
	// Average price of the remainder is unchanged by a sell.
	if !h.AveragePrice.Equal(dec("50.00")) {
		t.Errorf("average price changed on sell: %s", h.AveragePrice)
	}

	if err := tracker.ApplyFill(ctx, filledOrder(domain.SideSell, 6, "60.00")); err != nil {
		t.Fatal(err)
	}
	h, _ = holdings.HoldingByUserAndSymbol(ctx, 1, "BTCUSDT")
	if h != nil {
		t.Errorf("position not removed at zero: %+v", h)
	}
}

func TestApplyFill_Oversell(t *testing.T) {
	tracker, _ := newTestTracker(nil)
	ctx := context.Background()

	err := tracker.ApplyFill(ctx, filledOrder(domain.SideSell, 1, "50.00"))
	if !errors.Is(err, ErrOversell) {
		t.Fatalf("expected ErrOversell with no position, got %v", err)
	}

	if err := tracker.ApplyFill(ctx, filledOrder(domain.SideBuy, 3, "50.00")); err != nil {
		t.Fatal(err)
	}
	err = tracker.ApplyFill(ctx, filledOrder(domain.SideSell, 4, "50.00"))
	if !errors.Is(err, ErrOversell) {
		t.Fatalf("expected ErrOversell past held quantity, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	oracle := &fixedOracle{prices: map[string]decimal.Decimal{"BTCUSDT": dec("70.00")}}
	tracker, _ := newTestTracker(oracle)
	ctx := context.Background()

	if err := tracker.ApplyFill(ctx, filledOrder(domain.SideBuy, 10, "50.00")); err != nil {
		t.Fatal(err)
	}

	summary, err := tracker.Summary(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !summary.CashBalance.Equal(dec("1000.00")) {
		t.Errorf("cash = %s", summary.CashBalance)
	}
	// 1000 cash + 10 * 70 at the latest quote.
	if !summary.TotalValue.Equal(dec("1700.00")) {
		t.Errorf("total = %s, want 1700.00", summary.TotalValue)
	}
}

func TestSummary_QuoteGapFallsBackToAveragePrice(t *testing.T) {
	tracker, _ := newTestTracker(&fixedOracle{prices: map[string]decimal.Decimal{}})
	ctx := context.Background()

	if err := tracker.ApplyFill(ctx, filledOrder(domain.SideBuy, 10, "50.00")); err != nil {
		t.Fatal(err)
	}

	summary, err := tracker.Summary(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	// 1000 cash + 10 * 50 at the stored average price.
	if !summary.TotalValue.Equal(dec("1500.00")) {
		t.Errorf("total = %s, want 1500.00", summary.TotalValue)
	}
}
