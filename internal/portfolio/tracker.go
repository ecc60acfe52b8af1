package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"apex_go/internal/domain"

	"github.com/shopspring/decimal"
)

// ErrOversell is returned when a SELL fill exceeds the held quantity.
var ErrOversell = errors.New("cannot sell more than held quantity")

// Tracker maintains per-user positions from filled orders. It never touches
// wallet balances; cash movement is the Ledger's job alone.
type Tracker struct {
	holdings domain.HoldingRepository
	wallets  domain.WalletRepository
	oracle   domain.PriceOracle
}

// NewTracker creates a position tracker.
func NewTracker(holdings domain.HoldingRepository, wallets domain.WalletRepository, oracle domain.PriceOracle) *Tracker {
	return &Tracker{holdings: holdings, wallets: wallets, oracle: oracle}
}

// ApplyFill updates the user's position for a FILLED order. A BUY merges
// into the holding at a volume-weighted average price; a SELL reduces the
// quantity and removes the holding when it reaches zero.
func (t *Tracker) ApplyFill(ctx context.Context, order *domain.Order) error {
	if order.Status() != domain.StatusFilled {
		return fmt.Errorf("order %s is %s, only FILLED orders move positions", order.ID, order.Status())
	}

	var err error
	if order.Side == domain.SideBuy {
		err = t.applyBuy(ctx, order)
	} else {
		err = t.applySell(ctx, order)
	}
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Position updated",
		slog.Int64("user_id", order.UserID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.Int64("quantity", order.Quantity))
	return nil
}

func (t *Tracker) applyBuy(ctx context.Context, order *domain.Order) error {
	holding, err := t.holdings.HoldingByUserAndSymbol(ctx, order.UserID, order.Symbol)
	if err != nil {
		return err
	}

	if holding == nil {
		return t.holdings.SaveHolding(ctx, &domain.Holding{
			UserID:       order.UserID,
			Symbol:       order.Symbol,
			Quantity:     order.Quantity,
			AveragePrice: order.ExecutionPrice,
			UpdatedAt:    time.Now().UTC(),
		})
	}

	// Volume-weighted average price over the merged position.
	oldCost := holding.AveragePrice.Mul(decimal.NewFromInt(holding.Quantity))
	newCost := order.ExecutionPrice.Mul(decimal.NewFromInt(order.Quantity))
	newQty := holding.Quantity + order.Quantity

	holding.Quantity = newQty
	holding.AveragePrice = oldCost.Add(newCost).DivRound(decimal.NewFromInt(newQty), 2)
	holding.UpdatedAt = time.Now().UTC()
	return t.holdings.SaveHolding(ctx, holding)
}

func (t *Tracker) applySell(ctx context.Context, order *domain.Order) error {
	holding, err := t.holdings.HoldingByUserAndSymbol(ctx, order.UserID, order.Symbol)
	if err != nil {
		return err
	}
	if holding == nil {
		return fmt.Errorf("%w: no position in %s", ErrOversell, order.Symbol)
	}

	newQty := holding.Quantity - order.Quantity
	if newQty < 0 {
		return fmt.Errorf("%w: held %d, selling %d", ErrOversell, holding.Quantity, order.Quantity)
	}
	if newQty == 0 {
		return t.holdings.DeleteHolding(ctx, holding)
	}

	holding.Quantity = newQty
	holding.UpdatedAt = time.Now().UTC()
	return t.holdings.SaveHolding(ctx, holding)
}

// Summary is a point-in-time view of one user's cash and positions.
type Summary struct {
	UserID      int64
	CashBalance decimal.Decimal
	Holdings    []domain.Holding
	TotalValue  decimal.Decimal
}

// Summary values holdings at the oracle's latest prices and adds the cash
// balance. Symbols without market data are valued at their average price,
// the conservative fallback for a quote gap.
func (t *Tracker) Summary(ctx context.Context, userID int64) (*Summary, error) {
	wallet, err := t.wallets.WalletByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	holdings, err := t.holdings.HoldingsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	total := wallet.Balance
	for _, h := range holdings {
		price, err := t.oracle.LatestPrice(ctx, h.Symbol)
		if errors.Is(err, domain.ErrNoMarketData) {
			price = h.AveragePrice
		} else if err != nil {
			return nil, err
		}
		total = total.Add(price.Mul(decimal.NewFromInt(h.Quantity)))
	}

	return &Summary{
		UserID:      userID,
		CashBalance: wallet.Balance,
		Holdings:    holdings,
		TotalValue:  total,
	}, nil
}
