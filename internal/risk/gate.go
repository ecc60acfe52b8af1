package risk

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"apex_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Config holds the static risk limits. A zero value disables the
// corresponding limit.
type Config struct {
	MaxOrderValue  decimal.Decimal `yaml:"max_order_value"`
	MinBalance     decimal.Decimal `yaml:"min_balance"`
	MaxDailyTrades int             `yaml:"max_daily_trades"`
}

// Policy is one independent, composable risk check. Policies read state but
// never mutate anything; a failing check returns a *domain.RiskError with a
// human-readable reason.
type Policy interface {
	Name() string
	Check(ctx context.Context, intent domain.TradeIntent) error
}

// Gate rejects economically unsound orders before any funds move. It is
// stateless: every call re-reads the stores it consults.
type Gate struct {
	maxOrderValue decimal.Decimal
	orders        domain.OrderRepository
	policies      []Policy
}

// NewGate builds a gate with the two core checks (notional ceiling and
// wash-trade guard) plus the configured policy layer.
func NewGate(cfg Config, orders domain.OrderRepository, wallets domain.WalletRepository) *Gate {
	return &Gate{
		maxOrderValue: cfg.MaxOrderValue,
		orders:        orders,
		policies: []Policy{
			&balancePolicy{wallets: wallets, minBalance: cfg.MinBalance},
			&dailyLimitPolicy{orders: orders, maxTrades: cfg.MaxDailyTrades},
		},
	}
}

// Validate runs every check against the intent. It has no side effects.
// Business failures come back as *domain.RiskError; store failures as
// infrastructure errors.
func (g *Gate) Validate(ctx context.Context, intent domain.TradeIntent) error {
	slog.InfoContext(ctx, "Validating order",
		slog.Int64("user_id", intent.UserID),
		slog.String("symbol", intent.Symbol),
		slog.Int64("quantity", intent.Quantity),
		slog.String("price", intent.Price.String()))

	// Rule 1: fat-finger ceiling on the order's cash value.
	notional := intent.Notional()
	if g.maxOrderValue.IsPositive() && notional.GreaterThan(g.maxOrderValue) {
		return domain.NewRiskError("order value %s exceeds limit %s", notional, g.maxOrderValue)
	}

	// Rule 2: wash-trade guard. The intent's own order is already persisted
	// in PENDING_VALIDATION, so the lookup excludes it.
	pending, err := g.orders.HasOtherPendingOrder(ctx, intent.UserID, intent.Symbol, intent.OrderID)
	if err != nil {
		return err
	}
	if pending {
		return domain.NewRiskError("active order already exists for symbol %s", intent.Symbol)
	}

	for _, p := range g.policies {
		if err := p.Check(ctx, intent); err != nil {
			var re *domain.RiskError
			if errors.As(err, &re) {
				slog.WarnContext(ctx, "Risk policy rejected order",
					slog.String("policy", p.Name()),
					slog.String("reason", re.Reason))
			}
			return err
		}
	}

	return nil
}

// balancePolicy requires the available balance to cover the trade value and
// the post-trade balance to stay above the configured reserve.
type balancePolicy struct {
	wallets    domain.WalletRepository
	minBalance decimal.Decimal
}

func (p *balancePolicy) Name() string { return "balance" }

func (p *balancePolicy) Check(ctx context.Context, intent domain.TradeIntent) error {
	wallet, err := p.wallets.WalletByUserID(ctx, intent.UserID)
	if errors.Is(err, domain.ErrWalletNotFound) {
		return domain.NewRiskError("no wallet for user %d", intent.UserID)
	}
	if err != nil {
		return err
	}

	value := intent.Notional()
	if wallet.Balance.LessThan(value) {
		return domain.NewRiskError("insufficient balance: required %s, available %s", value, wallet.Balance)
	}
	if wallet.Balance.Sub(value).LessThan(p.minBalance) {
		return domain.NewRiskError("trade would breach minimum balance reserve of %s", p.minBalance)
	}
	return nil
}

// dailyLimitPolicy caps how many orders a user may submit per calendar day.
type dailyLimitPolicy struct {
	orders    domain.OrderRepository
	maxTrades int
}

func (p *dailyLimitPolicy) Name() string { return "daily-limit" }

func (p *dailyLimitPolicy) Check(ctx context.Context, intent domain.TradeIntent) error {
	if p.maxTrades <= 0 {
		return nil
	}

	startOfDay := time.Now().UTC().Truncate(24 * time.Hour)
	count, err := p.orders.CountOrdersSince(ctx, intent.UserID, startOfDay)
	if err != nil {
		return err
	}
	// The count already includes the order under validation.
	if count > int64(p.maxTrades) {
		return domain.NewRiskError("daily trade limit of %d exceeded", p.maxTrades)
	}
	return nil
}
