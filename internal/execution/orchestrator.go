package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"apex_go/internal/domain"
	"apex_go/internal/infra"

	"github.com/shopspring/decimal"
)

// Validator is the risk gate contract consumed by the orchestrator.
type Validator interface {
	Validate(ctx context.Context, intent domain.TradeIntent) error
}

// BalanceAdjuster is the ledger contract consumed by the orchestrator.
type BalanceAdjuster interface {
	Adjust(ctx context.Context, userID int64, amount decimal.Decimal, txType domain.TransactionType) error
}

// Orchestrator drives a single order through the full execution pipeline:
// price fetch, risk validation, lifecycle transitions, and balance
// settlement. It exclusively owns the order for the duration of one
// ExecuteOrder call.
type Orchestrator struct {
	orders domain.OrderRepository
	oracle domain.PriceOracle
	gate   Validator
	states *domain.StateMachine
	ledger BalanceAdjuster
}

// NewOrchestrator wires the pipeline components together.
func NewOrchestrator(
	orders domain.OrderRepository,
	oracle domain.PriceOracle,
	gate Validator,
	states *domain.StateMachine,
	ledger BalanceAdjuster,
) *Orchestrator {
	return &Orchestrator{
		orders: orders,
		oracle: oracle,
		gate:   gate,
		states: states,
		ledger: ledger,
	}
}

// ExecuteOrder applies a trade intent exactly once, keyed by idempotencyKey.
//
// Business failures (risk rejection, insufficient funds, missing market
// data, and any other unexpected business error) never surface as errors:
// they come back as a persisted REJECTED order with the reason recorded.
// Only malformed input, infrastructure failures, and lifecycle invariant
// violations return a non-nil error.
//
// Known limitation, fixed by design: if the BUY debit succeeds and a later
// step fails, the order ends REJECTED and the debited funds are NOT
// refunded here. Compensation belongs to a separate reconciliation process.
func (o *Orchestrator) ExecuteOrder(ctx context.Context, userID int64, symbol string, side domain.Side, quantity int64, idempotencyKey string) (*domain.Order, error) {
	if err := validateRequest(userID, symbol, side, quantity, idempotencyKey); err != nil {
		return nil, err
	}

	// 1. Idempotency: a known key returns the stored outcome untouched.
	existing, err := o.orders.OrderByIdempotencyKey(ctx, idempotencyKey)
	if err == nil {
		slog.InfoContext(ctx, "Idempotent request, returning existing order",
			slog.String("order_id", existing.ID),
			slog.String("idempotency_key", idempotencyKey))
		return existing, nil
	}
	if !errors.Is(err, domain.ErrOrderNotFound) {
		return nil, err
	}

	// 2. Create the order in PENDING_VALIDATION.
	order := domain.NewOrder(userID, symbol, side, quantity, idempotencyKey)
	if err := o.orders.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, domain.ErrDuplicateOrder) {
			// Lost a same-key race: the winner's order is the outcome.
			winner, ferr := o.orders.OrderByIdempotencyKey(ctx, idempotencyKey)
			if ferr != nil {
				return nil, ferr
			}
			slog.InfoContext(ctx, "Concurrent idempotent request, returning winner",
				slog.String("order_id", winner.ID))
			return winner, nil
		}
		return nil, err
	}
	infra.GlobalMetrics.RecordOrderExecuted()

	if err := o.runPipeline(ctx, order); err != nil {
		if domain.IsBusinessRejection(err) {
			return o.reject(ctx, order, err)
		}
		// Infrastructure failure or lifecycle invariant violation: no
		// REJECTED state is fabricated, the error propagates.
		return nil, err
	}

	if err := o.orders.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	infra.GlobalMetrics.RecordOrderFilled()

	slog.InfoContext(ctx, "Order filled",
		slog.String("order_id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("execution_price", order.ExecutionPrice.String()))
	return order, nil
}

// runPipeline performs steps 3-8 of the execution flow. Any error it
// returns is classified by the caller.
func (o *Orchestrator) runPipeline(ctx context.Context, order *domain.Order) error {
	// 3. Quote. A symbol nobody has ingested is a rejection cause, not a
	// fatal error.
	price, err := o.oracle.LatestPrice(ctx, order.Symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNoMarketData) {
			return fmt.Errorf("%w for symbol %s", domain.ErrNoMarketData, order.Symbol)
		}
		return err
	}
	order.Price = price

	// 4. Risk gate, lock-free.
	intent := domain.TradeIntent{
		OrderID:  order.ID,
		UserID:   order.UserID,
		Symbol:   order.Symbol,
		Side:     order.Side,
		Quantity: order.Quantity,
		Price:    price,
	}
	if err := o.gate.Validate(ctx, intent); err != nil {
		return err
	}

	// 5. PENDING_VALIDATION -> VALIDATED.
	if err := o.states.Transition(ctx, order, domain.StatusValidated); err != nil {
		return err
	}

	// 6. Reserve-then-fill: a BUY debits cash before the fill is confirmed
	// so concurrent orders cannot overspend the wallet.
	notional := order.Notional()
	if order.Side == domain.SideBuy {
		if err := o.ledger.Adjust(ctx, order.UserID, notional.Neg(), domain.TxTradeBuy); err != nil {
			return err
		}
	}

	// 7. VALIDATED -> FILLED. All fills are instantaneous at the quoted
	// price; there is no matching against other participants.
	order.ExecutionPrice = price
	if err := o.states.Transition(ctx, order, domain.StatusFilled); err != nil {
		return err
	}

	// 8. A SELL credits proceeds only at settlement.
	if order.Side == domain.SideSell {
		if err := o.ledger.Adjust(ctx, order.UserID, notional, domain.TxTradeSell); err != nil {
			return err
		}
	}

	return nil
}

// reject converts a business failure into a terminal REJECTED order. The
// rejection is committed, never rolled back. Funds already debited by step 6
// stay debited.
func (o *Orchestrator) reject(ctx context.Context, order *domain.Order, cause error) (*domain.Order, error) {
	slog.WarnContext(ctx, "Order rejected",
		slog.String("order_id", order.ID),
		slog.String("reason", cause.Error()))

	order.RejectionReason = cause.Error()
	if err := o.states.Transition(ctx, order, domain.StatusRejected); err != nil {
		return nil, err
	}
	if err := o.orders.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	infra.GlobalMetrics.RecordOrderRejected()
	return order, nil
}

func validateRequest(userID int64, symbol string, side domain.Side, quantity int64, idempotencyKey string) error {
	switch {
	case userID <= 0:
		return &domain.ValidationError{Field: "userId", Msg: "must be positive"}
	case symbol == "":
		return &domain.ValidationError{Field: "symbol", Msg: "must not be empty"}
	case !side.Valid():
		return &domain.ValidationError{Field: "side", Msg: "must be BUY or SELL"}
	case quantity <= 0:
		return &domain.ValidationError{Field: "quantity", Msg: "must be positive"}
	case idempotencyKey == "":
		return &domain.ValidationError{Field: "idempotencyKey", Msg: "must not be empty"}
	}
	return nil
}
