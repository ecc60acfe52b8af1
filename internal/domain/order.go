package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"

	StatusPendingValidation OrderStatus = "PENDING_VALIDATION"
	StatusValidated         OrderStatus = "VALIDATED"
	StatusFilled            OrderStatus = "FILLED"
	StatusRejected          OrderStatus = "REJECTED"
)

// Valid reports whether s is a known trade side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Order represents a trade intent moving through the execution lifecycle.
//
// The status field is deliberately unexported: the only way to change it is
// StateMachine.Transition in this package. Every other component reads it
// through Status().
type Order struct {
	ID             string
	UserID         int64
	Symbol         string
	Side           Side
	Quantity       int64
	Price          decimal.Decimal // quoted price at submission
	ExecutionPrice decimal.Decimal // set only at fill

	status OrderStatus

	RejectionReason string // set only when REJECTED
	IdempotencyKey  string // globally unique, immutable once assigned

	CreatedAt   time.Time
	ValidatedAt time.Time
	FilledAt    time.Time
}

// NewOrder creates an order in the initial PENDING_VALIDATION state.
func NewOrder(userID int64, symbol string, side Side, quantity int64, idempotencyKey string) *Order {
	return &Order{
		ID:             uuid.NewString(),
		UserID:         userID,
		Symbol:         symbol,
		Side:           side,
		Quantity:       quantity,
		status:         StatusPendingValidation,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
}

// Status returns the current lifecycle state.
func (o *Order) Status() OrderStatus {
	return o.status
}

// IsTerminal reports whether the order reached a final state.
func (o *Order) IsTerminal() bool {
	return o.status == StatusFilled || o.status == StatusRejected
}

// Notional returns price * quantity, the cash value of the order.
func (o *Order) Notional() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Quantity))
}

// OrderSnapshot is the persistence view of an order. It exists so the
// storage layer can round-trip orders without gaining a status mutator on
// the live Order.
type OrderSnapshot struct {
	ID              string
	UserID          int64
	Symbol          string
	Side            Side
	Quantity        int64
	Price           decimal.Decimal
	ExecutionPrice  decimal.Decimal
	Status          OrderStatus
	RejectionReason string
	IdempotencyKey  string
	CreatedAt       time.Time
	ValidatedAt     time.Time
	FilledAt        time.Time
}

// Snapshot returns a plain copy of the order for persistence.
func (o *Order) Snapshot() OrderSnapshot {
	return OrderSnapshot{
		ID:              o.ID,
		UserID:          o.UserID,
		Symbol:          o.Symbol,
		Side:            o.Side,
		Quantity:        o.Quantity,
		Price:           o.Price,
		ExecutionPrice:  o.ExecutionPrice,
		Status:          o.status,
		RejectionReason: o.RejectionReason,
		IdempotencyKey:  o.IdempotencyKey,
		CreatedAt:       o.CreatedAt,
		ValidatedAt:     o.ValidatedAt,
		FilledAt:        o.FilledAt,
	}
}

// OrderFromSnapshot rehydrates an order loaded from storage.
func OrderFromSnapshot(s OrderSnapshot) *Order {
	return &Order{
		ID:              s.ID,
		UserID:          s.UserID,
		Symbol:          s.Symbol,
		Side:            s.Side,
		Quantity:        s.Quantity,
		Price:           s.Price,
		ExecutionPrice:  s.ExecutionPrice,
		status:          s.Status,
		RejectionReason: s.RejectionReason,
		IdempotencyKey:  s.IdempotencyKey,
		CreatedAt:       s.CreatedAt,
		ValidatedAt:     s.ValidatedAt,
		FilledAt:        s.FilledAt,
	}
}

// TradeIntent carries the parameters of one trade request through risk
// validation. OrderID identifies the already-persisted order so the
// wash-trade guard can exclude it from the pending-order check.
type TradeIntent struct {
	OrderID  string
	UserID   int64
	Symbol   string
	Side     Side
	Quantity int64
	Price    decimal.Decimal
}

// Notional returns price * quantity for the intent.
func (t TradeIntent) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}
