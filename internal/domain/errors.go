package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoMarketData is returned when no price has been ingested for a symbol.
	ErrNoMarketData = errors.New("no market data available")

	// ErrOrderNotFound is returned when an order lookup matches nothing.
	ErrOrderNotFound = errors.New("order not found")

	// ErrDuplicateOrder is returned on an idempotency-key unique violation.
	ErrDuplicateOrder = errors.New("order with idempotency key already exists")

	// ErrWalletNotFound is returned when a user has no wallet.
	ErrWalletNotFound = errors.New("wallet not found")
)

// ValidationError reports malformed input. No order is created for it.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return "invalid request [" + e.Field + "]: " + e.Msg
}

// RiskError is a business rejection from the risk gate.
type RiskError struct {
	Reason string
}

func (e *RiskError) Error() string {
	return "risk rejection: " + e.Reason
}

// NewRiskError builds a RiskError with a formatted human-readable reason.
func NewRiskError(format string, args ...any) *RiskError {
	return &RiskError{Reason: fmt.Sprintf(format, args...)}
}

// InsufficientFundsError reports that a debit would take a wallet negative.
type InsufficientFundsError struct {
	UserID    int64
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for user %d: required %s, available %s",
		e.UserID, e.Required, e.Available)
}

// InvalidTransitionError reports a call-ordering violation in the order
// lifecycle. It is a programmer error, never a business rejection.
type InvalidTransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition for order %s: %s -> %s", e.OrderID, e.From, e.To)
}

// InfrastructureError wraps a store or lock failure. Unlike business
// rejections it propagates to the caller.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return "infrastructure failure [" + e.Op + "]: " + e.Err.Error()
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// NewInfraError wraps err as an infrastructure failure for operation op.
func NewInfraError(op string, err error) *InfrastructureError {
	return &InfrastructureError{Op: op, Err: err}
}

// IsInfrastructure reports whether err is (or wraps) an infrastructure failure.
func IsInfrastructure(err error) bool {
	var ie *InfrastructureError
	return errors.As(err, &ie)
}

// IsInvalidTransition reports whether err is a lifecycle invariant violation.
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}

// IsBusinessRejection reports whether err should be converted into a
// terminal REJECTED order instead of propagating. Everything that is not an
// infrastructure failure or a transition invariant violation counts.
func IsBusinessRejection(err error) bool {
	return err != nil && !IsInfrastructure(err) && !IsInvalidTransition(err)
}
