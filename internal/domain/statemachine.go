package domain

import (
	"context"
	"log/slog"
	"time"
)

// DefaultTransitions returns the allowed order lifecycle transitions:
//
//	PENDING_VALIDATION -> VALIDATED | REJECTED
//	VALIDATED          -> FILLED    | REJECTED
//
// FILLED and REJECTED are terminal. The table is plain data so tests can
// enumerate it and alternate lifecycles can be injected without touching
// branching logic.
func DefaultTransitions() map[OrderStatus][]OrderStatus {
	return map[OrderStatus][]OrderStatus{
		StatusPendingValidation: {StatusValidated, StatusRejected},
		StatusValidated:         {StatusFilled, StatusRejected},
	}
}

// StateMachine is the sole authority for order status changes. It lives in
// the same package as Order on purpose: the unexported status field makes
// any bypass a compile error elsewhere in the module.
type StateMachine struct {
	transitions map[OrderStatus][]OrderStatus
	audit       AuditRecorder
}

// NewStateMachine builds a state machine around an injected transition table
// and audit sink.
func NewStateMachine(transitions map[OrderStatus][]OrderStatus, audit AuditRecorder) *StateMachine {
	return &StateMachine{transitions: transitions, audit: audit}
}

// Transition moves the order to target if the transition table allows it.
// On success it mutates the status, stamps the lifecycle timestamp, and
// writes exactly one audit row. On an illegal transition the order is left
// unchanged, no audit row is written, and an InvalidTransitionError is
// returned.
func (m *StateMachine) Transition(ctx context.Context, order *Order, target OrderStatus) error {
	from := order.status

	if !m.allowed(from, target) {
		slog.ErrorContext(ctx, "Illegal transition blocked",
			slog.String("order_id", order.ID),
			slog.String("from", string(from)),
			slog.String("to", string(target)))
		return &InvalidTransitionError{OrderID: order.ID, From: from, To: target}
	}

	now := time.Now().UTC()
	order.status = target
	switch target {
	case StatusValidated:
		order.ValidatedAt = now
	case StatusFilled:
		if order.FilledAt.IsZero() {
			order.FilledAt = now
		}
	}

	entry := &OrderAuditLog{
		OrderID:   order.ID,
		OldStatus: from,
		NewStatus: target,
		Timestamp: now,
	}
	if err := m.audit.AppendAudit(ctx, entry); err != nil {
		// The audit trail must stay in lockstep with the status: if the row
		// cannot persist, the transition does not happen.
		order.status = from
		return err
	}

	slog.DebugContext(ctx, "Order transitioned",
		slog.String("order_id", order.ID),
		slog.String("from", string(from)),
		slog.String("to", string(target)))
	return nil
}

func (m *StateMachine) allowed(from, to OrderStatus) bool {
	for _, t := range m.transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
