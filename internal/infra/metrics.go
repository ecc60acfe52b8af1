package infra

import (
	"sync/atomic"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	ordersExecuted    atomic.Uint64
	ordersFilled      atomic.Uint64
	ordersRejected    atomic.Uint64
	ledgerAdjustments atomic.Uint64
	ticksIngested     atomic.Uint64
	errorsTotal       atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordOrderExecuted records an order accepted into the pipeline.
func (m *Metrics) RecordOrderExecuted() {
	m.ordersExecuted.Add(1)
}

// RecordOrderFilled records a terminal FILLED order.
func (m *Metrics) RecordOrderFilled() {
	m.ordersFilled.Add(1)
}

// RecordOrderRejected records a terminal REJECTED order.
func (m *Metrics) RecordOrderRejected() {
	m.ordersRejected.Add(1)
}

// RecordLedgerAdjustment records one committed balance mutation.
func (m *Metrics) RecordLedgerAdjustment() {
	m.ledgerAdjustments.Add(1)
}

// RecordTickIngested records one persisted market tick.
func (m *Metrics) RecordTickIngested() {
	m.ticksIngested.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	OrdersExecuted    uint64
	OrdersFilled      uint64
	OrdersRejected    uint64
	LedgerAdjustments uint64
	TicksIngested     uint64
	ErrorsTotal       uint64
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		OrdersExecuted:    m.ordersExecuted.Load(),
		OrdersFilled:      m.ordersFilled.Load(),
		OrdersRejected:    m.ordersRejected.Load(),
		LedgerAdjustments: m.ledgerAdjustments.Load(),
		TicksIngested:     m.ticksIngested.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
	}
}
