package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TxTradeBuy  TransactionType = "TRADE_BUY"
	TxTradeSell TransactionType = "TRADE_SELL"
	TxDeposit   TransactionType = "DEPOSIT"
)

// Wallet holds one user's cash balance. The balance is a maintained cache:
// it must always equal the running sum of that user's ledger entries, and it
// is mutated exclusively by the Ledger.
type Wallet struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    int64           `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance   decimal.Decimal `gorm:"type:decimal(19,4);not null" json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LedgerEntry is one immutable row of the transaction ledger. The ledger is
// append-only and is the durable source of truth for balances.
type LedgerEntry struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    int64           `gorm:"index;not null" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(19,4);not null" json:"amount"` // signed: debit < 0 < credit
	Type      TransactionType `gorm:"not null" json:"type"`
	Timestamp time.Time       `gorm:"not null" json:"timestamp"`
}

// OrderAuditLog records one successful status transition. Rows are
// append-only, never updated or deleted.
type OrderAuditLog struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	OrderID   string      `gorm:"index;not null" json:"order_id"`
	OldStatus OrderStatus `json:"old_status"` // empty for the initial state
	NewStatus OrderStatus `gorm:"not null" json:"new_status"`
	Timestamp time.Time   `gorm:"not null" json:"timestamp"`
}

// Holding is a user's current position in one symbol.
type Holding struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	UserID       int64           `gorm:"uniqueIndex:idx_holding_user_symbol;not null" json:"user_id"`
	Symbol       string          `gorm:"uniqueIndex:idx_holding_user_symbol;not null" json:"symbol"`
	Quantity     int64           `gorm:"not null" json:"quantity"`
	AveragePrice decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"average_price"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// MarketTick is one quoted price observation for a symbol.
type MarketTick struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Symbol    string          `gorm:"index:idx_tick_symbol_ts;not null" json:"symbol"`
	Price     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"price"`
	Timestamp time.Time       `gorm:"index:idx_tick_symbol_ts;not null" json:"timestamp"`
}
