package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"apex_go/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage is the SQLite-backed implementation of the domain repositories.
type Storage struct {
	db *gorm.DB
}

// orderRecord is the persistence shape of domain.Order. The domain type
// keeps its status unexported, so the storage layer round-trips through
// OrderSnapshot instead of mapping the entity directly.
type orderRecord struct {
	ID              string          `gorm:"primaryKey"`
	UserID          int64           `gorm:"index;not null"`
	Symbol          string          `gorm:"index;not null"`
	Side            string          `gorm:"not null"`
	Quantity        int64           `gorm:"not null"`
	Price           decimal.Decimal `gorm:"type:decimal(15,2)"`
	ExecutionPrice  decimal.Decimal `gorm:"type:decimal(15,2)"`
	Status          string          `gorm:"index;not null"`
	RejectionReason string
	IdempotencyKey  string    `gorm:"uniqueIndex;not null"`
	CreatedAt       time.Time `gorm:"index"`
	ValidatedAt     time.Time
	FilledAt        time.Time
}

func (orderRecord) TableName() string { return "orders" }

func toRecord(s domain.OrderSnapshot) *orderRecord {
	return &orderRecord{
		ID:              s.ID,
		UserID:          s.UserID,
		Symbol:          s.Symbol,
		Side:            string(s.Side),
		Quantity:        s.Quantity,
		Price:           s.Price,
		ExecutionPrice:  s.ExecutionPrice,
		Status:          string(s.Status),
		RejectionReason: s.RejectionReason,
		IdempotencyKey:  s.IdempotencyKey,
		CreatedAt:       s.CreatedAt,
		ValidatedAt:     s.ValidatedAt,
		FilledAt:        s.FilledAt,
	}
}

func (r *orderRecord) toOrder() *domain.Order {
	return domain.OrderFromSnapshot(domain.OrderSnapshot{
		ID:              r.ID,
		UserID:          r.UserID,
		Symbol:          r.Symbol,
		Side:            domain.Side(r.Side),
		Quantity:        r.Quantity,
		Price:           r.Price,
		ExecutionPrice:  r.ExecutionPrice,
		Status:          domain.OrderStatus(r.Status),
		RejectionReason: r.RejectionReason,
		IdempotencyKey:  r.IdempotencyKey,
		CreatedAt:       r.CreatedAt,
		ValidatedAt:     r.ValidatedAt,
		FilledAt:        r.FilledAt,
	})
}

// NewStorage opens (or creates) the SQLite database at path and migrates
// the schema.
func NewStorage(path string) (*Storage, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&orderRecord{},
		&domain.OrderAuditLog{},
		&domain.Wallet{},
		&domain.LedgerEntry{},
		&domain.Holding{},
		&domain.MarketTick{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ======================================================================================
// Order Operations
// ======================================================================================

// CreateOrder inserts a new order. A unique violation on the idempotency
// key is reported as domain.ErrDuplicateOrder so callers can fetch the
// winner of a same-key race.
func (s *Storage) CreateOrder(ctx context.Context, order *domain.Order) error {
	if err := s.db.WithContext(ctx).Create(toRecord(order.Snapshot())).Error; err != nil {
		if isDuplicateKey(err) {
			return domain.ErrDuplicateOrder
		}
		return domain.NewInfraError("orders.create", err)
	}
	return nil
}

// OrderByIdempotencyKey returns the order for a key, or domain.ErrOrderNotFound.
func (s *Storage) OrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	var rec orderRecord
	err := s.db.WithContext(ctx).First(&rec, "idempotency_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, domain.NewInfraError("orders.by_key", err)
	}
	return rec.toOrder(), nil
}

// OrderByID returns an order by primary key, or domain.ErrOrderNotFound.
func (s *Storage) OrderByID(ctx context.Context, id string) (*domain.Order, error) {
	var rec orderRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, domain.NewInfraError("orders.by_id", err)
	}
	return rec.toOrder(), nil
}

// SaveOrder persists the current state of an existing order.
func (s *Storage) SaveOrder(ctx context.Context, order *domain.Order) error {
	if err := s.db.WithContext(ctx).Save(toRecord(order.Snapshot())).Error; err != nil {
		return domain.NewInfraError("orders.save", err)
	}
	return nil
}

// HasOtherPendingOrder reports whether the user has a PENDING_VALIDATION
// order for the symbol other than excludeOrderID.
func (s *Storage) HasOtherPendingOrder(ctx context.Context, userID int64, symbol, excludeOrderID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&orderRecord{}).
		Where("user_id = ? AND symbol = ? AND status = ? AND id <> ?",
			userID, symbol, string(domain.StatusPendingValidation), excludeOrderID).
		Count(&count).Error
	if err != nil {
		return false, domain.NewInfraError("orders.pending", err)
	}
	return count > 0, nil
}

// CountOrdersSince counts the user's orders created at or after since.
func (s *Storage) CountOrdersSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&orderRecord{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	if err != nil {
		return 0, domain.NewInfraError("orders.count_since", err)
	}
	return count, nil
}

// ======================================================================================
// Audit Operations
// ======================================================================================

// AppendAudit writes one immutable transition record.
func (s *Storage) AppendAudit(ctx context.Context, entry *domain.OrderAuditLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return domain.NewInfraError("audit.append", err)
	}
	return nil
}

// AuditTrail returns an order's transition records in write order.
func (s *Storage) AuditTrail(ctx context.Context, orderID string) ([]domain.OrderAuditLog, error) {
	var rows []domain.OrderAuditLog
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, domain.NewInfraError("audit.trail", err)
	}
	return rows, nil
}

// ======================================================================================
// Wallet & Ledger Operations
// ======================================================================================

// CreateWallet creates an empty wallet for the user.
func (s *Storage) CreateWallet(ctx context.Context, userID int64) (*domain.Wallet, error) {
	wallet := &domain.Wallet{UserID: userID, Balance: decimal.Zero}
	if err := s.db.WithContext(ctx).Create(wallet).Error; err != nil {
		return nil, domain.NewInfraError("wallets.create", err)
	}
	return wallet, nil
}

// WalletByUserID returns a user's wallet, or domain.ErrWalletNotFound.
func (s *Storage) WalletByUserID(ctx context.Context, userID int64) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := s.db.WithContext(ctx).First(&wallet, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrWalletNotFound
	}
	if err != nil {
		return nil, domain.NewInfraError("wallets.by_user", err)
	}
	return &wallet, nil
}

// CommitAdjustment appends a ledger entry and updates the cached wallet
// balance in one transaction. If either write fails, neither persists.
func (s *Storage) CommitAdjustment(ctx context.Context, entry *domain.LedgerEntry, newBalance decimal.Decimal) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		res := tx.Model(&domain.Wallet{}).
			Where("user_id = ?", entry.UserID).
			Updates(map[string]any{"balance": newBalance, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrWalletNotFound
		}
		return nil
	})
	if errors.Is(err, domain.ErrWalletNotFound) {
		return err
	}
	if err != nil {
		return domain.NewInfraError("ledger.commit", err)
	}
	return nil
}

// LedgerSum returns the running sum of a user's ledger entries. The sum is
// computed in decimal space, not SQL, to avoid float coercion.
func (s *Storage) LedgerSum(ctx context.Context, userID int64) (decimal.Decimal, error) {
	entries, err := s.LedgerEntries(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum, nil
}

// LedgerEntries returns a user's ledger entries in append order.
func (s *Storage) LedgerEntries(ctx context.Context, userID int64) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id asc").
		Find(&entries).Error
	if err != nil {
		return nil, domain.NewInfraError("ledger.entries", err)
	}
	return entries, nil
}

// ======================================================================================
// Market Tick Operations
// ======================================================================================

// SaveTick appends one price observation.
func (s *Storage) SaveTick(ctx context.Context, tick *domain.MarketTick) error {
	if err := s.db.WithContext(ctx).Create(tick).Error; err != nil {
		return domain.NewInfraError("ticks.save", err)
	}
	return nil
}

// LatestTick returns the most recent tick for a symbol, or
// domain.ErrNoMarketData when nothing has been ingested.
func (s *Storage) LatestTick(ctx context.Context, symbol string) (*domain.MarketTick, error) {
	var tick domain.MarketTick
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("timestamp desc, id desc").
		First(&tick).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNoMarketData
	}
	if err != nil {
		return nil, domain.NewInfraError("ticks.latest", err)
	}
	return &tick, nil
}

// ======================================================================================
// Holding Operations
// ======================================================================================

// HoldingByUserAndSymbol returns one position, or nil when the user holds
// nothing in the symbol.
func (s *Storage) HoldingByUserAndSymbol(ctx context.Context, userID int64, symbol string) (*domain.Holding, error) {
	var holding domain.Holding
	err := s.db.WithContext(ctx).First(&holding, "user_id = ? AND symbol = ?", userID, symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // no position is not an error
	}
	if err != nil {
		return nil, domain.NewInfraError("holdings.by_user_symbol", err)
	}
	return &holding, nil
}

// SaveHolding creates or updates a position.
func (s *Storage) SaveHolding(ctx context.Context, holding *domain.Holding) error {
	if err := s.db.WithContext(ctx).Save(holding).Error; err != nil {
		return domain.NewInfraError("holdings.save", err)
	}
	return nil
}

// DeleteHolding removes a closed position.
func (s *Storage) DeleteHolding(ctx context.Context, holding *domain.Holding) error {
	if err := s.db.WithContext(ctx).Delete(holding).Error; err != nil {
		return domain.NewInfraError("holdings.delete", err)
	}
	return nil
}

// HoldingsByUser returns all of a user's positions sorted by symbol.
func (s *Storage) HoldingsByUser(ctx context.Context, userID int64) ([]domain.Holding, error) {
	var holdings []domain.Holding
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("symbol asc").
		Find(&holdings).Error
	if err != nil {
		return nil, domain.NewInfraError("holdings.by_user", err)
	}
	return holdings, nil
}
