package market

import (
	"context"
	"log/slog"
	"sync"

	"apex_go/internal/domain"
	"apex_go/internal/infra"

	"github.com/shopspring/decimal"
)

// Service maintains the latest quoted price per symbol. Ticks arrive on a
// buffered channel from ingest workers, are persisted through the tick
// repository, and update the in-memory cache. The service is the system's
// PriceOracle: reads hit the cache first and fall back to the store so a
// freshly restarted process still quotes from durable ticks.
type Service struct {
	mu     sync.RWMutex
	latest map[string]decimal.Decimal

	ticks domain.TickRepository
	inbox chan domain.MarketTick
}

// NewService creates a market data service with the given inbox buffer.
func NewService(ticks domain.TickRepository, buffer int) *Service {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Service{
		latest: make(map[string]decimal.Decimal),
		ticks:  ticks,
		inbox:  make(chan domain.MarketTick, buffer),
	}
}

// Inbox returns the channel ingest workers push ticks into.
func (s *Service) Inbox() chan<- domain.MarketTick {
	return s.inbox
}

// Run consumes the inbox until ctx is cancelled. Each tick updates the
// cache and is appended to the store; a store failure keeps the cache
// update so quoting degrades instead of stalling.
func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-s.inbox:
			s.mu.Lock()
			s.latest[tick.Symbol] = tick.Price
			s.mu.Unlock()

			if err := s.ticks.SaveTick(ctx, &tick); err != nil {
				infra.GlobalMetrics.RecordError()
				slog.WarnContext(ctx, "Failed to persist tick",
					slog.String("symbol", tick.Symbol),
					slog.Any("error", err))
				continue
			}
			infra.GlobalMetrics.RecordTickIngested()
		}
	}
}

// LatestPrice implements domain.PriceOracle.
func (s *Service) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	price, ok := s.latest[symbol]
	s.mu.RUnlock()
	if ok {
		return price, nil
	}

	tick, err := s.ticks.LatestTick(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	s.mu.Lock()
	s.latest[symbol] = tick.Price
	s.mu.Unlock()
	return tick.Price, nil
}
