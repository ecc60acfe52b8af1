package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"apex_go/internal/domain"
	"apex_go/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	maxRetries   = 10
	readTimeout  = 60 * time.Second
	dialTimeout  = 10 * time.Second
	defaultWSURL = "wss://stream.binance.com:9443/ws"
)

// tradeEvent represents a Binance trade stream message.
type tradeEvent struct {
	EventType string `json:"e"` // "trade"
	Symbol    string `json:"s"` // "BTCUSDT"
	Price     string `json:"p"`
	TradeTime int64  `json:"T"` // unix millis
}

// BinanceWorker handles the Binance WebSocket connection and feeds trade
// prices into the market service inbox.
type BinanceWorker struct {
	url     string
	symbols []string
	inbox   chan<- domain.MarketTick

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewBinanceWorker creates an ingest worker for the given symbols. An empty
// url falls back to the public Binance stream endpoint.
func NewBinanceWorker(url string, symbols []string, inbox chan<- domain.MarketTick) *BinanceWorker {
	if url == "" {
		url = defaultWSURL
	}
	return &BinanceWorker{
		url:     url,
		symbols: symbols,
		inbox:   inbox,
	}
}

// Connect starts the WebSocket connection loop.
func (w *BinanceWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

// IsConnected reports whether the socket is currently up.
func (w *BinanceWorker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

func (w *BinanceWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			slog.Warn("Binance connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			w.readLoop(ctx)
		}
	}
}

func (w *BinanceWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, w.url, make(http.Header))
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return err
	}

	slog.Info("Binance connected", slog.Int("subs", len(w.symbols)))
	return nil
}

func (w *BinanceWorker) subscribe() error {
	params := make([]string, len(w.symbols))
	for i, s := range w.symbols {
		params[i] = strings.ToLower(s) + "@trade"
	}

	msg := map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     time.Now().UnixNano(),
	}
	b, _ := json.Marshal(msg)
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *BinanceWorker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *BinanceWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		if w.conn == nil {
			w.mu.RUnlock()
			return
		}
		w.conn.SetReadDeadline(time.Now().Add(readTimeout))
		w.mu.RUnlock()

		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		w.handleMessage(msg)
	}
}

func (w *BinanceWorker) handleMessage(msg []byte) {
	var ev tradeEvent
	if json.Unmarshal(msg, &ev) != nil || ev.EventType != "trade" {
		return
	}

	price, err := decimal.NewFromString(ev.Price)
	if err != nil {
		return
	}

	tick := domain.MarketTick{
		Symbol:    ev.Symbol,
		Price:     price,
		Timestamp: time.UnixMilli(ev.TradeTime).UTC(),
	}

	select {
	case w.inbox <- tick:
	default: // DROP
	}
}

func (w *BinanceWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
}

// Disconnect stops the worker and closes the socket.
func (w *BinanceWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
