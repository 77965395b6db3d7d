package stream

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"
	"github.com/itsoneohone/prismaview-sub000/internal/infra"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	krakenWSURL        = "wss://ws.kraken.com/v2"
	krakenMaxRetries   = 10
	krakenBaseDelay    = 1 * time.Second
	krakenMaxDelay     = 60 * time.Second
	krakenReadTimeout  = 60 * time.Second
	krakenMaxSubscribe = 50
)

// krakenTickerMessage represents a Kraken WebSocket v2 ticker message.
// Reference: https://docs.kraken.com/api/docs/websocket-v2/ticker
type krakenTickerMessage struct {
	Channel string `json:"channel"`
	Type    string `json:"type"` // snapshot, update
	Data    []struct {
		Symbol    string  `json:"symbol"` // e.g. "BTC/USD"
		Last      float64 `json:"last"`
		Volume    float64 `json:"volume"`     // 24h base volume
		ChangePct float64 `json:"change_pct"` // 24h change (%)
		High      float64 `json:"high"`
		Low       float64 `json:"low"`
	} `json:"data"`
}

// KrakenWorker maintains a Kraken WebSocket connection and forwards live
// tickers to the valuation channel. It implements domain.StreamWorker.
type KrakenWorker struct {
	symbols    []string
	wsURL      string
	tickerChan chan<- []domain.Ticker
	conn       *websocket.Conn
	mu         sync.RWMutex
	writeMu    sync.Mutex
	connected  bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewKrakenWorker creates a worker for the given canonical symbols.
func NewKrakenWorker(symbols []string, tickerChan chan<- []domain.Ticker) *KrakenWorker {
	return &KrakenWorker{
		symbols:    symbols,
		wsURL:      krakenWSURL,
		tickerChan: tickerChan,
	}
}

// NewKrakenWorkerWithURL creates a worker against a custom endpoint.
func NewKrakenWorkerWithURL(symbols []string, tickerChan chan<- []domain.Ticker, wsURL string) *KrakenWorker {
	w := NewKrakenWorker(symbols, tickerChan)
	if wsURL != "" {
		w.wsURL = wsURL
	}
	return w
}

// Connect starts the WebSocket connection with automatic reconnection.
func (w *KrakenWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.connectionLoop(ctx)

	return nil
}

// connectionLoop handles connection and reconnection with exponential backoff
func (w *KrakenWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Kraken stream panic recovered", slog.Any("panic", r))
		}
	}()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("Kraken stream connection loop stopped")
			return
		default:
		}

		err := w.connect(ctx)
		if err != nil {
			slog.Warn("Kraken stream connection failed",
				slog.Any("error", err),
				slog.Int("retry", retryCount),
			)

			// Exponential backoff
			delay := w.calculateBackoff(retryCount)
			retryCount++
			if retryCount > krakenMaxRetries {
				slog.Error("Kraken stream max retries exceeded, resetting counter")
				retryCount = 0
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		// Connection successful, reset retry counter
		retryCount = 0

		// Read messages until error
		w.readLoop(ctx)
	}
}

// calculateBackoff returns the delay for the current retry attempt
func (w *KrakenWorker) calculateBackoff(retryCount int) time.Duration {
	delay := krakenBaseDelay * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > krakenMaxDelay {
		delay = krakenMaxDelay
	}
	return delay
}

// connect establishes the WebSocket connection and subscribes to tickers
func (w *KrakenWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	header := make(http.Header)
	header.Add("User-Agent", infra.DefaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, w.wsURL, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()
	infra.GlobalMetrics.IncrementStreams()

	// Subscribe to ticker data
	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	slog.Info("Kraken WebSocket connected",
		slog.Int("symbols", len(w.symbols)),
	)

	return nil
}

// subscribe sends the v2 ticker subscription for all symbols
func (w *KrakenWorker) subscribe() error {
	if len(w.symbols) > krakenMaxSubscribe {
		slog.Warn("Kraken symbol limit exceeded", slog.Int("count", len(w.symbols)), slog.Int("max", krakenMaxSubscribe))
		w.symbols = w.symbols[:krakenMaxSubscribe]
	}

	// Kraken v2 subscription format:
	// {"method":"subscribe","params":{"channel":"ticker","symbol":["BTC/USD"]}}
	subscribeMsg := map[string]interface{}{
		"method": "subscribe",
		"params": map[string]interface{}{
			"channel": "ticker",
			"symbol":  w.symbols,
		},
	}

	msgBytes, err := json.Marshal(subscribeMsg)
	if err != nil {
		return err
	}

	return w.threadSafeWrite(websocket.TextMessage, msgBytes)
}

// threadSafeWrite sends a message to the WebSocket connection in a thread-safe manner
func (w *KrakenWorker) threadSafeWrite(messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection is nil")
	}

	return conn.WriteMessage(messageType, data)
}

// readLoop reads messages from the WebSocket
func (w *KrakenWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		// Set read deadline
		conn.SetReadDeadline(time.Now().Add(krakenReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Kraken WebSocket read error", slog.Any("error", err))
			}
			w.closeConnection()
			return
		}

		w.handleMessage(message)
	}
}

// handleMessage parses and forwards ticker messages
func (w *KrakenWorker) handleMessage(message []byte) {
	var msg krakenTickerMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		slog.Debug("Kraken message parse error", slog.Any("error", err))
		return
	}

	if msg.Channel != "ticker" || len(msg.Data) == 0 {
		return
	}

	tickers := make([]domain.Ticker, 0, len(msg.Data))
	for _, d := range msg.Data {
		tickers = append(tickers, domain.Ticker{
			Symbol:     d.Symbol,
			Price:      decimal.NewFromFloat(d.Last),
			Volume:     decimal.NewFromFloat(d.Volume),
			ChangeRate: decimal.NewFromFloat(d.ChangePct),
			Exchange:   domain.ExchangeKraken,
		})
	}

	if w.tickerChan != nil {
		select {
		case w.tickerChan <- tickers:
		default:
			slog.Warn("Ticker channel full, dropping data")
		}
	}
}

// closeConnection safely closes the WebSocket connection
func (w *KrakenWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	if w.connected {
		infra.GlobalMetrics.DecrementStreams()
	}
	w.connected = false
}

// Disconnect closes the WebSocket connection and stops reconnection.
func (w *KrakenWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
	slog.Info("Kraken WebSocket disconnected")
}

// IsConnected returns connection status.
func (w *KrakenWorker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}
