package feeds

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PRICE FEED - Streaming mark prices over WebSocket
// ═══════════════════════════════════════════════════════════════════════════════
//
// Subscribes to miniTicker streams and pushes price updates into the risk
// manager via callback. Reconnects with backoff on drop.
//
// ═══════════════════════════════════════════════════════════════════════════════

// PriceFeed streams mark prices for the configured pairs
type PriceFeed struct {
	wsURL string
	pairs []string

	mu      sync.RWMutex
	prices  map[string]decimal.Decimal
	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}

	onPrice func(symbol string, price decimal.Decimal)
}

// NewPriceFeed creates a feed for the given stream pairs (e.g. "ethusdt")
func NewPriceFeed(wsURL string, pairs []string) *PriceFeed {
	return &PriceFeed{
		wsURL:  wsURL,
		pairs:  pairs,
		prices: make(map[string]decimal.Decimal),
		stopCh: make(chan struct{}),
	}
}

// OnPrice sets the per-tick callback
func (f *PriceFeed) OnPrice(fn func(symbol string, price decimal.Decimal)) {
	f.onPrice = fn
}

// Start connects and begins streaming in the background
func (f *PriceFeed) Start() {
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()

	go f.run()
	log.Info().Strs("pairs", f.pairs).Msg("📈 Price feed started")
}

// Stop closes the stream
func (f *PriceFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)
	if f.conn != nil {
		f.conn.Close()
	}
}

// Price returns the last seen price for a symbol
func (f *PriceFeed) Price(symbol string) (decimal.Decimal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.prices[strings.ToLower(symbol)]
	return p, ok
}

// run owns the connect/read/reconnect loop
func (f *PriceFeed) run() {
	backoff := time.Second
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		conn, err := f.connect()
		if err != nil {
			log.Warn().Err(err).Dur("backoff", backoff).Msg("⚠️ Price feed connect failed")
			select {
			case <-f.stopCh:
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		f.readLoop(conn)
	}
}

// connect dials the stream and stashes the conn so Stop can close it.
// The reader works on the returned conn, never the shared field.
func (f *PriceFeed) connect() (*websocket.Conn, error) {
	streams := make([]string, len(f.pairs))
	for i, p := range f.pairs {
		streams[i] = strings.ToLower(p) + "@miniTicker"
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(f.wsURL+"/"+strings.Join(streams, "/"), nil)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	return conn, nil
}

func (f *PriceFeed) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		var msg struct {
			Symbol string `json:"s"`
			Close  string `json:"c"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			log.Warn().Err(err).Msg("Price feed read error, reconnecting")
			return
		}
		if msg.Symbol == "" {
			continue
		}

		price, err := decimal.NewFromString(msg.Close)
		if err != nil {
			continue
		}

		symbol := strings.ToLower(msg.Symbol)
		f.mu.Lock()
		f.prices[symbol] = price
		cb := f.onPrice
		f.mu.Unlock()

		if cb != nil {
			cb(symbol, price)
		}
	}
}
