package venue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"maker_go/internal/gateway"
	"maker_go/internal/infra"
)

// bookCache holds the latest streamed book per market.
type bookCache struct {
	mu    sync.RWMutex
	books map[string]*gateway.OrderBook
}

func newBookCache() *bookCache {
	return &bookCache{books: make(map[string]*gateway.OrderBook)}
}

func (c *bookCache) put(book *gateway.OrderBook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books[book.MarketID] = book
}

// get returns the cached book when it is younger than maxAge.
func (c *bookCache) get(marketID string, maxAge time.Duration) (*gateway.OrderBook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	book, ok := c.books[marketID]
	if !ok {
		return nil, false
	}
	age := time.Now().UnixMicro() - book.UpdatedUnixM
	if age > maxAge.Microseconds() {
		return nil, false
	}
	return book, true
}

// OrderbookWorker streams book updates over the venue websocket using the
// shared BaseWSWorker reconnect skeleton.
type OrderbookWorker struct {
	base    *infra.BaseWSWorker
	url     string
	markets []string
	cache   *bookCache
}

// NewOrderbookWorker factory.
func NewOrderbookWorker(url string, markets []string, cache *bookCache) *OrderbookWorker {
	w := &OrderbookWorker{
		url:     url,
		markets: markets,
		cache:   cache,
	}
	w.base = infra.NewBaseWSWorker(w)
	return w
}

func (w *OrderbookWorker) ID() string     { return "VENUE_BOOKS" }
func (w *OrderbookWorker) GetURL() string { return w.url }

func (w *OrderbookWorker) Connect(ctx context.Context) {
	w.base.Start(ctx)
}

func (w *OrderbookWorker) Disconnect() {
	w.base.Stop()
}

func (w *OrderbookWorker) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	req := wsSubscribeRequest{Op: "subscribe", Channel: "orderbook", Markets: w.markets}
	b, _ := json.Marshal(req)
	return w.base.Write(websocket.TextMessage, b)
}

func (w *OrderbookWorker) OnMessage(ctx context.Context, msg []byte) {
	if string(msg) == "pong" {
		return
	}

	var m wsBookMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return
	}
	if m.Channel != "orderbook" || m.MarketID == "" {
		return
	}

	book, err := bookFromLevels(m.MarketID, m.Bids, m.Asks, m.Ts)
	if err != nil {
		return
	}
	// Stamp with local receive time so freshness checks use one clock.
	book.UpdatedUnixM = time.Now().UnixMicro()
	w.cache.put(book)
}

func (w *OrderbookWorker) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return w.base.Write(websocket.TextMessage, []byte("ping"))
}
