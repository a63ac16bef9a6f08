package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maker_go/internal/gateway"
)

func mustBookMessage(t *testing.T, m wsBookMessage) []byte {
	t.Helper()
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return b
}

func TestOrderbookWorker_OnMessage(t *testing.T) {
	cache := newBookCache()
	w := NewOrderbookWorker("ws://unused.invalid", []string{"INJ/USDT"}, cache)

	w.OnMessage(context.Background(), mustBookMessage(t, wsBookMessage{
		Channel:  "orderbook",
		MarketID: "INJ/USDT",
		Bids:     [][2]string{{"10.00", "500"}},
		Asks:     [][2]string{{"10.06", "400"}},
		Ts:       1700000000000,
	}))

	book, ok := cache.get("INJ/USDT", time.Minute)
	require.True(t, ok)
	bid, ok := book.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Equal(decimal.RequireFromString("10.00")))
	ask, ok := book.BestAsk()
	require.True(t, ok)
	assert.True(t, ask.Equal(decimal.RequireFromString("10.06")))
	assert.NotZero(t, book.UpdatedUnixM, "books must carry a local receive stamp")
}

func TestOrderbookWorker_OnMessageIgnoresNoise(t *testing.T) {
	cache := newBookCache()
	w := NewOrderbookWorker("ws://unused.invalid", []string{"INJ/USDT"}, cache)
	ctx := context.Background()

	w.OnMessage(ctx, []byte("pong"))
	w.OnMessage(ctx, []byte("{malformed"))
	w.OnMessage(ctx, mustBookMessage(t, wsBookMessage{
		Channel:  "trades",
		MarketID: "INJ/USDT",
		Bids:     [][2]string{{"10.00", "1"}},
	}))
	w.OnMessage(ctx, mustBookMessage(t, wsBookMessage{
		Channel: "orderbook", // no market id
		Bids:    [][2]string{{"10.00", "1"}},
	}))

	_, ok := cache.get("INJ/USDT", time.Minute)
	assert.False(t, ok, "noise must never reach the cache")
}

func TestBookCache_FreshnessWindow(t *testing.T) {
	cache := newBookCache()
	cache.put(&gateway.OrderBook{
		MarketID:     "INJ/USDT",
		Bids:         []gateway.BookLevel{{Price: decimal.RequireFromString("10.00"), Quantity: decimal.NewFromInt(1)}},
		UpdatedUnixM: time.Now().Add(-10 * time.Second).UnixMicro(),
	})

	_, ok := cache.get("INJ/USDT", 5*time.Second)
	assert.False(t, ok, "a 10s old book is stale at a 5s horizon")

	_, ok = cache.get("INJ/USDT", time.Minute)
	assert.True(t, ok)

	_, ok = cache.get("ATOM/USDT", time.Minute)
	assert.False(t, ok)
}

func TestClient_GetOrderbook_StaleStreamFallsBackToREST(t *testing.T) {
	restHits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/orderbook", r.URL.Path)
		restHits++
		json.NewEncoder(w).Encode(orderbookResponse{
			MarketID: "INJ/USDT",
			Bids:     [][2]string{{"9.00", "500"}},
			Asks:     [][2]string{{"9.10", "400"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	level := func(p string) []gateway.BookLevel {
		return []gateway.BookLevel{{Price: decimal.RequireFromString(p), Quantity: decimal.NewFromInt(1)}}
	}

	// A streamed book older than the freshness horizon must be ignored.
	c.books.put(&gateway.OrderBook{
		MarketID:     "INJ/USDT",
		Bids:         level("10.00"),
		Asks:         level("10.06"),
		UpdatedUnixM: time.Now().Add(-bookFreshness - time.Second).UnixMicro(),
	})
	book, err := c.GetOrderbook(context.Background(), "INJ/USDT", 1)
	require.NoError(t, err)
	bid, ok := book.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Equal(decimal.RequireFromString("9.00")), "stale stream must fall back to REST, got %s", bid)
	assert.Equal(t, 1, restHits)

	// A fresh streamed book answers without touching REST.
	c.books.put(&gateway.OrderBook{
		MarketID:     "INJ/USDT",
		Bids:         level("10.00"),
		Asks:         level("10.06"),
		UpdatedUnixM: time.Now().UnixMicro(),
	})
	book, err = c.GetOrderbook(context.Background(), "INJ/USDT", 1)
	require.NoError(t, err)
	bid, ok = book.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Equal(decimal.RequireFromString("10.00")), "fresh stream must be served from cache, got %s", bid)
	assert.Equal(t, 1, restHits, "no REST call for a fresh streamed book")
}
