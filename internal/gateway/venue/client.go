// Package venue implements the exchange gateway against the venue's REST
// and websocket endpoints.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"maker_go/internal/domain"
	"maker_go/internal/gateway"
	"maker_go/internal/infra"
	"maker_go/pkg/quant"
)

// marketOrderSlipPct prices emulated market orders 0.2% through the touch.
// The venue has no native market order; this is a documented approximation.
var marketOrderSlipPct = decimal.RequireFromString("0.2")

// bookFreshness bounds how stale a streamed book may be before falling
// back to REST.
const bookFreshness = 5 * time.Second

// Client is the venue gateway. One instance serves all wallets; each
// wallet's requests are signed with its own Signer.
type Client struct {
	restURL string
	wsURL   string
	http    *http.Client
	limiter *infra.RateLimiter
	breaker *infra.CircuitBreaker

	mu      sync.Mutex
	signers map[string]*Signer

	books  *bookCache
	stream *OrderbookWorker
}

// NewClient builds a gateway against the given endpoints.
func NewClient(restURL, wsURL string) *Client {
	return &Client{
		restURL: restURL,
		wsURL:   wsURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: infra.GetVenueRestLimiter(),
		breaker: infra.NewCircuitBreaker("venue-rest", 0, 0, 0),
		signers: make(map[string]*Signer),
		books:   newBookCache(),
	}
}

// StartOrderbookStream subscribes the websocket book feed for the given
// markets. GetOrderbook serves from the stream while it is fresh.
func (c *Client) StartOrderbookStream(ctx context.Context, marketIDs []string) {
	if c.wsURL == "" || len(marketIDs) == 0 {
		return
	}
	c.stream = NewOrderbookWorker(c.wsURL, marketIDs, c.books)
	c.stream.Connect(ctx)
}

// StopOrderbookStream tears the stream down. Safe to call when no stream
// was started.
func (c *Client) StopOrderbookStream() {
	if c.stream != nil {
		c.stream.Disconnect()
	}
}

// ConnectWallet resolves the wallet's on-chain address and marks it active.
func (c *Client) ConnectWallet(_ context.Context, wallet *domain.WalletState) error {
	if wallet.Config.PrivateKey == "" {
		wallet.Status = domain.WalletError
		return fmt.Errorf("wallet %s: missing credential material", wallet.Config.ID)
	}
	signer := c.signerFor(wallet)
	wallet.Address = signer.Address()
	wallet.Status = domain.WalletActive
	return nil
}

func (c *Client) signerFor(wallet *domain.WalletState) *Signer {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.signers[wallet.Config.ID]
	if !ok {
		s = NewSigner(wallet.Config.ID, wallet.Config.PrivateKey, wallet.Config.Subaccount)
		c.signers[wallet.Config.ID] = s
	}
	return s
}

func (c *Client) GetOrderbook(ctx context.Context, marketID string, depth int) (*gateway.OrderBook, error) {
	if book, ok := c.books.get(marketID, bookFreshness); ok {
		return book, nil
	}

	q := url.Values{}
	q.Set("market_id", marketID)
	q.Set("depth", strconv.Itoa(depth))
	var resp orderbookResponse
	if err := c.doPublic(ctx, "GET", "/api/v1/orderbook?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	book, err := bookFromLevels(marketID, resp.Bids, resp.Asks, resp.Ts)
	if err != nil {
		return nil, err
	}
	return book, nil
}

func (c *Client) PlaceLimitOrder(ctx context.Context, market *domain.MarketConfig, wallet *domain.WalletState, side domain.Side, price, quantity decimal.Decimal) (gateway.PlaceResult, error) {
	qp, err := quant.QuantizeToTick(price, market.TickSize)
	if err != nil {
		// A quantization shift beyond one tick means the order is wrong,
		// not the tick. Log and skip.
		slog.Warn("skipping order: tick quantization rejected price",
			slog.String("market", market.ID),
			slog.String("price", price.String()),
			slog.String("tick", market.TickSize.String()))
		return gateway.PlaceResult{}, err
	}

	req := placeOrderRequest{
		MarketID:   market.ID,
		Subaccount: wallet.Config.Subaccount,
		Side:       string(side),
		OrderType:  "LIMIT",
		Price:      qp.String(),
		Quantity:   quantity.String(),
	}
	var resp placeOrderResponse
	if err := c.doSigned(ctx, wallet, "POST", "/api/v1/orders", req, &resp); err != nil {
		return gateway.PlaceResult{}, err
	}
	return gateway.PlaceResult{
		TxHash:    resp.TxHash,
		OrderHash: resp.OrderHash,
		Price:     qp,
		Accepted:  resp.Accepted,
		Message:   resp.Message,
	}, nil
}

func (c *Client) PlaceMarketOrder(ctx context.Context, market *domain.MarketConfig, wallet *domain.WalletState, side domain.Side, quantity decimal.Decimal) (gateway.PlaceResult, error) {
	book, err := c.GetOrderbook(ctx, market.ID, 1)
	if err != nil {
		return gateway.PlaceResult{}, fmt.Errorf("market order emulation needs a book: %w", err)
	}

	var price decimal.Decimal
	if side == domain.SideBuy {
		ask, ok := book.BestAsk()
		if !ok {
			return gateway.PlaceResult{}, quant.ErrNoLiquidity
		}
		price = quant.ApplyPercent(ask, marketOrderSlipPct)
	} else {
		bid, ok := book.BestBid()
		if !ok {
			return gateway.PlaceResult{}, quant.ErrNoLiquidity
		}
		price = quant.ApplyPercent(bid, marketOrderSlipPct.Neg())
	}

	return c.PlaceLimitOrder(ctx, market, wallet, side, price, quantity)
}

func (c *Client) CancelOrder(ctx context.Context, market *domain.MarketConfig, wallet *domain.WalletState, ref gateway.OrderRef) error {
	req := cancelOrderRequest{
		MarketID:   market.ID,
		Subaccount: wallet.Config.Subaccount,
		OrderHash:  ref.OrderHash,
	}
	var resp cancelResponse
	if err := c.doSigned(ctx, wallet, "POST", "/api/v1/orders/cancel", req, &resp); err != nil {
		return err
	}
	if !resp.Accepted {
		return fmt.Errorf("cancel rejected: %s", resp.Message)
	}
	return nil
}

func (c *Client) BatchCancelOrders(ctx context.Context, wallet *domain.WalletState, refs []gateway.OrderRef) error {
	if len(refs) == 0 {
		return nil
	}
	req := batchCancelRequest{Subaccount: wallet.Config.Subaccount}
	for _, ref := range refs {
		req.Orders = append(req.Orders, cancelOrderItem{MarketID: ref.MarketID, OrderHash: ref.OrderHash})
	}
	var resp cancelResponse
	if err := c.doSigned(ctx, wallet, "POST", "/api/v1/orders/batch_cancel", req, &resp); err != nil {
		return err
	}
	if !resp.Accepted {
		return fmt.Errorf("batch cancel rejected: %s", resp.Message)
	}
	return nil
}

func (c *Client) GetOpenOrders(ctx context.Context, market *domain.MarketConfig, wallet *domain.WalletState) ([]gateway.OrderRef, error) {
	q := url.Values{}
	q.Set("market_id", market.ID)
	q.Set("subaccount_id", wallet.Config.Subaccount)
	var resp openOrdersResponse
	if err := c.doSigned(ctx, wallet, "GET", "/api/v1/orders/open?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	refs := make([]gateway.OrderRef, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		price, err := decimal.NewFromString(o.Price)
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(o.Quantity)
		if err != nil {
			continue
		}
		refs = append(refs, gateway.OrderRef{
			OrderHash: o.OrderHash,
			MarketID:  o.MarketID,
			Side:      domain.Side(o.Side),
			Price:     price,
			Quantity:  qty,
		})
	}
	return refs, nil
}

func (c *Client) GetBalances(ctx context.Context, wallet *domain.WalletState) (map[string]decimal.Decimal, error) {
	q := url.Values{}
	q.Set("subaccount_id", wallet.Config.Subaccount)
	var resp balancesResponse
	if err := c.doSigned(ctx, wallet, "GET", "/api/v1/balances?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(resp.Balances))
	for _, b := range resp.Balances {
		v, err := decimal.NewFromString(b.Available)
		if err != nil {
			continue
		}
		out[b.Denom] = v
	}
	return out, nil
}

func (c *Client) doPublic(ctx context.Context, method, path string, body, out any) error {
	return c.do(ctx, nil, method, path, body, out)
}

func (c *Client) doSigned(ctx context.Context, wallet *domain.WalletState, method, path string, body, out any) error {
	return c.do(ctx, c.signerFor(wallet), method, path, body, out)
}

func (c *Client) do(ctx context.Context, signer *Signer, method, path string, body, out any) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("venue rest: circuit open, call shed")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.restURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if signer != nil {
		for k, v := range signer.GenerateHeaders(method, path, string(payload)) {
			req.Header.Set(k, v)
		}
	} else if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}
	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure()
		return fmt.Errorf("venue rest: %s %s -> %d: %s", method, path, resp.StatusCode, truncate(data, 200))
	}

	c.breaker.RecordSuccess()
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// bookFromLevels converts decimal-string levels into a typed book.
func bookFromLevels(marketID string, bids, asks [][2]string, tsMillis int64) (*gateway.OrderBook, error) {
	book := &gateway.OrderBook{MarketID: marketID, UpdatedUnixM: tsMillis * 1000}
	var err error
	if book.Bids, err = parseLevels(bids); err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	if book.Asks, err = parseLevels(asks); err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}
	return book, nil
}

func parseLevels(raw [][2]string) ([]gateway.BookLevel, error) {
	levels := make([]gateway.BookLevel, 0, len(raw))
	for _, lv := range raw {
		price, err := decimal.NewFromString(lv[0])
		if err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(lv[1])
		if err != nil {
			return nil, err
		}
		levels = append(levels, gateway.BookLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}
