package venue

// REST payloads. Prices and quantities travel as decimal strings; the
// venue rejects binary floating point representations.

type orderbookResponse struct {
	MarketID string      `json:"market_id"`
	Bids     [][2]string `json:"bids"` // [price, quantity]
	Asks     [][2]string `json:"asks"`
	Ts       int64       `json:"ts"` // milliseconds
}

type placeOrderRequest struct {
	MarketID   string `json:"market_id"`
	Subaccount string `json:"subaccount_id"`
	Side       string `json:"side"`
	OrderType  string `json:"order_type"`
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
}

type placeOrderResponse struct {
	TxHash    string `json:"tx_hash"`
	OrderHash string `json:"order_hash"`
	Accepted  bool   `json:"accepted"`
	Message   string `json:"message"`
}

type cancelOrderRequest struct {
	MarketID   string `json:"market_id"`
	Subaccount string `json:"subaccount_id"`
	OrderHash  string `json:"order_hash"`
}

type batchCancelRequest struct {
	Subaccount string            `json:"subaccount_id"`
	Orders     []cancelOrderItem `json:"orders"`
}

type cancelOrderItem struct {
	MarketID  string `json:"market_id"`
	OrderHash string `json:"order_hash"`
}

type cancelResponse struct {
	TxHash   string `json:"tx_hash"`
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

type openOrdersResponse struct {
	Orders []openOrder `json:"orders"`
}

type openOrder struct {
	OrderHash string `json:"order_hash"`
	MarketID  string `json:"market_id"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
}

type balancesResponse struct {
	Balances []balanceEntry `json:"balances"`
}

type balanceEntry struct {
	Denom     string `json:"denom"`
	Available string `json:"available"`
}

// Websocket stream messages.

type wsSubscribeRequest struct {
	Op      string   `json:"op"`
	Channel string   `json:"channel"`
	Markets []string `json:"markets"`
}

type wsBookMessage struct {
	Channel  string      `json:"channel"`
	MarketID string      `json:"market_id"`
	Bids     [][2]string `json:"bids"`
	Asks     [][2]string `json:"asks"`
	Ts       int64       `json:"ts"`
}
