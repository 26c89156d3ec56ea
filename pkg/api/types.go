package api

import (
	"github.com/uhyunpark/ledgerdex/pkg/app/core"
)

// API request and response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// TokenInfo is a listed token
type TokenInfo struct {
	Ticker   string `json:"ticker"`
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
}

// OrderbookResponse is one side of a token's book. Orders are in stored
// order (buys ascending, sells descending); Levels are best first.
type OrderbookResponse struct {
	Ticker    string            `json:"ticker"`
	Side      core.Side         `json:"side"`
	Orders    []core.Order      `json:"orders"`
	Levels    []core.PriceLevel `json:"levels"`
	Timestamp int64             `json:"timestamp"` // Unix milliseconds
}

// BalanceInfo is one asset holding
type BalanceInfo struct {
	Amount  int64  `json:"amount"`  // smallest units
	Display string `json:"display"` // scaled by the asset's decimals
}

// BalancesResponse lists every asset an account holds
type BalancesResponse struct {
	Address  string                 `json:"address"`
	Balances map[string]BalanceInfo `json:"balances"`
}

// LimitOrderResponse carries the id of the resting order
type LimitOrderResponse struct {
	OrderID uint64 `json:"orderId"`
}

// MarketOrderResponse is the fill summary. Message is set when the order
// halted part-way.
type MarketOrderResponse struct {
	core.MarketResult
	Message string `json:"message,omitempty"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// REST Request Types
// ==============================

// Signed carries the optional EIP-712 authorization of a request. It is
// required when the server runs with signature checks enabled.
type Signed struct {
	Nonce     uint64 `json:"nonce,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// AddTokenRequest is the payload for POST /api/v1/tokens
type AddTokenRequest struct {
	Caller   string `json:"caller"`
	Ticker   string `json:"ticker"`
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Signed
}

// LimitOrderRequest is the payload for POST /api/v1/orders/limit
type LimitOrderRequest struct {
	Trader string `json:"trader"`
	Side   string `json:"side"` // "buy" | "sell" | "0" | "1"
	Ticker string `json:"ticker"`
	Amount int64  `json:"amount"`
	Price  int64  `json:"price"`
	Signed
}

// MarketOrderRequest is the payload for POST /api/v1/orders/market
type MarketOrderRequest struct {
	Trader string `json:"trader"`
	Side   string `json:"side"`
	Ticker string `json:"ticker"`
	Amount int64  `json:"amount"`
	Signed
}

// TransferRequest is the payload for deposit and withdraw
type TransferRequest struct {
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
	Signed
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["orderbook:LINK", "trades:LINK"]
}

// OrderbookUpdate is broadcast after every operation that changes a book
type OrderbookUpdate struct {
	Type      string            `json:"type"` // "orderbook"
	Ticker    string            `json:"ticker"`
	Bids      []core.PriceLevel `json:"bids"` // best first
	Asks      []core.PriceLevel `json:"asks"` // best first
	Timestamp int64             `json:"timestamp"`
}

// TradeUpdate is broadcast when a trade settles
type TradeUpdate struct {
	Type string `json:"type"` // "trade"
	core.Trade
}
