package exchange

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/ledgerdex/pkg/app/core/orderbook"
)

// Trade is a settled fill between a market-order taker and a resting order.
type Trade struct {
	ID           string         `json:"id"`
	Ticker       string         `json:"ticker"`
	Side         orderbook.Side `json:"side"` // taker side
	Price        int64          `json:"price"`
	Amount       int64          `json:"amount"`
	QuoteAmount  int64          `json:"quoteAmount"` // Price × Amount
	Taker        common.Address `json:"taker"`
	Maker        common.Address `json:"maker"`
	MakerOrderID uint64         `json:"makerOrderId"`
	Timestamp    int64          `json:"timestamp"` // Unix milliseconds
}

// MarketResult summarizes a market order. Market orders are never stored, so
// this is the only record of what they did.
type MarketResult struct {
	Side        orderbook.Side `json:"side"`
	Ticker      string         `json:"ticker"`
	Requested   int64          `json:"requested"`
	Filled      int64          `json:"filled"`
	QuoteVolume int64          `json:"quoteVolume"`
	Trades      []Trade        `json:"trades"`

	// Halted is set when matching stopped early because one side of the next
	// fill could not pay. Trades already settled stand.
	Halted bool `json:"halted"`
}

// Changeset is everything one operation changed in the books, handed to the
// Journal in a single call.
type Changeset struct {
	Orders      []orderbook.Order `json:"orders,omitempty"`  // new or partially filled orders
	Removed     []orderbook.Order `json:"removed,omitempty"` // fully filled orders
	Trades      []Trade           `json:"trades,omitempty"`
	NextOrderID uint64            `json:"nextOrderId"`
}

func (cs *Changeset) empty() bool {
	return len(cs.Orders) == 0 && len(cs.Removed) == 0 && len(cs.Trades) == 0
}
