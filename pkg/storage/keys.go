package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema:
//
//	acc:<address>               → Account
//	tok:<ticker>                → Token
//	ord:<ticker>:<orderID>      → resting Order (id zero-padded, 20 digits)
//	trade:<ticker>:<ts>:<seq>   → Trade (timestamp and sequence zero-padded, 20 digits)
//	meta:next_order_id          → next order id, 8 bytes big-endian
//	meta:trade_seq              → last trade sequence, 8 bytes big-endian
const (
	prefixAccount = "acc:"
	prefixToken   = "tok:"
	prefixOrder   = "ord:"
	prefixTrade   = "trade:"
)

var (
	keyNextOrderID = []byte("meta:next_order_id")
	keyTradeSeq    = []byte("meta:trade_seq")
)

// Format: "acc:{address}"
func accountKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixAccount, addr.Hex()))
}

// Format: "tok:{ticker}"
func tokenKey(ticker string) []byte {
	return []byte(prefixToken + ticker)
}

// orderKey returns the key for a resting order
// Format: "ord:{ticker}:{orderID}"
func orderKey(ticker string, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixOrder, ticker, id))
}

// tradeKey returns the key for a trade
// Format: "trade:{ticker}:{timestamp}:{seq}"
// Both numbers are zero-padded (20 digits) for lexicographic sorting; seq
// orders trades that share a timestamp.
func tradeKey(ticker string, timestamp int64, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%020d", prefixTrade, ticker, timestamp, seq))
}

// tradePrefix returns the prefix for all trades of a ticker
// Format: "trade:{ticker}:"
func tradePrefix(ticker string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, ticker))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
