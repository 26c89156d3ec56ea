package orderbook

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Side is 0 = buy, 1 = sell. It encodes as "buy"/"sell" in JSON.
type Side uint8

const (
	Buy  Side = 0
	Sell Side = 1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the side a taker on s matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) Valid() bool { return s == Buy || s == Sell }

// ParseSide accepts "buy"/"sell" (any case) or the numeric forms "0"/"1".
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "buy", "0":
		return Buy, nil
	case "sell", "1":
		return Sell, nil
	}
	return 0, fmt.Errorf("invalid side %q", v)
}

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid side %d", s)
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Order is a resting limit order. Market orders never become an Order.
type Order struct {
	ID     uint64         `json:"id"`
	Trader common.Address `json:"trader"`
	Side   Side           `json:"side"`
	Ticker string         `json:"ticker"`

	Amount int64 `json:"amount"` // total quantity, smallest token units
	Price  int64 `json:"price"`  // quote units per unit of amount
	Filled int64 `json:"filled"` // 0 <= Filled <= Amount

	CreatedAt int64 `json:"createdAt"` // Unix milliseconds
}

// Remaining returns unfilled quantity
func (o *Order) Remaining() int64 {
	return o.Amount - o.Filled
}

// Active reports whether the order can still be matched.
func (o *Order) Active() bool {
	return o.Filled < o.Amount
}

// MatchQty is the quantity a taker with remaining qty takes from o.
func MatchQty(remaining int64, o Order) int64 {
	return min(remaining, o.Remaining())
}
