package orderbook

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrOverfill      = errors.New("fill exceeds order amount")
	ErrOrderNotFound = errors.New("order not found")
)

// Book is the ordered sequence of active orders for one (ticker, side).
//
// Buy books are kept in non-decreasing price order and sell books in
// non-increasing price order, so in both the best price sits at the tail.
// Among equal prices the earliest order is closest to the tail and matches
// first.
type Book struct {
	Ticker string
	Side   Side
	orders []*Order
}

func newBook(ticker string, side Side) *Book {
	return &Book{Ticker: ticker, Side: side}
}

func (b *Book) Len() int { return len(b.orders) }

// ahead reports whether price p belongs strictly closer to the tail (better)
// than q on this side.
func (b *Book) ahead(p, q int64) bool {
	if b.Side == Buy {
		return p > q
	}
	return p < q
}

// Insert places o at its sorted position. The break point is the first order
// that is not worse than o, so o lands in front of any equal-priced orders
// already resting and keeps behind them in matching priority.
func (b *Book) Insert(o *Order) {
	i := sort.Search(len(b.orders), func(i int) bool {
		return !b.ahead(o.Price, b.orders[i].Price)
	})
	b.orders = append(b.orders, nil)
	copy(b.orders[i+1:], b.orders[i:])
	b.orders[i] = o
}

// Best returns a copy of the order with matching priority.
func (b *Book) Best() (Order, bool) {
	if len(b.orders) == 0 {
		return Order{}, false
	}
	return *b.orders[len(b.orders)-1], true
}

// Snapshot returns copies of all orders in stored order.
func (b *Book) Snapshot() []Order {
	out := make([]Order, len(b.orders))
	for i, o := range b.orders {
		out[i] = *o
	}
	return out
}

// Walk visits copies of the orders from best priority to worst until fn
// returns false.
func (b *Book) Walk(fn func(o Order) bool) {
	for i := len(b.orders) - 1; i >= 0; i-- {
		if !fn(*b.orders[i]) {
			return
		}
	}
}

// ApplyFill adds qty to the filled amount of order id.
func (b *Book) ApplyFill(id uint64, qty int64) error {
	for _, o := range b.orders {
		if o.ID != id {
			continue
		}
		if qty <= 0 || o.Filled+qty > o.Amount {
			return fmt.Errorf("%w: order %d filled=%d amount=%d fill=%d", ErrOverfill, id, o.Filled, o.Amount, qty)
		}
		o.Filled += qty
		return nil
	}
	return fmt.Errorf("%w: %d", ErrOrderNotFound, id)
}

// RemoveFullyFilled drops every order with Filled == Amount, wherever it
// sits, and returns the removed orders.
func (b *Book) RemoveFullyFilled() []Order {
	var removed []Order
	kept := b.orders[:0]
	for _, o := range b.orders {
		if o.Active() {
			kept = append(kept, o)
			continue
		}
		removed = append(removed, *o)
	}
	for i := len(kept); i < len(b.orders); i++ {
		b.orders[i] = nil
	}
	b.orders = kept
	return removed
}

// Depth aggregates the book into price levels, best first.
func (b *Book) Depth() []PriceLevel {
	var levels []PriceLevel
	b.Walk(func(o Order) bool {
		n := len(levels)
		if n > 0 && levels[n-1].Price == o.Price {
			levels[n-1].Amount += o.Remaining()
			levels[n-1].Orders++
			return true
		}
		levels = append(levels, PriceLevel{Price: o.Price, Amount: o.Remaining(), Orders: 1})
		return true
	})
	return levels
}

// PriceLevel is the open quantity resting at one price.
type PriceLevel struct {
	Price  int64 `json:"price"`
	Amount int64 `json:"amount"`
	Orders int   `json:"orders"`
}
