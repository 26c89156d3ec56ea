package orderbook

import (
	"sort"
	"sync"
)

type bookKey struct {
	ticker string
	side   Side
}

// Store owns every resting order, one Book per (ticker, side). Callers only
// ever see copies; fills go through ApplyFill.
type Store struct {
	mu    sync.RWMutex
	books map[bookKey]*Book
}

func NewStore() *Store {
	return &Store{books: make(map[bookKey]*Book)}
}

// book returns the book for (ticker, side), creating it on first use.
// Caller must hold the write lock.
func (s *Store) book(ticker string, side Side) *Book {
	k := bookKey{ticker, side}
	b, ok := s.books[k]
	if !ok {
		b = newBook(ticker, side)
		s.books[k] = b
	}
	return b
}

// Insert places a limit order into its book. The store takes ownership of o.
func (s *Store) Insert(o *Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.book(o.Ticker, o.Side).Insert(o)
}

// GetOrderBook returns a snapshot of the (ticker, side) book in stored order.
// An unknown book is empty.
func (s *Store) GetOrderBook(ticker string, side Side) []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[bookKey{ticker, side}]
	if !ok {
		return []Order{}
	}
	return b.Snapshot()
}

// BestOrder returns the order with matching priority, if any.
func (s *Store) BestOrder(ticker string, side Side) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[bookKey{ticker, side}]
	if !ok {
		return Order{}, false
	}
	return b.Best()
}

// Walk visits the (ticker, side) book from best priority until fn returns
// false. fn must not call back into the store.
func (s *Store) Walk(ticker string, side Side, fn func(o Order) bool) {
	s.mu.RLock()
	b, ok := s.books[bookKey{ticker, side}]
	var snapshot []Order
	if ok {
		snapshot = b.Snapshot()
	}
	s.mu.RUnlock()

	for i := len(snapshot) - 1; i >= 0; i-- {
		if !fn(snapshot[i]) {
			return
		}
	}
}

func (s *Store) ApplyFill(ticker string, side Side, id uint64, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[bookKey{ticker, side}]
	if !ok {
		return ErrOrderNotFound
	}
	return b.ApplyFill(id, qty)
}

// RemoveFullyFilled excises consumed orders from the (ticker, side) book.
func (s *Store) RemoveFullyFilled(ticker string, side Side) []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[bookKey{ticker, side}]
	if !ok {
		return nil
	}
	return b.RemoveFullyFilled()
}

// Depth returns aggregated price levels for (ticker, side), best first.
func (s *Store) Depth(ticker string, side Side) []PriceLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[bookKey{ticker, side}]
	if !ok {
		return nil
	}
	return b.Depth()
}

// Tickers lists every ticker that has had a book, sorted.
func (s *Store) Tickers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for k := range s.books {
		seen[k.ticker] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
