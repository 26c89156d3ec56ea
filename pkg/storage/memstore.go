package storage

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/ledgerdex/pkg/app/core/exchange"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/ledger"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/registry"
)

type memOrderKey struct {
	ticker string
	id     uint64
}

// InMemoryStore is a process-lifetime store with the same surface as
// PebbleStore. It backs a node started without a data directory.
type InMemoryStore struct {
	mu       sync.Mutex
	accounts map[common.Address]ledger.Account
	tokens   map[string]registry.Token
	orders   map[memOrderKey]orderbook.Order
	trades   map[string][]exchange.Trade // ticker -> oldest first
	nextID   uint64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		accounts: make(map[common.Address]ledger.Account),
		tokens:   make(map[string]registry.Token),
		orders:   make(map[memOrderKey]orderbook.Order),
		trades:   make(map[string][]exchange.Trade),
	}
}

var (
	_ ledger.Store     = (*InMemoryStore)(nil)
	_ registry.Store   = (*InMemoryStore)(nil)
	_ exchange.Journal = (*InMemoryStore)(nil)
)

func (s *InMemoryStore) SaveAccount(acc *ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := ledger.Account{Address: acc.Address, Balances: make(map[string]int64, len(acc.Balances))}
	for k, v := range acc.Balances {
		cp.Balances[k] = v
	}
	s.accounts[acc.Address] = cp
	return nil
}

func (s *InMemoryStore) LoadAccounts() ([]*ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ledger.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		cp := ledger.NewAccount(acc.Address)
		for k, v := range acc.Balances {
			cp.Balances[k] = v
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *InMemoryStore) SaveToken(t registry.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.Ticker] = t
	return nil
}

func (s *InMemoryStore) LoadTokens() ([]registry.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]registry.Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, t)
	}
	return out, nil
}

func (s *InMemoryStore) Apply(cs *exchange.Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range cs.Orders {
		s.orders[memOrderKey{o.Ticker, o.ID}] = o
	}
	for _, o := range cs.Removed {
		delete(s.orders, memOrderKey{o.Ticker, o.ID})
	}
	for _, t := range cs.Trades {
		s.trades[t.Ticker] = append(s.trades[t.Ticker], t)
	}
	s.nextID = cs.NextOrderID
	return nil
}

func (s *InMemoryStore) LoadOpenOrders() ([]orderbook.Order, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orderbook.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, s.nextID, nil
}

// LoadRecentTrades returns up to limit trades for ticker, newest first
func (s *InMemoryStore) LoadRecentTrades(ticker string, limit int) ([]exchange.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.trades[ticker]
	out := []exchange.Trade{}
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
