package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/ledgerdex/pkg/app/core/exchange"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/ledger"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/registry"
)

// PebbleStore persists accounts, listed tokens, resting orders and trades.
type PebbleStore struct {
	db *pebble.DB

	mu       sync.Mutex
	tradeSeq uint64
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", path, err)
	}
	s := &PebbleStore{db: db}
	if s.tradeSeq, err = s.loadUint64(keyTradeSeq); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

var (
	_ ledger.Store     = (*PebbleStore)(nil)
	_ registry.Store   = (*PebbleStore)(nil)
	_ exchange.Journal = (*PebbleStore)(nil)
)

// ============================================================================
// Accounts
// ============================================================================

// SaveAccount persists an account to Pebble
func (s *PebbleStore) SaveAccount(acc *ledger.Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	if err := s.db.Set(accountKey(acc.Address), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// LoadAccounts returns every stored account
func (s *PebbleStore) LoadAccounts() ([]*ledger.Account, error) {
	var out []*ledger.Account
	err := s.scan([]byte(prefixAccount), func(v []byte) error {
		var acc ledger.Account
		if err := json.Unmarshal(v, &acc); err != nil {
			return fmt.Errorf("failed to unmarshal account: %w", err)
		}
		out = append(out, &acc)
		return nil
	})
	return out, err
}

// ============================================================================
// Tokens
// ============================================================================

func (s *PebbleStore) SaveToken(t registry.Token) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := s.db.Set(tokenKey(t.Ticker), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *PebbleStore) LoadTokens() ([]registry.Token, error) {
	var out []registry.Token
	err := s.scan([]byte(prefixToken), func(v []byte) error {
		var t registry.Token
		if err := json.Unmarshal(v, &t); err != nil {
			return fmt.Errorf("failed to unmarshal token: %w", err)
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

// ============================================================================
// Order journal
// ============================================================================

// Apply writes one exchange operation's book changes in a single batch.
func (s *PebbleStore) Apply(cs *exchange.Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, o := range cs.Orders {
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to marshal order %d: %w", o.ID, err)
		}
		if err := batch.Set(orderKey(o.Ticker, o.ID), data, nil); err != nil {
			return err
		}
	}
	for _, o := range cs.Removed {
		if err := batch.Delete(orderKey(o.Ticker, o.ID), nil); err != nil {
			return err
		}
	}
	seq := s.tradeSeq
	for _, t := range cs.Trades {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal trade %s: %w", t.ID, err)
		}
		seq++
		if err := batch.Set(tradeKey(t.Ticker, t.Timestamp, seq), data, nil); err != nil {
			return err
		}
	}
	if seq != s.tradeSeq {
		if err := batch.Set(keyTradeSeq, encodeUint64(seq), nil); err != nil {
			return err
		}
	}
	if err := batch.Set(keyNextOrderID, encodeUint64(cs.NextOrderID), nil); err != nil {
		return err
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit changeset: %w", err)
	}
	s.tradeSeq = seq
	return nil
}

// LoadOpenOrders returns every resting order sorted by id, plus the stored
// order id sequence (0 if none).
func (s *PebbleStore) LoadOpenOrders() ([]orderbook.Order, uint64, error) {
	var orders []orderbook.Order
	err := s.scan([]byte(prefixOrder), func(v []byte) error {
		var o orderbook.Order
		if err := json.Unmarshal(v, &o); err != nil {
			return fmt.Errorf("failed to unmarshal order: %w", err)
		}
		orders = append(orders, o)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })

	next, err := s.loadUint64(keyNextOrderID)
	if err != nil {
		return nil, 0, err
	}
	return orders, next, nil
}

// loadUint64 reads a counter under key, 0 if unset.
func (s *PebbleStore) loadUint64(key []byte) (uint64, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer closer.Close()
	return decodeUint64(val)
}

// LoadRecentTrades loads the most recent trades for a ticker, newest first
func (s *PebbleStore) LoadRecentTrades(ticker string, limit int) ([]exchange.Trade, error) {
	prefix := tradePrefix(ticker)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	trades := []exchange.Trade{}
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var t exchange.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, iter.Error()
}

// scan calls fn with every value under prefix, in key order.
func (s *PebbleStore) scan(prefix []byte, fn func(v []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
