package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/ledgerdex/pkg/util"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

// Store persists accounts. A nil Store keeps the ledger in memory only.
type Store interface {
	SaveAccount(acc *Account) error
	LoadAccounts() ([]*Account, error)
}

// Ledger is the custodial balance book: per-account, per-asset available
// balances. Nothing is ever reserved, so every amount is spendable.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[common.Address]*Account
	store    Store
	logger   *zap.Logger
}

// New creates a ledger and loads any accounts already in store.
func New(store Store, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		accounts: make(map[common.Address]*Account),
		store:    store,
		logger:   logger,
	}
	if store == nil {
		return l, nil
	}

	accs, err := store.LoadAccounts()
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	for _, acc := range accs {
		if acc.Balances == nil {
			acc.Balances = make(map[string]int64)
		}
		if err := acc.Validate(); err != nil {
			return nil, fmt.Errorf("stored account %s: %w", acc.Address.Hex(), err)
		}
		l.accounts[acc.Address] = acc
	}
	return l, nil
}

// getAccountLocked returns the account for addr, creating it if needed (assumes lock is held)
func (l *Ledger) getAccountLocked(addr common.Address) *Account {
	acc, ok := l.accounts[addr]
	if !ok {
		acc = NewAccount(addr)
		l.accounts[addr] = acc
	}
	return acc
}

func (l *Ledger) saveLocked(acc *Account) error {
	if l.store == nil {
		return nil
	}
	return l.store.SaveAccount(acc)
}

// Deposit adds amount of asset to addr. Asset eligibility is the caller's
// concern; the ledger accepts any asset ticker. If the store rejects the
// write the balance is left as it was.
func (l *Ledger) Deposit(addr common.Address, asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive: %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, existed := l.accounts[addr]
	acc := l.getAccountLocked(addr)
	prev, held := acc.Balances[asset]
	next, err := util.AddInt64(prev, amount)
	if err != nil {
		return fmt.Errorf("deposit %s: %w", asset, err)
	}
	acc.Balances[asset] = next

	if err := l.saveLocked(acc); err != nil {
		if !existed {
			delete(l.accounts, addr)
		} else if held {
			acc.Balances[asset] = prev
		} else {
			delete(acc.Balances, asset)
		}
		return fmt.Errorf("failed to save account %s: %w", addr.Hex(), err)
	}
	return nil
}

// Withdraw removes amount of asset from addr
// Returns ErrInsufficientBalance if the account holds less
func (l *Ledger) Withdraw(addr common.Address, asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("withdraw amount must be positive: %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[addr]
	if !ok || acc.Balances[asset] < amount {
		have := int64(0)
		if ok {
			have = acc.Balances[asset]
		}
		return fmt.Errorf("%w: %s has %d %s, needs %d", ErrInsufficientBalance, addr.Hex(), have, asset, amount)
	}
	acc.Balances[asset] -= amount

	if err := l.saveLocked(acc); err != nil {
		acc.Balances[asset] += amount
		return fmt.Errorf("failed to save account %s: %w", addr.Hex(), err)
	}
	return nil
}

// BalanceOf returns the available amount of asset held by addr
func (l *Ledger) BalanceOf(addr common.Address, asset string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, ok := l.accounts[addr]
	if !ok {
		return 0
	}
	return acc.Balances[asset]
}

// Debit takes amount of asset from addr during settlement.
// Fails with ErrInsufficientBalance without changing anything.
func (l *Ledger) Debit(addr common.Address, asset string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("debit amount cannot be negative: %d", amount)
	}
	if amount == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[addr]
	if !ok || acc.Balances[asset] < amount {
		return fmt.Errorf("%w: debit %d %s from %s", ErrInsufficientBalance, amount, asset, addr.Hex())
	}
	acc.Balances[asset] -= amount
	l.persist(acc)
	return nil
}

// Credit gives amount of asset to addr during settlement.
func (l *Ledger) Credit(addr common.Address, asset string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("credit amount cannot be negative: %d", amount)
	}
	if amount == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.getAccountLocked(addr)
	next, err := util.AddInt64(acc.Balances[asset], amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", asset, err)
	}
	acc.Balances[asset] = next
	l.persist(acc)
	return nil
}

// persist writes acc through to the store. Settlement must not fail halfway
// on a storage error, so failures are logged rather than returned.
func (l *Ledger) persist(acc *Account) {
	if err := l.saveLocked(acc); err != nil {
		l.logger.Error("account_persist_failed",
			zap.String("address", acc.Address.Hex()),
			zap.Error(err))
	}
}

// Balances returns a copy of every balance held by addr
func (l *Ledger) Balances(addr common.Address) map[string]int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]int64)
	if acc, ok := l.accounts[addr]; ok {
		for k, v := range acc.Balances {
			out[k] = v
		}
	}
	return out
}

// Accounts returns copies of all accounts, sorted by address
func (l *Ledger) Accounts() []*Account {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Account, 0, len(l.accounts))
	for _, acc := range l.accounts {
		out = append(out, acc.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out
}

// Count returns the total number of accounts
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.accounts)
}
