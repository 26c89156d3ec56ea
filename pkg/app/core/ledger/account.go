package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Account holds the available balance of every asset an address owns.
// All amounts are in the asset's smallest unit.
type Account struct {
	Address  common.Address   `json:"address"`
	Balances map[string]int64 `json:"balances"` // asset ticker -> amount
}

// NewAccount creates an account with no balances
func NewAccount(addr common.Address) *Account {
	return &Account{
		Address:  addr,
		Balances: make(map[string]int64),
	}
}

// Balance returns the amount held of asset (0 if none)
func (a *Account) Balance(asset string) int64 {
	return a.Balances[asset]
}

// Validate checks account invariants
func (a *Account) Validate() error {
	for asset, amt := range a.Balances {
		if amt < 0 {
			return fmt.Errorf("negative %s balance: %d", asset, amt)
		}
	}
	return nil
}

func (a *Account) clone() *Account {
	cp := NewAccount(a.Address)
	for k, v := range a.Balances {
		cp.Balances[k] = v
	}
	return cp
}
