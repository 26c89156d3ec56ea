package params

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Genesis seeds a fresh exchange: who owns it, which tokens are listed and
// which balances exist before the first order. It is applied only when the
// store is empty.
//
//	owner: "0x1000..."
//	tokens:
//	  - ticker: LINK
//	    address: "0x5149..."
//	    decimals: 18
//	balances:
//	  - account: "0xa11c..."
//	    asset: ETH
//	    amount: 50000
type Genesis struct {
	Owner    string           `yaml:"owner"`
	Tokens   []GenesisToken   `yaml:"tokens"`
	Balances []GenesisBalance `yaml:"balances"`
}

type GenesisToken struct {
	Ticker   string `yaml:"ticker"`
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
}

type GenesisBalance struct {
	Account string `yaml:"account"`
	Asset   string `yaml:"asset"`
	Amount  int64  `yaml:"amount"`
}

// LoadGenesis reads and validates a genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var g Genesis
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse genesis %s: %w", path, err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	return &g, nil
}

// Validate checks addresses and amounts
func (g *Genesis) Validate() error {
	if g.Owner != "" && !common.IsHexAddress(g.Owner) {
		return fmt.Errorf("invalid owner address %q", g.Owner)
	}
	for _, t := range g.Tokens {
		if t.Ticker == "" {
			return fmt.Errorf("token with empty ticker")
		}
		if t.Address != "" && !common.IsHexAddress(t.Address) {
			return fmt.Errorf("token %s: invalid address %q", t.Ticker, t.Address)
		}
	}
	for _, b := range g.Balances {
		if !common.IsHexAddress(b.Account) {
			return fmt.Errorf("invalid account address %q", b.Account)
		}
		if b.Amount <= 0 {
			return fmt.Errorf("account %s: %s amount must be positive", b.Account, b.Asset)
		}
	}
	return nil
}

// OwnerAddress returns the configured owner, or fallback if none is set.
func (g *Genesis) OwnerAddress(fallback common.Address) common.Address {
	if g == nil || g.Owner == "" {
		return fallback
	}
	return common.HexToAddress(g.Owner)
}
