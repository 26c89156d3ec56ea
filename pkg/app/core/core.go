// Package core assembles the balance ledger, token registry and matching
// engine into one exchange and re-exports their public types.
package core

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/ledgerdex/params"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/exchange"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/ledger"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/registry"
)

// Re-export types from subpackages

type (
	Side         = orderbook.Side
	Order        = orderbook.Order
	PriceLevel   = orderbook.PriceLevel
	Token        = registry.Token
	Trade        = exchange.Trade
	MarketResult = exchange.MarketResult
)

const (
	Buy  = orderbook.Buy
	Sell = orderbook.Sell
)

// Store is everything the exchange persists. A nil Store keeps all state in
// memory for the life of the process.
type Store interface {
	ledger.Store
	registry.Store
	exchange.Journal
}

// Core is one running exchange.
type Core struct {
	Ledger   *ledger.Ledger
	Registry *registry.Registry
	Exchange *exchange.Exchange

	owner         common.Address
	quoteDecimals uint8
	logger        *zap.Logger
}

// New wires the components for cfg over store.
func New(cfg params.Exchange, store Store, logger *zap.Logger, opts ...exchange.Option) (*Core, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		ledgerStore   ledger.Store
		registryStore registry.Store
	)
	if store != nil {
		ledgerStore, registryStore = store, store
		opts = append([]exchange.Option{exchange.WithJournal(store)}, opts...)
	}

	l, err := ledger.New(ledgerStore, logger.Named("ledger"))
	if err != nil {
		return nil, err
	}
	reg, err := registry.New(cfg.QuoteAsset, registry.OwnerPolicy{Owner: cfg.Owner}, registryStore)
	if err != nil {
		return nil, err
	}

	opts = append([]exchange.Option{exchange.WithLogger(logger.Named("exchange"))}, opts...)
	ex, err := exchange.New(cfg.QuoteAsset, l, reg, opts...)
	if err != nil {
		return nil, err
	}

	return &Core{
		Ledger:        l,
		Registry:      reg,
		Exchange:      ex,
		owner:         cfg.Owner,
		quoteDecimals: cfg.QuoteDecimals,
		logger:        logger,
	}, nil
}

func (c *Core) Owner() common.Address { return c.owner }

// ApplyGenesis lists g's tokens and credits its balances. It does nothing
// once the exchange holds any token or account, so restarts over a
// persistent store do not double-credit.
func (c *Core) ApplyGenesis(g *params.Genesis) (bool, error) {
	if g == nil || c.Registry.Count() > 0 || c.Ledger.Count() > 0 {
		return false, nil
	}

	for _, t := range g.Tokens {
		tok := registry.Token{
			Ticker:   t.Ticker,
			Address:  common.HexToAddress(t.Address),
			Decimals: t.Decimals,
		}
		if err := c.Exchange.ListToken(c.owner, tok); err != nil {
			return false, fmt.Errorf("genesis token %s: %w", t.Ticker, err)
		}
	}
	for _, b := range g.Balances {
		if err := c.Exchange.Deposit(common.HexToAddress(b.Account), b.Asset, b.Amount); err != nil {
			return false, fmt.Errorf("genesis balance %s %s: %w", b.Account, b.Asset, err)
		}
	}

	c.logger.Info("genesis_applied",
		zap.Int("tokens", len(g.Tokens)),
		zap.Int("balances", len(g.Balances)))
	return true, nil
}

// Status is a point-in-time summary of the exchange.
type Status struct {
	QuoteAsset    string `json:"quoteAsset"`
	QuoteDecimals uint8  `json:"quoteDecimals"`
	Owner         string `json:"owner"`
	Tokens        int    `json:"tokens"`
	Accounts      int    `json:"accounts"`
	NextOrderID   uint64 `json:"nextOrderId"`
	StateHash     string `json:"stateHash"`
}

func (c *Core) Status() Status {
	h := c.Exchange.StateHash()
	return Status{
		QuoteAsset:    c.Exchange.Quote(),
		QuoteDecimals: c.quoteDecimals,
		Owner:         c.owner.Hex(),
		Tokens:        c.Registry.Count(),
		Accounts:      c.Ledger.Count(),
		NextOrderID:   c.Exchange.NextOrderID(),
		StateHash:     "0x" + hex.EncodeToString(h[:]),
	}
}

// FormatAmount renders amount of asset in display units.
func (c *Core) FormatAmount(asset string, amount int64) string {
	if asset == c.Exchange.Quote() {
		return registry.FormatUnits(amount, c.quoteDecimals)
	}
	if t, err := c.Registry.GetToken(asset); err == nil {
		return t.FormatAmount(amount)
	}
	return registry.FormatUnits(amount, 0)
}

// Re-exported sentinels
var (
	ErrInvalidOrder        = exchange.ErrInvalidOrder
	ErrUnknownAsset        = exchange.ErrUnknownAsset
	ErrNotAuthorized       = exchange.ErrNotAuthorized
	ErrInsufficientBalance = exchange.ErrInsufficientBalance
)
