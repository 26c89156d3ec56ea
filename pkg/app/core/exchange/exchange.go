package exchange

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/ledgerdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/registry"
	"github.com/uhyunpark/ledgerdex/pkg/util"
)

// BalanceLedger is the custody surface settlement runs against.
type BalanceLedger interface {
	BalanceOf(acct common.Address, asset string) int64
	// Debit fails with ErrInsufficientBalance and changes nothing if acct
	// holds less than amount.
	Debit(acct common.Address, asset string, amount int64) error
	Credit(acct common.Address, asset string, amount int64) error

	// Deposit and Withdraw move funds in and out of custody. Unlike the
	// settlement legs they fail, with the balance unchanged, if the change
	// cannot be persisted.
	Deposit(acct common.Address, asset string, amount int64) error
	Withdraw(acct common.Address, asset string, amount int64) error
}

// TokenRegistry answers which tickers are tradable and lists new ones.
type TokenRegistry interface {
	IsRegistered(ticker string) bool
	// Register fails with ErrNotAuthorized unless caller may list tokens.
	Register(caller common.Address, t registry.Token) error
}

// Journal records book changes durably. Apply is called once per operation
// that changed anything.
type Journal interface {
	Apply(cs *Changeset) error
	// LoadOpenOrders returns resting orders in id order and the next order id
	// to assign (0 if none was ever recorded).
	LoadOpenOrders() ([]orderbook.Order, uint64, error)
}

// TradeHistory is implemented by journals that can answer trade queries.
type TradeHistory interface {
	LoadRecentTrades(ticker string, limit int) ([]Trade, error)
}

// Exchange is the matching engine. Every exported method runs under one
// mutex, so operations are applied strictly one at a time against the books
// and the ledger.
type Exchange struct {
	mu sync.Mutex

	quote   string
	ledger  BalanceLedger
	tokens  TokenRegistry
	books   *orderbook.Store
	journal Journal
	clock   util.Clock
	logger  *zap.Logger

	nextID uint64

	// OnTrade is called for every settled trade, after the operation's
	// changes have been journaled. Set it before serving requests.
	OnTrade func(t Trade)
}

type Option func(*Exchange)

func WithJournal(j Journal) Option    { return func(e *Exchange) { e.journal = j } }
func WithClock(c util.Clock) Option   { return func(e *Exchange) { e.clock = c } }
func WithLogger(l *zap.Logger) Option { return func(e *Exchange) { e.logger = l } }

// New creates an exchange quoting every token in quote. If a journal is
// supplied, resting orders and the id sequence are restored from it.
func New(quote string, ledger BalanceLedger, tokens TokenRegistry, opts ...Option) (*Exchange, error) {
	if quote == "" {
		return nil, fmt.Errorf("quote asset must be specified")
	}
	if ledger == nil || tokens == nil {
		return nil, fmt.Errorf("exchange requires a ledger and a token registry")
	}

	e := &Exchange{
		quote:  quote,
		ledger: ledger,
		tokens: tokens,
		books:  orderbook.NewStore(),
		clock:  util.RealClock{},
		logger: zap.NewNop(),
		nextID: 1,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.journal != nil {
		if err := e.restore(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Exchange) restore() error {
	orders, next, err := e.journal.LoadOpenOrders()
	if err != nil {
		return fmt.Errorf("failed to load open orders: %w", err)
	}
	for i := range orders {
		o := orders[i]
		e.books.Insert(&o)
		if o.ID >= e.nextID {
			e.nextID = o.ID + 1
		}
	}
	if next > e.nextID {
		e.nextID = next
	}
	e.logger.Info("books_restored",
		zap.Int("orders", len(orders)),
		zap.Uint64("next_order_id", e.nextID))
	return nil
}

// Quote returns the quote asset ticker
func (e *Exchange) Quote() string { return e.quote }

// AddToken lists a tradable token. Only the registry's policy owner may call it.
func (e *Exchange) AddToken(caller common.Address, ticker string, handle common.Address) error {
	return e.ListToken(caller, registry.Token{Ticker: ticker, Address: handle})
}

// ListToken is AddToken with full token metadata. Listing an existing ticker
// again replaces its metadata.
func (e *Exchange) ListToken(caller common.Address, t registry.Token) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.tokens.Register(caller, t); err != nil {
		e.logger.Info("add_token_rejected", zap.String("ticker", t.Ticker), zap.Error(err))
		return err
	}
	e.logger.Info("token_added",
		zap.String("ticker", t.Ticker),
		zap.String("handle", t.Address.Hex()),
		zap.Uint8("decimals", t.Decimals))
	return nil
}

// GetOrderBook returns the (ticker, side) book in stored order: buys by
// ascending price, sells by descending price.
func (e *Exchange) GetOrderBook(ticker string, side orderbook.Side) []orderbook.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.books.GetOrderBook(ticker, side)
}

// Depth returns aggregated (ticker, side) price levels, best first.
func (e *Exchange) Depth(ticker string, side orderbook.Side) []orderbook.PriceLevel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.books.Depth(ticker, side)
}

// RecentTrades returns up to limit trades for ticker, newest first. Without a
// journal that keeps trade history the result is always empty.
func (e *Exchange) RecentTrades(ticker string, limit int) ([]Trade, error) {
	if limit <= 0 {
		return []Trade{}, nil
	}
	h, ok := e.journal.(TradeHistory)
	if !ok {
		return []Trade{}, nil
	}
	return h.LoadRecentTrades(ticker, limit)
}

// NextOrderID returns the id the next limit order will get.
func (e *Exchange) NextOrderID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextID
}

// Deposit credits trader with amount of asset. asset must be the quote asset
// or a listed token.
func (e *Exchange) Deposit(trader common.Address, asset string, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkAsset(asset); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive: %d", amount)
	}
	return e.ledger.Deposit(trader, asset, amount)
}

// Withdraw debits trader by amount of asset.
func (e *Exchange) Withdraw(trader common.Address, asset string, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkAsset(asset); err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("withdraw amount must be positive: %d", amount)
	}
	return e.ledger.Withdraw(trader, asset, amount)
}

// BalanceOf returns trader's available amount of asset
func (e *Exchange) BalanceOf(trader common.Address, asset string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.BalanceOf(trader, asset)
}

func (e *Exchange) checkAsset(asset string) error {
	if asset == e.quote || e.tokens.IsRegistered(asset) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
}

func (e *Exchange) checkTicker(ticker string) error {
	if !e.tokens.IsRegistered(ticker) {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, ticker)
	}
	return nil
}

func (e *Exchange) now() int64 { return e.clock.Now().UnixMilli() }

// commit journals cs and then runs the trade hook. Journal failures are
// logged; the in-memory state has already moved on.
func (e *Exchange) commit(cs *Changeset) {
	if cs.empty() {
		return
	}
	cs.NextOrderID = e.nextID
	if e.journal != nil {
		if err := e.journal.Apply(cs); err != nil {
			e.logger.Error("journal_apply_failed",
				zap.Int("orders", len(cs.Orders)),
				zap.Int("removed", len(cs.Removed)),
				zap.Int("trades", len(cs.Trades)),
				zap.Error(err))
		}
	}
	if e.OnTrade != nil {
		for _, t := range cs.Trades {
			e.OnTrade(t)
		}
	}
}

// StateHash is a Keccak-256 digest of the order sequence and every book, in
// sorted ticker order, buys before sells. Two exchanges that applied the same
// operations hash identically.
func (e *Exchange) StateHash() [32]byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := sha3.NewLegacyKeccak256()
	var buf [8]byte
	put := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	put(e.nextID)
	for _, ticker := range e.books.Tickers() {
		h.Write([]byte(ticker))
		for _, side := range []orderbook.Side{orderbook.Buy, orderbook.Sell} {
			h.Write([]byte{byte(side)})
			for _, o := range e.books.GetOrderBook(ticker, side) {
				put(o.ID)
				h.Write(o.Trader[:])
				put(uint64(o.Price))
				put(uint64(o.Amount))
				put(uint64(o.Filled))
			}
		}
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
