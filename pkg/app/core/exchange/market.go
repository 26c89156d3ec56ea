package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/ledgerdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/ledgerdex/pkg/util"
)

// CreateMarketOrder fills up to amount against the opposite book, best price
// first and oldest first within a price. Whatever cannot be filled is
// discarded; market orders never rest.
//
// A SELL is rejected up front if the trader holds less than amount of the
// token. After that, each fill is checked as it happens: if the buyer cannot
// pay or the seller cannot deliver, matching halts. Fills already settled are
// kept, and the result is returned together with an error wrapping
// ErrInsufficientBalance. A fill that would overflow a receiving balance
// halts the same way, with an error wrapping util.ErrOverflow.
func (e *Exchange) CreateMarketOrder(trader common.Address, side orderbook.Side, ticker string, amount int64) (*MarketResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.admitMarket(trader, side, ticker, amount); err != nil {
		e.logger.Info("market_order_rejected",
			zap.String("trader", trader.Hex()),
			zap.Stringer("side", side),
			zap.String("ticker", ticker),
			zap.Int64("amount", amount),
			zap.Error(err))
		return nil, err
	}

	res := &MarketResult{
		Side:      side,
		Ticker:    ticker,
		Requested: amount,
		Trades:    []Trade{},
	}
	makerSide := side.Opposite()
	remaining := amount
	touched := make(map[uint64]struct{})
	now := e.now()
	var haltErr error

	e.books.Walk(ticker, makerSide, func(o orderbook.Order) bool {
		qty := orderbook.MatchQty(remaining, o)
		if qty <= 0 {
			return true
		}

		buyer, seller := trader, o.Trader
		if side == orderbook.Sell {
			buyer, seller = o.Trader, trader
		}

		cost, err := e.settle(buyer, seller, ticker, qty, o.Price)
		if err != nil {
			haltErr = err
			return false
		}
		if err := e.books.ApplyFill(ticker, makerSide, o.ID, qty); err != nil {
			// settle already moved funds; the book snapshot we walk is
			// only ever stale if something bypassed the exchange lock
			e.logger.Error("apply_fill_failed",
				zap.Uint64("order_id", o.ID), zap.Int64("qty", qty), zap.Error(err))
			haltErr = err
			return false
		}
		touched[o.ID] = struct{}{}

		t := Trade{
			ID:           uuid.NewString(),
			Ticker:       ticker,
			Side:         side,
			Price:        o.Price,
			Amount:       qty,
			QuoteAmount:  cost,
			Taker:        trader,
			Maker:        o.Trader,
			MakerOrderID: o.ID,
			Timestamp:    now,
		}
		res.Trades = append(res.Trades, t)
		res.Filled += qty
		res.QuoteVolume += cost
		remaining -= qty

		e.logger.Debug("fill",
			zap.String("trade_id", t.ID),
			zap.String("ticker", ticker),
			zap.Uint64("maker_order_id", o.ID),
			zap.Int64("price", o.Price),
			zap.Int64("amount", qty))

		return remaining > 0
	})

	cs := &Changeset{Trades: res.Trades}
	cs.Removed = e.books.RemoveFullyFilled(ticker, makerSide)
	removed := make(map[uint64]struct{}, len(cs.Removed))
	for _, o := range cs.Removed {
		removed[o.ID] = struct{}{}
	}
	for _, o := range e.books.GetOrderBook(ticker, makerSide) {
		if _, ok := touched[o.ID]; ok {
			if _, gone := removed[o.ID]; !gone {
				cs.Orders = append(cs.Orders, o)
			}
		}
	}
	e.commit(cs)

	fields := []zap.Field{
		zap.String("trader", trader.Hex()),
		zap.Stringer("side", side),
		zap.String("ticker", ticker),
		zap.Int64("requested", amount),
		zap.Int64("filled", res.Filled),
		zap.Int64("quote_volume", res.QuoteVolume),
		zap.Int("trades", len(res.Trades)),
	}
	if haltErr != nil {
		res.Halted = true
		e.logger.Info("market_order_halted", append(fields, zap.Error(haltErr))...)
		return res, fmt.Errorf("market order halted after %d of %d: %w", res.Filled, amount, haltErr)
	}
	e.logger.Info("market_order_executed", fields...)
	return res, nil
}

func (e *Exchange) admitMarket(trader common.Address, side orderbook.Side, ticker string, amount int64) error {
	if !side.Valid() {
		return fmt.Errorf("%w: side %d", ErrInvalidOrder, side)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidOrder, amount)
	}
	if err := e.checkTicker(ticker); err != nil {
		return err
	}
	if side == orderbook.Sell {
		if have := e.ledger.BalanceOf(trader, ticker); have < amount {
			return fmt.Errorf("%w: need %d %s, have %d", ErrInsufficientBalance, amount, ticker, have)
		}
	}
	return nil
}

// settle moves qty tokens from seller to buyer and qty×price quote from buyer
// to seller. All four legs are checked before anything moves (both debits
// covered, neither credit overflowing), so a failed settle leaves the ledger
// untouched.
func (e *Exchange) settle(buyer, seller common.Address, ticker string, qty, price int64) (int64, error) {
	cost, err := util.MulInt64(qty, price)
	if err != nil {
		return 0, fmt.Errorf("%w: fill notional %d×%d: %v", ErrInvalidOrder, qty, price, err)
	}
	if have := e.ledger.BalanceOf(buyer, e.quote); have < cost {
		return 0, fmt.Errorf("%w: buyer %s needs %d %s, has %d",
			ErrInsufficientBalance, buyer.Hex(), cost, e.quote, have)
	}
	if have := e.ledger.BalanceOf(seller, ticker); have < qty {
		return 0, fmt.Errorf("%w: seller %s needs %d %s, has %d",
			ErrInsufficientBalance, seller.Hex(), qty, ticker, have)
	}
	// a self-trade nets to zero on both assets
	if buyer != seller {
		if _, err := util.AddInt64(e.ledger.BalanceOf(seller, e.quote), cost); err != nil {
			return 0, fmt.Errorf("seller %s %s balance: %w", seller.Hex(), e.quote, err)
		}
		if _, err := util.AddInt64(e.ledger.BalanceOf(buyer, ticker), qty); err != nil {
			return 0, fmt.Errorf("buyer %s %s balance: %w", buyer.Hex(), ticker, err)
		}
	}

	if err := e.ledger.Debit(buyer, e.quote, cost); err != nil {
		return 0, err
	}
	if err := e.ledger.Credit(seller, e.quote, cost); err != nil {
		return 0, err
	}
	if err := e.ledger.Debit(seller, ticker, qty); err != nil {
		return 0, err
	}
	if err := e.ledger.Credit(buyer, ticker, qty); err != nil {
		return 0, err
	}
	return cost, nil
}
