package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/ledgerdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/ledgerdex/pkg/util"
)

// CreateLimitOrder rests an order in the (ticker, side) book and returns its
// id. Limit orders never match on entry, even against a crossing price.
//
// The trader must hold amount×price of the quote asset to buy, or amount of
// the token to sell. Nothing is reserved: the check is repeated at fill time.
func (e *Exchange) CreateLimitOrder(trader common.Address, side orderbook.Side, ticker string, amount, price int64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.admitLimit(trader, side, ticker, amount, price); err != nil {
		e.logger.Info("limit_order_rejected",
			zap.String("trader", trader.Hex()),
			zap.Stringer("side", side),
			zap.String("ticker", ticker),
			zap.Int64("amount", amount),
			zap.Int64("price", price),
			zap.Error(err))
		return 0, err
	}

	o := &orderbook.Order{
		ID:        e.nextID,
		Trader:    trader,
		Side:      side,
		Ticker:    ticker,
		Amount:    amount,
		Price:     price,
		CreatedAt: e.now(),
	}
	e.nextID++
	e.books.Insert(o)

	e.logger.Debug("limit_order_placed",
		zap.Uint64("order_id", o.ID),
		zap.String("trader", trader.Hex()),
		zap.Stringer("side", side),
		zap.String("ticker", ticker),
		zap.Int64("amount", amount),
		zap.Int64("price", price))

	e.commit(&Changeset{Orders: []orderbook.Order{*o}})
	return o.ID, nil
}

func (e *Exchange) admitLimit(trader common.Address, side orderbook.Side, ticker string, amount, price int64) error {
	if !side.Valid() {
		return fmt.Errorf("%w: side %d", ErrInvalidOrder, side)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidOrder, amount)
	}
	if price <= 0 {
		return fmt.Errorf("%w: price must be positive, got %d", ErrInvalidOrder, price)
	}
	if err := e.checkTicker(ticker); err != nil {
		return err
	}

	if side == orderbook.Buy {
		cost, err := util.MulInt64(amount, price)
		if err != nil {
			return fmt.Errorf("%w: notional %d×%d: %v", ErrInvalidOrder, amount, price, err)
		}
		if have := e.ledger.BalanceOf(trader, e.quote); have < cost {
			return fmt.Errorf("%w: need %d %s, have %d", ErrInsufficientBalance, cost, e.quote, have)
		}
		return nil
	}

	if have := e.ledger.BalanceOf(trader, ticker); have < amount {
		return fmt.Errorf("%w: need %d %s, have %d", ErrInsufficientBalance, amount, ticker, have)
	}
	return nil
}
