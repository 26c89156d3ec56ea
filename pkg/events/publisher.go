// Package events fans settled trades out to external consumers.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/ledgerdex/pkg/app/core/exchange"
)

type Publisher interface {
	PublishTrade(ctx context.Context, t exchange.Trade) error
	Close() error
}

// NopPublisher drops every trade. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishTrade(context.Context, exchange.Trade) error { return nil }
func (NopPublisher) Close() error                                       { return nil }

const publishTimeout = 5 * time.Second

// Dispatcher decouples the exchange's trade hook from the publisher. Enqueue
// never blocks: when the buffer is full the trade is dropped and logged.
type Dispatcher struct {
	pub    Publisher
	logger *zap.Logger
	queue  chan exchange.Trade

	mu      sync.Mutex
	dropped uint64
}

func NewDispatcher(pub Publisher, logger *zap.Logger, buffer int) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		pub:    pub,
		logger: logger,
		queue:  make(chan exchange.Trade, buffer),
	}
}

// Enqueue hands t to the publishing goroutine.
func (d *Dispatcher) Enqueue(t exchange.Trade) {
	select {
	case d.queue <- t:
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		d.logger.Warn("trade_event_dropped", zap.String("trade_id", t.ID), zap.String("ticker", t.Ticker))
	}
}

// Dropped returns how many trades were discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Run publishes queued trades until ctx is cancelled, then drains what is
// left and closes the publisher.
func (d *Dispatcher) Run(ctx context.Context) {
	defer func() {
		if err := d.pub.Close(); err != nil {
			d.logger.Error("publisher_close_failed", zap.Error(err))
		}
	}()

	for {
		select {
		case t := <-d.queue:
			d.publish(t)
		case <-ctx.Done():
			for {
				select {
				case t := <-d.queue:
					d.publish(t)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) publish(t exchange.Trade) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := d.pub.PublishTrade(ctx, t); err != nil {
		d.logger.Error("trade_event_publish_failed",
			zap.String("trade_id", t.ID),
			zap.String("ticker", t.Ticker),
			zap.Error(err))
	}
}
