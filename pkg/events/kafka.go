package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/uhyunpark/ledgerdex/pkg/app/core/exchange"
)

// TradeEvent is the message value published for every settled trade.
type TradeEvent struct {
	Type string `json:"type"` // always "trade"
	exchange.Trade
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes trades to a topic, keyed by ticker so each token's
// trades stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) PublishTrade(ctx context.Context, t exchange.Trade) error {
	value, err := encodeTrade(t)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(t.Ticker),
		Value: value,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encodeTrade(t exchange.Trade) ([]byte, error) {
	data, err := json.Marshal(TradeEvent{Type: "trade", Trade: t})
	if err != nil {
		return nil, fmt.Errorf("failed to encode trade %s: %w", t.ID, err)
	}
	return data, nil
}
