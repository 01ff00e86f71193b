package tradefeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/stock-rooms/pkg/models"
)

var _ Sink = (*KafkaPublisher)(nil)

// KafkaPublisher writes executed trades keyed by instrument.
type KafkaPublisher struct {
	writer KafkaWriter
}

func NewKafkaPublisher(writer KafkaWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Record(ctx context.Context, trade models.Trade) error {
	payload, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(trade.Instrument),
		Value: payload,
	})
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }
