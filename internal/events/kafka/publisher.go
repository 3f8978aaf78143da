// Package kafka publishes transfer instructions to a Kafka topic consumed by
// the funds-movement collaborator.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/davidterpay/transfer-contract/internal/ledger"
)

// Publisher writes transfer instructions as JSON messages keyed by the
// destination account, so instructions for one account stay ordered.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Publish implements events.Publisher.
func (p *Publisher) Publish(ctx context.Context, instr ledger.TransferInstruction) error {
	data, err := json.Marshal(instr)
	if err != nil {
		return fmt.Errorf("failed to marshal transfer instruction: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(instr.To),
		Value: data,
	})
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
