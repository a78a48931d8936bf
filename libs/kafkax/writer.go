package kafkax

import (
	"github.com/segmentio/kafka-go"
)

// NewWriter builds a synchronous single-topic producer. Writes block until
// every in-sync replica acknowledges, so a returned nil means the broker
// has the message.
func NewWriter(brokers string, topic string, maxAttempts int) *kafka.Writer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:      SplitBrokers(brokers),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  maxAttempts,
		RequiredAcks: -1,
	})
}
