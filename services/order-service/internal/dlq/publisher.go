package dlq

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// writeMessenger is the slice of *kafka.Writer the publisher uses.
type writeMessenger interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Config struct {
	MaxAttempts int           // send attempts before dropping, default 3
	Backoff     time.Duration // fixed delay between attempts, default 60s
}

// Publisher forwards unprocessable events to the dead-letter topic. Sends
// block until the broker acknowledges, so the coordinator does not fetch
// the next message while a dead letter is still in flight.
type Publisher struct {
	writer      writeMessenger
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewPublisher(writer writeMessenger, logger *slog.Logger, cfg Config) *Publisher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 60 * time.Second
	}
	return &Publisher{
		writer:      writer,
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		sleep:       sleepWithContext,
	}
}

// Send records one dead letter. After the retry budget is exhausted the
// event is logged and dropped; there is no secondary dead-letter path.
func (p *Publisher) Send(ctx context.Context, sourceTopic string, reason string, original []byte) error {
	msg := kafka.Message{
		Key:   []byte(sourceTopic),
		Value: encodeRecord(sourceTopic, reason, original),
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		lastErr = p.writer.WriteMessages(ctx, msg)
		if lastErr == nil {
			return nil
		}
		if attempt == p.maxAttempts {
			break
		}
		p.logger.Warn("dead letter send failed, retrying",
			"source_topic", sourceTopic,
			"attempt", attempt,
			"err", lastErr,
		)
		if err := p.sleep(ctx, p.backoff); err != nil {
			return err
		}
	}

	p.logger.Error("dead letter dropped after retries",
		"source_topic", sourceTopic,
		"reason", reason,
		"err", lastErr,
	)
	return lastErr
}

// encodeRecord builds {"topic": ..., "error": ..., ...original fields}.
// Original fields pass through verbatim; a payload that is not a JSON
// object is carried as a string under "payload".
func encodeRecord(sourceTopic string, reason string, original []byte) []byte {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(original, &fields); err != nil || fields == nil {
		raw, _ := json.Marshal(string(original))
		fields = map[string]json.RawMessage{"payload": raw}
	}
	fields["topic"], _ = json.Marshal(sourceTopic)
	fields["error"], _ = json.Marshal(reason)

	value, _ := json.Marshal(fields)
	return value
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
