package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	failures int
	written  []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.failures > 0 {
		w.failures--
		return errors.New("broker unavailable")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func newTestPublisher(w writeMessenger, cfg Config) (*Publisher, *[]time.Duration) {
	p := NewPublisher(w, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return p, &slept
}

func TestSendSucceedsFirstAttempt(t *testing.T) {
	w := &fakeWriter{}
	p, slept := newTestPublisher(w, Config{})

	err := p.Send(context.Background(), "payment-success", "Order ID is not valid", []byte(`{"order_id": ""}`))
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(w.written) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.written))
	}
	if len(*slept) != 0 {
		t.Fatalf("expected no backoff sleeps, got %d", len(*slept))
	}

	var record map[string]any
	if err := json.Unmarshal(w.written[0].Value, &record); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if record["topic"] != "payment-success" {
		t.Fatalf("unexpected topic: %v", record["topic"])
	}
	if record["error"] != "Order ID is not valid" {
		t.Fatalf("unexpected error: %v", record["error"])
	}
	if record["order_id"] != "" {
		t.Fatalf("original field not preserved: %v", record["order_id"])
	}
}

func TestSendRetriesWithFixedBackoff(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p, slept := newTestPublisher(w, Config{MaxAttempts: 3, Backoff: 30 * time.Second})

	err := p.Send(context.Background(), "user-registration", "User is not valid", []byte(`{"user_id": ""}`))
	if err != nil {
		t.Fatalf("send should succeed on third attempt: %v", err)
	}
	if len(w.written) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.written))
	}
	if len(*slept) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(*slept))
	}
	for _, d := range *slept {
		if d != 30*time.Second {
			t.Fatalf("backoff should be fixed at 30s, got %s", d)
		}
	}
}

func TestSendDropsAfterExhaustion(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p, slept := newTestPublisher(w, Config{MaxAttempts: 3, Backoff: time.Second})

	err := p.Send(context.Background(), "payment-failure", "Order ID is not valid", []byte(`{}`))
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if len(w.written) != 0 {
		t.Fatalf("no message should have been written, got %d", len(w.written))
	}
	// Two sleeps between three attempts, none after the last.
	if len(*slept) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(*slept))
	}
}

func TestEncodeRecordNonObjectPayload(t *testing.T) {
	value := encodeRecord("payment-success", "Malformed event payload", []byte(`{'order_id': 'x'}`))

	var record map[string]any
	if err := json.Unmarshal(value, &record); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if record["payload"] != `{'order_id': 'x'}` {
		t.Fatalf("raw payload not preserved: %v", record["payload"])
	}
	if record["topic"] != "payment-success" {
		t.Fatalf("unexpected topic: %v", record["topic"])
	}
}
