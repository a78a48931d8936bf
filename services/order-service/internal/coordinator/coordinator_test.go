package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/arman-khondker/shopstream/services/order-service/internal/event"
	"github.com/arman-khondker/shopstream/services/order-service/internal/storage"
)

var testTopics = event.Topics{
	UserRegistration: "user-registration",
	PaymentSuccess:   "payment-success",
	PaymentFailure:   "payment-failure",
}

type fetchResult struct {
	msg kafka.Message
	err error
}

// fakeSource feeds a scripted sequence of fetch results and cancels the
// run context once the script is exhausted.
type fakeSource struct {
	results   []fetchResult
	committed []kafka.Message
	closed    bool
	cancel    context.CancelFunc
	ops       *[]string
}

func (s *fakeSource) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(s.results) == 0 {
		s.cancel()
		return kafka.Message{}, context.Canceled
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r.msg, r.err
}

func (s *fakeSource) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	s.committed = append(s.committed, msgs...)
	if s.ops != nil {
		*s.ops = append(*s.ops, "commit")
	}
	return nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeOrderStore struct {
	statuses map[string]storage.OrderStatus
	calls    []string
	failures int
	ops      *[]string
}

func (s *fakeOrderStore) TransitionIfPending(_ context.Context, orderID string, next storage.OrderStatus) (storage.TransitionResult, error) {
	if s.failures > 0 {
		s.failures--
		return 0, errors.New("connection refused")
	}
	s.calls = append(s.calls, orderID+"->"+string(next))
	if s.ops != nil {
		*s.ops = append(*s.ops, "transition")
	}
	cur, ok := s.statuses[orderID]
	if !ok {
		return storage.TransitionNotFound, nil
	}
	if cur != storage.StatusPending {
		return storage.TransitionNotPending, nil
	}
	s.statuses[orderID] = next
	return storage.TransitionApplied, nil
}

type fakeUserStore struct {
	users map[string]bool
	calls []string
}

func (s *fakeUserStore) InsertIfAbsent(_ context.Context, userID string) (bool, error) {
	s.calls = append(s.calls, userID)
	if s.users[userID] {
		return false, nil
	}
	s.users[userID] = true
	return true, nil
}

type deadLetter struct {
	topic   string
	reason  string
	payload string
}

type fakeDeadLetters struct {
	records []deadLetter
}

func (d *fakeDeadLetters) Send(_ context.Context, sourceTopic string, reason string, original []byte) error {
	d.records = append(d.records, deadLetter{topic: sourceTopic, reason: reason, payload: string(original)})
	return nil
}

func msgOn(topic, payload string) kafka.Message {
	return kafka.Message{Topic: topic, Value: []byte(payload)}
}

func runScript(t *testing.T, orders *fakeOrderStore, users *fakeUserStore, results ...fetchResult) (*fakeSource, *fakeDeadLetters) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &fakeSource{results: results, cancel: cancel}
	dead := &fakeDeadLetters{}
	c := New(source, orders, users, dead, testTopics, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.retryDelay = time.Millisecond
	c.Run(ctx)

	if !source.closed {
		t.Fatal("source should be closed after Run returns")
	}
	return source, dead
}

func TestPaymentSuccessAppliesTransition(t *testing.T) {
	orders := &fakeOrderStore{statuses: map[string]storage.OrderStatus{"o-1": storage.StatusPending}}
	source, dead := runScript(t, orders, &fakeUserStore{users: map[string]bool{}},
		fetchResult{msg: msgOn("payment-success", `{"order_id": "o-1", "amount": 10}`)},
	)

	if orders.statuses["o-1"] != storage.StatusPaid {
		t.Fatalf("expected Paid, got %s", orders.statuses["o-1"])
	}
	if len(dead.records) != 0 {
		t.Fatalf("unexpected dead letters: %+v", dead.records)
	}
	if len(source.committed) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(source.committed))
	}
}

func TestRedeliveredPaymentIsIdempotent(t *testing.T) {
	msg := msgOn("payment-success", `{"order_id": "o-1"}`)
	orders := &fakeOrderStore{statuses: map[string]storage.OrderStatus{"o-1": storage.StatusPending}}
	source, dead := runScript(t, orders, &fakeUserStore{users: map[string]bool{}},
		fetchResult{msg: msg},
		fetchResult{msg: msg},
	)

	if orders.statuses["o-1"] != storage.StatusPaid {
		t.Fatalf("expected Paid, got %s", orders.statuses["o-1"])
	}
	if len(dead.records) != 0 {
		t.Fatalf("redelivery must not produce dead letters: %+v", dead.records)
	}
	if len(source.committed) != 2 {
		t.Fatalf("both deliveries should commit, got %d", len(source.committed))
	}
}

func TestFirstTransitionWins(t *testing.T) {
	orders := &fakeOrderStore{statuses: map[string]storage.OrderStatus{"o-1": storage.StatusPending}}
	_, dead := runScript(t, orders, &fakeUserStore{users: map[string]bool{}},
		fetchResult{msg: msgOn("payment-success", `{"order_id": "o-1"}`)},
		fetchResult{msg: msgOn("payment-failure", `{"order_id": "o-1"}`)},
	)

	if orders.statuses["o-1"] != storage.StatusPaid {
		t.Fatalf("late failure event must not override Paid, got %s", orders.statuses["o-1"])
	}
	if len(dead.records) != 0 {
		t.Fatalf("already-settled order is a no-op, not an error: %+v", dead.records)
	}
}

func TestUnknownOrderRoutedToDeadLetter(t *testing.T) {
	orders := &fakeOrderStore{statuses: map[string]storage.OrderStatus{}}
	_, dead := runScript(t, orders, &fakeUserStore{users: map[string]bool{}},
		fetchResult{msg: msgOn("payment-success", `{"order_id": "ghost"}`)},
	)

	if len(dead.records) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(dead.records))
	}
	if dead.records[0].reason != "Order not found" {
		t.Fatalf("unexpected reason: %q", dead.records[0].reason)
	}
	if dead.records[0].topic != "payment-success" {
		t.Fatalf("unexpected topic: %q", dead.records[0].topic)
	}
}

func TestEmptyOrderIDSkipsStore(t *testing.T) {
	orders := &fakeOrderStore{statuses: map[string]storage.OrderStatus{}}
	_, dead := runScript(t, orders, &fakeUserStore{users: map[string]bool{}},
		fetchResult{msg: msgOn("payment-failure", `{"order_id": ""}`)},
	)

	if len(orders.calls) != 0 {
		t.Fatalf("store must not be touched: %v", orders.calls)
	}
	if len(dead.records) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(dead.records))
	}
	if dead.records[0].topic != "payment-failure" || dead.records[0].reason != "Order ID is not valid" {
		t.Fatalf("unexpected record: %+v", dead.records[0])
	}
}

func TestUserRegistrationIsIdempotent(t *testing.T) {
	users := &fakeUserStore{users: map[string]bool{}}
	msg := msgOn("user-registration", `{"user_id": "u-1", "email": "a@b.c"}`)
	source, dead := runScript(t, &fakeOrderStore{statuses: map[string]storage.OrderStatus{}}, users,
		fetchResult{msg: msg},
		fetchResult{msg: msg},
	)

	if !users.users["u-1"] {
		t.Fatal("user should be registered")
	}
	if len(users.calls) != 2 {
		t.Fatalf("expected 2 insert attempts, got %d", len(users.calls))
	}
	if len(dead.records) != 0 {
		t.Fatalf("duplicate registration is not an error: %+v", dead.records)
	}
	if len(source.committed) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(source.committed))
	}
}

func TestEmptyUserIDRoutedToDeadLetter(t *testing.T) {
	users := &fakeUserStore{users: map[string]bool{}}
	_, dead := runScript(t, &fakeOrderStore{statuses: map[string]storage.OrderStatus{}}, users,
		fetchResult{msg: msgOn("user-registration", `{"user_id": ""}`)},
	)

	if len(users.calls) != 0 {
		t.Fatalf("store must not be touched: %v", users.calls)
	}
	if len(dead.records) != 1 || dead.records[0].reason != "User is not valid" {
		t.Fatalf("unexpected records: %+v", dead.records)
	}
	if dead.records[0].topic != "user-registration" {
		t.Fatalf("unexpected topic: %q", dead.records[0].topic)
	}
}

func TestMalformedPayloadRoutedToDeadLetter(t *testing.T) {
	source, dead := runScript(t, &fakeOrderStore{statuses: map[string]storage.OrderStatus{}}, &fakeUserStore{users: map[string]bool{}},
		fetchResult{msg: msgOn("payment-success", `{'order_id': 'o-1'}`)},
	)

	if len(dead.records) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(dead.records))
	}
	if !strings.HasPrefix(dead.records[0].reason, "Malformed event payload") {
		t.Fatalf("unexpected reason: %q", dead.records[0].reason)
	}
	if dead.records[0].payload != `{'order_id': 'o-1'}` {
		t.Fatalf("original payload must be preserved: %q", dead.records[0].payload)
	}
	// Routed to the DLQ means handled: the offset still advances.
	if len(source.committed) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(source.committed))
	}
}

func TestTransientFetchErrorContinues(t *testing.T) {
	orders := &fakeOrderStore{statuses: map[string]storage.OrderStatus{"o-1": storage.StatusPending}}
	_, dead := runScript(t, orders, &fakeUserStore{users: map[string]bool{}},
		fetchResult{err: errors.New("broker hiccup")},
		fetchResult{msg: msgOn("payment-success", `{"order_id": "o-1"}`)},
	)

	if orders.statuses["o-1"] != storage.StatusPaid {
		t.Fatal("loop should survive a transient fetch error")
	}
	if len(dead.records) != 0 {
		t.Fatalf("transport errors are not dead letters: %+v", dead.records)
	}
}

func TestStoreErrorRetriesBeforeCommit(t *testing.T) {
	orders := &fakeOrderStore{
		statuses: map[string]storage.OrderStatus{"o-1": storage.StatusPending},
		failures: 2,
	}
	source, dead := runScript(t, orders, &fakeUserStore{users: map[string]bool{}},
		fetchResult{msg: msgOn("payment-success", `{"order_id": "o-1"}`)},
	)

	if orders.statuses["o-1"] != storage.StatusPaid {
		t.Fatalf("transition should eventually apply, got %s", orders.statuses["o-1"])
	}
	if len(source.committed) != 1 {
		t.Fatalf("expected exactly 1 commit, got %d", len(source.committed))
	}
	if len(dead.records) != 0 {
		t.Fatalf("store outages are not dead letters: %+v", dead.records)
	}
}

func TestCommitHappensAfterHandling(t *testing.T) {
	var ops []string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orders := &fakeOrderStore{statuses: map[string]storage.OrderStatus{"o-1": storage.StatusPending}, ops: &ops}
	source := &fakeSource{
		results: []fetchResult{{msg: msgOn("payment-success", `{"order_id": "o-1"}`)}},
		cancel:  cancel,
		ops:     &ops,
	}
	c := New(source, orders, &fakeUserStore{users: map[string]bool{}}, &fakeDeadLetters{}, testTopics, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.retryDelay = time.Millisecond
	c.Run(ctx)

	if len(ops) != 2 || ops[0] != "transition" || ops[1] != "commit" {
		t.Fatalf("commit must follow handling, got %v", ops)
	}
}
