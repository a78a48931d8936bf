package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arman-khondker/shopstream/libs/kafkax"
	"github.com/arman-khondker/shopstream/services/order-service/internal/event"
	"github.com/arman-khondker/shopstream/services/order-service/internal/storage"
)

// OrderStore applies guarded status transitions.
type OrderStore interface {
	TransitionIfPending(ctx context.Context, orderID string, next storage.OrderStatus) (storage.TransitionResult, error)
}

// UserStore records user IDs seen on the registration topic.
type UserStore interface {
	InsertIfAbsent(ctx context.Context, userID string) (bool, error)
}

// DeadLetters forwards unprocessable events to the dead-letter topic.
type DeadLetters interface {
	Send(ctx context.Context, sourceTopic string, reason string, original []byte) error
}

// messageSource is the slice of *kafka.Reader the loop uses.
type messageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Coordinator owns the single consumption loop over the three inbound
// topics. It is the only writer of order status transitions and
// registered-user rows.
type Coordinator struct {
	source     messageSource
	orders     OrderStore
	users      UserStore
	dead       DeadLetters
	topics     event.Topics
	logger     *slog.Logger
	retryDelay time.Duration
}

func New(source messageSource, orders OrderStore, users UserStore, dead DeadLetters, topics event.Topics, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		source:     source,
		orders:     orders,
		users:      users,
		dead:       dead,
		topics:     topics,
		logger:     logger,
		retryDelay: time.Second,
	}
}

// NewReader builds the consumer-group reader spanning the three inbound
// topics. One reader per process keeps per-partition ordering.
func NewReader(brokers string, groupID string, topics event.Topics) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(brokers),
		GroupID:     groupID,
		GroupTopics: topics.Names(),
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     1 * time.Second,
		StartOffset: kafka.FirstOffset,
	})
}

// Run consumes until ctx is cancelled. Offsets are committed only after a
// message has been fully handled (applied, no-op, or routed to the DLQ),
// so a crash mid-message causes redelivery rather than loss. Handling of
// the message in flight is not aborted by cancellation.
func (c *Coordinator) Run(ctx context.Context) {
	defer c.source.Close()
	c.logger.Info("order coordinator started",
		"topics", c.topics.Names(),
	)

	for {
		msg, err := c.source.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("order coordinator stopped")
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			if c.pause(ctx) != nil {
				c.logger.Info("order coordinator stopped")
				return
			}
			continue
		}

		msgCtx := context.WithoutCancel(ctx)
		for {
			err := c.handleMessage(msgCtx, msg)
			if err == nil {
				break
			}
			// Store outage or similar. Keep the message uncommitted and
			// retry it; advancing past it would commit its offset too.
			c.logger.Error("message handling failed, will retry",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"err", err,
			)
			if c.pause(ctx) != nil {
				c.logger.Info("order coordinator stopped")
				return
			}
		}

		if err := c.source.CommitMessages(msgCtx, msg); err != nil {
			c.logger.Error("kafka commit failed", "err", err)
		}
	}
}

// handleMessage processes one message end to end. A non-nil return means
// an infrastructure failure; decode and validation failures are routed to
// the DLQ and count as handled.
func (c *Coordinator) handleMessage(parentCtx context.Context, msg kafka.Message) error {
	ctx := kafkax.ExtractTraceContext(parentCtx, msg)
	meta := kafkax.ExtractEventMeta(msg)
	ctx, span := otel.Tracer("order-coordinator").Start(ctx, "coordinator.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.message_id", meta.EventID),
		),
	)
	defer span.End()

	evt, err := event.Decode(c.topics, msg.Topic, msg.Value)
	if err != nil {
		c.routeToDeadLetter(ctx, msg, err)
		return nil
	}

	switch evt.Kind {
	case event.KindUserRegistered:
		inserted, err := c.users.InsertIfAbsent(ctx, evt.UserID)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if !inserted {
			c.logger.Info("duplicate registration ignored", "user_id", evt.UserID)
		}
		return nil
	case event.KindPaymentSucceeded:
		return c.applyTransition(ctx, span, msg, evt, storage.StatusPaid)
	case event.KindPaymentFailed:
		return c.applyTransition(ctx, span, msg, evt, storage.StatusFailed)
	}
	return nil
}

func (c *Coordinator) applyTransition(ctx context.Context, span trace.Span, msg kafka.Message, evt event.Event, next storage.OrderStatus) error {
	result, err := c.orders.TransitionIfPending(ctx, evt.OrderID, next)
	if err != nil {
		span.RecordError(err)
		return err
	}

	switch result {
	case storage.TransitionApplied:
		c.logger.Info("order status updated",
			"order_id", evt.OrderID,
			"status", string(next),
		)
	case storage.TransitionNotPending:
		// Redelivery of an event for an already-settled order. Safe no-op.
		c.logger.Info("order already settled, skipping",
			"order_id", evt.OrderID,
		)
	case storage.TransitionNotFound:
		// Referenced order does not exist: a referential inconsistency,
		// not a transient condition. Exhausted DLQ sends are already
		// logged and dropped by the publisher.
		_ = c.dead.Send(ctx, evt.Topic, "Order not found", msg.Value)
	}
	return nil
}

func (c *Coordinator) routeToDeadLetter(ctx context.Context, msg kafka.Message, decodeErr error) {
	reason := "Malformed event payload"
	var verr *event.ValidationError
	var derr *event.DecodeError
	switch {
	case errors.As(decodeErr, &verr):
		reason = verr.Reason()
	case errors.As(decodeErr, &derr):
		reason = derr.Reason()
	}

	c.logger.Warn("routing event to dead letter",
		"topic", msg.Topic,
		"reason", reason,
	)
	_ = c.dead.Send(ctx, msg.Topic, reason, msg.Value)
}

func (c *Coordinator) pause(ctx context.Context) error {
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
