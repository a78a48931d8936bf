package main

import (
	"context"
	"net/http"
	"time"

	"github.com/arman-khondker/shopstream/libs/config"
	"github.com/arman-khondker/shopstream/libs/db"
	"github.com/arman-khondker/shopstream/libs/httpx"
	"github.com/arman-khondker/shopstream/libs/kafkax"
	otelx "github.com/arman-khondker/shopstream/libs/otel"
	"github.com/arman-khondker/shopstream/libs/runtime"
	"github.com/arman-khondker/shopstream/services/order-service/internal/coordinator"
	"github.com/arman-khondker/shopstream/services/order-service/internal/dlq"
	"github.com/arman-khondker/shopstream/services/order-service/internal/event"
	"github.com/arman-khondker/shopstream/services/order-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "order-coordinator")
	port, err := config.Port("PORT", "1613")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers := config.String("KAFKA_BROKERS", "")
	topics := event.Topics{
		UserRegistration: config.String("KAFKA_TOPIC_USER_REGISTRATION", "user-registration"),
		PaymentSuccess:   config.String("KAFKA_TOPIC_PAYMENT_SUCCESS", "payment-success"),
		PaymentFailure:   config.String("KAFKA_TOPIC_PAYMENT_FAILURE", "payment-failure"),
	}

	dlqWriter := kafkax.NewWriter(brokers,
		config.String("KAFKA_TOPIC_DLQ", "order-dlq"),
		1, // retries are the publisher's job
	)
	defer dlqWriter.Close()

	publisher := dlq.NewPublisher(dlqWriter, logger, dlq.Config{
		MaxAttempts: config.Int("KAFKA_PRODUCER_RETRIES", 3),
		Backoff:     config.Duration("KAFKA_PRODUCER_BACKOFF", 60*time.Second),
	})

	reader := coordinator.NewReader(brokers,
		config.String("KAFKA_GROUP_ID", "order-coordinator"),
		topics,
	)

	coord := coordinator.New(reader,
		storage.NewOrderRepository(pool),
		storage.NewRegisteredUserRepository(pool),
		publisher,
		topics,
		logger,
	)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpx.Chain(mux, httpx.WithRequestID, httpx.WithAccessLog(logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("health server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", "err", err)
		}
	}()

	coord.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", "err", err)
	}
}
