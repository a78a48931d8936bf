package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/arman-khondker/shopstream/libs/config"
	"github.com/arman-khondker/shopstream/libs/db"
	"github.com/arman-khondker/shopstream/libs/httpx"
	"github.com/arman-khondker/shopstream/libs/kafkax"
	otelx "github.com/arman-khondker/shopstream/libs/otel"
	"github.com/arman-khondker/shopstream/libs/runtime"
	"github.com/arman-khondker/shopstream/services/payment-service/internal/handlers"
	"github.com/arman-khondker/shopstream/services/payment-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "payment-service")
	port, err := config.Port("PORT", "1602")
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

	authToken, err := config.RequiredString("AUTH_TOKEN")
	if err != nil {
		panic(err)
	}

	brokers := config.String("KAFKA_BROKERS", "")
	retries := config.Int("KAFKA_PRODUCER_RETRIES", 3)
	successWriter := kafkax.NewWriter(brokers,
		config.String("KAFKA_TOPIC_PAYMENT_SUCCESS", "payment-success"),
		retries,
	)
	defer successWriter.Close()
	failureWriter := kafkax.NewWriter(brokers,
		config.String("KAFKA_TOPIC_PAYMENT_FAILURE", "payment-failure"),
		retries,
	)
	defer failureWriter.Close()

	paymentHandler := handlers.New(storage.NewPaymentRepository(pool), successWriter, failureWriter, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/payments", paymentHandler.Create)
	mux.HandleFunc("/payments/", paymentHandler.Get)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithBearerAuth(authToken),
	)
	handler = otelhttp.NewHandler(handler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
