package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/arman-khondker/shopstream/libs/config"
	"github.com/arman-khondker/shopstream/libs/db"
	"github.com/arman-khondker/shopstream/libs/httpx"
	"github.com/arman-khondker/shopstream/libs/kafkax"
	otelx "github.com/arman-khondker/shopstream/libs/otel"
	"github.com/arman-khondker/shopstream/libs/runtime"
	"github.com/arman-khondker/shopstream/services/order-service/internal/handlers"
	"github.com/arman-khondker/shopstream/services/order-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "order-service")
	port, err := config.Port("PORT", "1603")
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
	writer := kafkax.NewWriter(brokers,
		config.String("KAFKA_TOPIC_ORDER_CREATED", "order-created"),
		config.Int("KAFKA_PRODUCER_RETRIES", 3),
	)
	defer writer.Close()

	orderHandler := handlers.New(
		storage.NewOrderRepository(pool),
		storage.NewRegisteredUserRepository(pool),
		writer,
		logger,
	)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/orders", orderHandler.Create)
	mux.HandleFunc("/orders/", orderHandler.Get)

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithBearerAuth(authToken),
	}
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT_PER_MINUTE", 120),
			time.Minute,
			service,
		)
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	}

	handler := httpx.Chain(mux, middlewares...)
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
