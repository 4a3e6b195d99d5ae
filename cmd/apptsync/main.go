package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mtorres-dev/apptsync/internal/cache"
	"github.com/mtorres-dev/apptsync/internal/events"
	"github.com/mtorres-dev/apptsync/internal/handlers"
	"github.com/mtorres-dev/apptsync/internal/store"
	syncpkg "github.com/mtorres-dev/apptsync/internal/sync"
	"github.com/mtorres-dev/apptsync/libs/config"
	"github.com/mtorres-dev/apptsync/libs/httpx"
	"github.com/mtorres-dev/apptsync/libs/kafkax"
	"github.com/mtorres-dev/apptsync/libs/mongox"
	otelx "github.com/mtorres-dev/apptsync/libs/otel"
	"github.com/mtorres-dev/apptsync/libs/runtime"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

func main() {
	service := config.String("SERVICE_NAME", "apptsync")
	port, err := config.Port("PORT", "8084")
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

	rdb := redis.NewClient(&redis.Options{
		Addr: config.String("REDIS_ADDR", "localhost:6379"),
	})
	defer rdb.Close()
	appointmentCache, err := cache.NewRedisCache(ctx, rdb, logger)
	if err != nil {
		// The cache is required infrastructure; without it nothing works.
		logger.Error("cache init failed", "err", err)
		panic(err)
	}

	dataDir := config.String("DATA_DIR", "./data")
	fallback, err := store.NewFileStore(dataDir)
	if err != nil {
		logger.Error("fallback store init failed", "err", err)
		panic(err)
	}

	mongoURI := config.String("MONGO_URI", "mongodb://localhost:27017")
	client, err := mongox.Open(mongoURI)
	if err != nil {
		logger.Error("invalid mongo configuration", "err", err)
		panic(err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	if err := mongox.PingWithRetry(ctx, client, connectAttempts, connectBackoff); err != nil {
		logger.Warn("primary store unreachable at startup, serving from fallback", "err", err)
	}

	primary := store.NewMongoStore(client, config.String("MONGO_DB", "apptsync"))
	selector := store.NewSelector(primary, fallback, mongox.ReadyCheck(client), logger)

	publisher := events.NewPublisher(config.String("KAFKA_BROKERS", ""), logger)
	defer publisher.Close()

	statusStore := syncpkg.NewStatusStore(dataDir)
	reconciler := syncpkg.NewReconciler(appointmentCache, primary, fallback, selector, statusStore, publisher, logger)
	runner := syncpkg.NewRunner(reconciler, config.Minutes("SYNC_INTERVAL_MINUTES", 15*time.Minute), logger)
	go runner.Run(ctx)

	appointmentHandler := handlers.NewAppointmentHandler(appointmentCache, selector, publisher, logger)
	settingsHandler := handlers.NewSettingsHandler(appointmentCache, selector, logger)
	syncHandler := handlers.NewSyncHandler(runner, statusStore, logger)

	// Mongo is deliberately absent from readiness: running without the
	// primary is a supported mode, not an unready node.
	checks := []runtime.ReadyCheck{
		{Name: "redis", Check: cache.ReadyCheck(rdb)},
	}
	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)

	publicLimit := httpx.NewRedisRateLimiter(rdb,
		config.Int("RATE_LIMIT_PER_MINUTE", 60), time.Minute, "rl:public")
	limited := publicLimit.Middleware(logger, true)
	mux.Handle("/api/v1/public/slots", limited(http.HandlerFunc(appointmentHandler.Slots)))
	mux.Handle("/api/v1/public/availability", limited(http.HandlerFunc(appointmentHandler.Availability)))
	mux.Handle("/api/v1/public/book", limited(http.HandlerFunc(appointmentHandler.Create)))

	mux.HandleFunc("/api/v1/appointments", appointmentHandler.List)
	mux.HandleFunc("/api/v1/appointments/get", appointmentHandler.Get)
	mux.HandleFunc("/api/v1/appointments/update", appointmentHandler.Update)
	mux.HandleFunc("/api/v1/appointments/cancel", appointmentHandler.Cancel)
	mux.HandleFunc("/api/v1/appointments/delete", appointmentHandler.Delete)
	mux.HandleFunc("/api/v1/settings", settingsHandler.Handle)

	// Manual triggers get a small in-process limiter so a stuck UI cannot
	// hammer the reconciler gate.
	triggerLimit := httpx.NewRateLimiter(10, time.Minute)
	mux.Handle("/api/v1/sync", triggerLimit.Middleware()(http.HandlerFunc(syncHandler.Trigger)))
	mux.HandleFunc("/api/v1/sync/status", syncHandler.Status)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitCSV(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(30*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
