package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	httpAdapter "github.com/pulsenotify/orchestrator/internal/adapter/http"
	"github.com/pulsenotify/orchestrator/internal/adapter/postgres"
	"github.com/pulsenotify/orchestrator/internal/adapter/rabbitmq"
	redisAdapter "github.com/pulsenotify/orchestrator/internal/adapter/redis"
	"github.com/pulsenotify/orchestrator/internal/adapter/remote"
	"github.com/pulsenotify/orchestrator/internal/adapter/ws"
	"github.com/pulsenotify/orchestrator/internal/app"
	"github.com/pulsenotify/orchestrator/pkg/config"
	"github.com/pulsenotify/orchestrator/pkg/logger"
	"github.com/pulsenotify/orchestrator/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := tracing.InitTracer(ctx, "notification-orchestrator", cfg.OTLPEndpoint)
	if err != nil {
		log.Warn("failed to initialize tracer, continuing without tracing", zap.Error(err))
	} else {
		defer func() { _ = tp.Shutdown(ctx) }()
	}

	db, err := postgres.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	runMigrations(cfg.Database.DSN(), log)

	cache, err := redisAdapter.NewCache(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer func() { _ = cache.Close() }()

	publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal("failed to connect to rabbitmq", zap.Error(err))
	}
	defer func() { _ = publisher.Close() }()

	notificationRepo := postgres.NewNotificationRepo(db)
	eventRepo := postgres.NewEventRepo(db)
	userClient := remote.NewUserClient(cfg.External.UserServiceAddress, log)
	templateClient := remote.NewTemplateClient(cfg.External.TemplateServiceAddress, log)
	wsHub := ws.NewHub()

	orchestrator := app.NewOrchestratorService(
		notificationRepo, eventRepo, cache, cache, publisher,
		userClient, templateClient, wsHub, log,
	)
	callbacks := app.NewCallbackService(notificationRepo, eventRepo, cache, wsHub, log)
	queries := app.NewQueryService(notificationRepo, eventRepo, cache, log)
	recovery := app.NewRecovery(notificationRepo, eventRepo, orchestrator, log)

	go recovery.Run(ctx)

	router := httpAdapter.NewRouter(httpAdapter.RouterDeps{
		NotificationHandler: httpAdapter.NewNotificationHandler(orchestrator, callbacks, queries),
		HealthHandler:       httpAdapter.NewHealthHandler(db, cache),
		WebSocketHandler:    httpAdapter.NewWebSocketHandler(wsHub),
		Logger:              log,
		CORSAllowedOrigins:  cfg.Server.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("starting http server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down gracefully")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func runMigrations(databaseURL string, log *zap.Logger) {
	m, err := migrate.New("file://migrations", databaseURL)
	if err != nil {
		// missing source dir: tolerated so the binary can run against an
		// already-migrated database in containerized deployments
		log.Warn("failed to create migrator", zap.Error(err))
		return
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatal("migration failed", zap.Error(err))
	}

	log.Info("database migrations applied")
}
