package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/safar/go-storefront/internal/api"
	"github.com/safar/go-storefront/internal/checkout"
	"github.com/safar/go-storefront/internal/config"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/lifecycle"
	"github.com/safar/go-storefront/internal/metrics"
	"github.com/safar/go-storefront/internal/store"
	"github.com/safar/go-storefront/internal/store/memory"
	"github.com/safar/go-storefront/internal/timeline"
	"github.com/safar/go-storefront/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		logger.Info("using in-memory store")
		return memory.New(), func() {}, nil
	}

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to database")

	if cfg.Database.AutoMigrate {
		ran, err := migrations.Apply(ctx, db, migrations.Up)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("migrations applied", "files", ran)
	}

	return store.NewPostgres(db), func() { db.Close() }, nil
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.AdminEmail != "" {
		name, _, _ := strings.Cut(cfg.AdminEmail, "@")
		admin, err := st.EnsureAdmin(ctx, cfg.AdminEmail, name)
		if err != nil {
			return err
		}
		logger.Info("admin ready", "user_id", admin.ID, "email", admin.Email)
	}

	policy, err := lifecycle.PolicyFor(cfg.Orders.StatusPolicy)
	if err != nil {
		return err
	}

	publisher := events.NewPublisher(cfg.Kafka, logger)
	defer publisher.Close()
	if len(cfg.Kafka.Brokers) > 0 {
		logger.Info("publishing order events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.OrderTopic)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	sessions := api.NewSessions(cfg.Session.TTL)
	go sessions.Run(ctx, time.Minute)

	srv := api.New(api.Deps{
		Store:     st,
		Checkout:  checkout.NewService(st, publisher, m, logger),
		Lifecycle: lifecycle.NewService(st, policy, publisher, m, logger),
		Timeline:  timeline.NewReader(st),
		Sessions:  sessions,
		Metrics:   m,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port, "store", cfg.Store.Driver, "status_policy", cfg.Orders.StatusPolicy)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server exited properly")
	return nil
}
