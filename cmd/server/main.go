package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/market-scout/internal/api"
	"github.com/maltedev/market-scout/internal/app"
	"github.com/maltedev/market-scout/internal/config"
	"github.com/maltedev/market-scout/internal/database"
	"github.com/maltedev/market-scout/internal/jobs"
	"github.com/maltedev/market-scout/internal/metrics"
	"github.com/maltedev/market-scout/internal/queue"
	"github.com/maltedev/market-scout/internal/storage"
	"github.com/maltedev/market-scout/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var (
		store  jobs.Store
		outbox api.OutboxStats
	)

	if cfg.Database.Enabled() {
		db, err := database.New(ctx, database.Config{
			URL:      cfg.Database.URL,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			log.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}

		outboxRepo := database.NewOutboxRepository(db)
		store = database.NewRunRepository(db)
		outbox = outboxRepo

		if cfg.Redis.Enabled() {
			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer redisClient.Close()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				log.Error("failed to connect to Redis", "error", err)
				os.Exit(1)
			}

			relay := database.NewRelay(outboxRepo, redisClient, m, log, database.RelayConfig{
				PollInterval: cfg.Redis.PollInterval,
				BatchSize:    cfg.Redis.BatchSize,
			})
			go func() {
				if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("relay stopped with error", "error", err)
				}
			}()
		} else {
			log.Warn("REDIS_ADDR not set, outbox events stay pending")
		}
	} else {
		fileStore, err := storage.NewRunStore(cfg.RunsFile())
		if err != nil {
			log.Error("failed to open run store", "error", err)
			os.Exit(1)
		}
		store = fileStore
		log.Info("database not configured, keeping runs on disk", "file", cfg.RunsFile())
	}

	scout, err := app.New(cfg, m, log)
	if err != nil {
		log.Error("failed to initialize analysis pipeline", "error", err)
		os.Exit(1)
	}
	defer scout.Close()

	q := queue.NewInMemoryQueue(cfg.Queue.MaxSize)
	manager := jobs.NewManager(store, q, scout.Pipeline, scout.Reports, m, log)

	workerDone := make(chan struct{})
	go func() {
		manager.StartWorker(ctx)
		close(workerDone)
	}()

	handlers := api.NewHandlers(manager, outbox, log)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handlers, m.Handler(), api.RouterConfig{RequestTimeout: cfg.Server.WriteTimeout}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.WriteTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		q.Close()
		cancel()
	}()

	log.Info("server starting", "port", cfg.Server.Port, "sources", len(scout.Adapters))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	<-workerDone
	log.Info("server stopped")
}
