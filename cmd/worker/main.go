package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"campustrack/internal/analytics"
	"campustrack/internal/config"
	"campustrack/internal/identity"
	"campustrack/internal/logging"
	"campustrack/internal/notify"
	"campustrack/internal/queue"
	"campustrack/internal/store"
	"campustrack/internal/submission"
	"campustrack/internal/worker"
)

// Worker consumes queue messages: analytics retries and notifications.
func main() {
	cfg := config.Load()
	log := logging.New(cfg.Env)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	q, err := queue.Open(queue.Options{
		Backend:      cfg.QueueBackend,
		Key:          cfg.QueueKey,
		AMQPURL:      cfg.AMQPURL,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaGroup:   cfg.KafkaGroup,
	}, redisClient.Client)
	if err != nil {
		log.Error("queue init failed", "err", err)
		os.Exit(1)
	}
	defer queue.Close(q)

	agg := analytics.NewAggregator(submission.NewRepository(db.Client), identity.NewRepository(db.Client), nil, log)
	w := worker.New(q, agg, notify.NewRepository(db.Client), cfg.AnalyticsRetryLimit, log)

	if err := w.Run(ctx); err != nil {
		log.Error("queue consume init failed", "err", err)
		os.Exit(1)
	}
}
