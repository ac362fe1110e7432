// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/unclebandit/prospect-pipeline/internal/config"
	"github.com/unclebandit/prospect-pipeline/internal/db"
	"github.com/unclebandit/prospect-pipeline/internal/logger"
	"github.com/unclebandit/prospect-pipeline/internal/queue"
	"github.com/unclebandit/prospect-pipeline/internal/repository"
	"github.com/unclebandit/prospect-pipeline/internal/service"
)

const serviceName = "prospect-inbound-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{ServiceName: serviceName, Level: logger.ParseLevel(cfg.App.LogLevel)})

	conn, err := db.Open(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(conn); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	optOuts := service.NewOptOutService(repository.New(conn), logg)
	consumer, err := queue.Dial(cfg.AMQP.URL, cfg.AMQP.InboundQueue, optOuts, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to connect to broker", err)
		os.Exit(1)
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			logg.Error(context.Background(), "error closing broker connection", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "starting inbound worker")

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "inbound worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "inbound worker shutting down gracefully")
}
