package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/crm-mailer/internal/app"
	"github.com/unclebandit/crm-mailer/internal/config"
	"github.com/unclebandit/crm-mailer/internal/logger"
)

// The worker consumes delivery events from RabbitMQ and applies them.
func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.New("info").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level)

	if cfg.Queue.Driver != "amqp" {
		log.Error("worker requires queue.driver=amqp", "driver", cfg.Queue.Driver)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", "error", err)
		os.Exit(1)
	}

	if err := a.StartIngestWorker(); err != nil {
		log.Error("failed to register consumer", "error", err)
		a.Close()
		os.Exit(1)
	}

	log.Info("worker running, waiting for delivery events", "topic", a.Topic())
	<-ctx.Done()

	log.Info("worker stopping")
	if err := a.Close(); err != nil {
		log.Error("shutdown", "error", err)
	}
}
