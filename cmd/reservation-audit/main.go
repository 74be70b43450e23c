// Command reservation-audit consumes reservation activity from RabbitMQ and
// appends one line per message to an audit log.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/queue"
)

func main() {
	_ = godotenv.Load()
	log := config.NewLogger(os.Getenv("APP_ENV"))

	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		log.Error("RABBITMQ_URL is required")
		os.Exit(1)
	}
	path := os.Getenv("AUDIT_LOG_PATH")
	if path == "" {
		path = "logs/reservations.log"
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Error("audit log: create dir failed", "path", path, "error", err)
		os.Exit(1)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Error("audit log: open failed", "path", path, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &queue.Consumer{URL: url, Out: f, Log: log}
	log.Info("audit-consumer: started", "queue", queue.QueueName, "log", path)
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("audit-consumer: stopped", "error", err)
	}
}
