// Command login-audit consumes login events from RabbitMQ and appends one
// line per login to an audit file.
package main

import (
	"context"
	"errors"
	stdlog "log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/iliyamo/identity-service/internal/config"
	"github.com/iliyamo/identity-service/internal/logger"
	"github.com/iliyamo/identity-service/internal/queue"
)

func main() {
	cfg := config.LoadAuditConfig()

	log, err := logger.New("login-audit", cfg.Env, cfg.LogLevel)
	if err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		log.Fatal("create log dir", zap.Error(err))
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatal("open audit file", zap.String("path", cfg.LogFile), zap.Error(err))
	}
	defer func() { _ = f.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &queue.Consumer{URL: cfg.AMQPURL, Out: f, Log: log}
	log.Info("login-audit: consuming", zap.String("queue", queue.LoginQueueName), zap.String("file", cfg.LogFile))
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("login-audit stopped", zap.Error(err))
	}
}
