// Package cli holds the start-up steps shared by cmd/conti and
// cmd/conti-worker.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"conti/internal/amqp"
	"conti/internal/backend"
	"conti/internal/config"
	"conti/internal/log"
	"conti/internal/metrics"
	"conti/internal/services"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads .env style files for local development. Missing
// files are ignored; variables already set in the environment win.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config, w io.Writer, component string) *log.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: component,
		Output:    w,
	})
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig reads the environment and checks it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenBackend creates the storage backend of the given type.
func OpenBackend(ctx context.Context, cfg *config.Config, backendType string, logger *log.Logger) (*backend.BackendResult, error) {
	bc, err := backend.FromAppConfig(cfg, backendType)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog()).CreateBackend(ctx, bc)
}

// OpenPublisher connects to the broker, or returns nil when AMQP_URL is
// unset.
func OpenPublisher(cfg *config.Config, logger *log.Logger) (*amqp.Client, error) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled, record events will not be published")
		return nil, nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return nil, fmt.Errorf("connect AMQP: %w", err)
	}
	logger.Info("AMQP publisher connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client, nil
}

// OpenService wires the configured backend, m and, when publish is set,
// the broker into a ledger service. An unreachable broker is logged and
// skipped so records can still be kept. Closing the service closes both.
func OpenService(ctx context.Context, cfg *config.Config, logger *log.Logger, m *metrics.Metrics, publish bool) (*services.LedgerService, error) {
	res, err := OpenBackend(ctx, cfg, cfg.DataBackend, logger)
	if err != nil {
		return nil, err
	}
	opts := []services.Option{services.WithMetrics(m)}
	if publish {
		client, err := OpenPublisher(cfg, logger)
		switch {
		case err != nil:
			logger.Warn("Continuing without record events", log.FieldOperation, log.OpPublish, log.FieldError, err)
		case client != nil:
			opts = append(opts, services.WithPublisher(client))
		}
	}
	return services.NewLedgerService(res.Backend, logger, opts...), nil
}

// ShutdownContext is cancelled on SIGINT or SIGTERM.
func ShutdownContext(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
