// Command conti-worker consumes ledger events from AMQP and mirrors them
// into a second backend, usually Google Sheets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"conti/internal/amqp"
	"conti/internal/cache"
	"conti/internal/cli"
	"conti/internal/config"
	"conti/internal/log"
	"conti/internal/metrics"
	"conti/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

type options struct {
	envFile     string
	metricsAddr string
	sweep       time.Duration
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("conti-worker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.envFile, "env-file", ".env", "file with environment defaults")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics on this address, e.g. :9091")
	fs.DurationVar(&opts.sweep, "sweep", 10*time.Minute, "how often to drop expired de-duplication entries")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := cli.LoadEnvFile(opts.envFile); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	cfg := config.Load()
	if err := cfg.ValidateWorker(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	logger := cli.SetupLogger(cfg, stderr, log.ComponentWorker)

	if err := mirror(ctx, cfg, opts, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		return 1
	}
	logger.Info("Worker stopped", log.FieldOperation, log.OpShutdown)
	return 0
}

func mirror(ctx context.Context, cfg *config.Config, opts options, logger *log.Logger) error {
	ctx, stop := cli.ShutdownContext(ctx, logger)
	defer stop()

	target, err := cli.OpenBackend(ctx, cfg, cfg.MirrorBackend, logger)
	if err != nil {
		return fmt.Errorf("open mirror backend: %w", err)
	}
	defer func() {
		if err := target.Cleanup(); err != nil {
			logger.Error("Failed to close mirror backend", log.FieldError, err)
		}
	}()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer client.Close()

	m := metrics.New()
	w := worker.NewMirrorWorker(target.Backend, m, logger)

	logger.Info("Starting conti-worker",
		log.FieldBackend, cfg.MirrorBackend,
		"queue", cfg.AMQPQueue,
		log.FieldOperation, log.OpStartup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeWithReconnect(gctx, w.HandleEvent)
	})
	g.Go(func() error {
		return cache.Sweep(gctx, opts.sweep, func(removed int) {
			if removed > 0 {
				logger.Debug("Dropped expired event ids", "removed", removed)
			}
		}, w.Seen())
	})
	if opts.metricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           m.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}
