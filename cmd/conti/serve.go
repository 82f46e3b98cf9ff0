package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"

	"conti/internal/auth"
	"conti/internal/cli"
	apphttp "conti/internal/http"
	"conti/internal/log"
	"conti/internal/metrics"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
)

type serveCmd struct {
	*app
	port string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the JSON API" }
func (*serveCmd) Usage() string {
	return `serve [-port <n>]

  Serves the ledger over HTTP until SIGINT or SIGTERM. Requires JWT_SECRET.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.port, "port", "", "listen port, overrides PORT")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.port != "" {
		c.cfg.Port = c.port
	}
	if err := c.cfg.ValidateServer(); err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := c.serve(ctx); err != nil {
		c.logger.Error("Server stopped with error", log.FieldError, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *serveCmd) serve(ctx context.Context) error {
	ctx, stop := cli.ShutdownContext(ctx, c.logger)
	defer stop()

	m := metrics.New()
	svc, err := cli.OpenService(ctx, c.cfg, c.logger, m, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			c.logger.Error("Failed to close ledger", log.FieldError, err)
		}
	}()

	srv := apphttp.NewServer(apphttp.Options{
		Addr:          ":" + c.cfg.Port,
		Service:       svc,
		Tokens:        auth.NewTokenManager(c.cfg.JWTSecret, c.cfg.SessionTTL),
		Metrics:       m,
		Logger:        c.logger,
		AuthRateLimit: c.cfg.AuthRateLimit,
		Currency:      c.cfg.Currency,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.logger.Info("Starting conti server",
			"port", c.cfg.Port,
			log.FieldBackend, c.cfg.DataBackend,
			log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		c.logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
		return nil
	})
	return g.Wait()
}
