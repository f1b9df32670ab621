package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// RunConfig groups what Run serves.
type RunConfig struct {
	Server  *http.Server
	Runtime *PortalRuntime
	Logger  *slog.Logger
}

// Run serves HTTP and sweeps idle portals until SIGINT/SIGTERM or a failure,
// then drains requests before tearing portals down.
func Run(ctx context.Context, cfg RunConfig) error {
	if cfg.Server == nil || cfg.Runtime == nil {
		return errors.New("run requires a server and a portal runtime")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	// Portals outlive the server so draining requests still find their session.
	sweepCtx, stopSweep := context.WithCancel(context.WithoutCancel(ctx))
	defer stopSweep()
	sweepDone := make(chan error, 1)
	go func() { sweepDone <- cfg.Runtime.Registry.Run(sweepCtx) }()

	g.Go(func() error { return serveHTTP(cfg.Server, logger) })
	g.Go(func() error {
		<-gctx.Done()
		return shutdownHTTP(ctx, cfg.Server, logger)
	})

	err := g.Wait()
	stopSweep()
	if sweepErr := <-sweepDone; sweepErr != nil {
		err = errors.Join(err, sweepErr)
	}
	if closeErr := cfg.Runtime.Close(); closeErr != nil {
		logger.Warn("close portal runtime", "error", closeErr)
	}
	logger.Info("portal stopped")
	return err
}
