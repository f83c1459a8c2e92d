package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-arndt/werkbank/internal/api"
	"github.com/p-arndt/werkbank/internal/config"
	"github.com/p-arndt/werkbank/internal/docker"
	"github.com/p-arndt/werkbank/internal/e2b"
	"github.com/p-arndt/werkbank/internal/ingest"
	"github.com/p-arndt/werkbank/internal/pool"
	"github.com/p-arndt/werkbank/internal/reaper"
	"github.com/p-arndt/werkbank/internal/rollback"
	"github.com/p-arndt/werkbank/internal/runtime"
	"github.com/p-arndt/werkbank/internal/session"
	"github.com/p-arndt/werkbank/internal/store"
	"github.com/p-arndt/werkbank/internal/workspace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP daemon",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func newDriver(cfg *config.Config, logger *slog.Logger) (runtime.Driver, error) {
	if cfg.Driver == config.DriverE2B {
		d, err := e2b.New(cfg.E2B, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	d, err := docker.New(cfg.Docker, logger)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	if cfg.APIKey == "" {
		logger.Warn("no API key configured, running in open access mode")
	}

	st, err := store.New(cfg.DBPath, 0)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Ping(context.Background()); err != nil {
		return fmt.Errorf("store ping: %w", err)
	}

	drv, err := newDriver(cfg, logger)
	if err != nil {
		return fmt.Errorf("%s driver: %w", cfg.Driver, err)
	}
	defer drv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := drv.Ping(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", drv.Name(), err)
	}
	logger.Info("driver connection OK", "driver", drv.Name())

	cache := session.NewInstanceCache()
	tracker := workspace.NewTracker(st, logger)

	pl := pool.New(drv, cfg.Pool.Size, cfg.SandboxTTL(), logger)
	var sandboxPool session.SandboxPool
	var poolStats api.PoolStats
	if pl != nil {
		sandboxPool = pl
		poolStats = pl
		pl.Start(ctx)
		defer pl.Stop(context.Background())
	}

	mgr := session.NewManager(cfg, drv, st, tracker, cache, sandboxPool, logger)
	ws := workspace.NewService(cfg, tracker, mgr, logger)
	ing := ingest.NewIngester(cfg, mgr, tracker, logger)
	rb := rollback.NewService(st, mgr, logger)

	rpr := reaper.New(st, drv, cache, cfg.ReaperInterval(), logger)
	go rpr.Run(ctx)

	srv := api.NewServer(cfg, mgr, ws, ing, rb, poolStats, logger)

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // recreate plus rehydration can be slow
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	logger.Info("listening", "addr", ln.Addr().String(), "driver", drv.Name(), "pool_size", cfg.Pool.Size)
	fmt.Fprintf(os.Stderr, "\n  werkbank daemon ready at http://%s\n\n", ln.Addr())

	return serveHTTP(ctx, httpServer, ln, shutdownTimeout, logger)
}

const shutdownTimeout = 10 * time.Second

// serveHTTP serves on ln until ctx is done, then drains in-flight requests
// for up to timeout. It returns only once the server has stopped, so deferred
// cleanup never races a request that is still running.
func serveHTTP(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	if shutdownErr != nil {
		return fmt.Errorf("shutdown: %w", shutdownErr)
	}
	return nil
}
