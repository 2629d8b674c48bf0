package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/yndnr/meshsync/internal/core/domain"
	"github.com/yndnr/meshsync/internal/infra/buildinfo"
	"github.com/yndnr/meshsync/internal/infra/confloader"
	"github.com/yndnr/meshsync/internal/infra/shutdown"
)

// DaemonCommand runs sync passes on a timer until interrupted.
func DaemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Sync periodically and serve metrics until interrupted",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Time between sync passes (default sync.interval)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Listen address for /metrics and /healthz; empty disables (default metrics.addr)",
			},
		},
		Action: runDaemon,
	}
}

func runDaemon(c *cli.Context) error {
	e, err := openEnvWith(c, true)
	if err != nil {
		return err
	}

	handler := shutdown.NewHandler(shutdown.DefaultTimeout, e.Logger)
	ctx, stop := handler.NotifyContext(c.Context)
	defer stop()

	interval := c.Duration("interval")
	if interval <= 0 {
		interval = e.Config.Sync.Interval
	}
	addr := e.Config.Metrics.Addr
	if c.IsSet("metrics-addr") {
		addr = c.String("metrics-addr")
	}

	g, gctx := errgroup.WithContext(ctx)

	if addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		srv := &http.Server{
			Handler:           metricsMux(e),
			ReadHeaderTimeout: 5 * time.Second,
		}
		handler.OnShutdown("metrics", srv.Shutdown)
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		e.Logger.Info("serving metrics", "addr", ln.Addr().String())
	}

	if path := c.String("config"); path != "" {
		w, err := confloader.NewWatcher(confloader.WithWatcherLogger(e.Logger))
		if err != nil {
			return err
		}
		if err := w.Watch(path); err != nil {
			_ = w.Stop()
			return err
		}
		w.OnChange(func(string) { reloadConfig(c, e) })
		handler.OnShutdown("config-watcher", func(context.Context) error { return w.Stop() })
		g.Go(func() error {
			w.Run(gctx)
			return nil
		})
	}

	unsubscribe := e.Orchestrator.SubscribeStatus(func(ch domain.StatusChange) {
		e.Logger.Debug("sync status changed", "from", ch.From, "to", ch.To)
	})
	handler.OnShutdown("status-subscription", func(context.Context) error {
		unsubscribe()
		return nil
	})

	g.Go(func() error {
		syncLoop(gctx, e, interval)
		return nil
	})

	e.Logger.Info("daemon started", "interval", interval, "version", buildinfo.String())
	<-gctx.Done()
	e.Logger.Info("daemon stopping")

	shutdownErr := handler.Shutdown()
	return errors.Join(g.Wait(), shutdownErr)
}

func syncLoop(ctx context.Context, e *env, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		syncPass(ctx, e)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func syncPass(ctx context.Context, e *env) {
	res, err := e.Orchestrator.Sync(ctx)
	switch {
	case err == nil:
		e.Logger.Info("sync pass finished",
			"retry", res.Retry.Kind, "push", res.Push.Kind, "pull", res.Pull.Kind)
	case ctx.Err() != nil:
	case domain.IsRetryable(err):
		e.Logger.Warn("sync pass failed, will retry", "error", err)
	default:
		e.Logger.Error("sync pass failed", "error", err)
	}
}

// reloadConfig re-reads the layered configuration after the file changed.
// An invalid file leaves the running settings alone.
func reloadConfig(c *cli.Context, e *env) {
	cfg, err := loadConfig(c, true)
	if err != nil {
		e.Logger.Warn("ignoring invalid configuration", "error", err)
		return
	}
	e.Reload(cfg)
}

func metricsMux(e *env) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  string(e.Orchestrator.Status()),
			"version": buildinfo.Get().Version,
		})
	})
	return mux
}
