package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultTimeout bounds the hooks as a whole.
const DefaultTimeout = 10 * time.Second

type hook struct {
	name string
	fn   func(context.Context) error
}

// Handler runs cleanup hooks once, in reverse order of registration.
type Handler struct {
	timeout time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	hooks []hook
	once  sync.Once
	err   error
	done  chan struct{}
}

// NewHandler creates a new shutdown handler.
func NewHandler(timeout time.Duration, logger *slog.Logger) *Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a named hook.
func (h *Handler) OnShutdown(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// NotifyContext returns a context cancelled on SIGINT or SIGTERM.
func (h *Handler) NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Shutdown runs the hooks. Later calls return the first call's result.
// Every hook runs even if an earlier one fails.
func (h *Handler) Shutdown() error {
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		h.mu.Lock()
		hooks := append([]hook(nil), h.hooks...)
		h.mu.Unlock()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			hk := hooks[i]
			if err := hk.fn(ctx); err != nil {
				h.logger.Warn("shutdown hook failed", "hook", hk.name, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", hk.name, err))
				continue
			}
			h.logger.Debug("shutdown hook done", "hook", hk.name)
		}
		h.err = errors.Join(errs...)
		close(h.done)
	})
	return h.err
}

// Done is closed once Shutdown has finished.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
