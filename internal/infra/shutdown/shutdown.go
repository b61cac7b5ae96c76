package shutdown

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Handler cancels a context on SIGINT or SIGTERM and runs cleanup hooks once.
type Handler struct {
	timeout time.Duration
	stop    context.CancelFunc

	mu    sync.Mutex
	hooks []func(context.Context) error
	once  sync.Once
	err   error
}

// NewHandler returns a handler and a context derived from parent that is
// cancelled when the process receives SIGINT or SIGTERM. Hooks get timeout
// to finish once Shutdown starts.
func NewHandler(parent context.Context, timeout time.Duration) (*Handler, context.Context) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	return &Handler{
		timeout: timeout,
		stop:    stop,
	}, ctx
}

// OnShutdown registers a hook. Hooks run in reverse order of registration.
func (h *Handler) OnShutdown(hook func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// Shutdown stops signal handling and runs every hook. Later calls return
// the first call's result.
func (h *Handler) Shutdown() error {
	h.once.Do(func() {
		h.stop()

		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		h.mu.Lock()
		hooks := make([]func(context.Context) error, len(h.hooks))
		copy(hooks, h.hooks)
		h.mu.Unlock()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		h.err = errors.Join(errs...)
	})
	return h.err
}
