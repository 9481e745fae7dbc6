// Package shutdown provides graceful shutdown handling.
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

	"golang.org/x/sync/errgroup"
)

// Handler supervises the long-running tasks of a process and tears them
// down on a termination signal or when one of them fails.
type Handler struct {
	timeout time.Duration
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu    sync.Mutex
	hooks []func(context.Context) error
	done  chan struct{}
}

// NewHandler creates a new shutdown handler. timeout bounds the hooks.
func NewHandler(timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	return &Handler{
		timeout: timeout,
		logger:  logger,
		ctx:     gctx,
		cancel:  cancel,
		group:   group,
		done:    make(chan struct{}),
	}
}

// Context is cancelled when shutdown begins.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Go runs task until shutdown. A task returning an error triggers
// shutdown; returning nil after its context is cancelled is the normal
// exit.
func (h *Handler) Go(name string, task func(context.Context) error) {
	h.group.Go(func() error {
		err := task(h.ctx)
		if err != nil && h.ctx.Err() == nil {
			h.logger.Error("task failed", "task", name, "error", err)
			return fmt.Errorf("%s: %w", name, err)
		}
		h.logger.Debug("task stopped", "task", name)
		return nil
	})
}

// OnShutdown registers a shutdown hook.
// Hooks are called in reverse order of registration, before the tasks are
// waited for.
func (h *Handler) OnShutdown(hook func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// Wait blocks until SIGINT or SIGTERM arrives or a task fails, then shuts
// down.
func (h *Handler) Wait() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return h.WaitContext(ctx)
}

// WaitContext blocks until ctx is done or a task fails, then cancels the
// tasks, runs the hooks and waits for the tasks. It returns the task
// failure joined with hook errors.
func (h *Handler) WaitContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		h.logger.Info("shutdown requested")
	case <-h.ctx.Done():
		h.logger.Warn("shutting down after task failure")
	}
	h.cancel()

	hookCtx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]func(context.Context) error, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](hookCtx); err != nil {
			errs = append(errs, err)
		}
	}

	waited := make(chan error, 1)
	go func() { waited <- h.group.Wait() }()
	select {
	case err := <-waited:
		if err != nil {
			errs = append([]error{err}, errs...)
		}
	case <-hookCtx.Done():
		errs = append(errs, errors.New("shutdown: tasks did not stop in time"))
	}

	close(h.done)
	return errors.Join(errs...)
}

// Done returns a channel that closes when shutdown is complete.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
