package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// shutdownWaiter blocks until SIGINT/SIGTERM arrives and then runs every
// registered stop function, in reverse registration order, waiting for each
// to finish before starting the next.
type shutdownWaiter struct {
	logger *slog.Logger

	mu    sync.Mutex
	stops []func()
}

func newShutdownWaiter(logger *slog.Logger) *shutdownWaiter {
	return &shutdownWaiter{logger: logger}
}

// onStop registers a cleanup function run during shutdown.
func (w *shutdownWaiter) onStop(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stops = append(w.stops, fn)
}

// wait blocks until ctx is cancelled or a termination signal arrives, then
// runs the registered stop functions.
func (w *shutdownWaiter) wait(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		w.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		w.logger.Info("context cancelled, shutting down")
	}

	w.mu.Lock()
	stops := append([]func(){}, w.stops...)
	w.mu.Unlock()

	for i := len(stops) - 1; i >= 0; i-- {
		stops[i]()
	}
}
