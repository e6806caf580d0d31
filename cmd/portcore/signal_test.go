package main

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestShutdownWaiter_ContextCancellationRunsStops(t *testing.T) {
	w := newShutdownWaiter(testLogger())

	var mu sync.Mutex
	var order []int
	w.onStop(func() { mu.Lock(); order = append(order, 1); mu.Unlock() })
	w.onStop(func() { mu.Lock(); order = append(order, 2); mu.Unlock() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		w.wait(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not return after context cancellation")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 1}, order, "stop functions must run in reverse registration order")
}

func TestShutdownWaiter_NoStopsRegistered(t *testing.T) {
	w := newShutdownWaiter(testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		w.wait(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not return with no stops registered")
	}
}

func TestShutdownWaiter_OnStopIsConcurrencySafe(t *testing.T) {
	w := newShutdownWaiter(testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.onStop(func() {})
		}()
	}
	wg.Wait()

	assert.Len(t, w.stops, 20)
}
