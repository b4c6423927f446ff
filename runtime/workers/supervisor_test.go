package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// workerFunc adapts a function to the Worker contract for tests.
type workerFunc func(ctx context.Context) error

func (f workerFunc) Run(ctx context.Context) error { return f(ctx) }

func TestSupervisor_RestartOnPanic(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	var calls atomic.Int32
	worker := workerFunc(func(ctx context.Context) error {
		calls.Add(1)
		panic("boom")
	})

	sup := NewSupervisor(log, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	go sup.Add(worker).Run(ctx)

	// Waiting for panics and restarts
	time.Sleep(900 * time.Millisecond)

	req.GreaterOrEqual(calls.Load(), int32(2))
}

func TestSupervisor_StopOnSuccess(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	var calls atomic.Int32
	// Given a worker running only once
	worker := workerFunc(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	sup := NewSupervisor(log, 50*time.Millisecond)

	// Given a channel to notify when Run() terminated
	done := make(chan struct{})

	go func() {
		sup.Add(worker).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
		// Then supervisor detected a success, returned nil and stopped
		req.Equal(int32(1), calls.Load())
	case <-time.After(500 * time.Millisecond):
		req.Fail("Supervisor should have stopped after worker success")
	}
}

func TestSupervisor_RestartOnError(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	var calls atomic.Int32
	worker := workerFunc(func(ctx context.Context) error {
		calls.Add(1)
		return context.DeadlineExceeded
	})

	sup := NewSupervisor(log, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go sup.Add(worker).Run(ctx)

	time.Sleep(200 * time.Millisecond)
	cancel()

	req.GreaterOrEqual(calls.Load(), int32(2))
}

func TestSupervisor_StopCancelsWorkers(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	worker := workerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	sup := NewSupervisor(log, 50*time.Millisecond)
	done := make(chan struct{})
	go func() {
		sup.Add(worker).Run(context.Background())
		close(done)
	}()

	// Give the worker time to start before stopping
	time.Sleep(50 * time.Millisecond)
	sup.Stop()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		req.Fail("Stop should have drained the supervised workers")
	}
}
