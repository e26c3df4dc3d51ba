package sender

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcherExecutesJobs(t *testing.T) {
	d := NewDispatcher(Options{QueueSize: 4, Workers: 1})
	defer d.Close()

	var ran atomic.Int32
	done := make(chan struct{})
	err := d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		ran.Add(1)
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never executed")
	}
	if ran.Load() != 1 {
		t.Fatalf("job ran %d times, want 1", ran.Load())
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(Options{QueueSize: 1, Workers: 1})

	release := make(chan struct{})
	// Occupy the single worker.
	_ = d.Enqueue(context.Background(), "block", "", func() error {
		<-release
		return nil
	})
	// Give the worker a moment to pick the job up, then fill the queue.
	time.Sleep(20 * time.Millisecond)
	_ = d.Enqueue(context.Background(), "queued", "", func() error { return nil })

	err := d.Enqueue(context.Background(), "overflow", "", func() error { return nil })
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}

	close(release)
	d.Close()
}

func TestDispatcherClosedRejectsJobs(t *testing.T) {
	d := NewDispatcher(Options{QueueSize: 1, Workers: 1})
	d.Close()

	err := d.Enqueue(context.Background(), "late", "", func() error { return nil })
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
}

func TestDispatcherCountsFailures(t *testing.T) {
	d := NewDispatcher(Options{QueueSize: 4, Workers: 1, MaxRetries: 0})

	done := make(chan struct{})
	_ = d.Enqueue(context.Background(), "fail", "", func() error {
		defer close(done)
		return errors.New("boom")
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never executed")
	}
	d.Close()

	if d.ErrorCount() != 1 {
		t.Fatalf("error count = %d, want 1", d.ErrorCount())
	}
}
