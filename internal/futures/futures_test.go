package futures

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stapelberg/nbuild/internal/ir"
)

func TestStartRunsFnOnceForConcurrentCallers(t *testing.T) {
	m := New()
	var calls int32
	fn := func() error {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return nil
	}

	const n = 20
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		go func() {
			_, started := m.Start(ir.BuildId(1), fn)
			results <- started
		}()
	}

	startedCount := 0
	for i := 0; i < n; i++ {
		if <-results {
			startedCount++
		}
	}
	if startedCount != 1 {
		t.Errorf("startedCount = %d, want 1", startedCount)
	}

	f, _ := m.Start(ir.BuildId(1), fn)
	if err := f.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fn called %d times, want 1", got)
	}
}

func TestWaitReturnsError(t *testing.T) {
	m := New()
	wantErr := errors.New("boom")
	f, started := m.Start(ir.BuildId(2), func() error { return wantErr })
	if !started {
		t.Fatal("Start() started = false, want true")
	}
	if err := f.Wait(context.Background()); err != wantErr {
		t.Errorf("Wait() = %v, want %v", err, wantErr)
	}
}

func TestWaitAllStopsAtFirstError(t *testing.T) {
	m := New()
	wantErr := errors.New("boom")
	f1, _ := m.Start(ir.BuildId(3), func() error { return wantErr })
	f2, _ := m.Start(ir.BuildId(4), func() error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	start := time.Now()
	err := WaitAll(context.Background(), []*Future{f1, f2})
	if err != wantErr {
		t.Errorf("WaitAll() = %v, want %v", err, wantErr)
	}
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("WaitAll() took %v, want it to return as soon as f1 fails, not wait for f2", elapsed)
	}

	// f2's underlying goroutine was not cancelled by WaitAll returning
	// early; it completes on its own.
	if err := f2.Wait(context.Background()); err != nil {
		t.Errorf("f2.Wait() = %v, want nil", err)
	}
}

func TestWaitAllEmpty(t *testing.T) {
	if err := WaitAll(context.Background(), nil); err != nil {
		t.Errorf("WaitAll(nil) = %v, want nil", err)
	}
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	m := New()
	block := make(chan struct{})
	f, _ := m.Start(ir.BuildId(5), func() error {
		<-block
		return nil
	})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := f.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait() = %v, want context.DeadlineExceeded", err)
	}
}
