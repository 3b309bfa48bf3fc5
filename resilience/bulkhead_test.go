package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBulkheadState_CanAccept(t *testing.T) {
	cfg := BulkheadConfig{MaxConcurrent: 2, MaxQueueSize: 1}

	tests := []struct {
		name      string
		executing int
		queued    int
		accept    bool
		queue     bool
	}{
		{"empty pool", 0, 0, true, false},
		{"one slot left", 1, 0, true, false},
		{"pool full, queue empty", 2, 0, true, true},
		{"pool and queue full", 2, 1, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := BulkheadState{Executing: tt.executing, Queued: tt.queued}
			adm := s.CanAccept(cfg)
			if adm.Accept != tt.accept || adm.Queue != tt.queue {
				t.Errorf("CanAccept() = {Accept:%v Queue:%v}, want {Accept:%v Queue:%v}",
					adm.Accept, adm.Queue, tt.accept, tt.queue)
			}
			if !tt.accept && adm.Reason == "" {
				t.Error("rejection carries no reason")
			}
		})
	}
}

func TestBulkheadState_Transitions(t *testing.T) {
	s := BulkheadState{}

	s = s.AddToQueue()
	if s.Queued != 1 {
		t.Errorf("Queued = %d, want 1", s.Queued)
	}

	s = s.StartExecution(true)
	if s.Executing != 1 || s.Queued != 0 {
		t.Errorf("after StartExecution(fromQueue): Executing=%d Queued=%d, want 1,0", s.Executing, s.Queued)
	}

	s = s.CompleteExecution()
	if s.Executing != 0 || s.Completed != 1 {
		t.Errorf("after CompleteExecution: Executing=%d Completed=%d, want 0,1", s.Executing, s.Completed)
	}

	s = s.Reject()
	if s.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", s.Rejected)
	}
}

func TestBulkhead_RejectsWhenSaturated(t *testing.T) {
	b, err := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxQueueSize: 0})
	if err != nil {
		t.Fatalf("NewBulkhead() error = %v", err)
	}

	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	if err := b.Acquire(context.Background()); !errors.Is(err, ErrBulkheadFull) {
		t.Fatalf("second Acquire() = %v, want ErrBulkheadFull", err)
	}

	snap := b.Snapshot()
	if snap.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", snap.Rejected)
	}

	b.Release()
	if err := b.Acquire(context.Background()); err != nil {
		t.Errorf("Acquire() after Release error = %v", err)
	}
}

func TestBulkhead_QueuedCallerGetsSlot(t *testing.T) {
	b, _ := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxQueueSize: 1})

	if err := b.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		acquired <- b.Acquire(context.Background())
	}()

	// The waiter must be queued, not rejected.
	deadline := time.After(200 * time.Millisecond)
	for b.Snapshot().Queued == 0 {
		select {
		case err := <-acquired:
			t.Fatalf("queued Acquire() returned early: %v", err)
		case <-deadline:
			t.Fatal("waiter never queued")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	b.Release()

	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("queued Acquire() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("queued caller never got the released slot")
	}

	snap := b.Snapshot()
	if snap.Executing != 1 || snap.Queued != 0 {
		t.Errorf("snapshot = %+v, want Executing=1 Queued=0", snap)
	}
}

func TestBulkhead_QueueTimeout(t *testing.T) {
	b, _ := NewBulkhead(BulkheadConfig{
		MaxConcurrent: 1,
		MaxQueueSize:  1,
		MaxWait:       20 * time.Millisecond,
	})

	_ = b.Acquire(context.Background())

	start := time.Now()
	err := b.Acquire(context.Background())
	if !errors.Is(err, ErrBulkheadFull) {
		t.Fatalf("queued Acquire() = %v, want ErrBulkheadFull after MaxWait", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("rejected after %v, want at least MaxWait", elapsed)
	}

	snap := b.Snapshot()
	if snap.Queued != 0 {
		t.Errorf("Queued = %d after timeout, want 0", snap.Queued)
	}
}

func TestBulkhead_ContextCancelWhileQueued(t *testing.T) {
	b, _ := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxQueueSize: 1})

	_ = b.Acquire(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if err := b.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire() = %v, want context.Canceled", err)
	}
	if snap := b.Snapshot(); snap.Queued != 0 {
		t.Errorf("Queued = %d after cancellation, want 0", snap.Queued)
	}
}

func TestBulkhead_ExecuteBoundsConcurrency(t *testing.T) {
	b, _ := NewBulkhead(BulkheadConfig{MaxConcurrent: 3, MaxQueueSize: 10})

	var mu sync.Mutex
	active, peak := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Execute(context.Background(), func(ctx context.Context) error {
				mu.Lock()
				active++
				if active > peak {
					peak = active
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
	if snap := b.Snapshot(); snap.Completed != 10 {
		t.Errorf("Completed = %d, want 10", snap.Completed)
	}
}

func TestBulkhead_NoQueueKeepsQueuedAtZero(t *testing.T) {
	// With MaxQueueSize 0 the queue counter must never tick, even when a
	// slot frees between a caller's fast path and its locked admission check.
	b, _ := NewBulkhead(BulkheadConfig{MaxConcurrent: 2, MaxQueueSize: 0, MaxWait: time.Millisecond})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			snap := b.Snapshot()
			if snap.Queued != 0 {
				t.Errorf("Queued = %d, want 0", snap.Queued)
				return
			}
			if snap.Executing > 2 {
				t.Errorf("Executing = %d, want <= 2", snap.Executing)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = b.Execute(context.Background(), func(ctx context.Context) error {
					return nil
				})
			}
		}()
	}
	wg.Wait()
	<-done

	if snap := b.Snapshot(); snap.Queued != 0 || snap.Executing != 0 {
		t.Errorf("final snapshot = %+v, want idle with empty queue", snap)
	}
}
