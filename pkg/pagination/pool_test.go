package pagination

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPool_Defaults(t *testing.T) {
	p := NewPool(Config{})
	if p.config.MaxConcurrency != PageSize {
		t.Errorf("MaxConcurrency = %d, want %d", p.config.MaxConcurrency, PageSize)
	}
}

func TestPool_RunsEveryIndex(t *testing.T) {
	p := NewPool(Config{MaxConcurrency: 3})

	var seen [20]atomic.Bool
	errs := p.Run(context.Background(), len(seen), func(_ context.Context, i int) error {
		seen[i].Store(true)
		return nil
	})

	if len(errs) != len(seen) {
		t.Fatalf("len(errs) = %d, want %d", len(errs), len(seen))
	}
	for i := range seen {
		if !seen[i].Load() {
			t.Errorf("index %d never ran", i)
		}
		if errs[i] != nil {
			t.Errorf("errs[%d] = %v", i, errs[i])
		}
	}
}

func TestPool_IsolatesFailures(t *testing.T) {
	p := NewPool(Config{MaxConcurrency: 2})
	boom := errors.New("boom")

	errs := p.Run(context.Background(), 5, func(_ context.Context, i int) error {
		if i == 1 || i == 3 {
			return boom
		}
		return nil
	})

	for i, err := range errs {
		wantErr := i == 1 || i == 3
		if (err != nil) != wantErr {
			t.Errorf("errs[%d] = %v, wantErr %v", i, err, wantErr)
		}
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	const limit = 3
	p := NewPool(Config{MaxConcurrency: limit})

	var running, peak atomic.Int32
	p.Run(context.Background(), 12, func(_ context.Context, _ int) error {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil
	})

	if peak.Load() > limit {
		t.Errorf("peak concurrency = %d, want <= %d", peak.Load(), limit)
	}
}

func TestPool_CancelledContext(t *testing.T) {
	p := NewPool(Config{MaxConcurrency: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int32
	errs := p.Run(ctx, 4, func(_ context.Context, _ int) error {
		ran.Add(1)
		return nil
	})

	if ran.Load() != 0 {
		t.Errorf("ran = %d tasks after cancellation, want 0", ran.Load())
	}
	for i, err := range errs {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("errs[%d] = %v, want context.Canceled", i, err)
		}
	}
}

func TestPool_TaskTimeout(t *testing.T) {
	p := NewPool(Config{MaxConcurrency: 1, Timeout: 10 * time.Millisecond})

	errs := p.Run(context.Background(), 1, func(ctx context.Context, _ int) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if !errors.Is(errs[0], context.DeadlineExceeded) {
		t.Errorf("errs[0] = %v, want deadline exceeded", errs[0])
	}
}

func TestPool_Empty(t *testing.T) {
	p := NewPool(DefaultConfig())
	errs := p.Run(context.Background(), 0, func(context.Context, int) error {
		t.Error("task should not run")
		return nil
	})
	if len(errs) != 0 {
		t.Errorf("len(errs) = %d, want 0", len(errs))
	}
}
