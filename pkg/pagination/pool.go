package pagination

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds worker pool configuration
type Config struct {
	// MaxConcurrency is the maximum number of tasks running at once
	MaxConcurrency int
	// Timeout per task, 0 for none
	Timeout time.Duration
}

// DefaultConfig returns a default configuration, sized for one page
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: PageSize,
		Timeout:        30 * time.Second,
	}
}

// Task processes item i.
type Task func(ctx context.Context, i int) error

// Pool runs tasks with bounded concurrency
type Pool struct {
	config Config
}

// NewPool creates a new worker pool
func NewPool(config Config) *Pool {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = PageSize
	}
	if config.Timeout < 0 {
		config.Timeout = 0
	}
	return &Pool{config: config}
}

// Run executes task for every index in [0, n) and waits for all of them.
// errs[i] holds the failure of index i; a failing index never stops the
// others. Indexes not started because ctx was cancelled get ctx.Err().
func (p *Pool) Run(ctx context.Context, n int, task Task) (errs []error) {
	errs = make([]error, n)
	if n == 0 {
		return errs
	}

	workers := min(p.config.MaxConcurrency, n)

	queue := make(chan int, n)
	for i := 0; i < n; i++ {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go p.worker(ctx, queue, task, errs, &wg, w)
	}
	wg.Wait()

	return errs
}

// worker processes indexes from the queue. Each index owns its errs slot so
// no further synchronisation is needed.
func (p *Pool) worker(ctx context.Context, queue <-chan int, task Task, errs []error, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for i := range queue {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}

		taskCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.config.Timeout > 0 {
			taskCtx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		}
		errs[i] = task(taskCtx, i)
		cancel()

		if errs[i] != nil {
			log.Debug().
				Err(errs[i]).
				Int("worker_id", workerID).
				Int("index", i).
				Msg("Task failed")
		}
		processed++
	}

	if processed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("tasks_processed", processed).
			Msg("Worker completed")
	}
}
