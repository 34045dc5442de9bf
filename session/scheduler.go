package session

import (
	"context"
	"sync"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

// Task is one unit of session work. It carries its own context; the context
// passed to Submit only bounds the wait for capacity.
type Task func()

// Scheduler runs session tasks concurrently.
type Scheduler interface {
	// Submit schedules task. It may block until capacity is available and
	// returns ctx.Err() if ctx ends first, in which case task never runs.
	Submit(ctx context.Context, task Task) error
	// Wait blocks until every submitted task has returned.
	Wait()
}

// NewScheduler returns a PoolScheduler of the given size, or a
// GoroutineScheduler when workers <= 0.
func NewScheduler(workers int) Scheduler {
	if workers <= 0 {
		return &GoroutineScheduler{}
	}
	return NewPoolScheduler(workers)
}

// PoolScheduler bounds concurrency with a semaphore. Submit blocks while all
// workers are busy, so excess connections queue in the accept backlog.
type PoolScheduler struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPoolScheduler creates a pool of the given size (minimum 1).
func NewPoolScheduler(workers int) *PoolScheduler {
	return &PoolScheduler{sem: make(chan struct{}, max(workers, 1))}
}

// Submit acquires a worker slot and runs task in a goroutine.
func (p *PoolScheduler) Submit(ctx context.Context, task Task) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		task()
	}()
	return nil
}

// Wait blocks until all running tasks return.
func (p *PoolScheduler) Wait() { p.wg.Wait() }

// Workers returns the pool size.
func (p *PoolScheduler) Workers() int { return cap(p.sem) }

// GoroutineScheduler runs every task on its own goroutine, unbounded.
type GoroutineScheduler struct {
	wg sync.WaitGroup
}

// Submit runs task immediately in a new goroutine.
func (g *GoroutineScheduler) Submit(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		task()
	}()
	return nil
}

// Wait blocks until all running tasks return.
func (g *GoroutineScheduler) Wait() { g.wg.Wait() }

var (
	_ Scheduler = (*PoolScheduler)(nil)
	_ Scheduler = (*GoroutineScheduler)(nil)
)
