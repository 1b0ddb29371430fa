package chatrelay

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// WorkerPool runs tasks on a bounded number of goroutines.
//
// Submit blocks while every slot is busy, which pushes back on the producer
// instead of queueing without limit. One pool is owned per concern: the
// consumer relays share one, command handlers another.
type WorkerPool struct {
	name     string
	size     int64
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	inFlight atomic.Int64
	logger   Logger
}

// NewWorkerPool creates a pool allowing at most size concurrent tasks.
func NewWorkerPool(name string, size int, logger Logger) (*WorkerPool, error) {
	if size <= 0 {
		return nil, NewError(ErrCodeConfiguration, "worker pool size must be > 0")
	}
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &WorkerPool{
		name:   name,
		size:   int64(size),
		sem:    semaphore.NewWeighted(int64(size)),
		logger: logger,
	}, nil
}

// Submit schedules task, waiting for a free slot until ctx is done.
// A panicking task is logged and does not take the pool down.
func (p *WorkerPool) Submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.wg.Done()
		return err
	}

	p.inFlight.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer p.inFlight.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Errorf("Worker pool %s: task panicked: %v", p.name, r)
			}
		}()
		task()
	}()
	return nil
}

// InFlight returns the number of tasks currently running.
func (p *WorkerPool) InFlight() int {
	return int(p.inFlight.Load())
}

// Size returns the concurrency ceiling.
func (p *WorkerPool) Size() int {
	return int(p.size)
}

// Shutdown stops accepting new tasks and waits for running ones until ctx is
// done. It returns ctx.Err() if the drain did not complete in time.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Infof("Worker pool %s drained", p.name)
		return nil
	case <-ctx.Done():
		p.logger.Warnf("Worker pool %s: drain interrupted with %d tasks in flight", p.name, p.InFlight())
		return ctx.Err()
	}
}
