// Package pool runs background crawl sessions on a bounded set of workers.
package pool

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrSaturated is returned by Submit when the backlog is full. Sessions
// beyond the cap queue in the backlog rather than run unbounded browser
// contexts; past the backlog the caller is told to back off.
var ErrSaturated = errors.New("session pool saturated")

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("session pool closed")

// Task is one unit of background work. The context it receives outlives the
// submitting request but honors process shutdown.
type Task func(ctx context.Context)

// Pool executes tasks on a fixed number of workers over a bounded backlog.
type Pool struct {
	tasks  chan Task
	wg     sync.WaitGroup
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// New starts a pool with workers goroutines and a backlog-deep task queue.
// Tasks run with ctx; cancellation of ctx aborts in-flight tasks through
// their own context handling.
func New(ctx context.Context, workers, backlog int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if backlog <= 0 {
		backlog = workers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		tasks:  make(chan Task, backlog),
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	return p
}

func (p *Pool) worker(ctx context.Context, index int) {
	defer p.wg.Done()
	for task := range p.tasks {
		task(ctx)
	}
	p.logger.Debug("pool worker exited", zap.Int("index", index))
}

// Submit queues a task without blocking.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrSaturated
	}
}

// Close stops accepting tasks and waits for queued and in-flight tasks to
// finish. Callers that want queued tasks aborted cancel the pool context
// first.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
