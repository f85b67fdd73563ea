// Package worker runs the pool that applies ledger follow-up tasks
// asynchronously.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/okian/twinpot/internal/adapters/mq/queue"
	"github.com/okian/twinpot/pkg/logger"
	"github.com/okian/twinpot/pkg/metrics"
)

// defaultWorkerCount is small; ledger tasks are rare compared to moves.
const defaultWorkerCount = 4

// Source defines how workers receive tasks.
type Source interface {
	Dequeue(ctx context.Context) <-chan queue.Task
}

// Executor applies one task against the external ports.
type Executor interface {
	Execute(ctx context.Context, t queue.Task) error
}

// Pool processes ledger tasks with at-most-once application per task ID.
// The ledger port is at-least-once, so the pool keeps a seen-set of applied
// task IDs; a task is only marked applied after it succeeds, leaving failed
// tasks eligible for a later retry.
type Pool struct {
	workers int
	source  Source
	exec    Executor

	mu      sync.Mutex
	applied map[string]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
}

// NewPool creates a worker pool with configuration options.
func NewPool(source Source, exec Executor, opts ...Option) *Pool {
	p := &Pool{
		workers: defaultWorkerCount,
		source:  source,
		exec:    exec,
		applied: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = logger.Get().Named("worker")
	}

	return p
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	tasks := p.source.Dequeue(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, tasks)
	}

	metrics.UpdateWorkerActiveCount(p.workers)
}

// Stop cancels the workers and waits for in-flight tasks to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	metrics.UpdateWorkerActiveCount(0)
}

func (p *Pool) run(ctx context.Context, tasks <-chan queue.Task) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-tasks:
			if !ok {
				return
			}
			p.process(ctx, task)
		}
	}
}

func (p *Pool) process(ctx context.Context, task queue.Task) {
	if p.seen(task.ID) {
		p.logger.Debug(ctx, "skipping already applied task", logger.String("task_id", task.ID))
		return
	}

	start := time.Now()
	err := p.exec.Execute(ctx, task)
	metrics.RecordTaskLatency(float64(time.Since(start).Milliseconds()))

	if err != nil {
		metrics.RecordWorkerError()
		p.logger.Error(ctx, "task failed",
			logger.String("task_id", task.ID),
			logger.String("kind", string(task.Kind)),
			logger.Error(err),
		)
		return
	}

	p.markApplied(task.ID)
}

func (p *Pool) seen(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.applied[id]
	return ok
}

func (p *Pool) markApplied(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applied[id] = struct{}{}
}
