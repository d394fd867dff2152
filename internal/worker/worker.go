// Package worker runs driver jobs in the background so HTTP handlers can
// return immediately after enqueueing.
package worker

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job is one unit of background work. Name labels log lines; Run does the
// work and must be idempotent with respect to its batch.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Executor is a bounded queue drained by a fixed pool of workers.
type Executor struct {
	queue  chan Job
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// NewExecutor starts workers goroutines draining a queue of the given depth.
func NewExecutor(workers, depth int) *Executor {
	if workers <= 0 {
		workers = 2
	}
	if depth <= 0 {
		depth = 32
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	e := &Executor{
		queue:  make(chan Job, depth),
		group:  g,
		ctx:    gctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		g.Go(e.work)
	}
	return e
}

func (e *Executor) work() error {
	for {
		select {
		case <-e.ctx.Done():
			return nil
		case job, ok := <-e.queue:
			if !ok {
				return nil
			}
			if err := job.Run(e.ctx); err != nil {
				zap.L().Error("background job failed",
					zap.String("job", job.Name),
					zap.Error(err),
				)
			}
		}
	}
}

// Enqueue submits a job; it reports false when the queue is full so callers
// can surface backpressure instead of blocking a request handler.
func (e *Executor) Enqueue(job Job) bool {
	select {
	case e.queue <- job:
		return true
	default:
		return false
	}
}

// Shutdown stops accepting work, cancels running jobs when the context
// expires, and waits for the workers to exit.
func (e *Executor) Shutdown(ctx context.Context) error {
	close(e.queue)
	done := make(chan error, 1)
	go func() {
		done <- e.group.Wait()
	}()
	select {
	case <-ctx.Done():
		e.cancel()
		return <-done
	case err := <-done:
		e.cancel()
		return err
	}
}
