// Package worker runs background tasks on a fixed set of goroutines fed by a
// bounded queue. Submit never blocks: a full queue rejects the task.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-messaging-gateway/internal/observability"
)

// Defaults used when New receives non-positive values.
const (
	DefaultWorkers   = 8
	DefaultQueueSize = 256
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("worker queue is full")
	// ErrClosed is returned by Submit after Shutdown started.
	ErrClosed = errors.New("worker pool is closed")
)

// Task is one unit of background work.
type Task func(ctx context.Context) error

type job struct {
	name string
	ctx  context.Context
	fn   Task
}

// Pool is a fixed-size worker pool.
type Pool struct {
	jobs chan job
	g    *errgroup.Group

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// New starts workers goroutines reading from a queue of queueSize slots.
func New(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	p := &Pool{jobs: make(chan job, queueSize), g: new(errgroup.Group)}
	for i := 0; i < workers; i++ {
		p.g.Go(func() error {
			for j := range p.jobs {
				p.run(j)
			}
			return nil
		})
	}
	return p
}

// Submit queues fn under name. ctx is detached from cancellation so that a
// finished HTTP request does not cancel the task, while its values (logger,
// correlation id, span) are kept.
func (p *Pool) Submit(ctx context.Context, name string, fn Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		observability.BackgroundTasksTotal.WithLabelValues("rejected").Inc()
		return ErrClosed
	}
	select {
	case p.jobs <- job{name: name, ctx: context.WithoutCancel(ctx), fn: fn}:
		return nil
	default:
		observability.BackgroundTasksTotal.WithLabelValues("rejected").Inc()
		return ErrQueueFull
	}
}

func (p *Pool) run(j job) {
	lg := observability.Logger(j.ctx)
	defer func() {
		if r := recover(); r != nil {
			observability.BackgroundTasksTotal.WithLabelValues("panic").Inc()
			lg.Error().
				Str("task", j.name).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("background task panicked")
		}
	}()
	if err := j.fn(j.ctx); err != nil {
		observability.BackgroundTasksTotal.WithLabelValues("error").Inc()
		lg.Error().Err(err).Str("task", j.name).Msg("background task failed")
		return
	}
	observability.BackgroundTasksTotal.WithLabelValues("ok").Inc()
}

// Shutdown stops accepting tasks, lets the workers drain the queue and waits
// for them or for ctx, whichever comes first.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})

	done := make(chan error, 1)
	go func() { done <- p.g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		log.Warn().Int("pending", len(p.jobs)).Msg("worker pool shutdown timed out")
		return ctx.Err()
	}
}
