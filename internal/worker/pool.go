// Package worker runs background transcription tasks. A Pool owns a bounded
// queue of task ids and a fixed number of goroutines that hand each id to a
// Handler under a per-job timeout.
//
//   - Enqueue never blocks; a full queue is reported as ErrQueueFull.
//   - Stop closes the queue, lets workers drain it, and waits for them.
//   - When Stop's context expires, in-flight jobs are cancelled and queued
//     ids are skipped so they stay pending for the next start.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-transcribe-backend/internal/observability"
)

var (
	// ErrQueueFull is returned by Enqueue when the queue has no free slot.
	ErrQueueFull = errors.New("worker: queue full")
	// ErrStopped is returned by Enqueue after Stop.
	ErrStopped = errors.New("worker: pool stopped")
)

// Handler processes one task id.
type Handler func(ctx context.Context, taskID string) error

// Config sizes a Pool.
type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration // 0 means no per-job deadline
}

// Pool is a fixed-size worker pool fed by a buffered channel.
type Pool struct {
	cfg     Config
	handler Handler
	jobs    chan string

	mu      sync.RWMutex
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a pool that is not yet running. Ids enqueued before Start are
// buffered.
func New(cfg Config, h Handler) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	return &Pool{
		cfg:     cfg,
		handler: h,
		jobs:    make(chan string, cfg.QueueSize),
	}
}

// Start launches the workers. Jobs run under contexts derived from ctx with
// its cancellation stripped; use Stop to end them. Calling Start twice is a
// no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	log.Info().Int("workers", p.cfg.Workers).Int("queue_size", p.cfg.QueueSize).Msg("worker pool started")
}

// Enqueue schedules taskID without blocking.
func (p *Pool) Enqueue(taskID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- taskID:
		observability.SetQueueDepth(len(p.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// Len is the number of queued ids.
func (p *Pool) Len() int { return len(p.jobs) }

// Stop rejects new work, drains the queue, and waits for the workers. If ctx
// ends first, running jobs are cancelled and ctx's error is returned after
// the workers exit.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.jobs)
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		log.Info().Msg("worker pool stopped")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		log.Warn().Err(ctx.Err()).Msg("worker pool stop deadline reached; queued tasks left pending")
		return ctx.Err()
	}
}

func (p *Pool) work(n int) {
	defer p.wg.Done()
	for id := range p.jobs {
		observability.SetQueueDepth(len(p.jobs))
		if p.ctx.Err() != nil {
			continue
		}
		p.run(n, id)
	}
}

func (p *Pool) run(n int, id string) {
	ctx := p.ctx
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := p.safeCall(ctx, id)
	ev := log.Debug()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Int("worker", n).Str("task_id", id).Dur("took", time.Since(start)).Msg("task processed")
}

func (p *Pool) safeCall(ctx context.Context, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: panic: %v", r)
		}
	}()
	return p.handler(ctx, id)
}
