// ============================================================================
// Producer / Consumer Pipeline
// ============================================================================
//
// Package: internal/worker
// Purpose: spec.md §4.6 — a producer that periodically claims runnable jobs
// and hands them to a bounded channel, and a pool of consumers that dispatch
// through the handler registry under a concurrency ceiling.
//
// Grounded on internal/worker/worker_pool.go (Pool, buffered taskCh/
// resultCh, Submit/Stop's documented graceful-shutdown ordering) and
// internal/worker/worker.go (Worker.Run's per-task timeout context). The
// teacher's Worker.execute — a 10%-failure-rate simulation — is replaced
// with real dispatch through internal/registry; the channel plumbing and
// shutdown discipline around it are kept.
// ============================================================================

package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ChuLiYu/beaver-queue/internal/clock"
	"github.com/ChuLiYu/beaver-queue/internal/manager"
	"github.com/ChuLiYu/beaver-queue/internal/registry"
	"github.com/ChuLiYu/beaver-queue/pkg/job"
	"github.com/google/uuid"
)

var log = slog.Default()

// Config holds the spec.md §6 tunables the pipeline needs.
type Config struct {
	// WorkerID identifies this instance to the store when claiming jobs.
	WorkerID uuid.UUID
	// MaximumConcurrency bounds in-flight handler invocations.
	MaximumConcurrency int
	// MaximumQueueSize is the producer->consumer channel's capacity.
	MaximumQueueSize int
	// PollingInterval is the producer's tick period.
	PollingInterval time.Duration
	// BatchSize is the max jobs claimed per producer tick.
	BatchSize int
	// JobTimeout bounds a single handler invocation.
	JobTimeout time.Duration
}

// Pool runs one producer goroutine and Config.MaximumConcurrency consumer
// goroutines fed by a single bounded channel.
type Pool struct {
	mgr   *manager.Manager
	reg   *registry.Registry
	clock clock.Clock
	cfg   Config

	queue   chan job.Job
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool
}

// NewPool constructs a Pool. clk may be nil to use the real wall clock.
func NewPool(mgr *manager.Manager, reg *registry.Registry, clk clock.Clock, cfg Config) *Pool {
	if clk == nil {
		clk = clock.New()
	}
	return &Pool{
		mgr:    mgr,
		reg:    reg,
		clock:  clk,
		cfg:    cfg,
		queue:  make(chan job.Job, cfg.MaximumQueueSize),
		stopCh: make(chan struct{}),
	}
}

// Start launches the producer and the consumer goroutines. ctx governs the
// lifetime of in-flight handler invocations; Stop (not ctx cancellation)
// governs the producer/consumer loops themselves, mirroring the teacher's
// stopCh-driven shutdown.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.producerLoop(ctx)

	for i := 0; i < p.cfg.MaximumConcurrency; i++ {
		p.wg.Add(1)
		go p.consumerLoop(ctx)
	}
	return nil
}

// producerLoop periodically claims up to BatchSize jobs and hands each to
// the bounded channel, applying backpressure by blocking the send
// (spec.md §4.6: "the producer blocks... or, equivalently, stops claiming
// until the channel drains").
func (p *Pool) producerLoop(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.queue)

	ticker := time.NewTicker(p.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			for i := 0; i < p.cfg.BatchSize; i++ {
				claimed, ok, err := p.mgr.ClaimNext(ctx, p.cfg.WorkerID)
				if err != nil {
					log.Error("claim failed, skipping to next tick", "error", err)
					break
				}
				if !ok {
					break
				}
				select {
				case p.queue <- claimed:
				case <-p.stopCh:
					return
				}
			}
		}
	}
}

// consumerLoop is one of MaximumConcurrency fan-out readers over the shared
// queue channel — Go's channel semantics give the concurrency ceiling for
// free, without a separate semaphore.
func (p *Pool) consumerLoop(ctx context.Context) {
	defer p.wg.Done()
	for j := range p.queue {
		p.process(ctx, j)
	}
}

func (p *Pool) process(ctx context.Context, j job.Job) {
	hctx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	result, failure := p.reg.Dispatch(hctx, j)
	if failure != nil {
		if err := p.mgr.ProcessFailure(ctx, j.ID, failure); err != nil {
			log.Error("process failure update lost", "jobID", j.ID, "error", err)
		}
		return
	}
	if err := p.mgr.ProcessSuccess(ctx, j.ID, result); err != nil {
		log.Error("process success update lost", "jobID", j.ID, "error", err)
	}
}

// Stop gracefully shuts down the pipeline: stop the producer (which closes
// the channel once its current tick finishes), let consumers drain whatever
// is already queued, then wait for everyone to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
}
