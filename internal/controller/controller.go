// ============================================================================
// Controller — wires store + manager + registry + worker pool + recovery
// ============================================================================
//
// Package: internal/controller
// Purpose: The "brain" that starts and stops a running queue instance,
// grounded on internal/controller/controller.go's Start/Stop orchestration
// and its independent dispatch/result/timeout loops — generalized here to
// the spec's producer/consumer pipeline (internal/worker) plus a standalone
// recovery loop (spec.md §4.6) instead of the teacher's raft-aware
// dispatch/timeout split.
// ============================================================================

package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ChuLiYu/beaver-queue/internal/clock"
	"github.com/ChuLiYu/beaver-queue/internal/manager"
	"github.com/ChuLiYu/beaver-queue/internal/metrics"
	"github.com/ChuLiYu/beaver-queue/internal/registry"
	"github.com/ChuLiYu/beaver-queue/internal/store"
	"github.com/ChuLiYu/beaver-queue/internal/worker"
	"github.com/ChuLiYu/beaver-queue/pkg/job"
	"github.com/google/uuid"
)

var log = slog.Default()

// Config is the spec.md §6 worker option table. The store, registry, clock
// and metrics collector are passed to New separately, and the job-id header
// name is configured on internal/httpapi.
type Config struct {
	WorkerID                     uuid.UUID
	MaximumConcurrency           int
	MaximumQueueSize             int
	PollingInterval              time.Duration
	BatchSize                    int
	JobTimeout                   time.Duration
	DefaultMaxRetries            int
	RetryDelayBaseSeconds        float64
	EnableDistributedJobRecovery bool
	RecoveryCheckInterval        time.Duration
}

// Controller coordinates one running worker instance: the producer/consumer
// pipeline (internal/worker), the independent recovery loop, and the job
// manager/store/registry it both depend on.
type Controller struct {
	cfg      Config
	store    store.Store
	manager  *manager.Manager
	registry *registry.Registry
	pool     *worker.Pool
	metrics  *metrics.Collector
	clock    clock.Clock

	ctx    context.Context
	cancel context.CancelFunc

	recoveryWG     sync.WaitGroup
	recoveryStopCh chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

// New constructs a Controller. mc may be nil to disable metrics.
func New(cfg Config, st store.Store, reg *registry.Registry, clk clock.Clock, mc *metrics.Collector) *Controller {
	if clk == nil {
		clk = clock.New()
	}
	mgr := manager.New(st, clk, manager.Config{
		DefaultMaxRetries:     cfg.DefaultMaxRetries,
		RetryDelayBaseSeconds: cfg.RetryDelayBaseSeconds,
	}, mc)

	pool := worker.NewPool(mgr, reg, clk, worker.Config{
		WorkerID:           cfg.WorkerID,
		MaximumConcurrency: cfg.MaximumConcurrency,
		MaximumQueueSize:   cfg.MaximumQueueSize,
		PollingInterval:    cfg.PollingInterval,
		BatchSize:          cfg.BatchSize,
		JobTimeout:         cfg.JobTimeout,
	})

	return &Controller{
		cfg:            cfg,
		store:          st,
		manager:        mgr,
		registry:       reg,
		pool:           pool,
		metrics:        mc,
		clock:          clk,
		recoveryStopCh: make(chan struct{}),
	}
}

// Start launches the producer/consumer pipeline and, when the store
// supports it and recovery is enabled, the independent recovery loop
// (spec.md §4.6: "any live instance may run it... safe for multiple
// instances to run it concurrently because the store's per-job action is
// atomic").
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	c.ctx, c.cancel = context.WithCancel(context.Background())

	if err := c.pool.Start(c.ctx); err != nil {
		return err
	}

	if c.cfg.EnableDistributedJobRecovery && c.store.SupportsJobRecovery() {
		c.recoveryWG.Add(1)
		go c.recoveryLoop()
	}

	log.Info("controller started",
		"worker_id", c.cfg.WorkerID,
		"concurrency", c.cfg.MaximumConcurrency,
		"recovery_enabled", c.cfg.EnableDistributedJobRecovery && c.store.SupportsJobRecovery())
	return nil
}

// recoveryLoop periodically reclaims stuck in-progress jobs (spec.md §4.6).
func (c *Controller) recoveryLoop() {
	defer c.recoveryWG.Done()

	ticker := time.NewTicker(c.cfg.RecoveryCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.recoveryStopCh:
			return
		case <-ticker.C:
			start := c.clock.Now()
			threshold := start.Add(-c.cfg.JobTimeout)
			count, err := c.store.RecoverStuckJobs(c.ctx, threshold, c.cfg.DefaultMaxRetries)
			if err != nil {
				log.Error("recovery pass failed", "error", err)
				continue
			}
			if c.metrics != nil {
				c.metrics.RecordRecovered(count)
				c.metrics.SetRecoveryPassDuration(c.clock.Now().Sub(start).Seconds())
			}
			if count > 0 {
				log.Info("recovery pass reclaimed jobs", "count", count)
			}
		}
	}
}

// Submit proxies to the job manager, for the HTTP binding layer.
func (c *Controller) Submit(ctx context.Context, name string, payload []byte, snap job.Snapshot, maxRetries *int) (job.Job, error) {
	return c.manager.Submit(ctx, name, payload, snap, maxRetries)
}

// GetJob proxies to the job manager, for the HTTP binding layer.
func (c *Controller) GetJob(ctx context.Context, id uuid.UUID) (job.Job, error) {
	return c.manager.GetJob(ctx, id)
}

// Registry exposes the handler registry so callers can register handlers
// before Start.
func (c *Controller) Registry() *registry.Registry { return c.registry }

// Stop gracefully shuts down the controller within a bounded grace window:
// cancelling the shared context immediately bounds any in-flight handler
// invocation (it observes cancellation at its next suspension point,
// spec.md §5), then the producer/consumer pipeline and recovery loop are
// told to stop and we wait for both to drain.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	log.Info("stopping controller")

	if c.cancel != nil {
		c.cancel()
	}
	c.pool.Stop()

	close(c.recoveryStopCh)
	c.recoveryWG.Wait()

	log.Info("controller stopped")
}
