// ============================================================================
// Job Manager — submission, success/failure processing, retry scheduling
// ============================================================================
//
// Package: internal/manager
// Purpose: The spec.md §4.3 operations (submit/claimNext/processSuccess/
// processFailure/getJob), grounded on the decision point the teacher buries
// inside Controller.handleResult (success -> MarkCompleted; failure ->
// increment Attempt, >= MaxRetry -> MarkDead else -> Requeue), pulled out
// into its own unit-testable package and generalized to produce a
// retryDelayUntil instead of an immediate requeue.
// ============================================================================

package manager

import (
	"context"
	"math"
	"time"

	"github.com/ChuLiYu/beaver-queue/internal/clock"
	"github.com/ChuLiYu/beaver-queue/internal/metrics"
	"github.com/ChuLiYu/beaver-queue/internal/store"
	"github.com/ChuLiYu/beaver-queue/pkg/job"
	"github.com/google/uuid"
)

// Config holds the tunables manager.Manager needs from spec.md §6.
type Config struct {
	// DefaultMaxRetries is used when a submission does not supply its own
	// maxRetries.
	DefaultMaxRetries int
	// RetryDelayBaseSeconds is the base of the exponential backoff formula:
	// delay = RetryDelayBaseSeconds * 2^retryCount (post-increment).
	RetryDelayBaseSeconds float64
}

// Manager implements spec.md §4.3 against an injected store.Store and
// clock.Clock, with optional metrics recording.
type Manager struct {
	store   store.Store
	clock   clock.Clock
	cfg     Config
	metrics *metrics.Collector
}

// New constructs a Manager. metrics may be nil to disable metric recording.
func New(st store.Store, clk clock.Clock, cfg Config, mc *metrics.Collector) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{store: st, clock: clk, cfg: cfg, metrics: mc}
}

// Submit implements spec.md §4.3's submit: idempotent on an externally
// supplied id (snap.OptionalJobID) — if a job with that id already exists,
// it is returned unchanged rather than erroring or overwriting it.
func (m *Manager) Submit(ctx context.Context, name string, payload []byte, snap job.Snapshot, maxRetries *int) (job.Job, error) {
	if snap.OptionalJobID != nil {
		existing, err := m.store.GetJobByID(ctx, *snap.OptionalJobID)
		if err == nil {
			return existing, nil
		}
		if je, ok := err.(*job.Error); !ok || je.Code != job.CodeJobNotFound {
			return job.Job{}, err
		}
	}

	id := uuid.New()
	if snap.OptionalJobID != nil {
		id = *snap.OptionalJobID
	}

	budget := m.cfg.DefaultMaxRetries
	if maxRetries != nil {
		budget = *maxRetries
	}

	now := m.clock.Now().UTC()
	j := job.Job{
		ID:            id,
		Name:          name,
		Status:        job.StatusQueued,
		Payload:       payload,
		Headers:       snap.Headers,
		RouteParams:   snap.RouteParams,
		QueryParams:   snap.QueryParams,
		MaxRetries:    budget,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}

	if err := m.store.CreateJob(ctx, j); err != nil {
		// Idempotent-submission race: another caller created the same
		// externally supplied id between our Get and our Create.
		if snap.OptionalJobID != nil {
			if je, ok := err.(*job.Error); ok && je.Code == job.CodeJobCreateFailed {
				return m.store.GetJobByID(ctx, *snap.OptionalJobID)
			}
		}
		return job.Job{}, err
	}

	if m.metrics != nil {
		m.metrics.RecordSubmit()
	}
	return j, nil
}

// ClaimNext implements spec.md §4.3's claimNext: a thin delegate to
// store.ClaimNextJobForWorker.
func (m *Manager) ClaimNext(ctx context.Context, workerID uuid.UUID) (job.Job, bool, error) {
	claimed, ok, err := m.store.ClaimNextJobForWorker(ctx, workerID)
	if ok && m.metrics != nil {
		m.metrics.RecordClaim()
	}
	return claimed, ok, err
}

// ProcessSuccess implements spec.md §4.3's processSuccess.
func (m *Manager) ProcessSuccess(ctx context.Context, jobID uuid.UUID, result []byte) error {
	prev, err := m.store.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	now := m.clock.Now().UTC()
	next, err := prev.MoveTo(job.StatusCompleted, now)
	if err != nil {
		return err
	}
	next = next.With(func(j *job.Job) {
		j.WorkerID = nil
		j.Result = result
	})

	if err := m.store.UpdateJob(ctx, prev, next); err != nil {
		return err
	}

	if m.metrics != nil {
		m.metrics.RecordCompleted(next.CompletedAt.Sub(next.CreatedAt).Seconds())
	}
	return nil
}

// ProcessFailure implements spec.md §4.3's processFailure: if retries
// remain, the job is rescheduled with exponential backoff (§4.5); otherwise
// it is moved to Failed.
func (m *Manager) ProcessFailure(ctx context.Context, jobID uuid.UUID, failure *job.Error) error {
	prev, err := m.store.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	now := m.clock.Now().UTC()

	if prev.RetryCount < prev.MaxRetries {
		newRetryCount := prev.RetryCount + 1
		delay := m.backoff(newRetryCount)
		delayUntil := now.Add(delay)

		// InProgress has no direct edge to Scheduled; the retry path runs
		// through Failed. The Failed hop is never stored, so the CompletedAt
		// it stamps is not kept.
		failed, err := prev.MoveTo(job.StatusFailed, now)
		if err != nil {
			return err
		}
		next, err := failed.MoveTo(job.StatusScheduled, now)
		if err != nil {
			return err
		}
		next = next.With(func(j *job.Job) {
			j.WorkerID = nil
			j.RetryCount = newRetryCount
			j.RetryDelayUntil = &delayUntil
			j.Error = failure
			j.CompletedAt = prev.CompletedAt
		})

		if err := m.store.UpdateJob(ctx, prev, next); err != nil {
			return err
		}
		if m.metrics != nil {
			m.metrics.RecordRetried()
		}
		return nil
	}

	next, err := prev.MoveTo(job.StatusFailed, now)
	if err != nil {
		return err
	}
	next = next.With(func(j *job.Job) {
		j.WorkerID = nil
		j.Error = failure
	})

	if err := m.store.UpdateJob(ctx, prev, next); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.RecordDead(next.CompletedAt.Sub(next.CreatedAt).Seconds())
	}
	return nil
}

// GetJob implements spec.md §4.3's getJob: a thin read-through.
func (m *Manager) GetJob(ctx context.Context, id uuid.UUID) (job.Job, error) {
	return m.store.GetJobByID(ctx, id)
}

// Cancel is the privileged, administrative-only path onto the Canceled
// state (spec.md §9 Open Question: the state machine keeps Completed ->
// Canceled and other -> Canceled edges legal, but no ordinary submit/
// process flow exposes them). Not wired to internal/httpapi.
func (m *Manager) Cancel(ctx context.Context, jobID uuid.UUID) error {
	prev, err := m.store.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	now := m.clock.Now().UTC()
	next, err := prev.MoveTo(job.StatusCanceled, now)
	if err != nil {
		return err
	}
	next = next.With(func(j *job.Job) { j.WorkerID = nil })
	return m.store.UpdateJob(ctx, prev, next)
}

// backoff computes the spec.md §4.5 delay for the Nth retry (1-based,
// post-increment): base * 2^N seconds.
func (m *Manager) backoff(retryCount int) time.Duration {
	seconds := m.cfg.RetryDelayBaseSeconds * math.Pow(2, float64(retryCount))
	return time.Duration(seconds * float64(time.Second))
}
