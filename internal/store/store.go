// Package store defines the persistence contract the job manager depends on
// (spec.md §4.2): per-job CRUD, an atomic claim, and optional stuck-job
// recovery, behind one interface with two implementations — an in-process
// map (internal/store/local) and a Redis-backed shared store
// (internal/store/shared).
package store

import (
	"context"
	"time"

	"github.com/ChuLiYu/beaver-queue/pkg/job"
	"github.com/google/uuid"
)

// Store is the persistence abstraction the job manager and worker pool
// operate against. Every method fails with a *job.Error carrying a taxonomy
// code (spec.md §7); ok == false with a nil error from
// ClaimNextJobForWorker means "nothing eligible", not a fault.
type Store interface {
	// CreateJob persists j. Fails with job.CodeJobCreateFailed if j.ID
	// already exists.
	CreateJob(ctx context.Context, j job.Job) error

	// GetJobByID returns the stored job, or job.CodeJobNotFound.
	GetJobByID(ctx context.Context, id uuid.UUID) (job.Job, error)

	// UpdateJob persists next using compare-and-set against prev, the
	// snapshot next was derived from (normally via prev.With(...) or
	// prev.MoveTo(...)). If the job currently stored no longer matches prev's
	// LastUpdatedAt, the write is rejected with job.CodeJobUpdateConflict.
	UpdateJob(ctx context.Context, prev, next job.Job) error

	// ClaimNextJobForWorker atomically selects one eligible job (oldest
	// CreatedAt first), transitions it to InProgress owned by workerID, and
	// returns it with ok == true. Returns a zero Job, ok == false and a nil
	// error when nothing is eligible.
	ClaimNextJobForWorker(ctx context.Context, workerID uuid.UUID) (job.Job, bool, error)

	// SupportsJobRecovery reports whether RecoverStuckJobs is implemented.
	SupportsJobRecovery() bool

	// RecoverStuckJobs requeues (or kills) every InProgress job whose
	// StartedAt is older than threshold. Only valid when
	// SupportsJobRecovery() is true; calling it otherwise is a programming
	// error.
	RecoverStuckJobs(ctx context.Context, threshold time.Time, maxRetries int) (int, error)
}
