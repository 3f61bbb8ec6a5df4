// ============================================================================
// Local Store — in-process job persistence, single node
// ============================================================================
//
// Package: internal/store/local
// Purpose: Implement the store.Store contract as an in-process map.
//
// Grounded on internal/jobmanager/job_manager.go's JobManager: the same
// mu sync.RWMutex-guarded maps and FIFO pending order, generalized from its
// four-status model (Pending/InFlight/Completed/Dead) to the spec's six-state
// job machine, and from its bespoke Enqueue/PopPending/MarkInFlight/
// MarkCompleted/Requeue/MarkDead methods into the store.Store interface.
//
// SupportsJobRecovery is false here by design (spec.md §4.2): a single
// process does not need cross-instance stuck-job recovery, and calling
// RecoverStuckJobs on this store is a programming error, matching the
// original JobManager's single-owner assumption.
// ============================================================================

package local

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ChuLiYu/beaver-queue/internal/clock"
	"github.com/ChuLiYu/beaver-queue/pkg/job"
	"github.com/google/uuid"
)

// Store is an in-process, map-backed implementation of store.Store.
type Store struct {
	mu    sync.RWMutex
	jobs  map[uuid.UUID]job.Job
	clock clock.Clock
}

// New constructs an empty Local store. clk is the injected time source used
// to stamp LastUpdatedAt/StartedAt on claim.
func New(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{jobs: make(map[uuid.UUID]job.Job), clock: clk}
}

// CreateJob implements store.Store.
func (s *Store) CreateJob(_ context.Context, j job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[j.ID]; exists {
		return job.New(job.CodeJobCreateFailed, "job already exists: "+j.ID.String())
	}
	s.jobs[j.ID] = j.Clone()
	return nil
}

// GetJobByID implements store.Store.
func (s *Store) GetJobByID(_ context.Context, id uuid.UUID) (job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, job.New(job.CodeJobNotFound, "job not found: "+id.String())
	}
	return j.Clone(), nil
}

// UpdateJob implements store.Store, compare-and-setting against prev's
// LastUpdatedAt: if the stored job has moved on since prev was read, the
// write is rejected rather than silently clobbering a concurrent update.
func (s *Store) UpdateJob(_ context.Context, prev, next job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobs[next.ID]
	if !ok {
		return job.New(job.CodeJobNotFound, "job not found: "+next.ID.String())
	}
	if !cur.LastUpdatedAt.Equal(prev.LastUpdatedAt) {
		return job.New(job.CodeJobUpdateConflict, "concurrent modification of job: "+next.ID.String())
	}
	s.jobs[next.ID] = next.Clone()
	return nil
}

// ClaimNextJobForWorker implements store.Store. It scans all jobs ordered by
// CreatedAt and atomically (under the single store-wide lock) claims the
// first eligible one — the in-process analogue of JobManager.PopPending
// fused with MarkInFlight into a single indivisible step.
func (s *Store) ClaimNextJobForWorker(_ context.Context, workerID uuid.UUID) (job.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	candidates := make([]job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.Eligible(now) {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return job.Job{}, false, nil
	}
	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].CreatedAt.Before(candidates[k].CreatedAt)
	})

	winner := candidates[0]
	if winner.Status == job.StatusScheduled {
		// Scheduled has no direct edge to InProgress: a due retry is
		// released to Queued and claimed from there in the same step.
		released, err := winner.MoveTo(job.StatusQueued, now)
		if err != nil {
			return job.Job{}, false, err
		}
		winner = released
	}
	claimed, err := winner.MoveTo(job.StatusInProgress, now)
	if err != nil {
		return job.Job{}, false, err
	}
	claimed.WorkerID = &workerID
	claimed.RetryDelayUntil = nil
	s.jobs[claimed.ID] = claimed
	return claimed.Clone(), true, nil
}

// SupportsJobRecovery implements store.Store.
func (s *Store) SupportsJobRecovery() bool { return false }

// RecoverStuckJobs implements store.Store. Calling it on the local store is
// a programming error per spec.md §4.2.
func (s *Store) RecoverStuckJobs(context.Context, time.Time, int) (int, error) {
	panic("local store does not support job recovery; check SupportsJobRecovery before calling")
}

// Len reports the number of jobs currently held, for status/metrics use.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Snapshot returns a copy of every job currently held, for WAL/snapshot
// durability decorators to persist.
func (s *Store) Snapshot() []job.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	return out
}

// Restore replaces the store's contents wholesale with jobs, used by the WAL
// durability decorator to rebuild state after a restart.
func (s *Store) Restore(jobs []job.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[uuid.UUID]job.Job, len(jobs))
	for _, j := range jobs {
		s.jobs[j.ID] = j.Clone()
	}
}
