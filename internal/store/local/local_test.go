package local_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ChuLiYu/beaver-queue/internal/clock"
	"github.com/ChuLiYu/beaver-queue/internal/store/local"
	"github.com/ChuLiYu/beaver-queue/pkg/job"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueuedJob() job.Job {
	now := time.Now().UTC()
	return job.Job{
		ID:            uuid.New(),
		Name:          "send-email",
		Status:        job.StatusQueued,
		MaxRetries:    3,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

func TestCreateAndGetJob(t *testing.T) {
	ctx := context.Background()
	st := local.New(clock.New())
	j := newQueuedJob()

	require.NoError(t, st.CreateJob(ctx, j))
	got, err := st.GetJobByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)
	assert.Equal(t, job.StatusQueued, got.Status)
}

func TestCreateJobDuplicateIDFails(t *testing.T) {
	ctx := context.Background()
	st := local.New(clock.New())
	j := newQueuedJob()

	require.NoError(t, st.CreateJob(ctx, j))
	err := st.CreateJob(ctx, j)
	require.Error(t, err)
	je, ok := err.(*job.Error)
	require.True(t, ok)
	assert.Equal(t, job.CodeJobCreateFailed, je.Code)
}

func TestGetJobByIDNotFound(t *testing.T) {
	ctx := context.Background()
	st := local.New(clock.New())
	_, err := st.GetJobByID(ctx, uuid.New())
	require.Error(t, err)
	je, ok := err.(*job.Error)
	require.True(t, ok)
	assert.Equal(t, job.CodeJobNotFound, je.Code)
}

func TestUpdateJobCompareAndSetConflict(t *testing.T) {
	ctx := context.Background()
	st := local.New(clock.New())
	j := newQueuedJob()
	require.NoError(t, st.CreateJob(ctx, j))

	workerID := uuid.New()
	claimed, ok, err := st.ClaimNextJobForWorker(ctx, workerID)
	require.NoError(t, err)
	require.True(t, ok)

	stale := j // pre-claim snapshot, now out of date
	next, err := stale.MoveTo(job.StatusCompleted, time.Now().UTC())
	require.NoError(t, err)

	err = st.UpdateJob(ctx, stale, next)
	require.Error(t, err)
	je, ok := err.(*job.Error)
	require.True(t, ok)
	assert.Equal(t, job.CodeJobUpdateConflict, je.Code)

	next2, err := claimed.MoveTo(job.StatusCompleted, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, st.UpdateJob(ctx, claimed, next2))
}

// TestClaimNextJobForWorker_NoneEligible covers the "nil means nothing
// eligible, not an error" half of spec.md §4.2.
func TestClaimNextJobForWorker_NoneEligible(t *testing.T) {
	ctx := context.Background()
	st := local.New(clock.New())
	_, ok, err := st.ClaimNextJobForWorker(ctx, uuid.New())
	require.NoError(t, err)
	require.False(t, ok)
}

// TestClaimNextJobForWorker_OrderingPrefersOldestCreatedAt is spec.md §8
// property 8: given two eligible jobs with distinct createdAt, the first
// claim returns the one with the earlier createdAt.
func TestClaimNextJobForWorker_OrderingPrefersOldestCreatedAt(t *testing.T) {
	ctx := context.Background()
	st := local.New(clock.New())

	older := newQueuedJob()
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := newQueuedJob()
	newer.CreatedAt = time.Now().UTC()

	// Insert the newer job first so map iteration order can't accidentally
	// produce the right answer.
	require.NoError(t, st.CreateJob(ctx, newer))
	require.NoError(t, st.CreateJob(ctx, older))

	claimed, ok, err := st.ClaimNextJobForWorker(ctx, uuid.New())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, older.ID, claimed.ID)
}

// TestClaimNextJobForWorker_SingleClaimUnderConcurrency is spec.md §8
// scenario S5 and property 3/4, run against the local store: seed one
// Queued job, spawn 10 concurrent claimNext calls with distinct worker ids,
// and expect exactly one call to observe the job.
func TestClaimNextJobForWorker_SingleClaimUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	st := local.New(clock.New())
	seeded := newQueuedJob()
	require.NoError(t, st.CreateJob(ctx, seeded))

	const numWorkers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners []job.Job
	var winnerWorkerIDs []uuid.UUID

	for i := 0; i < numWorkers; i++ {
		workerID := uuid.New()
		wg.Add(1)
		go func(workerID uuid.UUID) {
			defer wg.Done()
			claimed, ok, err := st.ClaimNextJobForWorker(ctx, workerID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				winners = append(winners, claimed)
				winnerWorkerIDs = append(winnerWorkerIDs, workerID)
				mu.Unlock()
			}
		}(workerID)
	}
	wg.Wait()

	require.Len(t, winners, 1, "exactly one of %d concurrent claimers must win the single seeded job", numWorkers)
	assert.Equal(t, seeded.ID, winners[0].ID)
	require.NotNil(t, winners[0].WorkerID)
	assert.Equal(t, winnerWorkerIDs[0], *winners[0].WorkerID)

	stored, err := st.GetJobByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusInProgress, stored.Status)
	assert.Equal(t, winnerWorkerIDs[0], *stored.WorkerID)
}

// TestClaimNextJobForWorker_ConcurrentClaimsAcrossManyJobs spawns more
// workers than jobs concurrently to further stress the single-claim
// invariant: the number of successful claims must exactly equal the number
// of seeded jobs, and no two workers may ever observe the same job.
func TestClaimNextJobForWorker_ConcurrentClaimsAcrossManyJobs(t *testing.T) {
	ctx := context.Background()
	st := local.New(clock.New())

	const numJobs = 20
	seeded := make([]job.Job, 0, numJobs)
	for i := 0; i < numJobs; i++ {
		j := newQueuedJob()
		require.NoError(t, st.CreateJob(ctx, j))
		seeded = append(seeded, j)
	}

	const numWorkers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	claimedIDs := make(map[uuid.UUID]int)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID uuid.UUID) {
			defer wg.Done()
			claimed, ok, err := st.ClaimNextJobForWorker(ctx, workerID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				claimedIDs[claimed.ID]++
				mu.Unlock()
			}
		}(uuid.New())
	}
	wg.Wait()

	assert.Len(t, claimedIDs, numJobs, "every seeded job must be claimed exactly once across all workers")
	for id, count := range claimedIDs {
		assert.Equal(t, 1, count, "job %s must be claimed by exactly one worker", id)
	}
}
