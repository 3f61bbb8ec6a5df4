// ============================================================================
// Shared Store — Redis-backed job persistence, multi-instance
// ============================================================================
//
// Package: internal/store/shared
// Purpose: Implement the store.Store contract against Redis so that many
// worker instances can coordinate through one backing store, with the
// atomic claim and recovery operations expressed as server-side Lua
// scripts (spec.md §4.2/§9: "Atomic claim implemented server-side as a
// scripted compare-and-set").
//
// The teacher repo's own distributed path ran over a hand-rolled Raft
// consensus module and a gRPC service defined by a .proto file that was not
// present in the retrieval pack (see DESIGN.md). Redis is substituted here
// because it is the one real shared-store client present anywhere in the
// example pack (yungbote-neurobridge-backend/internal/clients/redis), and a
// Lua-scripted compare-and-set is the idiomatic way to get the atomicity the
// spec requires out of Redis without a distributed transaction manager.
//
// Wire shape (spec.md §6, non-normative but realized concretely here):
//   - beaverq:job:{id}          string -> JSON-encoded job.Job
//   - beaverq:queue:claimable   zset   -> member=id, score=available-at (ms)
//   - beaverq:queue:inflight    zset   -> member=id, score=startedAt (ms)
// A job enters queue:claimable on CreateJob (score=CreatedAt) or on a
// failure-with-retry UpdateJob (score=RetryDelayUntil), and leaves it on
// claim. It enters queue:inflight on claim and leaves on a terminal
// transition or recovery.
// ============================================================================

package shared

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ChuLiYu/beaver-queue/pkg/job"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	keyJobPrefix = "beaverq:job:"
	keyClaimable = "beaverq:queue:claimable"
	keyInFlight  = "beaverq:queue:inflight"

	createdAtSuffix = ":created_ms"
)

func jobKey(id uuid.UUID) string { return keyJobPrefix + id.String() }

// jobCreatedAtKey holds a job's CreatedAt as a plain millisecond integer,
// alongside the JSON blob at jobKey. recoverLua reads it back to re-index a
// recovered job at its real available-at score (spec.md §4.2/§6's oldest-
// createdAt tie-break) without having to parse the RFC3339Nano timestamp
// embedded in the JSON blob from Lua.
func jobCreatedAtKey(id uuid.UUID) string { return keyJobPrefix + id.String() + createdAtSuffix }

// Store is a Redis-backed implementation of store.Store.
type Store struct {
	rdb *goredis.Client

	claimScript   *goredis.Script
	recoverScript *goredis.Script
}

// New constructs a shared Store against an already-configured go-redis
// client, mirroring how yungbote-neurobridge-backend's SSEBus takes a ready
// *goredis.Client rather than owning connection setup itself.
func New(rdb *goredis.Client) *Store {
	return &Store{
		rdb:           rdb,
		claimScript:   goredis.NewScript(claimLua),
		recoverScript: goredis.NewScript(recoverLua),
	}
}

// CreateJob implements store.Store.
func (s *Store) CreateJob(ctx context.Context, j job.Job) error {
	encoded, err := json.Marshal(j)
	if err != nil {
		return job.Wrap(job.CodeInvalidJob, "encode job", err)
	}
	key := jobKey(j.ID)

	ok, err := s.rdb.SetNX(ctx, key, encoded, 0).Result()
	if err != nil {
		return job.Wrap(job.CodeJobStoreError, "redis SETNX", err)
	}
	if !ok {
		return job.New(job.CodeJobCreateFailed, "job already exists: "+j.ID.String())
	}

	score := availableAtScore(j)
	if err := s.rdb.ZAdd(ctx, keyClaimable, goredis.Z{Score: score, Member: j.ID.String()}).Err(); err != nil {
		return job.Wrap(job.CodeJobStoreError, "redis ZADD claimable", err)
	}

	if err := s.rdb.Set(ctx, jobCreatedAtKey(j.ID), j.CreatedAt.UnixMilli(), 0).Err(); err != nil {
		return job.Wrap(job.CodeJobStoreError, "redis SET created_ms", err)
	}
	return nil
}

// GetJobByID implements store.Store.
func (s *Store) GetJobByID(ctx context.Context, id uuid.UUID) (job.Job, error) {
	raw, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if err == goredis.Nil {
		return job.Job{}, job.New(job.CodeJobNotFound, "job not found: "+id.String())
	}
	if err != nil {
		return job.Job{}, job.Wrap(job.CodeJobStoreError, "redis GET", err)
	}
	var j job.Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return job.Job{}, job.Wrap(job.CodeJobStoreError, "decode job", err)
	}
	return j, nil
}

// UpdateJob implements store.Store. It re-reads the stored LastUpdatedAt and
// compares against prev before writing, then re-indexes the claimable/
// in-flight sorted sets to reflect next's new status. This is not a single
// atomic Redis operation (unlike ClaimNextJobForWorker/RecoverStuckJobs,
// which must be); a lost race here surfaces as JOB_UPDATE_CONFLICT and the
// caller is expected to retry from a fresh read, matching spec.md §4.2's
// "loop on compare-and-set and treat a conflict as... never as a claim".
func (s *Store) UpdateJob(ctx context.Context, prev, next job.Job) error {
	cur, err := s.GetJobByID(ctx, next.ID)
	if err != nil {
		return err
	}
	if !cur.LastUpdatedAt.Equal(prev.LastUpdatedAt) {
		return job.New(job.CodeJobUpdateConflict, "concurrent modification of job: "+next.ID.String())
	}

	encoded, err := json.Marshal(next)
	if err != nil {
		return job.Wrap(job.CodeInvalidJob, "encode job", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(next.ID), encoded, 0)
	pipe.ZRem(ctx, keyInFlight, next.ID.String())
	pipe.ZRem(ctx, keyClaimable, next.ID.String())
	if next.Status == job.StatusQueued || next.Status == job.StatusScheduled {
		pipe.ZAdd(ctx, keyClaimable, goredis.Z{Score: availableAtScore(next), Member: next.ID.String()})
	}
	if next.Status == job.StatusInProgress && next.StartedAt != nil {
		pipe.ZAdd(ctx, keyInFlight, goredis.Z{Score: float64(next.StartedAt.UnixMilli()), Member: next.ID.String()})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return job.Wrap(job.CodeJobStoreError, "redis pipeline exec", err)
	}
	return nil
}

// ClaimNextJobForWorker implements store.Store via claimLua: in one
// round-trip the script pops the lowest-score eligible member of
// queue:claimable, re-validates eligibility against the stored job (a
// Scheduled job might have been re-indexed with a future score by a racing
// writer), transitions it, and moves it into queue:inflight.
func (s *Store) ClaimNextJobForWorker(ctx context.Context, workerID uuid.UUID) (job.Job, bool, error) {
	now := time.Now().UTC()
	res, err := s.claimScript.Run(ctx, s.rdb,
		[]string{keyClaimable, keyInFlight, keyJobPrefix},
		now.UnixMilli(), workerID.String(), now.Format(time.RFC3339Nano),
	).Result()
	if err == goredis.Nil {
		return job.Job{}, false, nil
	}
	if err != nil {
		return job.Job{}, false, job.Wrap(job.CodeJobStoreError, "redis claim script", err)
	}
	raw, ok := res.(string)
	if !ok || raw == "" {
		return job.Job{}, false, nil
	}
	var claimed job.Job
	if err := json.Unmarshal([]byte(raw), &claimed); err != nil {
		return job.Job{}, false, job.Wrap(job.CodeJobStoreError, "decode claimed job", err)
	}
	return claimed, true, nil
}

// SupportsJobRecovery implements store.Store: true, unlike the local store.
func (s *Store) SupportsJobRecovery() bool { return true }

// RecoverStuckJobs implements store.Store via recoverLua: scans
// queue:inflight for members with score < threshold and, per job,
// increments RetryCount and requeues it (or marks it Failed if retries are
// exhausted), exactly the per-job-atomic, non-atomic-across-the-set
// contract in spec.md §4.2.
func (s *Store) RecoverStuckJobs(ctx context.Context, threshold time.Time, maxRetries int) (int, error) {
	res, err := s.recoverScript.Run(ctx, s.rdb,
		[]string{keyClaimable, keyInFlight, keyJobPrefix},
		threshold.UnixMilli(), maxRetries, time.Now().UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		return 0, job.Wrap(job.CodeJobStoreError, "redis recover script", err)
	}
	count, ok := res.(int64)
	if !ok {
		return 0, job.New(job.CodeJobStoreError, "unexpected recover script result")
	}
	return int(count), nil
}

func availableAtScore(j job.Job) float64 {
	if j.Status == job.StatusScheduled && j.RetryDelayUntil != nil {
		return float64(j.RetryDelayUntil.UnixMilli())
	}
	return float64(j.CreatedAt.UnixMilli())
}
