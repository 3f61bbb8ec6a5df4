// ============================================================================
// Beaver Queue Core Type Definitions
// ============================================================================
//
// Package: pkg/job
// Purpose: Core domain model for the asynchronous job queue
//
// Design Principles:
//   1. Value semantics - a Job is copied, never mutated in place, so that
//      stores can implement compare-and-set against a prior snapshot
//   2. Explicit state machine - only the transitions in transitions.go are
//      legal; everything else is a programming error, not a retryable fault
//   3. JSON-portable - payload/result travel as opaque bytes; headers,
//      route params and query params are snapshotted at submission time
//
// Core Types:
//   - Job: the unit of asynchronously executed work
//   - Status: lifecycle state enum
//   - Error: structured failure record carried on a Job
//
// ============================================================================

// Package job defines the Job entity and its state machine.
package job

import (
	"time"

	"github.com/google/uuid"
)

// Status represents a Job's lifecycle state.
type Status string

// Lifecycle states, per the state machine in transitions.go.
const (
	StatusQueued     Status = "queued"
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// KV is an ordered, possibly multi-valued query parameter entry. Values are
// pointers so a present-but-empty value is distinguishable from absent.
type KV struct {
	Key    string    `json:"key"`
	Values []*string `json:"values"`
}

// Job is the single central entity of the queue. It carries identity,
// lifecycle status, payload, an HTTP-context snapshot taken at submission
// time, and retry bookkeeping.
//
// Job is treated as a value: mutate via With, never by assigning fields on a
// shared pointer. Stores compare-and-set against LastUpdatedAt to detect
// lost updates (see Invariant 5 below).
//
// Invariants (spec.md §3):
//  1. WorkerID is set iff Status == InProgress.
//  2. StartedAt is set once status has ever reached InProgress; CompletedAt
//     is set once status has ever reached a terminal state.
//  3. RetryCount <= MaxRetries at all times.
//  4. RetryDelayUntil may be set only while Status == Scheduled.
//  5. LastUpdatedAt is monotonically non-decreasing for a given ID.
//  6. Only the transitions in transitions.go are permitted.
type Job struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`

	Status Status `json:"status"`

	Payload []byte `json:"payload,omitempty"`

	Headers     map[string][]*string `json:"headers,omitempty"`
	RouteParams map[string]string    `json:"route_params,omitempty"`
	QueryParams []KV                 `json:"query_params,omitempty"`

	Result []byte `json:"result,omitempty"`
	Error  *Error `json:"error,omitempty"`

	RetryCount      int        `json:"retry_count"`
	MaxRetries      int        `json:"max_retries"`
	RetryDelayUntil *time.Time `json:"retry_delay_until,omitempty"`

	WorkerID *uuid.UUID `json:"worker_id,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastUpdatedAt time.Time  `json:"last_updated_at"`
}

// Snapshot is the HTTP-context capture taken at submission time and carried
// with the job for handler use. OptionalJobID, when present, is the
// idempotency key supplied by the caller.
type Snapshot struct {
	Headers       map[string][]*string
	RouteParams   map[string]string
	QueryParams   []KV
	OptionalJobID *uuid.UUID
}

// Clone returns a deep-enough copy of j suitable for handing to a caller
// without letting them mutate the store's view. Slices/maps are copied;
// pointer fields are copied by value into fresh pointers.
func (j Job) Clone() Job {
	out := j
	if j.Payload != nil {
		out.Payload = append([]byte(nil), j.Payload...)
	}
	if j.Result != nil {
		out.Result = append([]byte(nil), j.Result...)
	}
	if j.Headers != nil {
		out.Headers = make(map[string][]*string, len(j.Headers))
		for k, v := range j.Headers {
			out.Headers[k] = append([]*string(nil), v...)
		}
	}
	if j.RouteParams != nil {
		out.RouteParams = make(map[string]string, len(j.RouteParams))
		for k, v := range j.RouteParams {
			out.RouteParams[k] = v
		}
	}
	if j.QueryParams != nil {
		out.QueryParams = append([]KV(nil), j.QueryParams...)
	}
	if j.RetryDelayUntil != nil {
		t := *j.RetryDelayUntil
		out.RetryDelayUntil = &t
	}
	if j.WorkerID != nil {
		id := *j.WorkerID
		out.WorkerID = &id
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	return out
}

// With returns a copy of j with each mutator applied, per the
// copy-with-overrides discipline the store layer relies on for
// compare-and-set (spec.md §4.1).
func (j Job) With(mutators ...func(*Job)) Job {
	next := j.Clone()
	for _, m := range mutators {
		m(&next)
	}
	return next
}

// MoveTo returns a copy of j transitioned to status `to`, validated against
// the state machine in transitions.go and with StartedAt/CompletedAt/
// LastUpdatedAt maintained per the invariants in the Job doc comment. It does
// not touch WorkerID, Payload, Result or Error — callers compose MoveTo with
// With for those.
func (j Job) MoveTo(to Status, now time.Time) (Job, error) {
	if err := Transition(j.Status, to); err != nil {
		return Job{}, err
	}
	next := j.Clone()
	next.Status = to
	next.LastUpdatedAt = now
	if to == StatusInProgress && next.StartedAt == nil {
		next.StartedAt = &now
	}
	if isTerminal(to) && next.CompletedAt == nil {
		next.CompletedAt = &now
	}
	return next, nil
}

// Eligible reports whether j may be claimed at instant now, per spec.md §4.2:
// WorkerID absent, and either Queued, or Scheduled with an elapsed delay.
func (j Job) Eligible(now time.Time) bool {
	if j.WorkerID != nil {
		return false
	}
	switch j.Status {
	case StatusQueued:
		return true
	case StatusScheduled:
		return j.RetryDelayUntil == nil || !j.RetryDelayUntil.After(now)
	default:
		return false
	}
}
