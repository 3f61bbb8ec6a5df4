package wal

import "github.com/google/uuid"

// ============================================================================
// WAL Type Definitions
// Responsibility: Define core data structures for WAL
// ============================================================================

// EventType identifies the kind of job state change a WAL record describes.
// These map onto the legal transitions in pkg/job/transitions.go rather than
// the job's full field set: the WAL exists to let the local store rebuild
// status/retry bookkeeping after a crash, not to replay payload/result bytes.
type EventType string

const (
	EventSubmitted EventType = "SUBMITTED" // job created, enqueued
	EventClaimed   EventType = "CLAIMED"   // job claimed by a worker
	EventCompleted EventType = "COMPLETED" // job finished successfully
	EventRetried   EventType = "RETRIED"   // job failed, requeued with backoff
	EventFailed    EventType = "FAILED"    // job exhausted retries
	EventCanceled  EventType = "CANCELED"  // job canceled
)

// Event represents a WAL event record.
type Event struct {
	Seq       uint64    `json:"seq"`       // Event sequence number (monotonically increasing)
	Type      EventType `json:"type"`      // Event type
	JobID     uuid.UUID `json:"job_id"`    // Job ID
	Timestamp int64     `json:"timestamp"` // Unix millisecond timestamp
	Checksum  uint32    `json:"checksum"`  // CRC32 checksum

	// RetryCount is carried on RETRIED/FAILED records so Replay can restore a
	// job's retry bookkeeping without re-reading the current job payload.
	RetryCount int `json:"retry_count,omitempty"`
}

// EventHandler is the function type for processing WAL events, used during
// Replay to apply events to system state.
type EventHandler func(event Event) error
