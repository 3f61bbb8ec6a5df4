// ============================================================================
// Beaver Queue WAL (Write-Ahead Log) - Write-Ahead Log Implementation
// ============================================================================
//
// Package: internal/storage/wal
// File: wal.go
// Purpose: Implement WAL mechanism to ensure data persistence and crash recovery
//          for the local store (spec.md §10: opt-in durability; the local
//          store itself stays a plain in-process map, see internal/store/local).
//
// WAL Concept:
//   In this repository the log is an append-only record of job lifecycle
//   events:
//   1. internal/store/local.Durable appends an event after the in-memory
//      store has accepted a create, a claim, or a move to Completed,
//      Scheduled, Failed or Canceled
//   2. Append returns once the batch holding its event has been fsynced
//   3. Replay reads the events back in order; the durable store does not
//      replay them on restart, it restores state from the latest snapshot
//
// Data Format:
//   Each WAL record contains:
//   {
//     "seq": 12345,              // Sequence number, monotonically increasing
//     "type": "CLAIMED",         // Event type
//     "timestamp": 1698765432000, // Unix millisecond timestamp
//     "job_id": "...",           // Job ID
//     "checksum": 123456         // CRC32 checksum
//   }
//
// Batch Write Optimization:
//   To improve performance, use batch write strategy:
//   - Events first accumulate in memory buffer
//   - Flush to disk when batch size reached or timeout
//   - Reduce fsync call count (fsync is expensive)
//   - Trade-off: Latency vs Throughput
//
// Data Integrity:
//   - Checksum: Each record includes checksum
//   - Atomic Write: Use append-only mode
//   - Fsync: Ensure data actually written to disk
//   - Replay stops with an error at the first corrupted record or
//     checksum mismatch
// ============================================================================

package wal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileInterface defines the methods required for file operations. This
// allows mocking file operations in tests.
type FileInterface interface {
	Write(p []byte) (n int, err error)
	Sync() error
	Close() error
}

// batchRequest represents a single append request with response channel
type batchRequest struct {
	event Event
	errCh chan error
}

// WAL represents a Write-Ahead Log instance
type WAL struct {
	mu      sync.Mutex    // Protects concurrent writes
	file    FileInterface // WAL file
	encoder *json.Encoder // JSON encoder
	path    string        // WAL file path
	seq     uint64        // Current event sequence number

	// Batch commit fields
	batchChan     chan batchRequest // Channel for batch requests
	bufferSize    int               // Max batch size before flush
	flushInterval time.Duration     // Max time between flushes
	closed        chan struct{}     // Close signal
	wg            sync.WaitGroup    // Wait for batch writer to finish
	isClosed      bool              // Flag to prevent double close/rotate
}

// SnapshotData represents the metadata for a snapshot. This is used to
// integrate WAL with snapshot recovery.
type SnapshotData struct {
	LastSeq uint64 // The last sequence number included in the snapshot
}

// ============================================================================
// Public Interface
// ============================================================================

// NewWAL creates a new WAL instance with async batch commit.
//
// Parameters:
//   - path: WAL file path
//   - bufferSize: max events per batch (e.g., 100)
//   - flushInterval: max time between flushes (e.g., 10ms)
//
// Performance:
//   - bufferSize=100, flushInterval=10ms → ~10,000 events/s on SSD
//   - bufferSize=500, flushInterval=50ms → ~100,000 events/s (higher latency)
func NewWAL(path string, bufferSize int, flushInterval time.Duration) (*WAL, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	encoder := json.NewEncoder(file)

	var seq uint64 = 0
	if lastEvent, err := GetLastEvent(path); err == nil && lastEvent != nil {
		seq = lastEvent.Seq
	} else if err != nil && err != ErrEmptyWAL {
		fmt.Printf("Warning: failed to get last event, starting from seq=0: %v\n", err)
	}

	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Millisecond
	}

	w := &WAL{
		file:    file,
		encoder: encoder,
		path:    path,
		seq:     seq,

		batchChan:     make(chan batchRequest, bufferSize*2),
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		closed:        make(chan struct{}),
	}

	w.wg.Add(1)
	go w.batchWriter()

	return w, nil
}

// Append appends an event to WAL with async batch commit.
//
// Behavior:
// - Sends event to background batch writer (non-blocking)
// - Waits for batch to be flushed to disk
// - Returns error if flush fails
//
// Performance:
// - Multiple concurrent Append() calls are batched together
// - Only one fsync() per batch (10-100x throughput improvement)
func (w *WAL) Append(eventType EventType, jobID uuid.UUID, retryCount int) error {
	w.mu.Lock()
	if w.isClosed {
		w.mu.Unlock()
		return ErrWALClosed
	}
	w.seq++
	seq := w.seq
	w.mu.Unlock()

	event := Event{
		Seq:        seq,
		Type:       eventType,
		JobID:      jobID,
		Timestamp:  time.Now().UnixMilli(),
		RetryCount: retryCount,
	}
	event.Checksum = CalculateChecksum(event.Type, event.JobID, event.Seq)

	errCh := make(chan error, 1)
	select {
	case w.batchChan <- batchRequest{event: event, errCh: errCh}:
		return <-errCh
	case <-w.closed:
		return fmt.Errorf("WAL is closed")
	}
}

// Replay replays all WAL events in order, verifying each record's checksum
// and stopping on the first error the handler or a corrupted record
// produces.
func (w *WAL) Replay(handler EventHandler) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("failed to open WAL for replay: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	for {
		var event Event
		err := decoder.Decode(&event)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to decode event: %w", err)
		}
		if !VerifyChecksum(event) {
			return &ChecksumError{Seq: event.Seq, Expected: CalculateChecksum(event.Type, event.JobID, event.Seq), Actual: event.Checksum}
		}
		if err := handler(event); err != nil {
			return err
		}
	}
	return nil
}

// Rotate rotates the log file: the current file is renamed aside and a
// fresh, empty WAL is opened at path with seq reset to 0. Callers rotate
// immediately after a snapshot is durably written, so the renamed file only
// needs to be retained until the snapshot is confirmed.
func (w *WAL) Rotate() error {
	w.mu.Lock()
	if w.isClosed {
		w.mu.Unlock()
		return fmt.Errorf("WAL is closed or rotating")
	}
	w.isClosed = true
	w.mu.Unlock()

	close(w.closed)
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Close(); err != nil {
		return err
	}

	backupPath := w.path + "." + time.Now().Format("20060102_150405")
	if err := os.Rename(w.path, backupPath); err != nil {
		return err
	}

	newFile, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	w.file = newFile
	w.encoder = json.NewEncoder(newFile)
	w.seq = 0

	w.closed = make(chan struct{})
	w.wg.Add(1)
	go w.batchWriter()

	w.isClosed = false
	return nil
}

// batchWriter runs in background to flush batches. This is the core of
// async batch commit optimization.
func (w *WAL) batchWriter() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]batchRequest, 0, w.bufferSize)

	for {
		select {
		case req := <-w.batchChan:
			batch = append(batch, req)
			if len(batch) >= w.bufferSize {
				w.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flushBatch(batch)
				batch = batch[:0]
			}

		case <-w.closed:
			if len(batch) > 0 {
				w.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch writes a batch of events and syncs to disk: N events, one
// fsync.
func (w *WAL) flushBatch(batch []batchRequest) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var flushErr error
	for i := range batch {
		if err := w.encoder.Encode(batch[i].event); err != nil {
			flushErr = fmt.Errorf("failed to encode event: %w", err)
			break
		}
	}
	if flushErr == nil {
		if err := w.file.Sync(); err != nil {
			flushErr = fmt.Errorf("failed to sync WAL: %w", err)
		}
	}

	for i := range batch {
		batch[i].errCh <- flushErr
		close(batch[i].errCh)
	}
}

// Close closes the WAL gracefully, ensuring all pending batches are flushed
// before closing. The instance must not be reused after Close.
func (w *WAL) Close() error {
	w.mu.Lock()
	if w.isClosed {
		w.mu.Unlock()
		return nil
	}
	w.isClosed = true
	w.mu.Unlock()

	close(w.closed)
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// GetLastSeq returns the current event sequence number, used to record
// last_seq when taking a snapshot so replay knows where to resume from.
func (w *WAL) GetLastSeq() uint64 {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}
