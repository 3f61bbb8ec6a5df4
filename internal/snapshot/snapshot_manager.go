// ============================================================================
// Beaver Queue Snapshot Manager - System State Persistence
// ============================================================================
//
// Package: internal/snapshot
// File: snapshot_manager.go
// Purpose: Periodic local-store state saves for fast crash recovery
//          (spec.md §10: opt-in durability layered on the local store).
//
// Snapshot Strategy:
//   Hybrid approach with periodic snapshots + WAL:
//
//   Timeline:
//   ├─ Snapshot 1 (T1)
//   ├─ WAL entry 1
//   ├─ WAL entry 2
//   ├─ WAL entry 3
//   ├─ Snapshot 2 (T2)  ← Latest snapshot
//   ├─ WAL entry 4      ← Needs replay
//   └─ WAL entry 5      ← Needs replay
//
//   Recovery (internal/store/local.NewDurable) loads the latest snapshot
//   only; WAL entries written after it are not replayed.
//
// Atomic Writes:
//   To prevent corruption from mid-write crashes:
//   1. Write to temp file snapshot.json.tmp
//   2. Call os.Rename() when complete (atomic under POSIX)
//   3. Ensures snapshot is either complete or non-existent
//
// Error Handling:
//   - No snapshot file (first startup): Load returns an empty Data and a
//     nil error; ErrSnapshotNotFound is declared but Load does not return it
//   - ErrCorruptedSnapshot: JSON parse failure, corrupted
//   - ErrIncompatibleVersion: schema version mismatch
// ============================================================================

package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ChuLiYu/beaver-queue/pkg/job"
)

var (
	ErrCorruptedSnapshot   = errors.New("snapshot file is corrupted")
	ErrIncompatibleVersion = errors.New("snapshot schema version is incompatible")
	ErrSnapshotNotFound    = errors.New("snapshot file not found")
)

const currentSchemaVer = 1

// Data is the full local-store state captured by a snapshot: every job held
// by internal/store/local.Store.Snapshot(), plus the WAL sequence number the
// snapshot is consistent as of.
type Data struct {
	Jobs      []job.Job `json:"jobs"`
	SchemaVer int       `json:"schema_ver"`
	LastSeq   uint64    `json:"last_seq"`
}

// Manager handles snapshot persistence.
type Manager struct {
	path string
	mu   sync.Mutex
}

// NewManager creates a snapshot manager instance writing to path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Write atomically writes a snapshot to disk: write to a temp file, then
// os.Rename into place, so a crash mid-write never leaves a partial
// snapshot.json behind.
func (m *Manager) Write(data Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data.SchemaVer = currentSchemaVer

	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot from disk, returning an empty Data with no error
// if no snapshot has ever been written (first startup).
func (m *Manager) Load() (Data, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var data Data
	jsonBytes, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Data{Jobs: nil, SchemaVer: currentSchemaVer, LastSeq: 0}, nil
		}
		return data, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return data, fmt.Errorf("%w: %v", ErrCorruptedSnapshot, err)
	}
	if data.SchemaVer != currentSchemaVer {
		return data, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, data.SchemaVer, currentSchemaVer)
	}
	return data, nil
}

// Exists reports whether a snapshot file is present.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// GetPath returns the snapshot file path, for status reporting and tests.
func (m *Manager) GetPath() string {
	return m.path
}

// WriteWithBackup renames any existing snapshot aside (timestamped) before
// writing the new one, so a botched snapshot cycle leaves a recoverable
// prior version rather than nothing. keepBackups is currently unused beyond
// documenting intent; pruning old backups is left to an external retention
// job rather than this process.
func (m *Manager) WriteWithBackup(data Data, keepBackups int) error {
	m.mu.Lock()
	if m.exists() {
		backupPath := fmt.Sprintf("%s.%s", m.path, time.Now().Format("20060102_150405"))
		if err := os.Rename(m.path, backupPath); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("failed to backup old snapshot: %w", err)
		}
	}
	m.mu.Unlock()

	return m.Write(data)
}

func (m *Manager) exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}
