package wal

// ============================================================================
// WAL Utility Functions
// Purpose: Provide WAL-related helper functionality
// ============================================================================

import (
	"encoding/json"
	"io"
	"os"
)

// GetLastEvent reads the last event from a WAL file by scanning it from the
// start, returning ErrEmptyWAL if the file has no complete records.
//
// NewWAL calls this once at startup to resume numbering from the prior
// seq; a full scan is acceptable there since it only runs once per process
// lifetime, not per append.
func GetLastEvent(path string) (*Event, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrEmptyWAL
		}
		return nil, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	var last *Event
	for {
		var event Event
		if err := decoder.Decode(&event); err != nil {
			if err == io.EOF {
				break
			}
			if last != nil {
				// Trailing partial/corrupted record after at least one good
				// one: treat the last fully-decoded event as authoritative.
				break
			}
			return nil, &CorruptionError{Cause: err}
		}
		e := event
		last = &e
	}
	if last == nil {
		return nil, ErrEmptyWAL
	}
	return last, nil
}
