package wal

// ============================================================================
// Checksum Calculation
// Responsibility: Calculate and verify CRC32 checksum for WAL events
// ============================================================================

import (
	"hash/crc32"
	"strconv"

	"github.com/google/uuid"
)

// CalculateChecksum calculates the CRC32 checksum for an event.
//
// Combines Type + JobID + Seq (excluding Timestamp, which legitimately
// changes between the original write and any re-derivation) using
// CRC32-IEEE.
func CalculateChecksum(eventType EventType, jobID uuid.UUID, seq uint64) uint32 {
	data := string(eventType) + jobID.String() + strconv.FormatUint(seq, 10)
	return crc32.ChecksumIEEE([]byte(data))
}

// VerifyChecksum reports whether event's stored checksum matches a
// recalculation from its Type/JobID/Seq.
func VerifyChecksum(event Event) bool {
	expected := CalculateChecksum(event.Type, event.JobID, event.Seq)
	return event.Checksum == expected
}
