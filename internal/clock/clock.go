// Package clock provides the injected time source the core relies on so
// that retry and recovery logic is deterministic in tests (spec.md §6).
//
// Production code wires facebookgo/clock's real clock; tests inject its
// Mock, which lets a test advance time explicitly instead of sleeping.
package clock

import "github.com/facebookgo/clock"

// Clock is the time source the manager, stores and recovery loop depend on.
type Clock = clock.Clock

// New returns the real wall clock.
func New() Clock {
	return clock.New()
}

// NewMock returns a fake clock started at the Unix epoch, for tests that
// need to assert on retryDelayUntil/threshold computations without sleeping.
func NewMock() *clock.Mock {
	return clock.NewMock()
}
