package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	collector := NewCollector()

	require.NotNil(t, collector)
	assert.NotNil(t, collector.jobsSubmitted)
	assert.NotNil(t, collector.jobsClaimed)
	assert.NotNil(t, collector.jobsCompleted)
	assert.NotNil(t, collector.jobsRetried)
	assert.NotNil(t, collector.jobsDead)
	assert.NotNil(t, collector.jobsRecovered)
	assert.NotNil(t, collector.jobLatency)
	assert.NotNil(t, collector.recoveryTime)
	assert.NotNil(t, collector.queueDepth)
	assert.NotNil(t, collector.jobsInFlight)
}

func TestRecordSubmit(t *testing.T) {
	collector := NewCollector()
	assert.NotPanics(t, func() {
		for i := 0; i < 5; i++ {
			collector.RecordSubmit()
		}
	})
}

func TestRecordClaim(t *testing.T) {
	collector := NewCollector()
	assert.NotPanics(t, func() {
		for i := 0; i < 10; i++ {
			collector.RecordClaim()
		}
	})
}

func TestRecordCompleted(t *testing.T) {
	collector := NewCollector()
	for _, latency := range []float64{0.001, 0.01, 0.1, 1.0, 5.0} {
		assert.NotPanics(t, func() {
			collector.RecordCompleted(latency)
		}, "RecordCompleted should not panic with latency %f", latency)
	}
}

func TestRecordRetried(t *testing.T) {
	collector := NewCollector()
	assert.NotPanics(t, func() {
		for i := 0; i < 3; i++ {
			collector.RecordRetried()
		}
	})
}

func TestRecordDead(t *testing.T) {
	collector := NewCollector()
	assert.NotPanics(t, func() {
		for i := 0; i < 2; i++ {
			collector.RecordDead(1.5)
		}
	})
}

func TestRecordRecovered(t *testing.T) {
	collector := NewCollector()
	assert.NotPanics(t, func() {
		collector.RecordRecovered(3)
	})
}

func TestSetRecoveryPassDuration(t *testing.T) {
	collector := NewCollector()
	for _, rt := range []float64{0.001, 0.5, 1.5, 3.0} {
		assert.NotPanics(t, func() {
			collector.SetRecoveryPassDuration(rt)
		}, "SetRecoveryPassDuration should not panic with time %f", rt)
	}
}

func TestUpdateQueueStats(t *testing.T) {
	collector := NewCollector()

	testCases := []struct {
		name       string
		queueDepth int
		inFlight   int
	}{
		{"zero values", 0, 0},
		{"normal values", 10, 5},
		{"high queue depth", 100, 8},
		{"high in-flight", 5, 50},
		{"equal values", 20, 20},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				collector.UpdateQueueStats(tc.queueDepth, tc.inFlight)
			})
		})
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	collector := NewCollector()

	done := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func() {
			collector.RecordSubmit()
			collector.RecordClaim()
			collector.RecordCompleted(0.1)
			collector.UpdateQueueStats(10, 5)
			done <- true
		}()
	}
	for i := 0; i < 100; i++ {
		<-done
	}
}

// TestCollectorIsolation verifies each Collector owns a private registry,
// so a process can construct more than one (one per test, say) without the
// duplicate-registration panic a shared global registry would cause.
func TestCollectorIsolation(t *testing.T) {
	collector1 := NewCollector()
	collector2 := NewCollector()

	require.NotNil(t, collector1)
	require.NotNil(t, collector2)
	assert.NotPanics(t, func() {
		collector1.RecordSubmit()
		collector2.RecordSubmit()
	})
}

func TestMetricOperationSequence(t *testing.T) {
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordSubmit()
		collector.UpdateQueueStats(1, 0)

		collector.RecordClaim()
		collector.UpdateQueueStats(0, 1)

		collector.RecordCompleted(0.5)
		collector.UpdateQueueStats(0, 0)
	})
}

func TestMetricOperationWithRetryAndDead(t *testing.T) {
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordSubmit()
		collector.RecordClaim()
		collector.RecordRetried()
		collector.RecordDead(4.0)
	})
}

func TestRecoveryScenario(t *testing.T) {
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.SetRecoveryPassDuration(2.5)
		collector.RecordRecovered(5)
		collector.UpdateQueueStats(50, 0)
		collector.RecordClaim()
		collector.RecordCompleted(0.1)
	})
}

func TestZeroAndNegativeValues(t *testing.T) {
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordCompleted(0.0)
		collector.SetRecoveryPassDuration(0.0)
		collector.UpdateQueueStats(0, 0)
		collector.UpdateQueueStats(-1, -1)
	})
}
