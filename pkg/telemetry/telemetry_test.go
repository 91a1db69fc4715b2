package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingWrapsAtCapacity(t *testing.T) {
	h := New(3)
	for i := 0; i < 5; i++ {
		h.Record(TagConnectionResult, map[string]any{"i": i})
	}
	snap := h.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, 2, snap[0].Context["i"])
	assert.Equal(t, 4, snap[2].Context["i"])
}

func TestSnapshotBeforeFullReturnsPartial(t *testing.T) {
	h := New(5)
	h.Record(TagRetryDelay, nil)
	h.Record(TagRetryDelay, nil)
	assert.Len(t, h.Snapshot(), 2)
}

func TestCountersAccumulate(t *testing.T) {
	h := New(5)
	h.RecordConnectionAttempt()
	h.RecordConnectionAttempt()
	h.RecordConnectionSuccess()
	h.RecordPacketsReceived(10)
	h.RecordBytesReceived(1500)

	c := h.Counters()
	assert.Equal(t, uint64(2), c.ConnectionAttempts)
	assert.Equal(t, uint64(1), c.ConnectionSuccesses)
	assert.Equal(t, uint64(10), c.PacketsReceived)
	assert.Equal(t, uint64(1500), c.BytesReceived)
}

func TestExportJSONIsValid(t *testing.T) {
	h := New(5)
	h.Record(TagPatternDetected, map[string]any{"pattern": "stable"})
	data, err := h.ExportJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), "pattern-detected")
}
