package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReturnsRequestedCapacity(t *testing.T) {
	p := New(1024 * 1024)
	buf := p.Acquire(1000)
	require.GreaterOrEqual(t, cap(buf), 1000)
	assert.Len(t, buf, 0)
}

func TestReleaseThenAcquireReuses(t *testing.T) {
	p := New(1024 * 1024)

	buf := p.Acquire(1000)
	p.Release(buf)
	_ = p.Acquire(1000)

	stats := findBucket(t, p, 1024)
	assert.Equal(t, 1, stats.Reuses)
}

func TestOversizeRequestBypassesLadder(t *testing.T) {
	p := New(1024 * 1024)
	buf := p.Acquire(20000)
	assert.GreaterOrEqual(t, cap(buf), 20000)

	// Releasing an oversize buffer is a no-op; no bucket claims it.
	p.Release(buf)
	for _, s := range p.Stats() {
		assert.Zero(t, s.CurrentBuffers)
	}
}

func TestMemoryCapPreventsRelease(t *testing.T) {
	p := New(1) // cap smaller than any bucket's size
	buf := p.Acquire(512)
	p.Release(buf)

	stats := findBucket(t, p, 512)
	assert.Zero(t, stats.CurrentBuffers, "release should be dropped once cap is exceeded")
}

func TestClearResetsMemoryUsage(t *testing.T) {
	p := New(1024 * 1024)
	p.Release(p.Acquire(512))
	assert.NotZero(t, p.MemoryUsage())

	p.Clear()
	assert.Zero(t, p.MemoryUsage())
}

func findBucket(t *testing.T, p *Pool, size int) BucketStats {
	t.Helper()
	for _, s := range p.Stats() {
		if s.Size == size {
			return s
		}
	}
	t.Fatalf("no bucket of size %d", size)
	return BucketStats{}
}
