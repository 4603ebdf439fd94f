package memstat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mathengine/native"
)

func TestTrackerPeakNeverDecreases(t *testing.T) {
	tr := New(0)

	require.NoError(t, tr.Reserve(100))
	require.NoError(t, tr.Reserve(50))
	assert.Equal(t, uint64(150), tr.Peak())

	tr.Release(100)
	assert.Equal(t, uint64(50), tr.InUse())
	assert.Equal(t, uint64(150), tr.Peak())

	require.NoError(t, tr.Reserve(20))
	assert.Equal(t, uint64(150), tr.Peak())

	require.NoError(t, tr.Reserve(200))
	assert.Equal(t, uint64(270), tr.Peak())
}

func TestTrackerLimit(t *testing.T) {
	tr := New(128)

	require.NoError(t, tr.Reserve(100))
	assert.ErrorIs(t, tr.Reserve(29), native.ErrOutOfMemory)
	assert.Equal(t, uint64(100), tr.InUse(), "failed reservation must not be accounted")

	require.NoError(t, tr.Reserve(28))
	assert.ErrorIs(t, tr.Reserve(1), native.ErrOutOfMemory)

	assert.ErrorIs(t, New(10).Reserve(11), native.ErrOutOfMemory)
}

func TestTrackerReleaseUnderflow(t *testing.T) {
	tr := New(0)
	require.NoError(t, tr.Reserve(10))
	tr.Release(20)
	assert.Equal(t, uint64(0), tr.InUse())
	assert.Equal(t, uint64(10), tr.Peak())
}

func TestTrackerConcurrent(t *testing.T) {
	tr := New(0)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = tr.Reserve(8)
				tr.Release(8)
			}
		}()
	}
	wg.Wait()

	s := tr.Stats()
	assert.Equal(t, uint64(0), s.InUse)
	assert.Equal(t, uint64(1600), s.Allocations)
	assert.Equal(t, int64(0), s.ActiveBuffers)
	assert.LessOrEqual(t, s.Peak, uint64(16*8))
	assert.GreaterOrEqual(t, s.Peak, uint64(8))
}
