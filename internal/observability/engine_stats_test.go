package observability

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineStats_Record_Concurrent(t *testing.T) {
	s := NewEngineStats(time.Hour)
	var wg sync.WaitGroup
	const goroutines, perGoroutine = 10, 100

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				s.Record("wal_entries_written", "append")
			}
		}()
	}
	wg.Wait()

	c, ok := s.Get("wal_entries_written")
	require.True(t, ok)
	assert.Equal(t, int64(goroutines*perGoroutine), c.Total)
	assert.Equal(t, int64(goroutines*perGoroutine), c.Labels["append"])
}

func TestEngineStats_Snapshot_OrderedByTotalDescending(t *testing.T) {
	s := NewEngineStats(time.Hour)
	for i := 0; i < 20; i++ {
		s.Record("wal_entries_written", "append")
	}
	for i := 0; i < 5; i++ {
		s.Record("checkpoints_completed", "delta")
	}
	for i := 0; i < 10; i++ {
		s.Record("checkpoints_completed", "full")
	}

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "wal_entries_written", snap[0].Name)
	assert.Equal(t, int64(20), snap[0].Total)
	assert.Equal(t, "checkpoints_completed", snap[1].Name)
	assert.Equal(t, int64(15), snap[1].Total)
	assert.Equal(t, int64(5), snap[1].Labels["delta"])
	assert.Equal(t, int64(10), snap[1].Labels["full"])
}

func TestEngineStats_AddBytes(t *testing.T) {
	s := NewEngineStats(time.Hour)
	s.AddBytes("wal_bytes_fsynced", 128)
	s.AddBytes("wal_bytes_fsynced", 256)

	c, ok := s.Get("wal_bytes_fsynced")
	require.True(t, ok)
	assert.Equal(t, int64(384), c.Total)
}

func TestEngineStats_Prune_RemovesIdleCounters(t *testing.T) {
	window := 100 * time.Millisecond
	s := NewEngineStats(window)
	s.Record("index_cache_hit", "body")

	_, ok := s.Get("index_cache_hit")
	require.True(t, ok)

	time.Sleep(window + 50*time.Millisecond)
	s.Prune()

	_, ok = s.Get("index_cache_hit")
	assert.False(t, ok)
}

func TestEngineStats_Get_UnknownCounter(t *testing.T) {
	s := NewEngineStats(time.Hour)
	_, ok := s.Get("nonexistent")
	assert.False(t, ok)
}

func TestEngineStats_Snapshot_Empty(t *testing.T) {
	s := NewEngineStats(time.Hour)
	assert.Empty(t, s.Snapshot())
}
