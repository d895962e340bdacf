package ids

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_UniqueUnderConcurrency(t *testing.T) {
	const workers, per = 8, 500
	s := NewSource(nil)
	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, per)
			for i := 0; i < per; i++ {
				local = append(local, s.Next())
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*per)
}

func TestSource_ClockStepBack(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSource(func() time.Time { return now })
	a := s.Next()
	now = now.Add(-time.Minute)
	b := s.Next()
	assert.Greater(t, b, a)
}

func TestTempID(t *testing.T) {
	id := TempID()
	require.True(t, IsTempID(id))
	_, err := strconv.ParseInt(id[len(tempPrefix):], 10, 64)
	assert.NoError(t, err)

	assert.False(t, IsTempID("temp_"))
	assert.False(t, IsTempID("12345"))
	assert.NotEqual(t, TempID(), TempID())
}
