package parallel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelizeWorkersCoversEveryIndexOnce(t *testing.T) {
	for _, tc := range []struct {
		name    string
		items   int
		workers int
	}{
		{"more items than workers", 103, 4},
		{"more workers than items", 3, 16},
		{"single worker", 10, 1},
		{"default workers", 57, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			hits := make([]int32, tc.items)
			ParallelizeWorkers(tc.items, tc.workers, func(start, end int) {
				for i := start; i < end; i++ {
					atomic.AddInt32(&hits[i], 1)
				}
			})
			for i, h := range hits {
				assert.Equal(t, int32(1), h, "index %d", i)
			}
		})
	}
}

func TestParallelizeZeroItems(t *testing.T) {
	called := false
	Parallelize(0, func(start, end int) { called = true })
	assert.False(t, called)
}

func TestParallelizeWithThreshold(t *testing.T) {
	var mu sync.Mutex
	var ranges [][2]int
	ParallelizeWithThreshold(50, 100, func(start, end int) {
		mu.Lock()
		defer mu.Unlock()
		ranges = append(ranges, [2]int{start, end})
	})
	assert.Equal(t, [][2]int{{0, 50}}, ranges)

	var total int64
	ParallelizeWithThreshold(1000, 100, func(start, end int) {
		atomic.AddInt64(&total, int64(end-start))
	})
	assert.Equal(t, int64(1000), total)
}
