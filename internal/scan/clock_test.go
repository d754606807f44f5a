package scan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClockResumes(t *testing.T) {
	c := NewClockAt(41)
	assert.Equal(t, int64(41), c.Current())
	assert.Equal(t, int64(42), c.Next())
	assert.Equal(t, int64(43), c.Next())
	assert.Equal(t, int64(43), c.Current())
}

func TestClockConcurrentUnique(t *testing.T) {
	c := &Clock{}
	const n = 100

	var wg sync.WaitGroup
	seen := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seen[i] = c.Next()
		}(i)
	}
	wg.Wait()

	uniq := make(map[int64]bool)
	for _, s := range seen {
		uniq[s] = true
	}
	assert.Len(t, uniq, n)
	assert.Equal(t, int64(n), c.Current())
}
