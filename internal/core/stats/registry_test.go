package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantshield/hips-sentinel/internal/core/event"
)

func TestRegistry_TotalEqualsSumOfCounts(t *testing.T) {
	r := New(nil)

	r.Increment(event.ProcessCreation)
	r.Increment(event.ProcessCreation)
	r.Increment(event.FileAccess)

	var sum uint64
	for _, c := range r.Snapshot() {
		sum += c
	}
	assert.Equal(t, r.Total(), sum)
	assert.Equal(t, uint64(2), r.Count(event.ProcessCreation))
	assert.Equal(t, uint64(1), r.Count(event.FileAccess))
}

func TestRegistry_ConcurrentIncrementIsConsistent(t *testing.T) {
	r := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Increment(event.NetworkConnection)
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(200), r.Total())
}
