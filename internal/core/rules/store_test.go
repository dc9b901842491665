package rules

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantshield/hips-sentinel/internal/core/event"
)

func TestStore_AddThenRemoveRestoresPriorState(t *testing.T) {
	store := NewStore()
	before := store.List()

	r := store.Add(Rule{Name: "temp-rule", EventType: event.ProcessCreation, Action: ActionDeny, Enabled: true})
	require.NotEmpty(t, r.ID)

	removed := store.RemoveByName("temp-rule")
	assert.True(t, removed)
	assert.Equal(t, before, store.List())
}

func TestStore_AddToleratesDuplicateNames(t *testing.T) {
	store := NewStore()
	store.Add(Rule{Name: "dup", EventType: event.ProcessCreation, Action: ActionAllow, Enabled: true})
	store.Add(Rule{Name: "dup", EventType: event.FileAccess, Action: ActionDeny, Enabled: true})

	assert.Len(t, store.List(), 2)
}

func TestStore_RemoveByNameRemovesAllMatches(t *testing.T) {
	store := NewStore()
	store.Add(Rule{Name: "dup", EventType: event.ProcessCreation, Action: ActionAllow, Enabled: true})
	store.Add(Rule{Name: "dup", EventType: event.FileAccess, Action: ActionDeny, Enabled: true})
	store.Add(Rule{Name: "keep", EventType: event.FileAccess, Action: ActionDeny, Enabled: true})

	removed := store.RemoveByName("dup")
	assert.True(t, removed)
	assert.Len(t, store.List(), 1)
	assert.Equal(t, "keep", store.List()[0].Name)
}

func TestStore_LoadDefaultsSeedsTheTwoBuiltinRules(t *testing.T) {
	store := NewStore()
	store.LoadDefaults()

	rules := store.List()
	require.Len(t, rules, 2)
	assert.Equal(t, "Suspicious Process Execution", rules[0].Name)
	assert.Equal(t, "Critical File Access", rules[1].Name)
}

// TestStore_ConcurrentAddThenRemoveIsConsistent exercises the stress property
// from spec.md §8: adding rules concurrently with reads never deadlocks and
// the store holds every added rule; a following removal empties it.
func TestStore_ConcurrentAddThenRemoveIsConsistent(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			store.Add(Rule{Name: "concurrent", EventType: event.ProcessCreation, Action: ActionAllow, Enabled: true})
		}(i)
		go func() {
			defer wg.Done()
			_ = store.List()
		}()
	}
	wg.Wait()

	assert.Len(t, store.List(), 100)
	store.RemoveByName("concurrent")
	assert.Empty(t, store.List())
}
