package monitor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantshield/hips-sentinel/internal/core/event"
)

func TestBase_InitializeIsIdempotent(t *testing.T) {
	b := NewBase()
	require.True(t, b.Initialize())
	assert.True(t, b.Initialize())
	assert.Equal(t, Initialized, b.State())
}

func TestBase_DoubleStartDoesNotRelaunchWorker(t *testing.T) {
	b := NewBase()
	require.True(t, b.Initialize())

	var launches int32
	worker := func(stopCh <-chan struct{}) {
		atomic.AddInt32(&launches, 1)
		<-stopCh
	}

	require.True(t, b.StartWorker(worker))
	require.True(t, b.StartWorker(worker))

	assert.Equal(t, int32(1), atomic.LoadInt32(&launches))
	b.StopWorker()
}

func TestBase_StopAfterStopReturnsTrue(t *testing.T) {
	b := NewBase()
	require.True(t, b.Initialize())
	require.True(t, b.StartWorker(func(stopCh <-chan struct{}) { <-stopCh }))

	assert.True(t, b.StopWorker())
	assert.True(t, b.StopWorker())
	assert.False(t, b.IsRunning())
}

func TestBase_StopFromInitializedIsNoOp(t *testing.T) {
	b := NewBase()
	require.True(t, b.Initialize())
	assert.True(t, b.StopWorker())
}

func TestBase_StopJoinsWorkerBeforeReturning(t *testing.T) {
	b := NewBase()
	require.True(t, b.Initialize())

	var stopped int32
	require.True(t, b.StartWorker(func(stopCh <-chan struct{}) {
		<-stopCh
		time.Sleep(10 * time.Millisecond)
		atomic.StoreInt32(&stopped, 1)
	}))

	b.StopWorker()
	assert.Equal(t, int32(1), atomic.LoadInt32(&stopped))
}

func TestBase_EmitDeliversToRegisteredCallback(t *testing.T) {
	b := NewBase()
	var received event.SecurityEvent
	var got bool
	b.RegisterCallback(func(e event.SecurityEvent) {
		received = e
		got = true
	})

	ev := event.New(event.ProcessCreation, event.Low, 1, 1, "p", "", "")
	b.Emit(ev)

	assert.True(t, got)
	assert.Equal(t, ev, received)
}
