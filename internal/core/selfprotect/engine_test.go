package selfprotect

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantshield/hips-sentinel/internal/core/event"
	"github.com/quantshield/hips-sentinel/internal/platform"
	"github.com/quantshield/hips-sentinel/internal/telemetry/logsink"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(logsink.Nop(), platform.DefaultCapability{})
	require.True(t, e.Initialize())
	return e
}

// Scenario 7 — safe-terminate self never succeeds.
func TestEngine_SafeTerminateProcessNeverKillsSelf(t *testing.T) {
	e := newTestEngine(t)
	selfPID := uint32(os.Getpid())

	result := e.SafeTerminateProcess(selfPID)

	assert.False(t, result)
	assert.True(t, e.CheckProcessIsAlive(int32(selfPID)), "current process must still be running")
}

func TestEngine_IsSystemCriticalProcess_LowPIDsAreCritical(t *testing.T) {
	e := newTestEngine(t)
	for _, pid := range []int32{0, 1, 4} {
		assert.True(t, e.IsSystemCriticalProcess(pid), "pid %d should be treated as critical", pid)
	}
}

func TestEngine_BlockedAttacksNeverExceedsProtectionEvents(t *testing.T) {
	e := newTestEngine(t)

	e.HandleEvent(ProtectionEvent{Type: FileTamperingAttempt, ThreatLevel: event.High})
	e.HandleEvent(ProtectionEvent{Type: FileTamperingAttempt, ThreatLevel: event.High})

	assert.LessOrEqual(t, e.BlockedAttacksCount(), e.ProtectionEventCount())
}

func TestEngine_InitializeIsIdempotent(t *testing.T) {
	e := New(logsink.Nop(), platform.DefaultCapability{})
	require.True(t, e.Initialize())
	assert.True(t, e.Initialize())
}

func TestEngine_EvaluateDefaultsToBlockAndAlertWhenUnmatched(t *testing.T) {
	e := New(logsink.Nop(), platform.DefaultCapability{})
	require.True(t, e.Initialize())

	// clear the default-seeded rules so nothing matches.
	e.rulesMu.Lock()
	e.rules = nil
	e.rulesMu.Unlock()

	action, rule := e.Evaluate(ProtectionEvent{Type: DebugAttempt, ThreatLevel: event.Critical})
	assert.Equal(t, ActionBlockAndAlert, action)
	assert.Nil(t, rule)
}
