package correlation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantshield/hips-sentinel/internal/core/event"
	"github.com/quantshield/hips-sentinel/internal/telemetry/logsink"
)

func collectGroups(e *Engine) (*[]Group, func(Group)) {
	var mu sync.Mutex
	var groups []Group
	e.RegisterCallback(func(g Group) {
		mu.Lock()
		groups = append(groups, g)
		mu.Unlock()
	})
	return &groups, nil
}

// Scenario 1 — Process-based detection.
func TestEngine_ProcessBasedDetection(t *testing.T) {
	e := New(DefaultConfig(), logsink.Nop(), nil)
	groups, _ := collectGroups(e)

	e.Process(event.New(event.ProcessCreation, event.Medium, 1234, 1, "C:\\mal\\x.exe", "", ""))
	e.Process(event.New(event.FileModification, event.High, 1234, 1, "C:\\mal\\x.exe", "C:\\Windows\\System32\\c.dll", ""))
	e.Process(event.New(event.RegistryModification, event.High, 1234, 1, "C:\\mal\\x.exe", "HKLM\\...\\Run", ""))

	var found *Group
	for i := range *groups {
		if (*groups)[i].Type == ProcessBased {
			found = &(*groups)[i]
			break
		}
	}
	require.NotNil(t, found, "expected a ProcessBased group")
	assert.Len(t, found.Events, 3)
	assert.Equal(t, uint32(1234), found.Events[0].ProcessID)
	assert.GreaterOrEqual(t, found.CombinedThreatLevel, event.High)
}

// Scenario 2 — Target-based detection.
func TestEngine_TargetBasedDetection(t *testing.T) {
	e := New(DefaultConfig(), logsink.Nop(), nil)
	groups, _ := collectGroups(e)

	target := "C:\\important\\db.db"
	e.Process(event.New(event.FileAccess, event.High, 2000, 1, "a", target, ""))
	e.Process(event.New(event.FileModification, event.High, 3000, 1, "b", target, ""))
	e.Process(event.New(event.FileDeletion, event.High, 4000, 1, "c", target, ""))

	var found *Group
	for i := range *groups {
		if (*groups)[i].Type == TargetBased {
			found = &(*groups)[i]
			break
		}
	}
	require.NotNil(t, found, "expected a TargetBased group")
	assert.GreaterOrEqual(t, len(found.Events), 3)
	assert.Equal(t, target, found.Metadata["target"])
}

// Scenario 3 — Threat escalation.
func TestEngine_ThreatEscalation(t *testing.T) {
	e := New(DefaultConfig(), logsink.Nop(), nil)
	groups, _ := collectGroups(e)

	e.Process(event.New(event.ProcessCreation, event.Low, 5000, 1, "p", "", ""))
	e.Process(event.New(event.FileModification, event.Medium, 5000, 1, "p", "t1", ""))
	e.Process(event.New(event.RegistryModification, event.High, 5000, 1, "p", "t2", ""))

	var found *Group
	for i := range *groups {
		if (*groups)[i].Type == ThreatEscalation {
			found = &(*groups)[i]
			break
		}
	}
	require.NotNil(t, found, "expected a ThreatEscalation group")
	assert.Equal(t, 0.85, found.CorrelationScore)
	assert.GreaterOrEqual(t, len(found.Events), 2)
}

// Scenario 4 — Known persistence pattern.
func TestEngine_KnownPersistencePattern(t *testing.T) {
	e := New(DefaultConfig(), logsink.Nop(), nil)
	groups, _ := collectGroups(e)

	e.Process(event.New(event.ProcessCreation, event.Medium, 1, 1, "p", "", ""))
	e.Process(event.New(event.FileModification, event.High, 2, 1, "p", "t1", ""))
	e.Process(event.New(event.RegistryModification, event.High, 3, 1, "p", "t2", ""))

	var found *Group
	for i := range *groups {
		if (*groups)[i].Type == SequenceBased {
			found = &(*groups)[i]
			break
		}
	}
	require.NotNil(t, found, "expected a SequenceBased group")
	assert.Equal(t, 0.9, found.CorrelationScore)
	assert.Equal(t, event.Critical, found.CombinedThreatLevel)
	assert.Contains(t, found.Description, "persistence")
}

// Scenario 5 — Duplicate suppression.
func TestEngine_DuplicateSuppression(t *testing.T) {
	e := New(DefaultConfig(), logsink.Nop(), nil)
	groups, _ := collectGroups(e)

	feed := func() {
		e.Process(event.New(event.ProcessCreation, event.Medium, 42, 1, "p", "", ""))
		e.Process(event.New(event.FileModification, event.High, 42, 1, "p", "t1", ""))
		e.Process(event.New(event.RegistryModification, event.High, 42, 1, "p", "t2", ""))
	}
	feed()
	firstCount := len(*groups)
	feed()

	assert.Equal(t, firstCount, len(*groups), "identical second pass must not add duplicate groups")
}

// Scenario 6 — Time-window expiry.
func TestEngine_TimeWindowExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeWindowSeconds = 2
	cfg.MinEventsForCorrelation = 2
	e := New(cfg, logsink.Nop(), nil)
	groups, _ := collectGroups(e)

	e.Process(event.New(event.ProcessCreation, event.High, 1, 1, "p", "", ""))
	time.Sleep(3 * time.Second)
	e.Process(event.New(event.ProcessCreation, event.High, 2, 1, "p", "", ""))

	for _, g := range *groups {
		assert.NotEqual(t, TimeBased, g.Type, "the two events should have fallen out of the window by the time the second arrived")
	}
}

func TestEngine_EmittedGroupInvariants(t *testing.T) {
	e := New(DefaultConfig(), logsink.Nop(), nil)
	groups, _ := collectGroups(e)

	e.Process(event.New(event.ProcessCreation, event.Medium, 1, 1, "p", "", ""))
	e.Process(event.New(event.FileModification, event.High, 1, 1, "p", "t", ""))
	e.Process(event.New(event.RegistryModification, event.High, 1, 1, "p", "t2", ""))

	cfg := DefaultConfig()
	for _, g := range *groups {
		assert.GreaterOrEqual(t, len(g.Events), cfg.MinEventsForCorrelation)
		assert.GreaterOrEqual(t, g.CorrelationScore, cfg.MinCorrelationScore)
		assert.False(t, g.LastEventTime.Before(g.FirstEventTime))
	}
}

func TestEngine_CorrelationIDsAreDistinct(t *testing.T) {
	e := New(DefaultConfig(), logsink.Nop(), nil)
	groups, _ := collectGroups(e)

	e.Process(event.New(event.ProcessCreation, event.Medium, 1, 1, "p", "", ""))
	e.Process(event.New(event.FileModification, event.High, 1, 1, "p", "t", ""))
	e.Process(event.New(event.RegistryModification, event.High, 1, 1, "p", "t2", ""))
	e.Process(event.New(event.MemoryInjection, event.Critical, 2, 1, "q", "t3", ""))
	e.Process(event.New(event.FileDeletion, event.Critical, 2, 1, "q", "t4", ""))

	seen := make(map[string]bool)
	for _, g := range *groups {
		assert.False(t, seen[g.CorrelationID], "correlation id %q repeated", g.CorrelationID)
		seen[g.CorrelationID] = true
	}
}

func TestEngine_ClearOldCorrelationsCapsAtOneHundred(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinEventsForCorrelation = 1
	cfg.MinCorrelationScore = 0
	cfg.MaxCorrelationGroups = 10000
	e := New(cfg, logsink.Nop(), nil)

	for i := 0; i < 150; i++ {
		e.Process(event.New(event.ExploitAttempt, event.Critical, uint32(i), 1, "p", "", ""))
	}
	e.ClearOldCorrelations()

	assert.LessOrEqual(t, len(e.Snapshot()), 100)
}
