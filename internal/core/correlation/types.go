// Package correlation implements the sliding-window correlation engine
// (spec.md §4.G): stateful aggregation across a time window that detects
// multi-stage attack chains by five orthogonal criteria. Grounded on the
// teacher's internal/security/risk.Analyzer (factor/pattern/historical-trend
// scoring) for the scoring model and internal/security/firewall.FirewallImpl
// (RWMutex-guarded ordered containers) for the concurrency discipline.
package correlation

import (
	"time"

	"github.com/quantshield/hips-sentinel/internal/core/event"
)

// GroupType identifies which detector produced a CorrelatedEventGroup.
type GroupType string

const (
	ProcessBased     GroupType = "ProcessBased"
	TimeBased        GroupType = "TimeBased"
	TargetBased      GroupType = "TargetBased"
	SequenceBased    GroupType = "SequenceBased"
	ThreatEscalation GroupType = "ThreatEscalation"
)

// TrackedEvent pairs a SecurityEvent with the monotonic time it arrived.
type TrackedEvent struct {
	Event   event.SecurityEvent
	Tracked time.Time
}

// Group is an attack-chain hypothesis emitted by a detector.
type Group struct {
	CorrelationID       string
	Type                GroupType
	Events              []event.SecurityEvent
	CombinedThreatLevel event.ThreatLevel
	CorrelationScore    float64
	FirstEventTime      time.Time
	LastEventTime       time.Time
	Description         string
	Metadata            map[string]string
}

// Config holds the five tunable detector toggles and their shared numeric
// parameters (spec.md §4.G.1).
type Config struct {
	TimeWindowSeconds       int
	MinEventsForCorrelation int
	MinCorrelationScore     float64
	MaxEventsPerProcess     int
	MaxCorrelationGroups    int

	EnableProcessBased     bool
	EnableTimeBased        bool
	EnableTargetBased      bool
	EnableSequenceBased    bool
	EnableThreatEscalation bool
}

// DefaultConfig returns the spec's defaults with every detector enabled.
func DefaultConfig() Config {
	return Config{
		TimeWindowSeconds:       60,
		MinEventsForCorrelation: 3,
		MinCorrelationScore:     0.6,
		MaxEventsPerProcess:     100,
		MaxCorrelationGroups:    1000,
		EnableProcessBased:      true,
		EnableTimeBased:         true,
		EnableTargetBased:       true,
		EnableSequenceBased:     true,
		EnableThreatEscalation:  true,
	}
}

func (c Config) windowDuration() time.Duration {
	return time.Duration(c.TimeWindowSeconds) * time.Second
}

// Callback receives every newly emitted, non-duplicate Group.
type Callback func(Group)
