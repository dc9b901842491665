package correlation

import "github.com/quantshield/hips-sentinel/internal/core/event"

// typeWeight is the per-detector contribution to score (spec.md §4.G.4).
func typeWeight(t GroupType) float64 {
	switch t {
	case ProcessBased:
		return 0.2
	case TargetBased:
		return 0.25
	case SequenceBased:
		return 0.3
	case ThreatEscalation:
		return 0.3
	case TimeBased:
		return 0.15
	default:
		return 0
	}
}

// score implements the formula in spec.md §4.G.4:
//
//	score = min(|E|/10, 0.3)
//	      + (#high_or_critical(E) / |E|) * 0.4
//	      + type_weight(T)
//	score = min(score, 1.0)
func score(events []event.SecurityEvent, t GroupType) float64 {
	if len(events) == 0 {
		return 0
	}
	n := float64(len(events))

	sizeContribution := n / 10
	if sizeContribution > 0.3 {
		sizeContribution = 0.3
	}

	var severe int
	for _, e := range events {
		if e.ThreatLevel == event.High || e.ThreatLevel == event.Critical {
			severe++
		}
	}
	severityContribution := (float64(severe) / n) * 0.4

	total := sizeContribution + severityContribution + typeWeight(t)
	if total > 1.0 {
		total = 1.0
	}
	return total
}

// matchKnownPattern implements the known-attack-pattern match over event
// types only (spec.md §4.G.5).
func matchKnownPattern(events []event.SecurityEvent) (matched bool, description string) {
	var hasProcessCreation, hasFileChange, hasRegistryMod, hasMemoryInjection bool
	for _, e := range events {
		switch e.Type {
		case event.ProcessCreation:
			hasProcessCreation = true
		case event.FileModification, event.FileDeletion:
			hasFileChange = true
		case event.RegistryModification:
			hasRegistryMod = true
		case event.MemoryInjection:
			hasMemoryInjection = true
		}
	}

	injectionChain := hasMemoryInjection && (hasFileChange || hasRegistryMod)
	persistenceChain := hasProcessCreation && hasFileChange && hasRegistryMod

	switch {
	case injectionChain:
		return true, "Memory injection attack chain"
	case persistenceChain:
		return true, "Multi-stage persistence attack"
	default:
		return false, "Suspicious event sequence"
	}
}

// combinedThreatLevel implements spec.md §4.G.6.
func combinedThreatLevel(events []event.SecurityEvent) event.ThreatLevel {
	if len(events) == 0 {
		return event.Low
	}

	max := event.Low
	var criticalCount, highCount int
	for _, e := range events {
		if e.ThreatLevel > max {
			max = e.ThreatLevel
		}
		switch e.ThreatLevel {
		case event.Critical:
			criticalCount++
		case event.High:
			highCount++
		}
	}

	if criticalCount >= 2 || (criticalCount >= 1 && highCount >= 2) {
		return event.Critical
	}
	if highCount >= 3 {
		return event.Critical
	}
	if len(events) >= 5 && max != event.Critical {
		return max + 1
	}
	return max
}
