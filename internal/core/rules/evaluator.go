package rules

import (
	"strings"

	"github.com/quantshield/hips-sentinel/internal/core/event"
)

// Evaluator walks a Store in insertion order and returns the action of the
// first matching rule, defaulting to Allow (spec.md §4.C).
type Evaluator struct {
	store *Store
}

// NewEvaluator binds an Evaluator to a rule store.
func NewEvaluator(store *Store) *Evaluator {
	return &Evaluator{store: store}
}

// Evaluate returns the action for ev and the rule that produced it, if any.
func (e *Evaluator) Evaluate(ev event.SecurityEvent) (Action, *Rule) {
	for _, r := range e.store.List() {
		if matches(r, ev) {
			rc := r
			return r.Action, &rc
		}
	}
	return ActionAllow, nil
}

// matches implements the five-step predicate from spec.md §4.C, including the
// deliberate FileAccess-as-wildcard quirk: a rule whose EventType is
// FileAccess matches events of any type. This is preserved verbatim even
// though it reads like a bug — several default rules rely on it.
func matches(r Rule, ev event.SecurityEvent) bool {
	if !r.Enabled {
		return false
	}
	if r.EventType != ev.Type && r.EventType != event.FileAccess {
		return false
	}
	if ev.ThreatLevel < r.MinThreatLevel {
		return false
	}
	if r.Pattern != "" {
		if !strings.Contains(ev.TargetPath, r.Pattern) && !strings.Contains(ev.ProcessPath, r.Pattern) {
			return false
		}
	}
	if r.CustomCondition != nil && !r.CustomCondition(ev) {
		return false
	}
	return true
}
