package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantshield/hips-sentinel/internal/core/event"
)

func newEvent(typ event.Type, level event.ThreatLevel) event.SecurityEvent {
	return event.New(typ, level, 100, 1, "C:\\mal\\x.exe", "", "test event")
}

func TestEvaluator_EmptyStoreAllowsEverything(t *testing.T) {
	store := NewStore()
	eval := NewEvaluator(store)

	action, rule := eval.Evaluate(newEvent(event.ProcessCreation, event.Critical))

	assert.Equal(t, ActionAllow, action)
	assert.Nil(t, rule)
}

func TestEvaluator_EmptyPatternAndLowMinLevelMatchesAllOfType(t *testing.T) {
	store := NewStore()
	store.Add(Rule{
		Name:           "catch-all process creation",
		EventType:      event.ProcessCreation,
		MinThreatLevel: event.Low,
		Action:         ActionDeny,
		Enabled:        true,
	})
	eval := NewEvaluator(store)

	action, _ := eval.Evaluate(newEvent(event.ProcessCreation, event.Low))
	assert.Equal(t, ActionDeny, action)

	action, _ = eval.Evaluate(newEvent(event.ProcessCreation, event.Critical))
	assert.Equal(t, ActionDeny, action)
}

func TestEvaluator_FileAccessWildcardMatchesAnyType(t *testing.T) {
	store := NewStore()
	store.Add(Rule{
		Name:           "wildcard",
		EventType:      event.FileAccess,
		MinThreatLevel: event.Low,
		Action:         ActionQuarantine,
		Enabled:        true,
	})
	eval := NewEvaluator(store)

	action, _ := eval.Evaluate(newEvent(event.NetworkConnection, event.Low))
	assert.Equal(t, ActionQuarantine, action, "FileAccess rule must match events of any type")
}

func TestEvaluator_FirstMatchingRuleWins(t *testing.T) {
	store := NewStore()
	store.Add(Rule{Name: "first", EventType: event.ProcessCreation, MinThreatLevel: event.Low, Action: ActionAlertOnly, Enabled: true})
	store.Add(Rule{Name: "second", EventType: event.ProcessCreation, MinThreatLevel: event.Low, Action: ActionDeny, Enabled: true})
	eval := NewEvaluator(store)

	action, rule := eval.Evaluate(newEvent(event.ProcessCreation, event.Low))
	assert.Equal(t, ActionAlertOnly, action)
	assert.Equal(t, "first", rule.Name)
}

func TestEvaluator_DisabledRuleNeverMatches(t *testing.T) {
	store := NewStore()
	store.Add(Rule{Name: "disabled", EventType: event.ProcessCreation, MinThreatLevel: event.Low, Action: ActionDeny, Enabled: false})
	eval := NewEvaluator(store)

	action, rule := eval.Evaluate(newEvent(event.ProcessCreation, event.Critical))
	assert.Equal(t, ActionAllow, action)
	assert.Nil(t, rule)
}

func TestEvaluator_PatternMustMatchTargetOrProcessPath(t *testing.T) {
	store := NewStore()
	store.Add(Rule{Name: "system32", EventType: event.FileAccess, Pattern: "System32", MinThreatLevel: event.Low, Action: ActionDeny, Enabled: true})
	eval := NewEvaluator(store)

	ev := event.New(event.FileAccess, event.Low, 1, 1, "C:\\apps\\x.exe", "C:\\Windows\\System32\\cmd.exe", "")
	action, _ := eval.Evaluate(ev)
	assert.Equal(t, ActionDeny, action)

	ev2 := event.New(event.FileAccess, event.Low, 1, 1, "C:\\apps\\x.exe", "C:\\other\\path.txt", "")
	action2, _ := eval.Evaluate(ev2)
	assert.Equal(t, ActionAllow, action2)
}

func TestEvaluator_CustomConditionMustReturnTrue(t *testing.T) {
	store := NewStore()
	store.Add(Rule{
		Name:            "custom",
		EventType:       event.ProcessCreation,
		MinThreatLevel:  event.Low,
		Action:          ActionDeny,
		Enabled:         true,
		CustomCondition: func(e event.SecurityEvent) bool { return e.ProcessID == 999 },
	})
	eval := NewEvaluator(store)

	action, _ := eval.Evaluate(newEvent(event.ProcessCreation, event.Low))
	assert.Equal(t, ActionAllow, action, "custom condition false means the rule does not match")
}
