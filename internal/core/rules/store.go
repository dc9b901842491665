// Package rules implements the ordered policy rule store and evaluator that
// the dispatcher consults for every SecurityEvent (spec.md §4.B, §4.C).
package rules

import (
	"sync"

	"github.com/google/uuid"
	"github.com/quantshield/hips-sentinel/internal/core/event"
)

// Action is the outcome a matching rule (or the default) applies to an event.
type Action string

const (
	ActionAllow      Action = "Allow"
	ActionDeny       Action = "Deny"
	ActionQuarantine Action = "Quarantine"
	ActionAlertOnly  Action = "AlertOnly"
	ActionCustom     Action = "Custom"
)

// CustomCondition is an optional predicate a rule may carry; when present it
// must also return true for the rule to match.
type CustomCondition func(event.SecurityEvent) bool

// Rule is an element of the ordered rule store.
type Rule struct {
	ID              string
	Name            string
	Description     string
	Enabled         bool
	EventType       event.Type
	Pattern         string
	MinThreatLevel  event.ThreatLevel
	Action          Action
	CustomCondition CustomCondition
}

// Clone returns a value copy of the rule (CustomCondition, being a function
// value, is shared — it has no mutable state of its own to copy).
func (r Rule) Clone() Rule {
	return r
}

// Store is the ordered, mutable rule container. Iteration/match order is
// insertion order. The source tolerates duplicate rule names at insertion
// time, so Store does too — Add never rejects on name collision.
type Store struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewStore returns an empty rule store.
func NewStore() *Store {
	return &Store{}
}

// Add appends rule to the store. If rule.ID is empty a uuid is generated.
func (s *Store) Add(r Rule) Rule {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, r)
	return r
}

// RemoveByName deletes every rule with the given name and reports whether any
// were removed.
func (s *Store) RemoveByName(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.rules[:0:0]
	removed := false
	for _, r := range s.rules {
		if r.Name == name {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	s.rules = kept
	return removed
}

// List returns a snapshot copy of the rules in match order.
func (s *Store) List() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// LoadDefaults seeds the store with the two built-in rules from spec.md §6.
func (s *Store) LoadDefaults() {
	s.Add(Rule{
		Name:           "Suspicious Process Execution",
		EventType:      event.ProcessCreation,
		Pattern:        "",
		MinThreatLevel: event.Medium,
		Action:         ActionAlertOnly,
		Enabled:        true,
	})
	s.Add(Rule{
		Name:           "Critical File Access",
		EventType:      event.FileAccess,
		Pattern:        "System32",
		MinThreatLevel: event.High,
		Action:         ActionAlertOnly,
		Enabled:        true,
	})
}
