// Package selfprotect implements the self-protection engine (spec.md §4.H):
// defensive wrappers around sensitive kernel interactions, plus a
// rule-driven reaction to tamper attempts. Grounded on the teacher's
// internal/security/firewall (rule store/evaluator shape) and
// archive/internal/monitoring/security.go (gopsutil-based process checks,
// toggle-heavy SecurityConfig).
package selfprotect

import (
	"time"

	"github.com/quantshield/hips-sentinel/internal/core/event"
)

// EventType enumerates the attack categories self-protection recognizes.
// Distinct from event.Type: these describe attacks against the engine
// itself, not host activity in general.
type EventType string

const (
	ProcessTerminationAttempt  EventType = "ProcessTerminationAttempt"
	ProcessInjectionAttempt    EventType = "ProcessInjectionAttempt"
	FileTamperingAttempt       EventType = "FileTamperingAttempt"
	RegistryTamperingAttempt   EventType = "RegistryTamperingAttempt"
	ServiceStopAttempt         EventType = "ServiceStopAttempt"
	DebugAttempt               EventType = "DebugAttempt"
	MemoryManipulationAttempt  EventType = "MemoryManipulationAttempt"
	ConfigModificationAttempt  EventType = "ConfigModificationAttempt"
	DriverUnloadAttempt        EventType = "DriverUnloadAttempt"
	ThreadManipulationAttempt  EventType = "ThreadManipulationAttempt"
	HandleManipulationAttempt EventType = "HandleManipulationAttempt"
	CriticalSectionViolation   EventType = "CriticalSectionViolation"
	KernelModeTransitionAttempt EventType = "KernelModeTransitionAttempt"
)

// Action mirrors ActionKind but over self-protection's own event set.
type Action string

const (
	ActionBlockAndAlert      Action = "BlockAndAlert"
	ActionTerminateAttacker  Action = "TerminateAttacker"
	ActionAlertOnly          Action = "AlertOnly"
)

// ProtectionEvent mirrors SecurityEvent but carries attacker/target pids
// and a distinct event-type set (spec.md §3 SelfProtectionEvent).
type ProtectionEvent struct {
	Type           EventType
	ThreatLevel    event.ThreatLevel
	AttackerPID    uint32
	TargetPID      uint32
	TargetResource string
	Description    string
	Timestamp      time.Time
	Metadata       map[string]string
}

// CustomCondition is an optional predicate a protection rule may carry.
type CustomCondition func(ProtectionEvent) bool

// Rule is a protection-rule element: no pattern, no wildcard, only
// event_type + min_threat_level + custom_condition (spec.md §4.H.6).
type Rule struct {
	Name            string
	EventType       EventType
	MinThreatLevel  event.ThreatLevel
	Action          Action
	CustomCondition CustomCondition
}

// Config is the enumerated bag of toggles and lists from spec.md §3
// SelfProtectionConfig.
type Config struct {
	ProtectedFiles       []string
	ProtectedDirectories []string
	ProtectedConfigFiles []string
	ProtectedRegistryKeys []string
	ProtectedProcesses   []string
	ProtectedServices    []string
	TrustedProcesses     []string

	SafeModeEnabled        bool
	GracefulDegradation    bool
	MaxAPIRetryAttempts    int
	APITimeoutMs           int
	ValidateHandles        bool
	CheckThreadIntegrity   bool
	MonitorCriticalSections bool
}

// DefaultConfig seeds the toggles with the safety-first defaults spec.md
// §4.H.1 implies: everything on, three retries, a conservative timeout.
func DefaultConfig() Config {
	return Config{
		SafeModeEnabled:         true,
		GracefulDegradation:     true,
		MaxAPIRetryAttempts:     3,
		APITimeoutMs:            5000,
		ValidateHandles:         true,
		CheckThreadIntegrity:    true,
		MonitorCriticalSections: true,
	}
}

// DefaultResources returns the default protected resources and trusted
// processes from spec.md §6.
func DefaultResources() Config {
	c := DefaultConfig()
	c.ProtectedFiles = []string{"hips.exe", "hips-gui.exe", "hips-driver.sys", "hipscore.dll"}
	c.ProtectedDirectories = []string{"C:\\Program Files\\HIPS", "C:\\Windows\\System32\\drivers"}
	c.ProtectedConfigFiles = []string{"hips.conf", "protection_rules.conf"}
	c.ProtectedRegistryKeys = []string{
		"HKLM\\SYSTEM\\CurrentControlSet\\Services\\HIPSDriver",
		"HKLM\\SOFTWARE\\HIPS",
	}
	c.ProtectedProcesses = []string{"hips.exe", "hips-gui.exe"}
	c.ProtectedServices = []string{"HIPSDriver", "HIPSEngine"}
	c.TrustedProcesses = []string{"services.exe", "winlogon.exe", "csrss.exe"}
	return c
}

// DefaultRules seeds the six built-in protection rules from spec.md §4.H.2.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "Process Termination Defense", EventType: ProcessTerminationAttempt, MinThreatLevel: event.High, Action: ActionTerminateAttacker},
		{Name: "Process Injection Defense", EventType: ProcessInjectionAttempt, MinThreatLevel: event.High, Action: ActionBlockAndAlert},
		{Name: "File Tampering Defense", EventType: FileTamperingAttempt, MinThreatLevel: event.Medium, Action: ActionBlockAndAlert},
		{Name: "Registry Tampering Defense", EventType: RegistryTamperingAttempt, MinThreatLevel: event.Medium, Action: ActionBlockAndAlert},
		{Name: "Debug Attempt Defense", EventType: DebugAttempt, MinThreatLevel: event.High, Action: ActionTerminateAttacker},
		{Name: "Service Stop Defense", EventType: ServiceStopAttempt, MinThreatLevel: event.High, Action: ActionTerminateAttacker},
	}
}
