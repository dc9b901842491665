package selfprotect

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/quantshield/hips-sentinel/internal/core/event"
	"github.com/quantshield/hips-sentinel/internal/core/monitor"
	"github.com/quantshield/hips-sentinel/internal/platform"
	"github.com/quantshield/hips-sentinel/internal/telemetry/logsink"
)

// criticalProcessNames is the hard-coded critical list from spec.md §4.H.4.
var criticalProcessNames = map[string]bool{
	"winlogon.exe": true, "winlogon": true,
	"csrss.exe": true, "csrss": true,
	"smss.exe": true, "smss": true,
	"lsass.exe": true, "lsass": true,
	"services.exe": true, "services": true,
	"svchost.exe": true, "svchost": true,
	"dwm.exe": true, "dwm": true,
	"explorer.exe": true, "explorer": true,
	"wininit.exe": true, "wininit": true,
	"system": true,
}

// Engine is the self-protection subsystem: lifecycle, rule evaluation,
// defensive operations, and integrity checks.
type Engine struct {
	*monitor.Base

	log *logsink.Sink
	cap platform.Capability

	cfg Config

	rulesMu sync.RWMutex
	rules   []Rule

	protectionEventCount uint64
	blockedAttacksCount  uint64

	selfPID int32
}

// New constructs an Engine bound to the current process pid.
func New(log *logsink.Sink, cap platform.Capability) *Engine {
	if log == nil {
		log = logsink.Nop()
	}
	if cap == nil {
		cap = platform.DefaultCapability{}
	}
	return &Engine{
		Base:    monitor.NewBase(),
		log:     log,
		cap:     cap,
		selfPID: int32(os.Getpid()),
	}
}

// Initialize seeds default config, rules, and protected resources
// (spec.md §4.H.1/§4.H.2). Idempotent via Base's lifecycle state machine.
func (e *Engine) Initialize() bool {
	if !e.Base.Initialize() {
		return false
	}
	e.rulesMu.Lock()
	if e.rules == nil {
		e.cfg = DefaultResources()
		e.rules = DefaultRules()
	}
	e.rulesMu.Unlock()
	return true
}

// Start runs the per-category setup routines (spec.md §4.H.1). Each is a
// platform hook; failures are logged but never prevent startup — the
// engine degrades to logging-only on platforms without the facility.
func (e *Engine) Start() bool {
	if !e.Base.IsInitialized() {
		return false
	}
	setups := []struct {
		name string
		fn   func() bool
	}{
		{"process", e.cap.SetupProcessProtection},
		{"file", e.cap.SetupFileProtection},
		{"registry", e.cap.SetupRegistryProtection},
		{"memory", e.cap.SetupMemoryProtection},
		{"debug", e.cap.SetupDebugProtection},
		{"service", e.cap.SetupServiceProtection},
		{"thread", e.cap.SetupThreadProtection},
		{"handle", e.cap.SetupHandleProtection},
		{"structured_exception", e.cap.SetupStructuredExceptionProtection},
	}
	for _, s := range setups {
		if !s.fn() {
			e.log.Warningw("self-protection setup routine failed, continuing degraded", "category", s.name)
		}
	}
	return e.Base.StartWorker(func(stopCh <-chan struct{}) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				e.RunIntegrityChecks()
			}
		}
	})
}

func (e *Engine) Stop() bool {
	return e.Base.StopWorker()
}

// ProtectionEventCount returns the count of every processed protection
// event (spec.md §4.H.7).
func (e *Engine) ProtectionEventCount() uint64 {
	return atomic.LoadUint64(&e.protectionEventCount)
}

// BlockedAttacksCount returns the count of every applied action other than
// AlertOnly (spec.md §4.H.7). Invariant: always ≤ ProtectionEventCount.
func (e *Engine) BlockedAttacksCount() uint64 {
	return atomic.LoadUint64(&e.blockedAttacksCount)
}

// Evaluate mirrors the policy evaluator (spec.md §4.H.6) over
// Rule: event_type + min_threat_level + custom_condition, no
// pattern, no wildcard. Unmatched events default to BlockAndAlert.
func (e *Engine) Evaluate(pe ProtectionEvent) (Action, *Rule) {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	for i := range e.rules {
		r := e.rules[i]
		if r.EventType != pe.Type {
			continue
		}
		if pe.ThreatLevel < r.MinThreatLevel {
			continue
		}
		if r.CustomCondition != nil && !r.CustomCondition(pe) {
			continue
		}
		return r.Action, &r
	}
	return ActionBlockAndAlert, nil
}

// HandleEvent evaluates pe and applies its resulting action, updating
// statistics (spec.md §4.H.6/§4.H.7).
func (e *Engine) HandleEvent(pe ProtectionEvent) Action {
	atomic.AddUint64(&e.protectionEventCount, 1)

	action, rule := e.Evaluate(pe)
	ruleName := "default"
	if rule != nil {
		ruleName = rule.Name
	}

	if action != ActionAlertOnly {
		atomic.AddUint64(&e.blockedAttacksCount, 1)
	}

	switch action {
	case ActionTerminateAttacker:
		// Never self-terminate, regardless of what the rule says.
		if pe.AttackerPID != 0 && int32(pe.AttackerPID) != e.selfPID {
			e.SafeTerminateProcess(pe.AttackerPID)
		}
	case ActionBlockAndAlert, ActionAlertOnly:
	}

	e.log.Warningw("self-protection event handled",
		"event_type", string(pe.Type),
		"action", string(action),
		"rule", ruleName,
		"attacker_pid", pe.AttackerPID,
	)
	return action
}

// --- Defensive operations (spec.md §4.H.4) ---

// SafeOpenProcess opens the process handle and validates it.
func (e *Engine) SafeOpenProcess(pid int32) (*platform.ProcessHandle, bool) {
	var h *platform.ProcessHandle
	ok := safeExecute(e.log, "safe_open_process", e.cfg.MaxAPIRetryAttempts, func() bool {
		handle, opened := platform.OpenProcess(pid)
		if !opened {
			return false
		}
		if !handle.Valid() {
			handle.Close()
			return false
		}
		h = handle
		return true
	})
	if !ok {
		return nil, false
	}
	return h, true
}

// ValidateProcessHandle queries the handle's status; returns true if the
// query succeeds, independent of liveness (spec.md §4.H.4).
func (e *Engine) ValidateProcessHandle(h *platform.ProcessHandle) bool {
	return safeExecute(e.log, "validate_process_handle", e.cfg.MaxAPIRetryAttempts, func() bool {
		return h.Valid()
	})
}

// SafeCloseHandle releases h; nil/invalid is success.
func (e *Engine) SafeCloseHandle(h *platform.ProcessHandle) bool {
	if h == nil {
		return true
	}
	return h.Close()
}

// CheckProcessIsAlive reports whether pid is still running.
func (e *Engine) CheckProcessIsAlive(pid int32) bool {
	alive := false
	safeExecute(e.log, "check_process_is_alive", e.cfg.MaxAPIRetryAttempts, func() bool {
		h, ok := platform.OpenProcess(pid)
		if !ok {
			return false
		}
		defer h.Close()
		alive = h.Alive()
		return true
	})
	return alive
}

// IsSystemCriticalProcess returns true if pid is system/idle (≤4) or its
// name matches the hard-coded critical list. On failure to retrieve the
// name, fails closed (returns true), per spec.md §4.H.4.
func (e *Engine) IsSystemCriticalProcess(pid int32) bool {
	if pid <= 4 {
		return true
	}
	h, ok := platform.OpenProcess(pid)
	if !ok {
		return true
	}
	defer h.Close()
	name := h.Name()
	if name == "" {
		return true
	}
	return criticalProcessNames[toLowerASCII(name)]
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// SafeTerminateProcess implements spec.md §4.H.4's safe_terminate_process.
// In legacy mode (SafeModeEnabled=false) it terminates directly; otherwise
// it refuses to terminate already-dead or system-critical processes.
func (e *Engine) SafeTerminateProcess(pid uint32) bool {
	p := int32(pid)

	if p == e.selfPID {
		e.log.Errorw("refusing to terminate own process", "pid", pid)
		return false
	}

	if !e.cfg.SafeModeEnabled {
		h, ok := platform.OpenProcess(p)
		if !ok {
			return false
		}
		defer h.Close()
		return h.Terminate()
	}

	if !e.CheckProcessIsAlive(p) {
		return true
	}
	if e.IsSystemCriticalProcess(p) {
		e.log.Errorw("refusing to terminate system-critical process", "pid", pid)
		return false
	}

	return safeExecute(e.log, "safe_terminate_process", e.cfg.MaxAPIRetryAttempts, func() bool {
		h, ok := platform.OpenProcess(p)
		if !ok {
			return false
		}
		defer h.Close()
		if !h.Valid() {
			return false
		}
		return h.Terminate()
	})
}

// --- Integrity checks (spec.md §4.H.5) ---

// CheckProcessIntegrity verifies the own executable's code signature.
func (e *Engine) CheckProcessIntegrity() bool {
	return safeExecute(e.log, "check_process_integrity", e.cfg.MaxAPIRetryAttempts, func() bool {
		return e.cap.VerifyOwnSignature()
	})
}

// CheckFileIntegrity verifies every protected file exists and is readable;
// missing files emit a FileTamperingAttempt event through cb.
func (e *Engine) CheckFileIntegrity(cb func(ProtectionEvent)) bool {
	ok := true
	all := append(append([]string{}, e.cfg.ProtectedFiles...), e.cfg.ProtectedConfigFiles...)
	for _, f := range all {
		exists := safeExecute(e.log, "check_file_integrity", e.cfg.MaxAPIRetryAttempts, func() bool {
			fh, err := os.Open(f)
			if err != nil {
				return false
			}
			fh.Close()
			return true
		})
		if !exists {
			ok = false
			if cb != nil {
				cb(ProtectionEvent{
					Type:           FileTamperingAttempt,
					ThreatLevel:    event.High,
					TargetResource: f,
					Description:    "protected file missing: " + f,
					Timestamp:      time.Now(),
				})
			}
		}
	}
	return ok
}

// CheckRegistryIntegrity is a platform hook (spec.md §9 Open Questions:
// placeholder, unconditionally true).
func (e *Engine) CheckRegistryIntegrity() bool {
	return e.cap.CheckRegistryIntegrity()
}

// CheckServiceIntegrity is a platform hook (spec.md §9 Open Questions:
// placeholder, unconditionally true).
func (e *Engine) CheckServiceIntegrity() bool {
	return e.cap.CheckServiceIntegrity()
}

// CheckThreadIntegrity reads the current process's thread count; if the
// count cannot be read or is zero it emits ThreadManipulationAttempt
// through cb. The liveness of individual threads is not checked.
func (e *Engine) CheckThreadIntegrity(cb func(ProtectionEvent)) bool {
	if !e.cfg.CheckThreadIntegrity {
		return true
	}
	ok := true
	safeExecute(e.log, "check_thread_integrity", e.cfg.MaxAPIRetryAttempts, func() bool {
		p, err := process.NewProcess(e.selfPID)
		if err != nil {
			return false
		}
		// gopsutil has no per-thread liveness probe on every platform;
		// NumThreads() succeeding with a positive count is treated as
		// "all enumerated threads alive".
		n, err := p.NumThreads()
		if err != nil || n <= 0 {
			ok = false
			if cb != nil {
				cb(ProtectionEvent{
					Type:        ThreadManipulationAttempt,
					ThreatLevel: event.High,
					TargetPID:   uint32(e.selfPID),
					Description: "thread enumeration failed or returned zero threads",
					Timestamp:   time.Now(),
				})
			}
			return false
		}
		return true
	})
	return ok
}

// CheckHandleIntegrity opens and validates a handle to the current process.
// No current-thread handle is checked.
func (e *Engine) CheckHandleIntegrity() bool {
	if !e.cfg.ValidateHandles {
		return true
	}
	return safeExecute(e.log, "check_handle_integrity", e.cfg.MaxAPIRetryAttempts, func() bool {
		h, ok := platform.OpenProcess(e.selfPID)
		if !ok {
			return false
		}
		defer h.Close()
		return h.Valid()
	})
}

// CheckCriticalSectionIntegrity attempts a non-blocking acquisition of the
// rules lock; inability to acquire signals potential deadlock and emits
// CriticalSectionViolation through cb. No other lock is probed.
func (e *Engine) CheckCriticalSectionIntegrity(cb func(ProtectionEvent)) bool {
	if !e.cfg.MonitorCriticalSections {
		return true
	}
	acquired := e.rulesMu.TryLock()
	if !acquired {
		if cb != nil {
			cb(ProtectionEvent{
				Type:        CriticalSectionViolation,
				ThreatLevel: event.Critical,
				Description: "rules lock could not be acquired non-blocking; possible deadlock",
				Timestamp:   time.Now(),
			})
		}
		return false
	}
	e.rulesMu.Unlock()
	return true
}

// RunIntegrityChecks runs every integrity check and emits protection events
// for any failures via HandleEvent.
func (e *Engine) RunIntegrityChecks() {
	emit := func(pe ProtectionEvent) { e.HandleEvent(pe) }

	e.CheckProcessIntegrity()
	e.CheckFileIntegrity(emit)
	e.CheckRegistryIntegrity()
	e.CheckServiceIntegrity()
	e.CheckThreadIntegrity(emit)
	e.CheckHandleIntegrity()
	e.CheckCriticalSectionIntegrity(emit)
}
