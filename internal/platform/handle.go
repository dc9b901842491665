package platform

import (
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessHandle is a scoped acquisition wrapping a gopsutil process handle.
// Per spec.md §9 "Handle ownership", every exit path — success or failure —
// releases it; callers should defer Close() immediately after a successful
// Open.
type ProcessHandle struct {
	proc   *process.Process
	closed bool
}

// OpenProcess opens a handle to pid. Mirrors safe_open_process's contract:
// returns ok=false if the process cannot be found.
func OpenProcess(pid int32) (h *ProcessHandle, ok bool) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, false
	}
	return &ProcessHandle{proc: p}, true
}

// Valid queries the process for liveness/status; per spec.md §4.H.4 this
// returns true whenever the query itself succeeds, independent of whether
// the process is running or has exited — the check is that the handle is
// usable, not that the process is alive.
func (h *ProcessHandle) Valid() bool {
	if h == nil || h.proc == nil {
		return false
	}
	_, err := h.proc.IsRunning()
	return err == nil
}

// Alive reports whether the process the handle refers to is still running.
func (h *ProcessHandle) Alive() bool {
	if h == nil || h.proc == nil {
		return false
	}
	running, err := h.proc.IsRunning()
	return err == nil && running
}

// Name returns the process executable name, or "" if it cannot be
// determined.
func (h *ProcessHandle) Name() string {
	if h == nil || h.proc == nil {
		return ""
	}
	name, err := h.proc.Name()
	if err != nil {
		return ""
	}
	return name
}

// Terminate sends a termination request to the process.
func (h *ProcessHandle) Terminate() bool {
	if h == nil || h.proc == nil {
		return false
	}
	return h.proc.Kill() == nil
}

// Close releases the handle. Null/already-closed handles are treated as
// success, per spec.md §4.H.4 safe_close_handle.
func (h *ProcessHandle) Close() bool {
	if h == nil {
		return true
	}
	h.closed = true
	h.proc = nil
	return true
}
