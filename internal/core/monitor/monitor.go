// Package monitor defines the Monitor trait and lifecycle state machine
// shared by every observer in the engine (spec.md §4.F), grounded on the
// teacher's internal/core/discovery.BridgeDiscovery ticker+shutdown-channel
// worker pattern.
package monitor

import (
	"sync"
	"sync/atomic"

	"github.com/quantshield/hips-sentinel/internal/core/event"
)

// State is a point in the Uninitialized -> Initialized -> Running -> Stopped
// -> Shutdown lifecycle every component in the engine follows.
type State int32

const (
	Uninitialized State = iota
	Initialized
	Running
	Stopped
	Shutdown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Initialized:
		return "Initialized"
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Callback receives every event a monitor produces.
type Callback func(event.SecurityEvent)

// Monitor is the interface every observer (file, process, network, registry,
// memory, ...) implements.
type Monitor interface {
	Initialize() bool
	Start() bool
	Stop() bool
	Shutdown() bool
	IsInitialized() bool
	IsRunning() bool
	RegisterCallback(cb Callback)
}

// Base implements the lifecycle state machine and callback slot common to
// every Monitor. Concrete monitors embed Base and supply their own
// background worker via the WorkerFunc they pass to StartWorker.
type Base struct {
	mu       sync.Mutex
	state    State
	running  int32
	callback Callback

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewBase returns a Base in the Uninitialized state.
func NewBase() *Base {
	return &Base{state: Uninitialized}
}

// Initialize transitions Uninitialized -> Initialized. Idempotent: calling it
// again while already Initialized or later returns true without changing
// state.
func (b *Base) Initialize() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state >= Initialized {
		return true
	}
	b.state = Initialized
	return true
}

func (b *Base) IsInitialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state >= Initialized
}

func (b *Base) IsRunning() bool {
	return atomic.LoadInt32(&b.running) == 1
}

func (b *Base) RegisterCallback(cb Callback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callback = cb
}

// Emit delivers ev to the registered callback, if any. Concrete monitors
// call this from their worker loop rather than touching the callback field
// directly.
func (b *Base) Emit(ev event.SecurityEvent) {
	b.mu.Lock()
	cb := b.callback
	b.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// WorkerFunc is the background loop a concrete monitor runs between Start
// and Stop. It must return promptly after stopCh is closed.
type WorkerFunc func(stopCh <-chan struct{})

// StartWorker transitions Initialized -> Running and launches worker on a
// new goroutine. Double-start (already Running) returns true without
// relaunching, per spec.md §4.F.
func (b *Base) StartWorker(worker WorkerFunc) bool {
	b.mu.Lock()
	if b.state < Initialized {
		b.mu.Unlock()
		return false
	}
	if b.state == Running {
		b.mu.Unlock()
		return true
	}
	b.state = Running
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	stopCh := b.stopCh
	doneCh := b.doneCh
	b.mu.Unlock()

	atomic.StoreInt32(&b.running, 1)
	go func() {
		defer close(doneCh)
		worker(stopCh)
	}()
	return true
}

// StopWorker transitions Running -> Stopped, signaling stopCh and joining the
// worker goroutine before returning. Stop from Initialized/Uninitialized (no
// worker running) is a no-op returning true, per the state diagram in
// spec.md §4.F.
func (b *Base) StopWorker() bool {
	b.mu.Lock()
	if b.state != Running {
		b.mu.Unlock()
		return true
	}
	stopCh := b.stopCh
	doneCh := b.doneCh
	b.state = Stopped
	b.mu.Unlock()

	close(stopCh)
	<-doneCh
	atomic.StoreInt32(&b.running, 0)
	return true
}

// Shutdown transitions Stopped -> Shutdown. If the monitor is still Running,
// it stops it first.
func (b *Base) Shutdown() bool {
	b.mu.Lock()
	running := b.state == Running
	b.mu.Unlock()
	if running {
		b.StopWorker()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Shutdown
	return true
}

// State returns the current lifecycle state.
func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
