package correlation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantshield/hips-sentinel/internal/core/event"
	"github.com/quantshield/hips-sentinel/internal/telemetry/logsink"
	"github.com/quantshield/hips-sentinel/internal/telemetry/tracer"
)

// Engine maintains sliding-window correlation state and runs all five
// detectors synchronously on every Process call.
type Engine struct {
	cfg    Config
	log    *logsink.Sink
	tracer *tracer.Tracer

	eventsMu sync.Mutex
	global   []TrackedEvent
	byProc   map[uint32][]TrackedEvent
	byTarget map[string][]TrackedEvent

	correlationsMu sync.Mutex
	active         []Group

	callbackMu sync.Mutex
	callback   Callback

	processedEventCount uint64
	correlationCount    uint64
	idCounter           uint64
}

// New constructs an Engine. log may be nil (falls back to discarding); tr
// may be nil (falls back to a disabled, no-op Tracer).
func New(cfg Config, log *logsink.Sink, tr *tracer.Tracer) *Engine {
	if log == nil {
		log = logsink.Nop()
	}
	if tr == nil {
		tr, _ = tracer.New(tracer.Config{})
	}
	return &Engine{
		cfg:      cfg,
		log:      log,
		tracer:   tr,
		byProc:   make(map[uint32][]TrackedEvent),
		byTarget: make(map[string][]TrackedEvent),
	}
}

// RegisterCallback installs the single correlation callback slot.
func (e *Engine) RegisterCallback(cb Callback) {
	e.callbackMu.Lock()
	defer e.callbackMu.Unlock()
	e.callback = cb
}

// ProcessedEventCount returns the number of events ingested so far.
func (e *Engine) ProcessedEventCount() uint64 {
	return atomic.LoadUint64(&e.processedEventCount)
}

// CorrelationCount returns the number of non-duplicate groups emitted so far.
func (e *Engine) CorrelationCount() uint64 {
	return atomic.LoadUint64(&e.correlationCount)
}

// Snapshot returns a diagnostic copy of the currently active groups.
func (e *Engine) Snapshot() []Group {
	e.correlationsMu.Lock()
	defer e.correlationsMu.Unlock()
	out := make([]Group, len(e.active))
	copy(out, e.active)
	return out
}

// Process ingests ev (spec.md §4.G.2) and runs detection synchronously.
// Failures never panic: a malformed event (no target_path) simply skips the
// per-target index, per §4.G.10.
func (e *Engine) Process(ev event.SecurityEvent) {
	ctx, span := e.tracer.StartSpan(context.Background(), "correlation.Process")
	defer span.End()
	e.tracer.SetAttribute(ctx, "event_type", string(ev.Type))
	e.tracer.SetAttribute(ctx, "process_id", ev.ProcessID)

	now := time.Now()
	tracked := TrackedEvent{Event: ev, Tracked: now}

	e.eventsMu.Lock()
	e.global = append(e.global, tracked)
	e.byProc[ev.ProcessID] = capFIFO(append(e.byProc[ev.ProcessID], tracked), e.cfg.MaxEventsPerProcess)
	if ev.TargetPath != "" {
		e.byTarget[ev.TargetPath] = capFIFO(append(e.byTarget[ev.TargetPath], tracked), e.cfg.MaxEventsPerProcess)
	}
	e.global = pruneWindow(e.global, now, e.cfg.windowDuration())

	globalSnapshot := make([]TrackedEvent, len(e.global))
	copy(globalSnapshot, e.global)
	procSnapshot := make(map[uint32][]TrackedEvent, len(e.byProc))
	for k, v := range e.byProc {
		cp := make([]TrackedEvent, len(v))
		copy(cp, v)
		procSnapshot[k] = cp
	}
	targetSnapshot := make(map[string][]TrackedEvent, len(e.byTarget))
	for k, v := range e.byTarget {
		cp := make([]TrackedEvent, len(v))
		copy(cp, v)
		targetSnapshot[k] = cp
	}
	e.eventsMu.Unlock()

	atomic.AddUint64(&e.processedEventCount, 1)

	e.detectCorrelations(now, globalSnapshot, procSnapshot, targetSnapshot)
}

func capFIFO(seq []TrackedEvent, max int) []TrackedEvent {
	if max <= 0 || len(seq) <= max {
		return seq
	}
	drop := len(seq) - max
	return append([]TrackedEvent{}, seq[drop:]...)
}

func pruneWindow(seq []TrackedEvent, now time.Time, window time.Duration) []TrackedEvent {
	cut := 0
	for cut < len(seq) && now.Sub(seq[cut].Tracked) > window {
		cut++
	}
	if cut == 0 {
		return seq
	}
	return append([]TrackedEvent{}, seq[cut:]...)
}

func (e *Engine) detectCorrelations(now time.Time, global []TrackedEvent, byProc map[uint32][]TrackedEvent, byTarget map[string][]TrackedEvent) {
	if e.cfg.EnableProcessBased {
		for pid, seq := range byProc {
			if len(seq) < e.cfg.MinEventsForCorrelation {
				continue
			}
			recent := withinWindow(seq, now, e.cfg.windowDuration())
			if len(recent) < e.cfg.MinEventsForCorrelation {
				continue
			}
			s := score(eventsOf(recent), ProcessBased)
			if s < e.cfg.MinCorrelationScore {
				continue
			}
			e.tryEmit(ProcessBased, recent, s, fmt.Sprintf("Correlated activity from process %d", pid), map[string]string{"process_id": fmt.Sprint(pid)})
		}
	}

	if e.cfg.EnableTimeBased {
		var severe []TrackedEvent
		for _, te := range global {
			if te.Event.ThreatLevel == event.High || te.Event.ThreatLevel == event.Critical {
				severe = append(severe, te)
			}
		}
		if len(severe) >= e.cfg.MinEventsForCorrelation {
			s := score(eventsOf(severe), TimeBased)
			if s >= e.cfg.MinCorrelationScore {
				e.tryEmit(TimeBased, severe, s, "Burst of high-severity events", nil)
			}
		}
	}

	if e.cfg.EnableTargetBased {
		for target, seq := range byTarget {
			if target == "" || len(seq) < e.cfg.MinEventsForCorrelation {
				continue
			}
			recent := withinWindow(seq, now, e.cfg.windowDuration())
			if len(recent) < e.cfg.MinEventsForCorrelation {
				continue
			}
			s := score(eventsOf(recent), TargetBased)
			if s < e.cfg.MinCorrelationScore {
				continue
			}
			e.tryEmit(TargetBased, recent, s, fmt.Sprintf("Correlated activity against %s", target), map[string]string{"target": target})
		}
	}

	if e.cfg.EnableSequenceBased && len(global) >= e.cfg.MinEventsForCorrelation {
		if matched, desc := matchKnownPattern(eventsOf(global)); matched {
			e.tryEmitFixed(SequenceBased, global, 0.9, event.Critical, desc, nil)
		}
	}

	if e.cfg.EnableThreatEscalation {
		for pid, seq := range byProc {
			if len(seq) < 2 {
				continue
			}
			var escalating []TrackedEvent
			prevLevel := seq[0].Event.ThreatLevel
			escalating = append(escalating, seq[0])
			for _, te := range seq[1:] {
				if te.Event.ThreatLevel > prevLevel {
					escalating = append(escalating, te)
				}
				prevLevel = te.Event.ThreatLevel
			}
			if len(escalating) >= e.cfg.MinEventsForCorrelation {
				e.tryEmitFixed(ThreatEscalation, escalating, 0.85, combinedThreatLevel(eventsOf(escalating)), fmt.Sprintf("Escalating threat level from process %d", pid), map[string]string{"process_id": fmt.Sprint(pid)})
			}
		}
	}
}

func withinWindow(seq []TrackedEvent, now time.Time, window time.Duration) []TrackedEvent {
	var out []TrackedEvent
	for _, te := range seq {
		if now.Sub(te.Tracked) <= window {
			out = append(out, te)
		}
	}
	return out
}

func eventsOf(seq []TrackedEvent) []event.SecurityEvent {
	out := make([]event.SecurityEvent, len(seq))
	for i, te := range seq {
		out[i] = te.Event
	}
	return out
}

func (e *Engine) tryEmit(t GroupType, seq []TrackedEvent, s float64, description string, metadata map[string]string) {
	level := combinedThreatLevel(eventsOf(seq))
	e.tryEmitFixed(t, seq, s, level, description, metadata)
}

func (e *Engine) tryEmitFixed(t GroupType, seq []TrackedEvent, s float64, level event.ThreatLevel, description string, metadata map[string]string) {
	if len(seq) == 0 {
		return
	}
	g := Group{
		Type:                t,
		Events:              eventsOf(seq),
		CombinedThreatLevel: level,
		CorrelationScore:    s,
		FirstEventTime:      seq[0].Tracked,
		LastEventTime:       seq[len(seq)-1].Tracked,
		Description:         description,
		Metadata:            metadata,
	}
	e.insert(g)
}

// insert performs duplicate suppression (§4.G.7), id assignment (§4.G.9),
// group-lifecycle capping (§4.G.8), and callback invocation — releasing the
// correlations lock before the callback runs to avoid reentrancy deadlock
// (spec.md §9, "Callback reentrancy").
func (e *Engine) insert(g Group) {
	e.correlationsMu.Lock()

	firstPID := uint32(0)
	if len(g.Events) > 0 {
		firstPID = g.Events[0].ProcessID
	}
	for _, existing := range e.active {
		existingPID := uint32(0)
		if len(existing.Events) > 0 {
			existingPID = existing.Events[0].ProcessID
		}
		if existing.Type == g.Type && len(existing.Events) == len(g.Events) && existingPID == firstPID {
			e.correlationsMu.Unlock()
			return
		}
	}

	g.CorrelationID = e.nextCorrelationID()

	e.active = append(e.active, g)
	if e.cfg.MaxCorrelationGroups > 0 && len(e.active) > e.cfg.MaxCorrelationGroups {
		drop := len(e.active) - e.cfg.MaxCorrelationGroups
		e.active = append([]Group{}, e.active[drop:]...)
	}
	atomic.AddUint64(&e.correlationCount, 1)

	e.correlationsMu.Unlock()

	e.log.Warningw("correlation group emitted",
		"type", string(g.Type),
		"correlation_id", g.CorrelationID,
		"event_count", len(g.Events),
		"score", g.CorrelationScore,
	)

	e.callbackMu.Lock()
	cb := e.callback
	e.callbackMu.Unlock()
	if cb != nil {
		cb(g)
	}
}

// ClearOldCorrelations trims active groups to the last 100 (spec.md §4.G.8).
func (e *Engine) ClearOldCorrelations() {
	e.correlationsMu.Lock()
	defer e.correlationsMu.Unlock()
	if len(e.active) > 100 {
		e.active = append([]Group{}, e.active[len(e.active)-100:]...)
	}
}

// nextCorrelationID returns "CORR-<unix_ms>-<counter>" where counter is a
// single engine-wide atomic, guaranteeing correlation IDs emitted by one
// engine instance are pairwise distinct even when two groups are emitted
// in the same millisecond for different processes (spec.md §4.G.9).
func (e *Engine) nextCorrelationID() string {
	counter := atomic.AddUint64(&e.idCounter, 1) - 1
	return fmt.Sprintf("CORR-%d-%d", time.Now().UnixMilli(), counter)
}
