// Package dispatch implements the Dispatcher (spec.md §4.E): the single
// funnel every SecurityEvent passes through on its way from a monitor to
// policy evaluation and, ultimately, a per-type handler. Modeled on the
// teacher's firewall.Evaluate/risk.Analyzer pipeline: count, log, evaluate,
// apply, handle, each step isolated so a failure in one never blocks the
// next.
package dispatch

import (
	"context"

	"github.com/quantshield/hips-sentinel/internal/core/event"
	"github.com/quantshield/hips-sentinel/internal/core/hipserr"
	"github.com/quantshield/hips-sentinel/internal/core/rules"
	"github.com/quantshield/hips-sentinel/internal/core/stats"
	"github.com/quantshield/hips-sentinel/internal/telemetry/alertsink"
	"github.com/quantshield/hips-sentinel/internal/telemetry/logsink"
	"github.com/quantshield/hips-sentinel/internal/telemetry/tracer"
)

// Handler processes an event after policy has already been applied to it.
// A handler is registered per event.Type; at most one runs per dispatch.
type Handler func(event.SecurityEvent, rules.Action)

// Dispatcher wires together the statistics registry, log sink, alert sink,
// and policy evaluator, and fans each incoming event out to a registered
// Handler.
type Dispatcher struct {
	stats     *stats.Registry
	log       *logsink.Sink
	alerts    *alertsink.Sink
	tracer    *tracer.Tracer
	evaluator *rules.Evaluator

	handlers map[event.Type]Handler
}

// New builds a Dispatcher. log must not be nil; passing logsink.Nop() is
// fine for tests. alerts may be nil, in which case applyAction only logs.
// tr may be nil, in which case tracing falls back to a disabled no-op Tracer.
func New(statsReg *stats.Registry, log *logsink.Sink, alerts *alertsink.Sink, tr *tracer.Tracer, evaluator *rules.Evaluator) *Dispatcher {
	if tr == nil {
		tr, _ = tracer.New(tracer.Config{})
	}
	return &Dispatcher{
		stats:     statsReg,
		log:       log,
		alerts:    alerts,
		tracer:    tr,
		evaluator: evaluator,
		handlers:  make(map[event.Type]Handler),
	}
}

// RegisterHandler binds a Handler to an event.Type, replacing any prior one.
func (d *Dispatcher) RegisterHandler(typ event.Type, h Handler) {
	d.handlers[typ] = h
}

// Dispatch runs ev through the full pipeline: increment stats, log, evaluate
// policy, apply the resulting action, and invoke the registered handler (if
// any). Per spec.md §4.E, a panic inside the handler is recovered at this
// boundary and logged as an ApiFault rather than propagated — a bad handler
// must not take down the dispatcher loop.
func (d *Dispatcher) Dispatch(ev event.SecurityEvent) (action rules.Action, matched *rules.Rule) {
	ctx, span := d.tracer.StartSpan(context.Background(), "dispatch.Dispatch")
	defer span.End()
	d.tracer.SetAttribute(ctx, "event_type", string(ev.Type))
	d.tracer.SetAttribute(ctx, "threat_level", ev.ThreatLevel.String())

	if d.stats != nil {
		d.stats.Increment(ev.Type)
	}

	d.logEvent(ev)

	action, matched = d.evaluator.Evaluate(ev)
	d.tracer.SetAttribute(ctx, "action", string(action))

	d.applyAction(ev, action, matched)

	d.invokeHandler(ev, action)

	return action, matched
}

func (d *Dispatcher) logEvent(ev event.SecurityEvent) {
	if d.log == nil {
		return
	}
	level := logsink.Info
	switch ev.ThreatLevel {
	case event.High:
		level = logsink.Warning
	case event.Critical:
		level = logsink.Error
	}
	fields := []interface{}{
		"event_type", string(ev.Type),
		"threat_level", ev.ThreatLevel.String(),
		"process_id", ev.ProcessID,
		"target_path", ev.TargetPath,
	}
	switch level {
	case logsink.Warning:
		d.log.Warningw(ev.Description, fields...)
	case logsink.Error:
		d.log.Errorw(ev.Description, fields...)
	default:
		d.log.Infow(ev.Description, fields...)
	}
}

// applyAction performs the side effects a policy action implies beyond
// logging. Deny/Quarantine escalate to a Critical-level log line, since the
// actual OS-level blocking is a monitor/self-protection concern, not the
// dispatcher's. All three non-Allow actions also raise an alert with a
// canned message, per spec.md's ApplyAction description.
func (d *Dispatcher) applyAction(ev event.SecurityEvent, action rules.Action, matched *rules.Rule) {
	ruleName := "default"
	if matched != nil {
		ruleName = matched.Name
	}

	if d.log != nil {
		switch action {
		case rules.ActionDeny, rules.ActionQuarantine:
			d.log.Criticalw("policy action applied",
				"action", string(action),
				"rule", ruleName,
				"event_type", string(ev.Type),
				"target_path", ev.TargetPath,
			)
		}
	}

	if d.alerts == nil {
		return
	}
	switch action {
	case rules.ActionDeny:
		d.alerts.Emit(ev, "denied by rule \""+ruleName+"\"")
	case rules.ActionQuarantine:
		d.alerts.Emit(ev, "quarantined by rule \""+ruleName+"\"")
	case rules.ActionAlertOnly:
		d.alerts.Emit(ev, "alert-only match on rule \""+ruleName+"\"")
	}
}

func (d *Dispatcher) invokeHandler(ev event.SecurityEvent, action rules.Action) {
	h, ok := d.handlers[ev.Type]
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			if d.log != nil {
				d.log.Errorw("handler panic recovered",
					"event_type", string(ev.Type),
					"panic", r,
					"kind", string(hipserr.ApiFault),
				)
			}
		}
	}()
	h(ev, action)
}
