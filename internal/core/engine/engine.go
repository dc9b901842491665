// Package engine wires every core component — rule store, evaluator,
// statistics, dispatcher, correlation engine, self-protection engine, and
// telemetry sinks — into the single top-level object an operator starts
// and stops. Grounded on the teacher's cmd/server/main.go wiring sequence
// (zap logger -> viper config -> metrics collector -> services -> graceful
// shutdown).
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quantshield/hips-sentinel/internal/core/config"
	"github.com/quantshield/hips-sentinel/internal/core/correlation"
	"github.com/quantshield/hips-sentinel/internal/core/dispatch"
	"github.com/quantshield/hips-sentinel/internal/core/event"
	"github.com/quantshield/hips-sentinel/internal/core/hipserr"
	"github.com/quantshield/hips-sentinel/internal/core/monitor"
	"github.com/quantshield/hips-sentinel/internal/core/rules"
	"github.com/quantshield/hips-sentinel/internal/core/selfprotect"
	"github.com/quantshield/hips-sentinel/internal/core/stats"
	"github.com/quantshield/hips-sentinel/internal/platform"
	"github.com/quantshield/hips-sentinel/internal/telemetry/alertsink"
	"github.com/quantshield/hips-sentinel/internal/telemetry/logsink"
	"github.com/quantshield/hips-sentinel/internal/telemetry/tracer"
)

// Engine is the top-level HIPS engine: the host that owns every monitor,
// the policy store, the correlation and self-protection subsystems, and
// the telemetry sinks they all log and alert through.
type Engine struct {
	*monitor.Base

	cfg *config.Config

	Log      *logsink.Sink
	Alerts   *alertsink.Sink
	Tracer   *tracer.Tracer

	Rules       *rules.Store
	Evaluator   *rules.Evaluator
	Stats       *stats.Registry
	Dispatcher  *dispatch.Dispatcher
	Correlation *correlation.Engine
	SelfProtect *selfprotect.Engine

	monitorsMu sync.Mutex
	monitors   []monitor.Monitor
}

// New builds every subcomponent from cfg. It opens the log file and the
// alert store (and connects the tracer when tracing is enabled) but starts
// no monitor or worker; call Initialize then Start to bring the engine up.
func New(cfg *config.Config, reg prometheus.Registerer) (*Engine, error) {
	logCfg := logsink.DefaultConfig()
	if cfg.Logging.Level != "" {
		logCfg.MinLevel = parseLevel(cfg.Logging.Level)
	}
	logCfg.FilePath = cfg.Logging.OutputPath
	logCfg.Stdout = cfg.Logging.Console
	logCfg.Development = cfg.Logging.Dev

	log, err := logsink.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("engine: build log sink: %w", err)
	}

	alerts, err := alertsink.New(alertsink.Config{DBPath: cfg.Telemetry.AlertStorePath}, log)
	if err != nil {
		return nil, fmt.Errorf("engine: build alert sink: %w", err)
	}

	tr, err := tracer.New(tracer.Config{
		Enabled:      cfg.Telemetry.TracingEnabled,
		ServiceName:  "hips-sentinel",
		CollectorURL: cfg.Telemetry.TracingEndpoint,
		SampleRate:   1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: build tracer: %w", err)
	}

	ruleStore := rules.NewStore()
	if cfg.RuleStore.LoadDefaults {
		ruleStore.LoadDefaults()
	}
	evaluator := rules.NewEvaluator(ruleStore)
	statsReg := stats.New(reg)
	dispatcher := dispatch.New(statsReg, log, alerts, tr, evaluator)

	corrCfg := correlation.Config{
		TimeWindowSeconds:       cfg.Correlation.TimeWindowSeconds,
		MinEventsForCorrelation: cfg.Correlation.MinEventsForCorrelation,
		MinCorrelationScore:     cfg.Correlation.MinCorrelationScore,
		MaxEventsPerProcess:     cfg.Correlation.MaxEventsPerProcess,
		MaxCorrelationGroups:    cfg.Correlation.MaxCorrelationGroups,
		EnableProcessBased:      cfg.Correlation.EnableProcessBased,
		EnableTimeBased:         cfg.Correlation.EnableTimeBased,
		EnableTargetBased:       cfg.Correlation.EnableTargetBased,
		EnableSequenceBased:     cfg.Correlation.EnableSequenceBased,
		EnableThreatEscalation:  cfg.Correlation.EnableThreatEscalation,
	}
	corrEngine := correlation.New(corrCfg, log, tr)

	sp := selfprotect.New(log, platform.DefaultCapability{})

	e := &Engine{
		Base:        monitor.NewBase(),
		cfg:         cfg,
		Log:         log,
		Alerts:      alerts,
		Tracer:      tr,
		Rules:       ruleStore,
		Evaluator:   evaluator,
		Stats:       statsReg,
		Dispatcher:  dispatcher,
		Correlation: corrEngine,
		SelfProtect: sp,
	}

	// The dispatcher's per-type correlation handler is the hook through
	// which the correlation engine receives events (spec.md §4.E step 5).
	dispatcher.RegisterHandler(event.FileAccess, e.feedCorrelation)
	dispatcher.RegisterHandler(event.FileModification, e.feedCorrelation)
	dispatcher.RegisterHandler(event.FileDeletion, e.feedCorrelation)
	dispatcher.RegisterHandler(event.ProcessCreation, e.feedCorrelation)
	dispatcher.RegisterHandler(event.ProcessTermination, e.feedCorrelation)
	dispatcher.RegisterHandler(event.NetworkConnection, e.feedCorrelation)
	dispatcher.RegisterHandler(event.RegistryModification, e.feedCorrelation)
	dispatcher.RegisterHandler(event.MemoryInjection, e.feedCorrelation)
	dispatcher.RegisterHandler(event.ExploitAttempt, e.feedCorrelation)

	corrEngine.RegisterCallback(func(g correlation.Group) {
		e.Alerts.Emit(g.Events[0], fmt.Sprintf("correlation detected: %s (%s)", g.Type, g.Description))
	})

	return e, nil
}

func (e *Engine) feedCorrelation(ev event.SecurityEvent, _ rules.Action) {
	e.Correlation.Process(ev)
}

// DispatchEvent is the single ingestion point callers (monitors) use to
// submit an observed SecurityEvent.
func (e *Engine) DispatchEvent(ev event.SecurityEvent) {
	e.Dispatcher.Dispatch(ev)
}

// RegisterMonitor adds a monitor to the engine's exclusive ownership; the
// engine installs a callback funneling the monitor's events into its
// dispatcher (spec.md §4.F, §9 "Ownership of monitors").
func (e *Engine) RegisterMonitor(m monitor.Monitor) {
	e.monitorsMu.Lock()
	defer e.monitorsMu.Unlock()
	m.RegisterCallback(e.DispatchEvent)
	e.monitors = append(e.monitors, m)
}

// Initialize brings every subcomponent to the Initialized state.
func (e *Engine) Initialize() bool {
	if !e.Base.Initialize() {
		return false
	}
	if !e.SelfProtect.Initialize() {
		e.Log.Errorw("self-protection subsystem failed to initialize", "kind", string(hipserr.InvalidLifecycleState))
		return false
	}
	e.monitorsMu.Lock()
	defer e.monitorsMu.Unlock()
	for _, m := range e.monitors {
		if !m.Initialize() {
			e.Log.Warningw("monitor failed to initialize, continuing without it", "kind", string(hipserr.MonitorSetupFailed))
		}
	}
	return true
}

// Start launches every monitor and the self-protection subsystem. Monitor
// setup failures are logged but never abort engine startup, per spec.md §7.
func (e *Engine) Start() bool {
	if !e.Base.IsInitialized() {
		return false
	}
	if !e.SelfProtect.Start() {
		e.Log.Warningw("self-protection subsystem failed to start, continuing degraded")
	}

	e.monitorsMu.Lock()
	for _, m := range e.monitors {
		if !m.Start() {
			e.Log.Warningw("monitor failed to start", "kind", string(hipserr.MonitorSetupFailed))
		}
	}
	e.monitorsMu.Unlock()

	return e.Base.StartWorker(func(stopCh <-chan struct{}) {
		<-stopCh
	})
}

// Stop stops every monitor and the self-protection subsystem, then the
// engine itself.
func (e *Engine) Stop() bool {
	e.monitorsMu.Lock()
	for _, m := range e.monitors {
		m.Stop()
	}
	e.monitorsMu.Unlock()

	e.SelfProtect.Stop()
	return e.Base.StopWorker()
}

// Shutdown stops (if needed), closes telemetry sinks, and flushes the
// tracer.
func (e *Engine) Shutdown() bool {
	e.Base.Shutdown()

	e.monitorsMu.Lock()
	for _, m := range e.monitors {
		m.Shutdown()
	}
	e.monitorsMu.Unlock()

	e.SelfProtect.Shutdown()

	if err := e.Alerts.Close(); err != nil {
		e.Log.Errorw("failed to close alert sink", "error", err.Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Tracer.Shutdown(shutdownCtx); err != nil {
		e.Log.Errorw("failed to shut down tracer", "error", err.Error())
	}

	_ = e.Log.Sync()
	return true
}

func parseLevel(s string) logsink.Level {
	switch s {
	case "debug":
		return logsink.Debug
	case "warning", "warn":
		return logsink.Warning
	case "error":
		return logsink.Error
	case "critical":
		return logsink.CriticalLevel
	default:
		return logsink.Info
	}
}
