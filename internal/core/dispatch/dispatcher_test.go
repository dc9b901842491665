package dispatch

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantshield/hips-sentinel/internal/core/event"
	"github.com/quantshield/hips-sentinel/internal/core/rules"
	"github.com/quantshield/hips-sentinel/internal/core/stats"
	"github.com/quantshield/hips-sentinel/internal/telemetry/alertsink"
	"github.com/quantshield/hips-sentinel/internal/telemetry/logsink"
)

func newDispatcherWithStore(t *testing.T) (*Dispatcher, *rules.Store, *stats.Registry, *alertsink.Sink) {
	t.Helper()
	store := rules.NewStore()
	eval := rules.NewEvaluator(store)
	statsReg := stats.New(nil)
	alerts, err := alertsink.New(alertsink.Config{DBPath: filepath.Join(t.TempDir(), "alerts.db")}, logsink.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { alerts.Close() })
	return New(statsReg, logsink.Nop(), alerts, nil, eval), store, statsReg, alerts
}

func TestDispatcher_IncrementsStatisticsForEveryEvent(t *testing.T) {
	d, _, statsReg, _ := newDispatcherWithStore(t)

	ev := event.New(event.ProcessCreation, event.Medium, 1, 1, "p", "", "")
	d.Dispatch(ev)
	d.Dispatch(ev)

	assert.Equal(t, uint64(2), statsReg.Count(event.ProcessCreation))
	assert.Equal(t, statsReg.Total(), sumCounts(statsReg))
}

func sumCounts(r *stats.Registry) uint64 {
	var total uint64
	for _, c := range r.Snapshot() {
		total += c
	}
	return total
}

func TestDispatcher_InvokesRegisteredHandlerWithAppliedAction(t *testing.T) {
	d, store, _, _ := newDispatcherWithStore(t)
	store.Add(rules.Rule{Name: "deny-all", EventType: event.ProcessCreation, Action: rules.ActionDeny, Enabled: true})

	var gotAction rules.Action
	var mu sync.Mutex
	d.RegisterHandler(event.ProcessCreation, func(_ event.SecurityEvent, action rules.Action) {
		mu.Lock()
		gotAction = action
		mu.Unlock()
	})

	d.Dispatch(event.New(event.ProcessCreation, event.Medium, 1, 1, "p", "", ""))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, rules.ActionDeny, gotAction)
}

func TestDispatcher_HandlerPanicIsRecovered(t *testing.T) {
	d, _, _, _ := newDispatcherWithStore(t)
	d.RegisterHandler(event.ProcessCreation, func(event.SecurityEvent, rules.Action) {
		panic("boom")
	})

	assert.NotPanics(t, func() {
		d.Dispatch(event.New(event.ProcessCreation, event.Low, 1, 1, "p", "", ""))
	})
}

func TestDispatcher_UnregisteredEventTypeIsSafe(t *testing.T) {
	d, _, _, _ := newDispatcherWithStore(t)
	assert.NotPanics(t, func() {
		d.Dispatch(event.New(event.FileAccess, event.Low, 1, 1, "p", "", ""))
	})
}

func TestDispatcher_NonAllowActionsRaiseAnAlert(t *testing.T) {
	d, store, _, alerts := newDispatcherWithStore(t)
	store.Add(rules.Rule{Name: "watch-creation", EventType: event.ProcessCreation, Action: rules.ActionAlertOnly, Enabled: true})

	d.Dispatch(event.New(event.ProcessCreation, event.Medium, 1, 1, "p", "", ""))

	alertList := alerts.List()
	require.Len(t, alertList, 1)
	assert.Contains(t, alertList[0].Message, "watch-creation")
}

func TestDispatcher_AllowActionRaisesNoAlert(t *testing.T) {
	d, _, _, alerts := newDispatcherWithStore(t)

	d.Dispatch(event.New(event.ProcessCreation, event.Low, 1, 1, "p", "", ""))

	assert.Empty(t, alerts.List())
}
