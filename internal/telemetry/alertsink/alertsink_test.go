package alertsink

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantshield/hips-sentinel/internal/core/event"
	"github.com/quantshield/hips-sentinel/internal/telemetry/logsink"
)

func TestSink_EmitAppendsAndAcknowledge(t *testing.T) {
	s, err := New(Config{}, logsink.Nop())
	require.NoError(t, err)

	ev := event.New(event.FileAccess, event.High, 1, 1, "p", "t", "")
	s.Emit(ev, "test alert")

	alerts := s.List()
	require.Len(t, alerts, 1)
	assert.False(t, alerts[0].Acknowledged)

	assert.True(t, s.Acknowledge(0))
	assert.True(t, s.List()[0].Acknowledged)
	assert.False(t, s.Acknowledge(5))
}

func TestSink_ClearEmptiesAlertList(t *testing.T) {
	s, err := New(Config{}, logsink.Nop())
	require.NoError(t, err)

	s.Emit(event.New(event.FileAccess, event.Low, 1, 1, "p", "", ""), "a")
	s.Clear()

	assert.Empty(t, s.List())
}

func TestSink_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "alerts.db")

	s, err := New(Config{DBPath: dbPath}, logsink.Nop())
	require.NoError(t, err)
	s.Emit(event.New(event.ProcessCreation, event.High, 1, 1, "p", "", ""), "persisted alert")
	require.NoError(t, s.Close())

	reopened, err := New(Config{DBPath: dbPath}, logsink.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	alerts := reopened.List()
	require.Len(t, alerts, 1)
	assert.Equal(t, "persisted alert", alerts[0].Message)
}
