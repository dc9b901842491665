package logsink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_BuildsAndSyncsWithoutError(t *testing.T) {
	sink, err := New(DefaultConfig())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		sink.Infow("hello", "key", "value")
		sink.Debugw("debug line")
		sink.Warningw("warning line")
		sink.Errorw("error line")
		sink.Criticalw("critical line")
	})
	_ = sink.Sync()
}

func TestLevel_StringMapping(t *testing.T) {
	assert.Equal(t, "DEBUG", Debug.String())
	assert.Equal(t, "CRITICAL", CriticalLevel.String())
}

func TestNop_NeverPanics(t *testing.T) {
	sink := Nop()
	assert.NotPanics(t, func() {
		sink.Criticalw("discarded")
	})
}
