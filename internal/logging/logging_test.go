package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVerbosityClampsAndMapsLevels(t *testing.T) {
	t.Cleanup(func() { SetVerbosity(0) })

	cases := []struct {
		count int
		want  string
	}{
		{-3, "warn"},
		{0, "warn"},
		{1, "info"},
		{2, "debug"},
		{3, "trace"},
		{9, "trace"},
	}
	for _, tc := range cases {
		SetVerbosity(tc.count)
		assert.Equal(t, tc.want, LevelName(), "count %d", tc.count)
	}
	assert.Equal(t, 4, Verbosity())
}

func TestParseLevel(t *testing.T) {
	lvl, count, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, lvl)
	assert.Equal(t, 2, count)

	_, _, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbosity(0)
	t.Cleanup(func() {
		SetVerbosity(0)
	})

	Infof("hidden %d", 1)
	assert.Empty(t, buf.String())

	Warnf("shown %d", 2)
	assert.Contains(t, buf.String(), "shown 2")

	buf.Reset()
	SetVerbosity(1)
	Component("gateway").Info().Str("action", "startStream").Msg("dispatched")
	assert.Contains(t, buf.String(), "dispatched")
	assert.Contains(t, buf.String(), "gateway")
}
