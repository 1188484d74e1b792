package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obsdock/internal/domain"
	"obsdock/internal/logging"
)

func startShell(t *testing.T, cfg string) *shell {
	t.Helper()
	NewRootCmd()
	cfgPath = cfg
	s, err := openSession()
	require.NoError(t, err)
	active = s
	t.Cleanup(func() {
		active = nil
		s.close()
	})
	return &shell{out: &bytes.Buffer{}}
}

func output(sh *shell) string {
	buf := sh.out.(*bytes.Buffer)
	defer buf.Reset()
	return buf.String()
}

func TestShellKeepsOneSession(t *testing.T) {
	mock, cfg := setupTest(t)
	sh := startShell(t, cfg)

	assert.False(t, sh.exec("connect --address "+mock.Address()))
	assert.Contains(t, output(sh), "connected to "+mock.Address())

	assert.False(t, sh.exec("do toggleStream"))
	assert.Contains(t, output(sh), "Stream started")
	assert.False(t, sh.exec(`do setSceneItemEnabled sceneName=Live sourceName=Camera sceneItemEnabled=false`))
	assert.Contains(t, output(sh), `Hid "Camera" in "Live"`)

	assert.Equal(t, domain.StateConnected, active.dock.State())
	assert.Equal(t, 1, mock.ConnectionCount())
	assert.Equal(t, 1, mock.RequestCount("ToggleStream"))

	assert.False(t, sh.exec("disconnect"))
	assert.Equal(t, "disconnected\n", output(sh))
	assert.Equal(t, domain.StateDisconnected, active.dock.State())

	assert.False(t, sh.exec("status"))
	assert.Contains(t, output(sh), "state:   disconnected")
}

func TestShellBuiltins(t *testing.T) {
	_, cfg := setupTest(t)
	sh := startShell(t, cfg)

	assert.False(t, sh.exec("   "))
	assert.Empty(t, output(sh))

	assert.False(t, sh.exec("help"))
	assert.Contains(t, output(sh), "Examples:")

	assert.False(t, sh.exec("shell"))
	assert.Contains(t, output(sh), "Already in the shell")

	assert.False(t, sh.exec(`do "unterminated`))
	assert.Contains(t, output(sh), "Parse error")

	assert.False(t, sh.exec("nosuchcommand"))
	assert.Contains(t, output(sh), "command error")

	assert.True(t, sh.exec("exit"))
}

func TestShellLogLevelSticks(t *testing.T) {
	_, cfg := setupTest(t)
	sh := startShell(t, cfg)

	sh.exec("log -vv")
	assert.Contains(t, output(sh), "log level set to debug")

	sh.exec("actions")
	output(sh)
	assert.Equal(t, "debug", logging.LevelName())

	sh.exec("log --show")
	assert.Equal(t, "log level: debug (-v x2)\n", output(sh))
}

func TestShellSeesWhatItJustCreated(t *testing.T) {
	mock, cfg := setupTest(t)
	sh := startShell(t, cfg)

	require.False(t, sh.exec("connect --address "+mock.Address()))
	output(sh)

	sh.exec("do createInput sceneName=Live inputName=Banner inputKind=text_ft2_source_v2")
	assert.Contains(t, output(sh), "Banner")
	snap, ok := active.dock.Snapshot()
	require.True(t, ok)
	_, found := snap.ResolveSourceID("Live", "Banner")
	assert.True(t, found)

	sh.exec("do setSceneItemEnabled sceneName=Live sourceName=Banner sceneItemEnabled=false")
	assert.Contains(t, output(sh), `Hid "Banner" in "Live"`)
	assert.Equal(t, 1, mock.RequestCount("SetSceneItemEnabled"))
}
