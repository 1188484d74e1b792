package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obsdock/internal/domain"
)

func TestParseActionArgsInfersTypes(t *testing.T) {
	act, err := parseActionArgs("setSceneItemEnabled", []string{"sceneName=Live", "sourceName=Camera", "sceneItemEnabled=false"})
	require.NoError(t, err)
	got, ok := act.(domain.SetSceneItemEnabled)
	require.True(t, ok)
	assert.Equal(t, "Live", got.SceneName)
	assert.Equal(t, "Camera", got.SourceName)
	require.NotNil(t, got.SceneItemEnabled)
	assert.False(t, *got.SceneItemEnabled)
}

func TestParseActionArgsObjectsAndQuotedStrings(t *testing.T) {
	act, err := parseActionArgs("setSceneName", []string{`sceneName="2024"`, "newSceneName=Archive"})
	require.NoError(t, err)
	assert.Equal(t, domain.SetSceneName{SceneName: "2024", NewSceneName: "Archive"}, act)

	act, err = parseActionArgs("setInputSettings", []string{"inputName=Browser", `inputSettings={"url":"https://example.com"}`})
	require.NoError(t, err)
	settings, ok := act.(domain.SetInputSettings)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"url": "https://example.com"}, settings.InputSettings)
}

func TestParseActionArgsCommandAndUnknown(t *testing.T) {
	act, err := parseActionArgs("toggleRecord", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.Command{Name: domain.TypeToggleRecord}, act)

	act, err = parseActionArgs("launchRocket", []string{"speed=9"})
	require.NoError(t, err)
	assert.Equal(t, domain.UnsupportedAction{Name: "launchRocket"}, act)
}

func TestParseActionArgsErrors(t *testing.T) {
	tests := []struct {
		name  string
		pairs []string
	}{
		{"no equals", []string{"sceneName"}},
		{"empty key", []string{"=Live"}},
		{"duplicate", []string{"sceneName=A", "sceneName=B"}},
		{"type override", []string{"type=removeScene"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseActionArgs("setCurrentProgramScene", tt.pairs)
			assert.Error(t, err)
		})
	}

	// Wrong JSON type for a field.
	_, err := parseActionArgs("setSceneItemEnabled", []string{"sceneName=Live", "sourceName=Cam", "sceneItemEnabled=[1]"})
	assert.Error(t, err)
}
