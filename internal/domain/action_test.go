package domain

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestRequestType(t *testing.T) {
	assert.Equal(t, "SetCurrentProgramScene", TypeSetCurrentProgramScene.RequestType())
	assert.Equal(t, "TriggerStudioModeTransition", TypeTriggerStudioModeTransition.RequestType())
	assert.Equal(t, "", ActionType("").RequestType())
}

func TestParseActionVariants(t *testing.T) {
	tests := []struct {
		in   string
		want Action
	}{
		{`{"type":"setCurrentProgramScene","sceneName":"Live"}`, SetCurrentProgramScene{SceneName: "Live"}},
		{`{"type":"startStream"}`, Command{Name: TypeStartStream}},
		{`{"type":"saveReplayBuffer","ignored":1}`, Command{Name: TypeSaveReplayBuffer}},
		{
			`{"type":"setSceneItemEnabled","sceneName":"A","sourceName":"Cam","sceneItemEnabled":false}`,
			SetSceneItemEnabled{ItemRef: ItemRef{SceneName: "A", SourceName: "Cam"}, SceneItemEnabled: ptr(false)},
		},
		{
			`{"type":"setSceneItemIndex","sceneItemId":7,"sceneItemIndex":0}`,
			SetSceneItemIndex{ItemRef: ItemRef{SceneItemID: ptr(7)}, SceneItemIndex: ptr(0)},
		},
		{`{"type":"setVideoSettings","outputWidth":1280}`, SetVideoSettings{OutputWidth: ptr(1280)}},
		{`{"type":"goLive"}`, UnsupportedAction{Name: "goLive"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAction([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseActionErrors(t *testing.T) {
	_, err := ParseAction([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseAction([]byte(`{"sceneName":"A"}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "type", verr.Field)

	_, err = ParseAction([]byte(`{"type":"setSceneItemEnabled","sceneItemEnabled":"yes"}`))
	assert.Error(t, err)
}

func TestUnsupportedActionNeverPasses(t *testing.T) {
	act, err := ParseAction([]byte(`{"type":"formatDisk"}`))
	require.NoError(t, err)
	err = act.Validate()
	var unsupported *UnsupportedActionError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "formatDisk", unsupported.Type)
	assert.Equal(t, KindUnsupported, Classify(err))

	assert.Error(t, Command{Name: "notACommand"}.Validate())
}

func TestValidateRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		field  string
	}{
		{"scene name", SetCurrentProgramScene{}, "sceneName"},
		{"new scene name", SetSceneName{SceneName: "A"}, "newSceneName"},
		{"item ref", SetSceneItemEnabled{SceneItemEnabled: ptr(true)}, "sourceName"},
		{"enabled flag", SetSceneItemEnabled{ItemRef: ItemRef{SourceName: "Cam"}}, "sceneItemEnabled"},
		{"negative index", SetSceneItemIndex{ItemRef: ItemRef{SourceName: "Cam"}, SceneItemIndex: ptr(-1)}, "sceneItemIndex"},
		{"transform", SetSceneItemTransform{ItemRef: ItemRef{SourceName: "Cam"}}, "sceneItemTransform"},
		{"input kind", CreateInput{InputName: "Mic"}, "inputKind"},
		{"input settings", SetInputSettings{InputName: "Mic"}, "inputSettings"},
		{"muted flag", SetInputMute{InputName: "Mic"}, "inputMuted"},
		{"volume", SetInputVolume{InputName: "Mic"}, "inputVolumeDb or inputVolumeMul"},
		{"volume both", SetInputVolume{InputName: "Mic", InputVolumeDb: ptr(-6.0), InputVolumeMul: ptr(0.5)}, "inputVolumeDb, inputVolumeMul"},
		{"volume range", SetInputVolume{InputName: "Mic", InputVolumeDb: ptr(40.0)}, "inputVolumeDb"},
		{"studio mode", SetStudioModeEnabled{}, "studioModeEnabled"},
		{"transition duration", SetCurrentSceneTransitionDuration{TransitionDuration: ptr(10)}, "transitionDuration"},
		{"filter", SetSourceFilterEnabled{SourceName: "Cam", FilterEnabled: ptr(true)}, "filterName"},
		{"media action", TriggerMediaInputAction{InputName: "Clip", MediaAction: "PLAY"}, "mediaAction"},
		{"hotkey", TriggerHotkeyByName{}, "hotkeyName"},
		{"video empty", SetVideoSettings{}, "at least one video setting"},
		{"video zero", SetVideoSettings{FpsDenominator: ptr(0)}, "fpsDenominator"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			require.Error(t, err)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %T", err)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, KindInvalid, Classify(err))
		})
	}
}

func TestValidateAcceptsCompleteActions(t *testing.T) {
	valid := []Action{
		SetCurrentProgramScene{SceneName: "Live"},
		SetSceneItemEnabled{ItemRef: ItemRef{SceneItemID: ptr(3)}, SceneItemEnabled: ptr(true)},
		SetSceneItemLocked{ItemRef: ItemRef{SourceName: "Cam"}, SceneItemLocked: ptr(false)},
		CreateSceneItem{SourceName: "Cam"},
		CreateInput{InputName: "Mic", InputKind: "coreaudio_input_capture"},
		SetInputVolume{InputName: "Mic", InputVolumeMul: ptr(0.5)},
		SetCurrentSceneTransitionDuration{TransitionDuration: ptr(300)},
		TriggerMediaInputAction{InputName: "Clip", MediaAction: "OBS_WEBSOCKET_MEDIA_INPUT_ACTION_PLAY"},
		SetVideoSettings{FpsNumerator: ptr(60), FpsDenominator: ptr(1)},
		Command{Name: TypeToggleRecord},
	}
	for _, a := range valid {
		assert.NoError(t, a.Validate(), "%s", a.Type())
	}
}

func TestSupportedActionsCoversEveryType(t *testing.T) {
	types := SupportedActions()
	assert.Len(t, types, len(decoders)+len(commands))
	assert.True(t, sort.SliceIsSorted(types, func(i, j int) bool { return types[i] < types[j] }))
	for _, typ := range types {
		act, err := ParseAction([]byte(`{"type":"` + string(typ) + `"}`))
		require.NoError(t, err, typ)
		assert.Equal(t, typ, act.Type())
		_, unsupported := act.(UnsupportedAction)
		assert.False(t, unsupported, typ)
	}
}
