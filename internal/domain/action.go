package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"unicode"
	"unicode/utf8"
)

// ActionType is the "type" tag of an action request.
type ActionType string

// RequestType is the obs-websocket request type the action maps onto.
func (t ActionType) RequestType() string {
	r, size := utf8.DecodeRuneInString(string(t))
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r)) + string(t)[size:]
}

const (
	TypeSetCurrentProgramScene            ActionType = "setCurrentProgramScene"
	TypeSetCurrentPreviewScene            ActionType = "setCurrentPreviewScene"
	TypeCreateScene                       ActionType = "createScene"
	TypeRemoveScene                       ActionType = "removeScene"
	TypeSetSceneName                      ActionType = "setSceneName"
	TypeSetSceneItemEnabled               ActionType = "setSceneItemEnabled"
	TypeSetSceneItemLocked                ActionType = "setSceneItemLocked"
	TypeSetSceneItemIndex                 ActionType = "setSceneItemIndex"
	TypeSetSceneItemTransform             ActionType = "setSceneItemTransform"
	TypeCreateSceneItem                   ActionType = "createSceneItem"
	TypeRemoveSceneItem                   ActionType = "removeSceneItem"
	TypeCreateInput                       ActionType = "createInput"
	TypeRemoveInput                       ActionType = "removeInput"
	TypeSetInputName                      ActionType = "setInputName"
	TypeSetInputSettings                  ActionType = "setInputSettings"
	TypeSetInputMute                      ActionType = "setInputMute"
	TypeToggleInputMute                   ActionType = "toggleInputMute"
	TypeSetInputVolume                    ActionType = "setInputVolume"
	TypeStartStream                       ActionType = "startStream"
	TypeStopStream                        ActionType = "stopStream"
	TypeToggleStream                      ActionType = "toggleStream"
	TypeStartRecord                       ActionType = "startRecord"
	TypeStopRecord                        ActionType = "stopRecord"
	TypeToggleRecord                      ActionType = "toggleRecord"
	TypePauseRecord                       ActionType = "pauseRecord"
	TypeResumeRecord                      ActionType = "resumeRecord"
	TypeStartReplayBuffer                 ActionType = "startReplayBuffer"
	TypeStopReplayBuffer                  ActionType = "stopReplayBuffer"
	TypeSaveReplayBuffer                  ActionType = "saveReplayBuffer"
	TypeStartVirtualCam                   ActionType = "startVirtualCam"
	TypeStopVirtualCam                    ActionType = "stopVirtualCam"
	TypeTriggerStudioModeTransition       ActionType = "triggerStudioModeTransition"
	TypeSetStudioModeEnabled              ActionType = "setStudioModeEnabled"
	TypeSetCurrentSceneTransition         ActionType = "setCurrentSceneTransition"
	TypeSetCurrentSceneTransitionDuration ActionType = "setCurrentSceneTransitionDuration"
	TypeSetSourceFilterEnabled            ActionType = "setSourceFilterEnabled"
	TypeTriggerMediaInputAction           ActionType = "triggerMediaInputAction"
	TypeTriggerHotkeyByName               ActionType = "triggerHotkeyByName"
	TypeSetVideoSettings                  ActionType = "setVideoSettings"
)

// Action is a tagged union of every request the gateway understands.
// Only types in this package implement it.
type Action interface {
	Type() ActionType
	Validate() error
	isAction()
}

// ---- scenes

type SetCurrentProgramScene struct {
	SceneName string `json:"sceneName"`
}

type SetCurrentPreviewScene struct {
	SceneName string `json:"sceneName"`
}

type CreateScene struct {
	SceneName string `json:"sceneName"`
}

type RemoveScene struct {
	SceneName string `json:"sceneName"`
}

type SetSceneName struct {
	SceneName    string `json:"sceneName"`
	NewSceneName string `json:"newSceneName"`
}

// ---- scene items
//
// Items are addressed by (sceneName, sourceName) or (sceneName, sceneItemId).
// An empty sceneName means the current program scene.

type ItemRef struct {
	SceneName   string `json:"sceneName,omitempty"`
	SourceName  string `json:"sourceName,omitempty"`
	SceneItemID *int   `json:"sceneItemId,omitempty"`
}

type SetSceneItemEnabled struct {
	ItemRef
	SceneItemEnabled *bool `json:"sceneItemEnabled"`
}

type SetSceneItemLocked struct {
	ItemRef
	SceneItemLocked *bool `json:"sceneItemLocked"`
}

type SetSceneItemIndex struct {
	ItemRef
	SceneItemIndex *int `json:"sceneItemIndex"`
}

type SetSceneItemTransform struct {
	ItemRef
	SceneItemTransform map[string]any `json:"sceneItemTransform"`
}

type RemoveSceneItem struct {
	ItemRef
}

type CreateSceneItem struct {
	SceneName        string `json:"sceneName,omitempty"`
	SourceName       string `json:"sourceName"`
	SceneItemEnabled *bool  `json:"sceneItemEnabled,omitempty"`
}

// ---- inputs

type CreateInput struct {
	SceneName        string         `json:"sceneName,omitempty"`
	InputName        string         `json:"inputName"`
	InputKind        string         `json:"inputKind"`
	InputSettings    map[string]any `json:"inputSettings,omitempty"`
	SceneItemEnabled *bool          `json:"sceneItemEnabled,omitempty"`
}

type RemoveInput struct {
	InputName string `json:"inputName"`
}

type SetInputName struct {
	InputName    string `json:"inputName"`
	NewInputName string `json:"newInputName"`
}

type SetInputSettings struct {
	InputName     string         `json:"inputName"`
	InputSettings map[string]any `json:"inputSettings"`
	Overlay       *bool          `json:"overlay,omitempty"`
}

type SetInputMute struct {
	InputName  string `json:"inputName"`
	InputMuted *bool  `json:"inputMuted"`
}

type ToggleInputMute struct {
	InputName string `json:"inputName"`
}

// SetInputVolume takes exactly one of InputVolumeDb and InputVolumeMul.
type SetInputVolume struct {
	InputName      string   `json:"inputName"`
	InputVolumeDb  *float64 `json:"inputVolumeDb,omitempty"`
	InputVolumeMul *float64 `json:"inputVolumeMul,omitempty"`
}

// ---- outputs, studio mode, transitions, filters, media, hotkeys

// Command is a parameterless request such as startStream or saveReplayBuffer.
type Command struct {
	Name ActionType `json:"-"`
}

type SetStudioModeEnabled struct {
	StudioModeEnabled *bool `json:"studioModeEnabled"`
}

type SetCurrentSceneTransition struct {
	TransitionName string `json:"transitionName"`
}

type SetCurrentSceneTransitionDuration struct {
	TransitionDuration *int `json:"transitionDuration"`
}

type SetSourceFilterEnabled struct {
	SourceName    string `json:"sourceName"`
	FilterName    string `json:"filterName"`
	FilterEnabled *bool  `json:"filterEnabled"`
}

type TriggerMediaInputAction struct {
	InputName   string `json:"inputName"`
	MediaAction string `json:"mediaAction"`
}

type TriggerHotkeyByName struct {
	HotkeyName string `json:"hotkeyName"`
}

// SetVideoSettings may name any subset; the gateway merges the rest from
// the snapshot and always sends all six.
type SetVideoSettings struct {
	BaseWidth      *int `json:"baseWidth,omitempty"`
	BaseHeight     *int `json:"baseHeight,omitempty"`
	OutputWidth    *int `json:"outputWidth,omitempty"`
	OutputHeight   *int `json:"outputHeight,omitempty"`
	FpsNumerator   *int `json:"fpsNumerator,omitempty"`
	FpsDenominator *int `json:"fpsDenominator,omitempty"`
}

// UnsupportedAction stands in for a type tag with no mapping.
type UnsupportedAction struct {
	Name string
}

var mediaActions = map[string]bool{
	"OBS_WEBSOCKET_MEDIA_INPUT_ACTION_NONE":     true,
	"OBS_WEBSOCKET_MEDIA_INPUT_ACTION_PLAY":     true,
	"OBS_WEBSOCKET_MEDIA_INPUT_ACTION_PAUSE":    true,
	"OBS_WEBSOCKET_MEDIA_INPUT_ACTION_STOP":     true,
	"OBS_WEBSOCKET_MEDIA_INPUT_ACTION_RESTART":  true,
	"OBS_WEBSOCKET_MEDIA_INPUT_ACTION_NEXT":     true,
	"OBS_WEBSOCKET_MEDIA_INPUT_ACTION_PREVIOUS": true,
}

func (SetCurrentProgramScene) Type() ActionType            { return TypeSetCurrentProgramScene }
func (SetCurrentPreviewScene) Type() ActionType            { return TypeSetCurrentPreviewScene }
func (CreateScene) Type() ActionType                       { return TypeCreateScene }
func (RemoveScene) Type() ActionType                       { return TypeRemoveScene }
func (SetSceneName) Type() ActionType                      { return TypeSetSceneName }
func (SetSceneItemEnabled) Type() ActionType               { return TypeSetSceneItemEnabled }
func (SetSceneItemLocked) Type() ActionType                { return TypeSetSceneItemLocked }
func (SetSceneItemIndex) Type() ActionType                 { return TypeSetSceneItemIndex }
func (SetSceneItemTransform) Type() ActionType             { return TypeSetSceneItemTransform }
func (RemoveSceneItem) Type() ActionType                   { return TypeRemoveSceneItem }
func (CreateSceneItem) Type() ActionType                   { return TypeCreateSceneItem }
func (CreateInput) Type() ActionType                       { return TypeCreateInput }
func (RemoveInput) Type() ActionType                       { return TypeRemoveInput }
func (SetInputName) Type() ActionType                      { return TypeSetInputName }
func (SetInputSettings) Type() ActionType                  { return TypeSetInputSettings }
func (SetInputMute) Type() ActionType                      { return TypeSetInputMute }
func (ToggleInputMute) Type() ActionType                   { return TypeToggleInputMute }
func (SetInputVolume) Type() ActionType                    { return TypeSetInputVolume }
func (c Command) Type() ActionType                         { return c.Name }
func (SetStudioModeEnabled) Type() ActionType              { return TypeSetStudioModeEnabled }
func (SetCurrentSceneTransition) Type() ActionType         { return TypeSetCurrentSceneTransition }
func (SetCurrentSceneTransitionDuration) Type() ActionType { return TypeSetCurrentSceneTransitionDuration }
func (SetSourceFilterEnabled) Type() ActionType            { return TypeSetSourceFilterEnabled }
func (TriggerMediaInputAction) Type() ActionType           { return TypeTriggerMediaInputAction }
func (TriggerHotkeyByName) Type() ActionType               { return TypeTriggerHotkeyByName }
func (SetVideoSettings) Type() ActionType                  { return TypeSetVideoSettings }
func (u UnsupportedAction) Type() ActionType               { return ActionType(u.Name) }

func (SetCurrentProgramScene) isAction()            {}
func (SetCurrentPreviewScene) isAction()            {}
func (CreateScene) isAction()                       {}
func (RemoveScene) isAction()                       {}
func (SetSceneName) isAction()                      {}
func (SetSceneItemEnabled) isAction()               {}
func (SetSceneItemLocked) isAction()                {}
func (SetSceneItemIndex) isAction()                 {}
func (SetSceneItemTransform) isAction()             {}
func (RemoveSceneItem) isAction()                   {}
func (CreateSceneItem) isAction()                   {}
func (CreateInput) isAction()                       {}
func (RemoveInput) isAction()                       {}
func (SetInputName) isAction()                      {}
func (SetInputSettings) isAction()                  {}
func (SetInputMute) isAction()                      {}
func (ToggleInputMute) isAction()                   {}
func (SetInputVolume) isAction()                    {}
func (Command) isAction()                           {}
func (SetStudioModeEnabled) isAction()              {}
func (SetCurrentSceneTransition) isAction()         {}
func (SetCurrentSceneTransitionDuration) isAction() {}
func (SetSourceFilterEnabled) isAction()            {}
func (TriggerMediaInputAction) isAction()           {}
func (TriggerHotkeyByName) isAction()               {}
func (SetVideoSettings) isAction()                  {}
func (UnsupportedAction) isAction()                 {}

func missing(t ActionType, field string) error {
	return &ValidationError{Action: t, Field: field, Reason: "is required"}
}

func requireString(t ActionType, field, v string) error {
	if v == "" {
		return missing(t, field)
	}
	return nil
}

func requireSet[T any](t ActionType, field string, v *T) error {
	if v == nil {
		return missing(t, field)
	}
	return nil
}

func (a SetCurrentProgramScene) Validate() error {
	return requireString(a.Type(), "sceneName", a.SceneName)
}

func (a SetCurrentPreviewScene) Validate() error {
	return requireString(a.Type(), "sceneName", a.SceneName)
}

func (a CreateScene) Validate() error {
	return requireString(a.Type(), "sceneName", a.SceneName)
}

func (a RemoveScene) Validate() error {
	return requireString(a.Type(), "sceneName", a.SceneName)
}

func (a SetSceneName) Validate() error {
	return errors.Join(
		requireString(a.Type(), "sceneName", a.SceneName),
		requireString(a.Type(), "newSceneName", a.NewSceneName),
	)
}

func (r ItemRef) validate(t ActionType) error {
	if r.SourceName == "" && r.SceneItemID == nil {
		return missing(t, "sourceName")
	}
	return nil
}

func (a SetSceneItemEnabled) Validate() error {
	return errors.Join(a.ItemRef.validate(a.Type()), requireSet(a.Type(), "sceneItemEnabled", a.SceneItemEnabled))
}

func (a SetSceneItemLocked) Validate() error {
	return errors.Join(a.ItemRef.validate(a.Type()), requireSet(a.Type(), "sceneItemLocked", a.SceneItemLocked))
}

func (a SetSceneItemIndex) Validate() error {
	if err := errors.Join(a.ItemRef.validate(a.Type()), requireSet(a.Type(), "sceneItemIndex", a.SceneItemIndex)); err != nil {
		return err
	}
	if *a.SceneItemIndex < 0 {
		return &ValidationError{Action: a.Type(), Field: "sceneItemIndex", Reason: "must not be negative"}
	}
	return nil
}

func (a SetSceneItemTransform) Validate() error {
	if err := a.ItemRef.validate(a.Type()); err != nil {
		return err
	}
	if len(a.SceneItemTransform) == 0 {
		return missing(a.Type(), "sceneItemTransform")
	}
	return nil
}

func (a RemoveSceneItem) Validate() error {
	return a.ItemRef.validate(a.Type())
}

func (a CreateSceneItem) Validate() error {
	return requireString(a.Type(), "sourceName", a.SourceName)
}

func (a CreateInput) Validate() error {
	return errors.Join(
		requireString(a.Type(), "inputName", a.InputName),
		requireString(a.Type(), "inputKind", a.InputKind),
	)
}

func (a RemoveInput) Validate() error {
	return requireString(a.Type(), "inputName", a.InputName)
}

func (a SetInputName) Validate() error {
	return errors.Join(
		requireString(a.Type(), "inputName", a.InputName),
		requireString(a.Type(), "newInputName", a.NewInputName),
	)
}

func (a SetInputSettings) Validate() error {
	if err := requireString(a.Type(), "inputName", a.InputName); err != nil {
		return err
	}
	if a.InputSettings == nil {
		return missing(a.Type(), "inputSettings")
	}
	return nil
}

func (a SetInputMute) Validate() error {
	return errors.Join(
		requireString(a.Type(), "inputName", a.InputName),
		requireSet(a.Type(), "inputMuted", a.InputMuted),
	)
}

func (a ToggleInputMute) Validate() error {
	return requireString(a.Type(), "inputName", a.InputName)
}

func (a SetInputVolume) Validate() error {
	if err := requireString(a.Type(), "inputName", a.InputName); err != nil {
		return err
	}
	switch {
	case a.InputVolumeDb == nil && a.InputVolumeMul == nil:
		return missing(a.Type(), "inputVolumeDb or inputVolumeMul")
	case a.InputVolumeDb != nil && a.InputVolumeMul != nil:
		return &ValidationError{Action: a.Type(), Field: "inputVolumeDb, inputVolumeMul", Reason: "are mutually exclusive"}
	case a.InputVolumeDb != nil && (*a.InputVolumeDb < -100 || *a.InputVolumeDb > 26):
		return &ValidationError{Action: a.Type(), Field: "inputVolumeDb", Reason: "must be between -100 and 26"}
	case a.InputVolumeMul != nil && (*a.InputVolumeMul < 0 || *a.InputVolumeMul > 20):
		return &ValidationError{Action: a.Type(), Field: "inputVolumeMul", Reason: "must be between 0 and 20"}
	}
	return nil
}

func (c Command) Validate() error {
	if _, ok := commands[c.Name]; !ok {
		return &UnsupportedActionError{Type: string(c.Name)}
	}
	return nil
}

func (a SetStudioModeEnabled) Validate() error {
	return requireSet(a.Type(), "studioModeEnabled", a.StudioModeEnabled)
}

func (a SetCurrentSceneTransition) Validate() error {
	return requireString(a.Type(), "transitionName", a.TransitionName)
}

func (a SetCurrentSceneTransitionDuration) Validate() error {
	if err := requireSet(a.Type(), "transitionDuration", a.TransitionDuration); err != nil {
		return err
	}
	if d := *a.TransitionDuration; d < 50 || d > 20000 {
		return &ValidationError{Action: a.Type(), Field: "transitionDuration", Reason: "must be between 50 and 20000 ms"}
	}
	return nil
}

func (a SetSourceFilterEnabled) Validate() error {
	return errors.Join(
		requireString(a.Type(), "sourceName", a.SourceName),
		requireString(a.Type(), "filterName", a.FilterName),
		requireSet(a.Type(), "filterEnabled", a.FilterEnabled),
	)
}

func (a TriggerMediaInputAction) Validate() error {
	if err := errors.Join(
		requireString(a.Type(), "inputName", a.InputName),
		requireString(a.Type(), "mediaAction", a.MediaAction),
	); err != nil {
		return err
	}
	if !mediaActions[a.MediaAction] {
		return &ValidationError{Action: a.Type(), Field: "mediaAction", Reason: fmt.Sprintf("%q is not a media input action", a.MediaAction)}
	}
	return nil
}

func (a TriggerHotkeyByName) Validate() error {
	return requireString(a.Type(), "hotkeyName", a.HotkeyName)
}

func (a SetVideoSettings) Validate() error {
	fields := []struct {
		name string
		v    *int
	}{
		{"baseWidth", a.BaseWidth},
		{"baseHeight", a.BaseHeight},
		{"outputWidth", a.OutputWidth},
		{"outputHeight", a.OutputHeight},
		{"fpsNumerator", a.FpsNumerator},
		{"fpsDenominator", a.FpsDenominator},
	}
	set := 0
	for _, f := range fields {
		if f.v == nil {
			continue
		}
		if *f.v <= 0 {
			return &ValidationError{Action: a.Type(), Field: f.name, Reason: "must be positive"}
		}
		set++
	}
	if set == 0 {
		return missing(a.Type(), "at least one video setting")
	}
	return nil
}

func (u UnsupportedAction) Validate() error {
	return &UnsupportedActionError{Type: u.Name}
}

// commands are the parameterless action types.
var commands = map[ActionType]struct{}{
	TypeStartStream:                 {},
	TypeStopStream:                  {},
	TypeToggleStream:                {},
	TypeStartRecord:                 {},
	TypeStopRecord:                  {},
	TypeToggleRecord:                {},
	TypePauseRecord:                 {},
	TypeResumeRecord:                {},
	TypeStartReplayBuffer:           {},
	TypeStopReplayBuffer:            {},
	TypeSaveReplayBuffer:            {},
	TypeStartVirtualCam:             {},
	TypeStopVirtualCam:              {},
	TypeTriggerStudioModeTransition: {},
}

func decodeAs[T Action](data []byte) (Action, error) {
	var a T
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return a, nil
}

var decoders = map[ActionType]func([]byte) (Action, error){
	TypeSetCurrentProgramScene:            decodeAs[SetCurrentProgramScene],
	TypeSetCurrentPreviewScene:            decodeAs[SetCurrentPreviewScene],
	TypeCreateScene:                       decodeAs[CreateScene],
	TypeRemoveScene:                       decodeAs[RemoveScene],
	TypeSetSceneName:                      decodeAs[SetSceneName],
	TypeSetSceneItemEnabled:               decodeAs[SetSceneItemEnabled],
	TypeSetSceneItemLocked:                decodeAs[SetSceneItemLocked],
	TypeSetSceneItemIndex:                 decodeAs[SetSceneItemIndex],
	TypeSetSceneItemTransform:             decodeAs[SetSceneItemTransform],
	TypeCreateSceneItem:                   decodeAs[CreateSceneItem],
	TypeRemoveSceneItem:                   decodeAs[RemoveSceneItem],
	TypeCreateInput:                       decodeAs[CreateInput],
	TypeRemoveInput:                       decodeAs[RemoveInput],
	TypeSetInputName:                      decodeAs[SetInputName],
	TypeSetInputSettings:                  decodeAs[SetInputSettings],
	TypeSetInputMute:                      decodeAs[SetInputMute],
	TypeToggleInputMute:                   decodeAs[ToggleInputMute],
	TypeSetInputVolume:                    decodeAs[SetInputVolume],
	TypeSetStudioModeEnabled:              decodeAs[SetStudioModeEnabled],
	TypeSetCurrentSceneTransition:         decodeAs[SetCurrentSceneTransition],
	TypeSetCurrentSceneTransitionDuration: decodeAs[SetCurrentSceneTransitionDuration],
	TypeSetSourceFilterEnabled:            decodeAs[SetSourceFilterEnabled],
	TypeTriggerMediaInputAction:           decodeAs[TriggerMediaInputAction],
	TypeTriggerHotkeyByName:               decodeAs[TriggerHotkeyByName],
	TypeSetVideoSettings:                  decodeAs[SetVideoSettings],
}

// ParseAction decodes a {"type": ...} request. An unknown type becomes an
// UnsupportedAction rather than an error; err is only returned for input
// that is not a JSON object or whose fields have the wrong JSON types.
func ParseAction(data []byte) (Action, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}
	if head.Type == "" {
		return nil, &ValidationError{Field: "type", Reason: "is required"}
	}
	t := ActionType(head.Type)
	if _, ok := commands[t]; ok {
		return Command{Name: t}, nil
	}
	decode, ok := decoders[t]
	if !ok {
		return UnsupportedAction{Name: head.Type}, nil
	}
	a, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return a, nil
}

// SupportedActions lists every action type in lexical order.
func SupportedActions() []ActionType {
	out := make([]ActionType, 0, len(decoders)+len(commands))
	for t := range decoders {
		out = append(out, t)
	}
	for t := range commands {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
