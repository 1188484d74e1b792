package domain

import "fmt"

// Wire DTOs for the obs-websocket requests the cache and gateway issue.
// Responses with required fields are validated before use.

type SceneParams struct {
	SceneName string `json:"sceneName"`
}

type SceneItemIDParams struct {
	SceneName  string `json:"sceneName"`
	SourceName string `json:"sourceName"`
}

type SceneItemParams struct {
	SceneName   string `json:"sceneName"`
	SceneItemID int    `json:"sceneItemId"`
}

type SetSceneItemEnabledParams struct {
	SceneItemParams
	SceneItemEnabled bool `json:"sceneItemEnabled"`
}

type SetSceneItemLockedParams struct {
	SceneItemParams
	SceneItemLocked bool `json:"sceneItemLocked"`
}

type SetSceneItemIndexParams struct {
	SceneItemParams
	SceneItemIndex int `json:"sceneItemIndex"`
}

type SetSceneItemTransformParams struct {
	SceneItemParams
	SceneItemTransform map[string]any `json:"sceneItemTransform"`
}

type CreateSceneItemParams struct {
	SceneName        string `json:"sceneName"`
	SourceName       string `json:"sourceName"`
	SceneItemEnabled *bool  `json:"sceneItemEnabled,omitempty"`
}

type CreateInputParams struct {
	SceneName        string         `json:"sceneName"`
	InputName        string         `json:"inputName"`
	InputKind        string         `json:"inputKind"`
	InputSettings    map[string]any `json:"inputSettings,omitempty"`
	SceneItemEnabled *bool          `json:"sceneItemEnabled,omitempty"`
}

type GetSceneListResponse struct {
	CurrentProgramSceneName string `json:"currentProgramSceneName"`
	CurrentPreviewSceneName string `json:"currentPreviewSceneName"`
	Scenes                  []struct {
		SceneName  string `json:"sceneName"`
		SceneIndex int    `json:"sceneIndex"`
	} `json:"scenes"`
}

func (r GetSceneListResponse) Validate() error {
	for i, s := range r.Scenes {
		if s.SceneName == "" {
			return fmt.Errorf("GetSceneList: scene %d has no name", i)
		}
	}
	if len(r.Scenes) > 0 && r.CurrentProgramSceneName == "" {
		return fmt.Errorf("GetSceneList: missing currentProgramSceneName")
	}
	return nil
}

// ToScenes returns the scene list ordered as OBS lists it.
func (r GetSceneListResponse) ToScenes() []Scene {
	out := make([]Scene, 0, len(r.Scenes))
	for _, s := range r.Scenes {
		out = append(out, Scene{Name: s.SceneName, Index: s.SceneIndex})
	}
	return out
}

type GetSceneItemListResponse struct {
	SceneItems []struct {
		SourceName       string  `json:"sourceName"`
		SceneItemID      *int    `json:"sceneItemId"`
		SceneItemEnabled bool    `json:"sceneItemEnabled"`
		SceneItemLocked  bool    `json:"sceneItemLocked"`
		SceneItemIndex   int     `json:"sceneItemIndex"`
		InputKind        *string `json:"inputKind"`
		SourceType       string  `json:"sourceType"`
		IsGroup          *bool   `json:"isGroup"`
	} `json:"sceneItems"`
}

func (r GetSceneItemListResponse) Validate() error {
	for i, it := range r.SceneItems {
		if it.SourceName == "" || it.SceneItemID == nil {
			return fmt.Errorf("GetSceneItemList: item %d lacks sourceName or sceneItemId", i)
		}
	}
	return nil
}

func (r GetSceneItemListResponse) ToItems() []SceneItem {
	out := make([]SceneItem, 0, len(r.SceneItems))
	for _, it := range r.SceneItems {
		item := SceneItem{
			SourceName:  it.SourceName,
			SceneItemID: *it.SceneItemID,
			Enabled:     it.SceneItemEnabled,
			Locked:      it.SceneItemLocked,
			Index:       it.SceneItemIndex,
			SourceType:  it.SourceType,
		}
		if it.InputKind != nil {
			item.InputKind = *it.InputKind
		}
		if it.IsGroup != nil {
			item.IsGroup = *it.IsGroup
		}
		out = append(out, item)
	}
	return out
}

type GetSceneItemIDResponse struct {
	SceneItemID *int `json:"sceneItemId"`
}

type GetStudioModeEnabledResponse struct {
	StudioModeEnabled bool `json:"studioModeEnabled"`
}

func (v VideoSettings) Validate() error {
	if v.BaseWidth <= 0 || v.BaseHeight <= 0 || v.OutputWidth <= 0 || v.OutputHeight <= 0 ||
		v.FpsNumerator <= 0 || v.FpsDenominator <= 0 {
		return fmt.Errorf("GetVideoSettings: incomplete video settings %+v", v)
	}
	return nil
}

type OutputActiveResponse struct {
	OutputActive bool `json:"outputActive"`
}

type InputMutedResponse struct {
	InputMuted bool `json:"inputMuted"`
}

type CreatedItemResponse struct {
	SceneItemID int `json:"sceneItemId"`
}

type GetVersionResponse struct {
	OBSVersion          string `json:"obsVersion"`
	OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
	Platform            string `json:"platform"`
}
