package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"obsdock/internal/domain"
	"obsdock/internal/logging"
)

// TransportSource hands out the live transport. ConnectionManager implements it.
type TransportSource interface {
	Transport() (domain.Transport, error)
}

// ActionGateway validates actions, resolves scene items and maps each
// action onto exactly one obs-websocket request. It never retries and never
// refreshes the cache itself.
type ActionGateway struct {
	source   TransportSource
	cache    *SnapshotCache
	recorder Recorder
	lookups  singleflight.Group
}

// NewActionGateway creates a gateway reading names from cache.
func NewActionGateway(source TransportSource, cache *SnapshotCache, recorder Recorder) *ActionGateway {
	return &ActionGateway{
		source:   source,
		cache:    cache,
		recorder: recorderOrNop(recorder),
	}
}

// Dispatch runs one action. Failures come back as a result, never as a panic.
func (g *ActionGateway) Dispatch(ctx context.Context, action domain.Action) domain.ActionResult {
	if action == nil {
		return domain.Failed("", &domain.ValidationError{Field: "type", Reason: "is required"})
	}
	start := time.Now()
	res := g.dispatch(ctx, action)
	elapsed := time.Since(start)
	g.recorder.ActionDispatched(action.Type(), res, elapsed)

	log := logging.Component("gateway")
	ev := log.Debug()
	if !res.Success {
		ev = log.Info().Str("error", res.Error).Str("kind", string(res.Kind))
	}
	ev.Str("action", string(action.Type())).Dur("elapsed", elapsed).Bool("success", res.Success).Msg("dispatch")
	return res
}

func (g *ActionGateway) dispatch(ctx context.Context, action domain.Action) domain.ActionResult {
	if err := action.Validate(); err != nil {
		return domain.Failed(action.Type(), err)
	}
	t, err := g.source.Transport()
	if err != nil {
		return domain.Failed(action.Type(), domain.ErrNotConnected)
	}
	msg, err := g.execute(ctx, t, action)
	if err != nil {
		return domain.Failed(action.Type(), err)
	}
	return domain.Succeeded(msg)
}

var commandMessages = map[domain.ActionType]string{
	domain.TypeStartStream:                 "Stream started",
	domain.TypeStopStream:                  "Stream stopped",
	domain.TypeStartRecord:                 "Recording started",
	domain.TypeStopRecord:                  "Recording stopped",
	domain.TypePauseRecord:                 "Recording paused",
	domain.TypeResumeRecord:                "Recording resumed",
	domain.TypeStartReplayBuffer:           "Replay buffer started",
	domain.TypeStopReplayBuffer:            "Replay buffer stopped",
	domain.TypeSaveReplayBuffer:            "Replay buffer saved",
	domain.TypeStartVirtualCam:             "Virtual camera started",
	domain.TypeStopVirtualCam:              "Virtual camera stopped",
	domain.TypeTriggerStudioModeTransition: "Studio mode transition triggered",
}

func onOff(v bool, on, off string) string {
	if v {
		return on
	}
	return off
}

func (g *ActionGateway) execute(ctx context.Context, t domain.Transport, action domain.Action) (string, error) {
	rt := action.Type().RequestType()
	switch a := action.(type) {
	case domain.SetCurrentProgramScene:
		if err := t.Call(ctx, rt, domain.SceneParams{SceneName: a.SceneName}, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Switched to scene %q", a.SceneName), nil

	case domain.SetCurrentPreviewScene:
		if err := t.Call(ctx, rt, domain.SceneParams{SceneName: a.SceneName}, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Preview set to scene %q", a.SceneName), nil

	case domain.CreateScene:
		if err := t.Call(ctx, rt, domain.SceneParams{SceneName: a.SceneName}, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Created scene %q", a.SceneName), nil

	case domain.RemoveScene:
		if err := t.Call(ctx, rt, domain.SceneParams{SceneName: a.SceneName}, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Removed scene %q", a.SceneName), nil

	case domain.SetSceneName:
		if err := t.Call(ctx, rt, a, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Renamed scene %q to %q", a.SceneName, a.NewSceneName), nil

	case domain.SetSceneItemEnabled:
		item, err := g.resolveItem(ctx, t, a.ItemRef)
		if err != nil {
			return "", err
		}
		params := domain.SetSceneItemEnabledParams{SceneItemParams: item, SceneItemEnabled: *a.SceneItemEnabled}
		if err := t.Call(ctx, rt, params, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s in %q", onOff(*a.SceneItemEnabled, "Showed", "Hid"), itemName(a.ItemRef, item), item.SceneName), nil

	case domain.SetSceneItemLocked:
		item, err := g.resolveItem(ctx, t, a.ItemRef)
		if err != nil {
			return "", err
		}
		params := domain.SetSceneItemLockedParams{SceneItemParams: item, SceneItemLocked: *a.SceneItemLocked}
		if err := t.Call(ctx, rt, params, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s in %q", onOff(*a.SceneItemLocked, "Locked", "Unlocked"), itemName(a.ItemRef, item), item.SceneName), nil

	case domain.SetSceneItemIndex:
		item, err := g.resolveItem(ctx, t, a.ItemRef)
		if err != nil {
			return "", err
		}
		params := domain.SetSceneItemIndexParams{SceneItemParams: item, SceneItemIndex: *a.SceneItemIndex}
		if err := t.Call(ctx, rt, params, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Moved %s in %q to index %d", itemName(a.ItemRef, item), item.SceneName, *a.SceneItemIndex), nil

	case domain.SetSceneItemTransform:
		item, err := g.resolveItem(ctx, t, a.ItemRef)
		if err != nil {
			return "", err
		}
		params := domain.SetSceneItemTransformParams{SceneItemParams: item, SceneItemTransform: a.SceneItemTransform}
		if err := t.Call(ctx, rt, params, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Transformed %s in %q", itemName(a.ItemRef, item), item.SceneName), nil

	case domain.RemoveSceneItem:
		item, err := g.resolveItem(ctx, t, a.ItemRef)
		if err != nil {
			return "", err
		}
		if err := t.Call(ctx, rt, item, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Removed %s from %q", itemName(a.ItemRef, item), item.SceneName), nil

	case domain.CreateSceneItem:
		scene, err := g.sceneOrCurrent(a.SceneName)
		if err != nil {
			return "", err
		}
		var out domain.CreatedItemResponse
		params := domain.CreateSceneItemParams{SceneName: scene, SourceName: a.SourceName, SceneItemEnabled: a.SceneItemEnabled}
		if err := t.Call(ctx, rt, params, &out); err != nil {
			return "", err
		}
		return fmt.Sprintf("Added %q to %q as item %d", a.SourceName, scene, out.SceneItemID), nil

	case domain.CreateInput:
		scene, err := g.sceneOrCurrent(a.SceneName)
		if err != nil {
			return "", err
		}
		var out domain.CreatedItemResponse
		params := domain.CreateInputParams{
			SceneName:        scene,
			InputName:        a.InputName,
			InputKind:        a.InputKind,
			InputSettings:    a.InputSettings,
			SceneItemEnabled: a.SceneItemEnabled,
		}
		if err := t.Call(ctx, rt, params, &out); err != nil {
			return "", err
		}
		return fmt.Sprintf("Created %s input %q in %q", a.InputKind, a.InputName, scene), nil

	case domain.RemoveInput:
		if err := t.Call(ctx, rt, a, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Removed input %q", a.InputName), nil

	case domain.SetInputName:
		if err := t.Call(ctx, rt, a, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Renamed input %q to %q", a.InputName, a.NewInputName), nil

	case domain.SetInputSettings:
		if err := t.Call(ctx, rt, a, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Updated settings of %q", a.InputName), nil

	case domain.SetInputMute:
		if err := t.Call(ctx, rt, a, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %q", onOff(*a.InputMuted, "Muted", "Unmuted"), a.InputName), nil

	case domain.ToggleInputMute:
		var out domain.InputMutedResponse
		if err := t.Call(ctx, rt, a, &out); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %q", onOff(out.InputMuted, "Muted", "Unmuted"), a.InputName), nil

	case domain.SetInputVolume:
		if err := t.Call(ctx, rt, a, nil); err != nil {
			return "", err
		}
		if a.InputVolumeDb != nil {
			return fmt.Sprintf("Set %q to %.1f dB", a.InputName, *a.InputVolumeDb), nil
		}
		return fmt.Sprintf("Set %q to %.2fx", a.InputName, *a.InputVolumeMul), nil

	case domain.Command:
		switch a.Name {
		case domain.TypeToggleStream, domain.TypeToggleRecord:
			var out domain.OutputActiveResponse
			if err := t.Call(ctx, rt, nil, &out); err != nil {
				return "", err
			}
			what := "Stream"
			if a.Name == domain.TypeToggleRecord {
				what = "Recording"
			}
			return what + onOff(out.OutputActive, " started", " stopped"), nil
		default:
			if err := t.Call(ctx, rt, nil, nil); err != nil {
				return "", err
			}
			return commandMessages[a.Name], nil
		}

	case domain.SetStudioModeEnabled:
		if err := t.Call(ctx, rt, a, nil); err != nil {
			return "", err
		}
		return "Studio mode " + onOff(*a.StudioModeEnabled, "enabled", "disabled"), nil

	case domain.SetCurrentSceneTransition:
		if err := t.Call(ctx, rt, a, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Transition set to %q", a.TransitionName), nil

	case domain.SetCurrentSceneTransitionDuration:
		if err := t.Call(ctx, rt, a, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Transition duration set to %d ms", *a.TransitionDuration), nil

	case domain.SetSourceFilterEnabled:
		if err := t.Call(ctx, rt, a, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s filter %q on %q", onOff(*a.FilterEnabled, "Enabled", "Disabled"), a.FilterName, a.SourceName), nil

	case domain.TriggerMediaInputAction:
		if err := t.Call(ctx, rt, a, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Triggered %s on %q", a.MediaAction, a.InputName), nil

	case domain.TriggerHotkeyByName:
		if err := t.Call(ctx, rt, a, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Triggered hotkey %q", a.HotkeyName), nil

	case domain.SetVideoSettings:
		video, err := g.mergeVideo(ctx, t, a)
		if err != nil {
			return "", err
		}
		if err := t.Call(ctx, rt, video, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Video set to %dx%d base, %dx%d output at %d/%d fps",
			video.BaseWidth, video.BaseHeight, video.OutputWidth, video.OutputHeight,
			video.FpsNumerator, video.FpsDenominator), nil

	case domain.UnsupportedAction:
		return "", &domain.UnsupportedActionError{Type: a.Name}

	default:
		return "", &domain.UnsupportedActionError{Type: string(action.Type())}
	}
}

// sceneOrCurrent defaults an omitted scene to the current program scene.
func (g *ActionGateway) sceneOrCurrent(scene string) (string, error) {
	if scene != "" {
		return scene, nil
	}
	if current, ok := g.cache.CurrentProgramScene(); ok {
		return current, nil
	}
	return "", domain.ErrNoCurrentScene
}

func itemName(ref domain.ItemRef, item domain.SceneItemParams) string {
	if ref.SourceName != "" {
		return fmt.Sprintf("%q", ref.SourceName)
	}
	return fmt.Sprintf("item %d", item.SceneItemID)
}

// resolveItem turns a name reference into a scene item id. A scene whose
// item list is in the snapshot is authoritative: a source missing from it
// fails without touching the transport. Scenes the snapshot does not know
// fall back to a live GetSceneItemId, shared between concurrent callers.
func (g *ActionGateway) resolveItem(ctx context.Context, t domain.Transport, ref domain.ItemRef) (domain.SceneItemParams, error) {
	scene, err := g.sceneOrCurrent(ref.SceneName)
	if err != nil {
		return domain.SceneItemParams{}, err
	}
	if ref.SceneItemID != nil {
		return domain.SceneItemParams{SceneName: scene, SceneItemID: *ref.SceneItemID}, nil
	}
	if id, ok := g.cache.ResolveSourceID(scene, ref.SourceName); ok {
		return domain.SceneItemParams{SceneName: scene, SceneItemID: id}, nil
	}
	if g.cache.sceneLoaded(scene) {
		return domain.SceneItemParams{}, &domain.ResolutionError{Scene: scene, Source: ref.SourceName}
	}

	// The shared lookup outlives any single caller; each caller still stops
	// waiting when its own context ends.
	key := fmt.Sprintf("%p\x00%s\x00%s", t, scene, ref.SourceName)
	ch := g.lookups.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		var resp domain.GetSceneItemIDResponse
		params := domain.SceneItemIDParams{SceneName: scene, SourceName: ref.SourceName}
		if err := t.Call(lctx, "GetSceneItemId", params, &resp); err != nil {
			return 0, err
		}
		if resp.SceneItemID == nil {
			return 0, fmt.Errorf("GetSceneItemId: response lacks sceneItemId")
		}
		return *resp.SceneItemID, nil
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return domain.SceneItemParams{}, ctx.Err()
	}
	v, err := res.Val, res.Err
	if err != nil {
		var perr *domain.ProtocolError
		if errors.As(err, &perr) && perr.Code == statusResourceNotFound {
			return domain.SceneItemParams{}, &domain.ResolutionError{Scene: scene, Source: ref.SourceName}
		}
		return domain.SceneItemParams{}, err
	}
	return domain.SceneItemParams{SceneName: scene, SceneItemID: v.(int)}, nil
}

// lookupTimeout bounds a shared GetSceneItemId call.
const lookupTimeout = 10 * time.Second

// statusResourceNotFound is the obs-websocket code for an unknown scene or source.
const statusResourceNotFound = 600

// mergeVideo completes a partial video update. The last known settings come
// from the snapshot, or from a live read when there is none.
func (g *ActionGateway) mergeVideo(ctx context.Context, t domain.Transport, a domain.SetVideoSettings) (domain.VideoSettings, error) {
	var base domain.VideoSettings
	snap, ok := g.cache.Snapshot()
	if ok {
		base = snap.Video
	} else if !completeVideo(a) {
		if err := t.Call(ctx, "GetVideoSettings", nil, &base); err != nil {
			return domain.VideoSettings{}, fmt.Errorf("read current video settings: %w", err)
		}
		ok = base.Validate() == nil
	}
	return domain.MergeVideoSettings(base, ok, a)
}

func completeVideo(a domain.SetVideoSettings) bool {
	return a.BaseWidth != nil && a.BaseHeight != nil && a.OutputWidth != nil &&
		a.OutputHeight != nil && a.FpsNumerator != nil && a.FpsDenominator != nil
}
