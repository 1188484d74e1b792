package domain

import (
	"fmt"
	"strings"
	"time"
)

// Delay returns the wait before the given 1-based reconnect attempt.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if !p.Linear {
		return p.BaseDelay
	}
	return p.BaseDelay * time.Duration(attempt)
}

// Succeeded builds a successful ActionResult.
func Succeeded(message string) ActionResult {
	return ActionResult{Success: true, Message: message}
}

// Failed builds a failed ActionResult classified from err.
func Failed(action ActionType, err error) ActionResult {
	msg := "action failed"
	if action != "" {
		msg = fmt.Sprintf("%s failed", action)
	}
	return ActionResult{
		Success: false,
		Message: msg,
		Error:   err.Error(),
		Kind:    Classify(err),
	}
}

// MergeVideoSettings fills the fields missing from patch with base.
// The result always carries all six fields; hasBase=false with any field
// missing is an error naming what could not be resolved.
func MergeVideoSettings(base VideoSettings, hasBase bool, patch SetVideoSettings) (VideoSettings, error) {
	out := base
	var missing []string
	pick := func(name string, dst *int, v *int) {
		switch {
		case v != nil:
			*dst = *v
		case !hasBase || *dst <= 0:
			missing = append(missing, name)
		}
	}
	pick("baseWidth", &out.BaseWidth, patch.BaseWidth)
	pick("baseHeight", &out.BaseHeight, patch.BaseHeight)
	pick("outputWidth", &out.OutputWidth, patch.OutputWidth)
	pick("outputHeight", &out.OutputHeight, patch.OutputHeight)
	pick("fpsNumerator", &out.FpsNumerator, patch.FpsNumerator)
	pick("fpsDenominator", &out.FpsDenominator, patch.FpsDenominator)
	if len(missing) > 0 {
		return VideoSettings{}, &ValidationError{
			Action: TypeSetVideoSettings,
			Field:  strings.Join(missing, ", "),
			Reason: "unknown and not supplied",
		}
	}
	return out, nil
}

// refreshEvents are the pushed events after which the snapshot is stale.
var refreshEvents = map[string]bool{
	"CurrentProgramSceneChanged":  true,
	"CurrentPreviewSceneChanged":  true,
	"SceneCreated":                true,
	"SceneRemoved":                true,
	"SceneNameChanged":            true,
	"SceneListChanged":            true,
	"SceneItemCreated":            true,
	"SceneItemRemoved":            true,
	"SceneItemListReindexed":      true,
	"SceneItemEnableStateChanged": true,
	"SceneItemLockStateChanged":   true,
	"InputCreated":                true,
	"InputRemoved":                true,
	"InputNameChanged":            true,
	"StreamStateChanged":          true,
	"RecordStateChanged":          true,
	"StudioModeStateChanged":      true,
}

// TriggersRefresh reports whether an event of eventType invalidates the snapshot.
func TriggersRefresh(eventType string) bool {
	return refreshEvents[eventType]
}
