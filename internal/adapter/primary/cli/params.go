package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"obsdock/internal/domain"
)

// parseActionArgs turns `setSceneItemEnabled sceneName=Live sceneItemEnabled=false`
// into an action. A value that reads as JSON keeps its JSON type, anything
// else is a string.
func parseActionArgs(actionType string, pairs []string) (domain.Action, error) {
	obj := map[string]any{"type": actionType}
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		if key == "type" {
			return nil, fmt.Errorf("type is given as the first argument")
		}
		if _, dup := obj[key]; dup {
			return nil, fmt.Errorf("%s given twice", key)
		}
		obj[key] = inferValue(raw)
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode action: %w", err)
	}
	return domain.ParseAction(data)
}

func inferValue(raw string) any {
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	return raw
}
