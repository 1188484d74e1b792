package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Scene is one entry of the OBS scene list. Index defines listing order.
type Scene struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// SceneItem is a source's membership in a scene. SceneItemID is scoped to
// the owning scene: the same source can carry different ids elsewhere.
type SceneItem struct {
	SourceName  string `json:"sourceName"`
	SceneItemID int    `json:"sceneItemId"`
	Enabled     bool   `json:"sceneItemEnabled"`
	Locked      bool   `json:"sceneItemLocked"`
	Index       int    `json:"sceneItemIndex"`
	InputKind   string `json:"inputKind,omitempty"`
	SourceType  string `json:"sourceType,omitempty"`
	IsGroup     bool   `json:"isGroup,omitempty"`
}

// StreamStatus mirrors GetStreamStatus. It is replaced wholesale on refresh.
type StreamStatus struct {
	Active        bool   `json:"outputActive"`
	Reconnecting  bool   `json:"outputReconnecting"`
	Timecode      string `json:"outputTimecode"`
	DurationMs    int64  `json:"outputDuration"`
	Bytes         int64  `json:"outputBytes"`
	SkippedFrames int64  `json:"outputSkippedFrames"`
	TotalFrames   int64  `json:"outputTotalFrames"`
}

// RecordStatus mirrors GetRecordStatus. It is replaced wholesale on refresh.
type RecordStatus struct {
	Active     bool   `json:"outputActive"`
	Paused     bool   `json:"outputPaused"`
	Timecode   string `json:"outputTimecode"`
	DurationMs int64  `json:"outputDuration"`
	Bytes      int64  `json:"outputBytes"`
}

// VideoSettings must always travel as a complete set of six fields.
type VideoSettings struct {
	BaseWidth      int `json:"baseWidth"`
	BaseHeight     int `json:"baseHeight"`
	OutputWidth    int `json:"outputWidth"`
	OutputHeight   int `json:"outputHeight"`
	FpsNumerator   int `json:"fpsNumerator"`
	FpsDenominator int `json:"fpsDenominator"`
}

// Snapshot is the cached mirror of remote OBS state.
type Snapshot struct {
	Scenes              []Scene                `json:"scenes"`
	CurrentProgramScene string                 `json:"currentProgramScene"`
	CurrentPreviewScene string                 `json:"currentPreviewScene,omitempty"`
	StudioModeEnabled   bool                   `json:"studioModeEnabled"`
	SceneItems          map[string][]SceneItem `json:"sceneItems"`
	Stream              StreamStatus           `json:"stream"`
	Record              RecordStatus           `json:"record"`
	Video               VideoSettings          `json:"video"`
	FetchedAt           time.Time              `json:"fetchedAt"`
}

// ResolveSourceID looks up the scene item id of source inside scene.
func (s Snapshot) ResolveSourceID(scene, source string) (int, bool) {
	for _, item := range s.SceneItems[scene] {
		if item.SourceName == source {
			return item.SceneItemID, true
		}
	}
	return 0, false
}

// Clone returns a deep copy so readers never share slices with the cache.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Scenes = append([]Scene(nil), s.Scenes...)
	out.SceneItems = make(map[string][]SceneItem, len(s.SceneItems))
	for name, items := range s.SceneItems {
		out.SceneItems[name] = append([]SceneItem(nil), items...)
	}
	return out
}

// ConnState is the connection lifecycle state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

func (s ConnState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ConnState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for _, st := range []ConnState{StateDisconnected, StateConnecting, StateConnected, StateReconnecting} {
		if st.String() == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", name)
}

// ConnectResult is returned by a connect call instead of an error.
type ConnectResult struct {
	Success bool      `json:"success"`
	State   ConnState `json:"state"`
	Message string    `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// ActionResult is created fresh for every dispatch and never mutated after.
type ActionResult struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
	Kind    ErrorKind `json:"kind,omitempty"`
}

// Event is a push notification from OBS.
type Event struct {
	Type   string          `json:"eventType"`
	Intent int             `json:"eventIntent,omitempty"`
	Data   json.RawMessage `json:"eventData,omitempty"`
}

// ReconnectPolicy bounds automatic reconnection after an unsolicited close.
type ReconnectPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Linear grows the wait by BaseDelay per attempt; otherwise every
	// attempt waits BaseDelay.
	Linear bool
}

// Preferences are the persisted user settings.
type Preferences struct {
	Address       string
	Password      string
	Reconnect     ReconnectPolicy
	LastConnected time.Time
}

const DefaultAddress = "localhost:4455"

// DefaultReconnectPolicy returns five linearly spaced attempts starting at 2s.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		Linear:      true,
	}
}

// DefaultPreferences returns the initial preferences.
func DefaultPreferences() Preferences {
	return Preferences{
		Address:   DefaultAddress,
		Reconnect: DefaultReconnectPolicy(),
	}
}

// Validate checks the reconnect bounds.
func (p ReconnectPolicy) Validate() error {
	if p.MaxAttempts < 1 || p.MaxAttempts > 10 {
		return ErrInvalidReconnectAttempts
	}
	if p.BaseDelay <= 0 || p.BaseDelay > time.Minute {
		return ErrInvalidReconnectDelay
	}
	return nil
}

// Validate checks the preference values.
func (p Preferences) Validate() error {
	if p.Address == "" {
		return ErrInvalidAddress
	}
	return p.Reconnect.Validate()
}
