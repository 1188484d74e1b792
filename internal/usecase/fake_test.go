package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"obsdock/internal/domain"
)

type fakeCall struct {
	Type   string
	Params json.RawMessage
}

// fakeTransport is an in-memory domain.Transport. Handlers receive the
// params as the JSON the real client would send.
type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]func(params json.RawMessage) (any, error)
	calls    []fakeCall
	events   chan domain.Event
	done     chan struct{}
	closed   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers: make(map[string]func(json.RawMessage) (any, error)),
		events:   make(chan domain.Event, 16),
		done:     make(chan struct{}),
	}
}

func (f *fakeTransport) handle(requestType string, h func(params json.RawMessage) (any, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[requestType] = h
}

func (f *fakeTransport) Call(ctx context.Context, requestType string, params, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{Type: requestType, Params: raw})
	h := f.handlers[requestType]
	closed := f.closed
	f.mu.Unlock()

	if closed {
		return &domain.ConnectionError{Err: domain.ErrConnectionClosed}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if h == nil {
		return &domain.ProtocolError{RequestType: requestType, Code: 204, Comment: "Your request type is not valid."}
	}
	resp, err := h(raw)
	if err != nil {
		return err
	}
	if out != nil && resp != nil {
		b, err := json.Marshal(resp)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, out)
	}
	return nil
}

func (f *fakeTransport) Events() <-chan domain.Event { return f.events }

func (f *fakeTransport) Done() <-chan struct{} { return f.done }

func (f *fakeTransport) Close() error {
	f.drop()
	return nil
}

// drop simulates the socket going away.
func (f *fakeTransport) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.events)
	close(f.done)
}

func (f *fakeTransport) emit(eventType string, data any) {
	raw, _ := json.Marshal(data)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.events <- domain.Event{Type: eventType, Data: raw}
	}
}

func (f *fakeTransport) allCalls() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeCall(nil), f.calls...)
}

func (f *fakeTransport) callsOf(requestType string) []fakeCall {
	var out []fakeCall
	for _, c := range f.allCalls() {
		if c.Type == requestType {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTransport) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func notFound(requestType string) error {
	return &domain.ProtocolError{RequestType: requestType, Code: 600, Comment: "No source was found."}
}

// fakeWorld is a tiny OBS shared by every transport dialed against it.
type fakeWorld struct {
	mu      sync.Mutex
	scenes  []string
	program string
	items   map[string][]domain.SceneItem
	video   domain.VideoSettings
	stream  bool
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		scenes:  []string{"A", "B"},
		program: "A",
		items: map[string][]domain.SceneItem{
			"A": {{SourceName: "Cam", SceneItemID: 1, Enabled: true}},
			"B": {},
		},
		video: domain.VideoSettings{
			BaseWidth: 1920, BaseHeight: 1080,
			OutputWidth: 1280, OutputHeight: 720,
			FpsNumerator: 30, FpsDenominator: 1,
		},
	}
}

func (w *fakeWorld) setItems(scene string, items ...domain.SceneItem) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.items[scene] = items
}

func (w *fakeWorld) setProgram(scene string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.program = scene
}

func (w *fakeWorld) hasScene(name string) bool {
	for _, s := range w.scenes {
		if s == name {
			return true
		}
	}
	return false
}

func (w *fakeWorld) transport() *fakeTransport {
	f := newFakeTransport()
	w.install(f)
	return f
}

func (w *fakeWorld) install(f *fakeTransport) {
	type req struct {
		SceneName        string `json:"sceneName"`
		SourceName       string `json:"sourceName"`
		SceneItemID      int    `json:"sceneItemId"`
		SceneItemEnabled bool   `json:"sceneItemEnabled"`
	}
	decode := func(raw json.RawMessage) req {
		var r req
		_ = json.Unmarshal(raw, &r)
		return r
	}
	locked := func(h func(json.RawMessage) (any, error)) func(json.RawMessage) (any, error) {
		return func(raw json.RawMessage) (any, error) {
			w.mu.Lock()
			defer w.mu.Unlock()
			return h(raw)
		}
	}

	f.handle("GetSceneList", locked(func(json.RawMessage) (any, error) {
		scenes := make([]map[string]any, 0, len(w.scenes))
		for i, s := range w.scenes {
			scenes = append(scenes, map[string]any{"sceneName": s, "sceneIndex": i})
		}
		return map[string]any{"currentProgramSceneName": w.program, "scenes": scenes}, nil
	}))
	f.handle("GetStudioModeEnabled", func(json.RawMessage) (any, error) {
		return map[string]bool{"studioModeEnabled": false}, nil
	})
	f.handle("GetStreamStatus", locked(func(json.RawMessage) (any, error) {
		return map[string]any{"outputActive": w.stream}, nil
	}))
	f.handle("GetRecordStatus", func(json.RawMessage) (any, error) {
		return map[string]any{"outputActive": false}, nil
	})
	f.handle("GetVideoSettings", locked(func(json.RawMessage) (any, error) {
		return w.video, nil
	}))
	f.handle("SetVideoSettings", locked(func(raw json.RawMessage) (any, error) {
		return nil, json.Unmarshal(raw, &w.video)
	}))
	f.handle("GetSceneItemList", locked(func(raw json.RawMessage) (any, error) {
		r := decode(raw)
		if !w.hasScene(r.SceneName) {
			return nil, notFound("GetSceneItemList")
		}
		items := make([]map[string]any, 0)
		for _, it := range w.items[r.SceneName] {
			items = append(items, map[string]any{
				"sourceName":       it.SourceName,
				"sceneItemId":      it.SceneItemID,
				"sceneItemEnabled": it.Enabled,
			})
		}
		return map[string]any{"sceneItems": items}, nil
	}))
	f.handle("GetSceneItemId", locked(func(raw json.RawMessage) (any, error) {
		r := decode(raw)
		for _, it := range w.items[r.SceneName] {
			if it.SourceName == r.SourceName {
				return map[string]int{"sceneItemId": it.SceneItemID}, nil
			}
		}
		return nil, notFound("GetSceneItemId")
	}))
	f.handle("SetCurrentProgramScene", locked(func(raw json.RawMessage) (any, error) {
		r := decode(raw)
		if !w.hasScene(r.SceneName) {
			return nil, notFound("SetCurrentProgramScene")
		}
		w.program = r.SceneName
		return nil, nil
	}))
	f.handle("SetSceneItemEnabled", locked(func(raw json.RawMessage) (any, error) {
		r := decode(raw)
		items := w.items[r.SceneName]
		for i := range items {
			if items[i].SceneItemID == r.SceneItemID {
				items[i].Enabled = r.SceneItemEnabled
				return nil, nil
			}
		}
		return nil, notFound("SetSceneItemEnabled")
	}))
	f.handle("CreateInput", locked(func(raw json.RawMessage) (any, error) {
		var r struct {
			SceneName string `json:"sceneName"`
			InputName string `json:"inputName"`
		}
		_ = json.Unmarshal(raw, &r)
		id := 100 + len(w.items[r.SceneName])
		w.items[r.SceneName] = append(w.items[r.SceneName], domain.SceneItem{SourceName: r.InputName, SceneItemID: id, Enabled: true})
		return map[string]any{"sceneItemId": id}, nil
	}))
	f.handle("ToggleStream", locked(func(json.RawMessage) (any, error) {
		w.stream = !w.stream
		return map[string]bool{"outputActive": w.stream}, nil
	}))
	f.handle("StartStream", locked(func(json.RawMessage) (any, error) {
		if w.stream {
			return nil, &domain.ProtocolError{RequestType: "StartStream", Code: 500, Comment: "The output is already running."}
		}
		w.stream = true
		return nil, nil
	}))
}

var errDialRefused = errors.New("dial tcp: connection refused")

// fakeDialer counts dials and delegates to fn with the 1-based dial number.
type fakeDialer struct {
	mu    sync.Mutex
	dials int
	fn    func(ctx context.Context, n int) (domain.Transport, error)
}

func (d *fakeDialer) Dial(ctx context.Context, address, password string) (domain.Transport, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	fn := d.fn
	d.mu.Unlock()
	return fn(ctx, n)
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// staticSource is a TransportSource for gateway tests.
type staticSource struct {
	t domain.Transport
}

func (s staticSource) Transport() (domain.Transport, error) {
	if s.t == nil {
		return nil, domain.ErrNotConnected
	}
	return s.t, nil
}

// recordingRecorder keeps every observation for assertions.
type recordingRecorder struct {
	mu         sync.Mutex
	states     []domain.ConnState
	reconnects []bool
	actions    []domain.ActionResult
	refreshes  int
}

func (r *recordingRecorder) ConnectionStateChanged(s domain.ConnState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingRecorder) ReconnectAttempted(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconnects = append(r.reconnects, success)
}

func (r *recordingRecorder) ActionDispatched(_ domain.ActionType, res domain.ActionResult, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, res)
}

func (r *recordingRecorder) SnapshotRefreshed(error, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes++
}

func (r *recordingRecorder) reconnectAttempts() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.reconnects...)
}
