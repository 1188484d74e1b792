package obsws

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"obsdock/internal/domain"
)

// MockHandler answers one request type. A nil status means success.
type MockHandler func(data json.RawMessage) (any, *RequestStatus)

// MockRequest is a recorded request.
type MockRequest struct {
	Type string
	Data json.RawMessage
}

// MockItem is a scene item in the mock's world.
type MockItem struct {
	SourceName string
	ID         int
	Enabled    bool
	Locked     bool
	InputKind  string
}

// MockServer is an in-process obs-websocket server holding a small OBS world.
type MockServer struct {
	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader

	Password string

	mu       sync.Mutex
	conns    map[*mockConn]struct{}
	handlers map[string]MockHandler
	requests []MockRequest
	nextID   int

	Scenes              []string
	CurrentProgramScene string
	CurrentPreviewScene string
	StudioMode          bool
	Items               map[string][]MockItem
	StreamActive        bool
	RecordActive        bool
	Video               domain.VideoSettings
}

type mockConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *mockConn) send(op int, d any) error {
	msg, err := encode(op, d)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(msg)
}

// NewMockServer starts a mock with one scene "Scene" holding no items.
func NewMockServer() (*MockServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	m := &MockServer{
		listener: ln,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{Subprotocol},
			CheckOrigin:  func(r *http.Request) bool { return true },
		},
		conns:               make(map[*mockConn]struct{}),
		handlers:            make(map[string]MockHandler),
		nextID:              1,
		Scenes:              []string{"Scene"},
		CurrentProgramScene: "Scene",
		Items:               make(map[string][]MockItem),
		Video: domain.VideoSettings{
			BaseWidth: 1920, BaseHeight: 1080,
			OutputWidth: 1280, OutputHeight: 720,
			FpsNumerator: 30, FpsDenominator: 1,
		},
	}
	m.installDefaults()
	m.server = &http.Server{Handler: http.HandlerFunc(m.serveWS)}
	go m.server.Serve(ln)
	return m, nil
}

// Address is the host:port to dial.
func (m *MockServer) Address() string {
	return m.listener.Addr().String()
}

// Close stops the server and drops every connection.
func (m *MockServer) Close() error {
	m.DropConnections()
	return m.server.Close()
}

// DropConnections closes every socket without a close frame, the way a
// crashing OBS would.
func (m *MockServer) DropConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.conns {
		c.ws.Close()
		delete(m.conns, c)
	}
}

// ConnectionCount returns the number of identified sessions.
func (m *MockServer) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Handle overrides the handler for requestType.
func (m *MockServer) Handle(requestType string, h MockHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[requestType] = h
}

// Requests returns a copy of every request received so far.
func (m *MockServer) Requests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockRequest(nil), m.requests...)
}

// RequestCount counts received requests of requestType.
func (m *MockServer) RequestCount(requestType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.Type == requestType {
			n++
		}
	}
	return n
}

// AddItem places a source into scene and returns its scene item id.
func (m *MockServer) AddItem(scene, source, inputKind string, enabled bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addItemLocked(scene, source, inputKind, enabled)
}

func (m *MockServer) addItemLocked(scene, source, inputKind string, enabled bool) int {
	id := m.nextID
	m.nextID++
	m.Items[scene] = append(m.Items[scene], MockItem{SourceName: source, ID: id, Enabled: enabled, InputKind: inputKind})
	return id
}

// EmitEvent pushes an event to every connected client.
func (m *MockServer) EmitEvent(eventType string, data any) {
	m.mu.Lock()
	conns := make([]*mockConn, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()
	m.broadcast(conns, eventType, data)
}

func (m *MockServer) broadcast(conns []*mockConn, eventType string, data any) {
	raw, _ := json.Marshal(data)
	ev := domain.Event{Type: eventType, Data: raw}
	for _, c := range conns {
		_ = c.send(OpEvent, ev)
	}
}

func (m *MockServer) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &mockConn{ws: ws}

	m.mu.Lock()
	password := m.Password
	m.mu.Unlock()

	const challenge, salt = "mock-challenge", "mock-salt"
	hello := map[string]any{"obsWebSocketVersion": "5.5.0", "rpcVersion": RPCVersion}
	if password != "" {
		hello["authentication"] = map[string]string{"challenge": challenge, "salt": salt}
	}
	if err := c.send(OpHello, hello); err != nil {
		ws.Close()
		return
	}

	var identify identifyData
	if err := readOp(ws, OpIdentify, &identify); err != nil {
		ws.Close()
		return
	}
	if password != "" && identify.Authentication != authResponse(password, salt, challenge) {
		c.writeMu.Lock()
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseAuthenticationFailed, "Authentication failed."))
		c.writeMu.Unlock()
		ws.Close()
		return
	}
	if err := c.send(OpIdentified, identifiedData{NegotiatedRPCVersion: RPCVersion}); err != nil {
		ws.Close()
		return
	}

	m.mu.Lock()
	m.conns[c] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.conns, c)
		m.mu.Unlock()
		ws.Close()
	}()
	for {
		var msg message
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Op != OpRequest {
			continue
		}
		var req requestData
		if err := json.Unmarshal(msg.D, &req); err != nil {
			continue
		}
		m.handleRequest(c, req)
	}
}

func (m *MockServer) handleRequest(c *mockConn, req requestData) {
	m.mu.Lock()
	m.requests = append(m.requests, MockRequest{Type: req.RequestType, Data: req.RequestData})
	h, ok := m.handlers[req.RequestType]
	m.mu.Unlock()

	resp := requestResponse{RequestType: req.RequestType, RequestID: req.RequestID}
	if !ok {
		resp.RequestStatus = RequestStatus{Code: StatusUnknownRequestType, Comment: "Your request type is not valid."}
		_ = c.send(OpRequestResponse, resp)
		return
	}
	data, status := h(req.RequestData)
	if status != nil {
		resp.RequestStatus = *status
	} else {
		resp.RequestStatus = RequestStatus{Result: true, Code: StatusSuccess}
		if data != nil {
			resp.ResponseData, _ = json.Marshal(data)
		}
	}
	_ = c.send(OpRequestResponse, resp)
}

func failStatus(code int, comment string) *RequestStatus {
	return &RequestStatus{Code: code, Comment: comment}
}

// locked runs a default handler under the world lock and emits any event it
// produced after releasing it.
func (m *MockServer) locked(fn func(data json.RawMessage) (any, *RequestStatus, *domain.Event)) MockHandler {
	return func(data json.RawMessage) (any, *RequestStatus) {
		m.mu.Lock()
		out, status, ev := fn(data)
		m.mu.Unlock()
		if ev != nil {
			m.EmitEvent(ev.Type, ev.Data)
		}
		return out, status
	}
}

func (m *MockServer) hasSceneLocked(name string) bool {
	for _, s := range m.Scenes {
		if s == name {
			return true
		}
	}
	return false
}

func (m *MockServer) installDefaults() {
	type sceneReq struct {
		SceneName   string `json:"sceneName"`
		SourceName  string `json:"sourceName"`
		SceneItemID int    `json:"sceneItemId"`
	}
	decode := func(data json.RawMessage) sceneReq {
		var r sceneReq
		_ = json.Unmarshal(data, &r)
		return r
	}

	m.handlers["GetVersion"] = func(json.RawMessage) (any, *RequestStatus) {
		return domain.GetVersionResponse{OBSVersion: "31.0.0", OBSWebSocketVersion: "5.5.0", RPCVersion: RPCVersion, Platform: "mock"}, nil
	}
	m.handlers["GetSceneList"] = m.locked(func(json.RawMessage) (any, *RequestStatus, *domain.Event) {
		scenes := make([]map[string]any, 0, len(m.Scenes))
		for i, s := range m.Scenes {
			scenes = append(scenes, map[string]any{"sceneName": s, "sceneIndex": i})
		}
		var preview any
		if m.StudioMode {
			preview = m.CurrentPreviewScene
		}
		return map[string]any{
			"currentProgramSceneName": m.CurrentProgramScene,
			"currentPreviewSceneName": preview,
			"scenes":                  scenes,
		}, nil, nil
	})
	m.handlers["GetSceneItemList"] = m.locked(func(data json.RawMessage) (any, *RequestStatus, *domain.Event) {
		r := decode(data)
		if !m.hasSceneLocked(r.SceneName) {
			return nil, failStatus(StatusResourceNotFound, "No source was found by the name of `"+r.SceneName+"`."), nil
		}
		items := make([]map[string]any, 0)
		for i, it := range m.Items[r.SceneName] {
			items = append(items, map[string]any{
				"sourceName":       it.SourceName,
				"sceneItemId":      it.ID,
				"sceneItemEnabled": it.Enabled,
				"sceneItemLocked":  it.Locked,
				"sceneItemIndex":   i,
				"inputKind":        it.InputKind,
				"sourceType":       "OBS_SOURCE_TYPE_INPUT",
				"isGroup":          nil,
			})
		}
		return map[string]any{"sceneItems": items}, nil, nil
	})
	m.handlers["GetSceneItemId"] = m.locked(func(data json.RawMessage) (any, *RequestStatus, *domain.Event) {
		r := decode(data)
		for _, it := range m.Items[r.SceneName] {
			if it.SourceName == r.SourceName {
				return map[string]any{"sceneItemId": it.ID}, nil, nil
			}
		}
		return nil, failStatus(StatusResourceNotFound, "No scene items were found in the specified scene by that name."), nil
	})
	m.handlers["SetSceneItemEnabled"] = m.locked(func(data json.RawMessage) (any, *RequestStatus, *domain.Event) {
		var r struct {
			sceneReq
			Enabled bool `json:"sceneItemEnabled"`
		}
		_ = json.Unmarshal(data, &r)
		items := m.Items[r.SceneName]
		for i := range items {
			if items[i].ID == r.SceneItemID {
				items[i].Enabled = r.Enabled
				raw, _ := json.Marshal(map[string]any{"sceneName": r.SceneName, "sceneItemId": r.SceneItemID, "sceneItemEnabled": r.Enabled})
				return nil, nil, &domain.Event{Type: "SceneItemEnableStateChanged", Data: raw}
			}
		}
		return nil, failStatus(StatusResourceNotFound, "No scene items were found in the specified scene by that ID."), nil
	})
	m.handlers["SetCurrentProgramScene"] = m.locked(func(data json.RawMessage) (any, *RequestStatus, *domain.Event) {
		r := decode(data)
		if !m.hasSceneLocked(r.SceneName) {
			return nil, failStatus(StatusResourceNotFound, "No source was found by the name of `"+r.SceneName+"`."), nil
		}
		m.CurrentProgramScene = r.SceneName
		raw, _ := json.Marshal(map[string]string{"sceneName": r.SceneName})
		return nil, nil, &domain.Event{Type: "CurrentProgramSceneChanged", Data: raw}
	})
	m.handlers["CreateScene"] = m.locked(func(data json.RawMessage) (any, *RequestStatus, *domain.Event) {
		r := decode(data)
		if m.hasSceneLocked(r.SceneName) {
			return nil, failStatus(StatusResourceAlreadyExists, "A source already exists by that scene name."), nil
		}
		m.Scenes = append(m.Scenes, r.SceneName)
		raw, _ := json.Marshal(map[string]any{"sceneName": r.SceneName, "isGroup": false})
		return map[string]string{"sceneUuid": "mock-" + r.SceneName}, nil, &domain.Event{Type: "SceneCreated", Data: raw}
	})
	m.handlers["CreateInput"] = m.locked(func(data json.RawMessage) (any, *RequestStatus, *domain.Event) {
		var r struct {
			SceneName string `json:"sceneName"`
			InputName string `json:"inputName"`
			InputKind string `json:"inputKind"`
			Enabled   *bool  `json:"sceneItemEnabled"`
		}
		_ = json.Unmarshal(data, &r)
		if !m.hasSceneLocked(r.SceneName) {
			return nil, failStatus(StatusResourceNotFound, "No source was found by the name of `"+r.SceneName+"`."), nil
		}
		enabled := r.Enabled == nil || *r.Enabled
		id := m.addItemLocked(r.SceneName, r.InputName, r.InputKind, enabled)
		raw, _ := json.Marshal(map[string]string{"inputName": r.InputName, "inputKind": r.InputKind})
		return map[string]any{"inputUuid": "mock-" + r.InputName, "sceneItemId": id}, nil, &domain.Event{Type: "InputCreated", Data: raw}
	})
	m.handlers["GetStreamStatus"] = m.locked(func(json.RawMessage) (any, *RequestStatus, *domain.Event) {
		return map[string]any{"outputActive": m.StreamActive, "outputReconnecting": false, "outputTimecode": "00:00:00.000"}, nil, nil
	})
	m.handlers["GetRecordStatus"] = m.locked(func(json.RawMessage) (any, *RequestStatus, *domain.Event) {
		return map[string]any{"outputActive": m.RecordActive, "outputPaused": false, "outputTimecode": "00:00:00.000"}, nil, nil
	})
	m.handlers["GetVideoSettings"] = m.locked(func(json.RawMessage) (any, *RequestStatus, *domain.Event) {
		return m.Video, nil, nil
	})
	m.handlers["SetVideoSettings"] = m.locked(func(data json.RawMessage) (any, *RequestStatus, *domain.Event) {
		var v domain.VideoSettings
		_ = json.Unmarshal(data, &v)
		m.Video = v
		return nil, nil, nil
	})
	m.handlers["GetStudioModeEnabled"] = m.locked(func(json.RawMessage) (any, *RequestStatus, *domain.Event) {
		return map[string]bool{"studioModeEnabled": m.StudioMode}, nil, nil
	})
	output := func(active *bool, start bool, event string) MockHandler {
		return m.locked(func(json.RawMessage) (any, *RequestStatus, *domain.Event) {
			if start && *active {
				return nil, failStatus(StatusOutputRunning, "The output is already running."), nil
			}
			if !start && !*active {
				return nil, failStatus(StatusOutputNotRunning, "The output is not running."), nil
			}
			*active = start
			raw, _ := json.Marshal(map[string]any{"outputActive": start})
			return nil, nil, &domain.Event{Type: event, Data: raw}
		})
	}
	m.handlers["StartStream"] = output(&m.StreamActive, true, "StreamStateChanged")
	m.handlers["StopStream"] = output(&m.StreamActive, false, "StreamStateChanged")
	m.handlers["StartRecord"] = output(&m.RecordActive, true, "RecordStateChanged")
	m.handlers["StopRecord"] = output(&m.RecordActive, false, "RecordStateChanged")
	m.handlers["ToggleStream"] = m.locked(func(json.RawMessage) (any, *RequestStatus, *domain.Event) {
		m.StreamActive = !m.StreamActive
		raw, _ := json.Marshal(map[string]any{"outputActive": m.StreamActive})
		return map[string]bool{"outputActive": m.StreamActive}, nil, &domain.Event{Type: "StreamStateChanged", Data: raw}
	})
}
