package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"obsdock/internal/domain"
	"obsdock/internal/logging"
	"obsdock/internal/usecase"
)

const maxBodySize = 1 << 20

// Config configures the HTTP server.
type Config struct {
	Listen string
	// Address and Password are used by POST /api/connect when the request
	// body omits them.
	Address  string
	Password string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// OnConnected runs after every successful POST /api/connect.
	OnConnected func(address string)
}

// Server is a primary adapter that exposes the HTTP API, the event stream
// and the dock page. It depends on the use case (primary port).
type Server struct {
	dock     usecase.DockUseCase
	metrics  http.Handler
	onConn   func(string)
	upgrader websocket.Upgrader
	server   *http.Server

	mu       sync.Mutex
	address  string
	password string
}

// NewServer creates the HTTP server bound to cfg.Listen.
func NewServer(dock usecase.DockUseCase, cfg Config) *Server {
	srv := &Server{
		dock:     dock,
		metrics:  cfg.Metrics,
		onConn:   cfg.OnConnected,
		address:  cfg.Address,
		password: cfg.Password,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The dock page is usually loaded from OBS's browser source.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	srv.server = &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(loggingMiddleware)

	r.Get("/", s.handleRoot)
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/connect", s.handleConnect)
		r.Post("/disconnect", s.handleDisconnect)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/actions", s.handleListActions)
		r.Post("/actions", s.handleDispatch)
		r.Get("/events", s.handleEvents)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks and serves HTTP traffic. It returns nil after Shutdown.
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type stateView struct {
	State     domain.ConnState `json:"state"`
	LastError string           `json:"lastError,omitempty"`
	Snapshot  *domain.Snapshot `json:"snapshot,omitempty"`
}

func (s *Server) stateView() stateView {
	view := stateView{State: s.dock.State()}
	if err := s.dock.LastError(); err != nil {
		view.LastError = err.Error()
	}
	if snap, ok := s.dock.Snapshot(); ok {
		view.Snapshot = &snap
	}
	return view
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.stateView())
}

type connectPayload struct {
	Address  string `json:"address"`
	Password string `json:"password"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectPayload
	// An empty body connects to the configured endpoint.
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	s.mu.Lock()
	if req.Address == "" {
		req.Address = s.address
		if req.Password == "" {
			req.Password = s.password
		}
	}
	s.mu.Unlock()
	if req.Address == "" {
		respondError(w, http.StatusBadRequest, domain.ErrInvalidAddress.Error())
		return
	}

	res := s.dock.Connect(r.Context(), req.Address, req.Password)
	switch {
	case res.Success:
		s.mu.Lock()
		s.address, s.password = req.Address, req.Password
		s.mu.Unlock()
		if s.onConn != nil {
			s.onConn(req.Address)
		}
		respondJSON(w, http.StatusOK, res)
	case res.State == domain.StateConnecting || res.State == domain.StateReconnecting:
		respondJSON(w, http.StatusConflict, res)
	default:
		respondJSON(w, http.StatusBadGateway, res)
	}
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.dock.Disconnect()
	respondJSON(w, http.StatusOK, s.stateView())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.dock.Refresh(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrNotConnected) {
			status = http.StatusServiceUnavailable
		}
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

type actionInfo struct {
	Type        domain.ActionType `json:"type"`
	RequestType string            `json:"requestType"`
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	types := domain.SupportedActions()
	out := make([]actionInfo, 0, len(types))
	for _, t := range types {
		out = append(out, actionInfo{Type: t, RequestType: t.RequestType()})
	}
	respondJSON(w, http.StatusOK, out)
}

type actionResponse struct {
	domain.ActionResult
	Snapshot *domain.Snapshot `json:"snapshot,omitempty"`
}

// handleDispatch runs one action. Every supported action changes OBS state,
// so a successful one is followed by a refresh unless ?refresh=false.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		respondJSON(w, http.StatusBadRequest, actionResponse{ActionResult: domain.Failed("", &domain.ValidationError{Field: "body", Reason: "is not valid JSON"})})
		return
	}
	action, err := domain.ParseAction(raw)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, actionResponse{ActionResult: domain.Failed("", &domain.ValidationError{Field: "body", Reason: err.Error()})})
		return
	}

	ctx := r.Context()
	resp := actionResponse{ActionResult: s.dock.Dispatch(ctx, action)}
	if resp.Success && r.URL.Query().Get("refresh") != "false" {
		snap, err := s.dock.Refresh(ctx)
		if err != nil {
			logging.Component("http").Warn().Err(err).Str("action", string(action.Type())).Msg("refresh after action failed")
		} else {
			resp.Snapshot = &snap
		}
	}
	respondJSON(w, statusFor(resp.ActionResult), resp)
}

func statusFor(res domain.ActionResult) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Kind {
	case domain.KindNotConnected:
		return http.StatusServiceUnavailable
	case domain.KindInvalid, domain.KindUnsupported:
		return http.StatusBadRequest
	case domain.KindResolution:
		return http.StatusNotFound
	case domain.KindProtocol, domain.KindConnection:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Component("http").Error().Err(err).Msg("encode JSON")
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Component("http").Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("request")
	})
}
