package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"obsdock/internal/domain"
	"obsdock/internal/logging"
)

const (
	defaultDialTimeout    = 10 * time.Second
	defaultRefreshTimeout = 15 * time.Second
	notificationBuffer    = 32
)

// Notification is pushed to subscribers on every state change and every
// forwarded OBS event.
type Notification struct {
	State domain.ConnState `json:"state"`
	Error string           `json:"error,omitempty"`
	Event *domain.Event    `json:"event,omitempty"`
	At    time.Time        `json:"at"`
}

// Option configures a ConnectionManager.
type Option func(*ConnectionManager)

// WithReconnectPolicy overrides domain.DefaultReconnectPolicy.
func WithReconnectPolicy(p domain.ReconnectPolicy) Option {
	return func(m *ConnectionManager) { m.policy = p }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(m *ConnectionManager) { m.recorder = recorderOrNop(r) }
}

// WithDialTimeout bounds each handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(m *ConnectionManager) { m.dialTimeout = d }
}

// WithRefreshTimeout bounds event-triggered refreshes.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *ConnectionManager) { m.refreshTimeout = d }
}

// session is one live transport and the goroutines serving it.
type session struct {
	transport domain.Transport
	ctx       context.Context
	cancel    context.CancelFunc
	refresh   chan struct{}
}

// ConnectionManager owns connect, disconnect and automatic reconnection.
//
// epoch is bumped by every Connect and Disconnect. Background work captures
// the epoch it was started under and gives up once it changes, so nothing
// started for an older session can touch the current one.
type ConnectionManager struct {
	dialer         domain.Dialer
	cache          *SnapshotCache
	policy         domain.ReconnectPolicy
	recorder       Recorder
	dialTimeout    time.Duration
	refreshTimeout time.Duration

	mu         sync.Mutex
	state      domain.ConnState
	lastErr    error
	epoch      uint64
	address    string
	password   string
	sess       *session
	life       context.Context
	lifeCancel context.CancelFunc

	subsMu sync.Mutex
	subs   map[<-chan Notification]chan Notification

	wg sync.WaitGroup
}

// NewConnectionManager creates a disconnected manager that refreshes cache
// on every (re)connect.
func NewConnectionManager(dialer domain.Dialer, cache *SnapshotCache, opts ...Option) *ConnectionManager {
	m := &ConnectionManager{
		dialer:         dialer,
		cache:          cache,
		policy:         domain.DefaultReconnectPolicy(),
		recorder:       nopRecorder{},
		dialTimeout:    defaultDialTimeout,
		refreshTimeout: defaultRefreshTimeout,
		state:          domain.StateDisconnected,
		subs:           make(map[<-chan Notification]chan Notification),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *ConnectionManager) State() domain.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the error behind the most recent failure, if any.
func (m *ConnectionManager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Address returns the last address passed to Connect.
func (m *ConnectionManager) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.address
}

// Transport returns the live transport, or ErrNotConnected unless Connected.
func (m *ConnectionManager) Transport() (domain.Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.StateConnected || m.sess == nil {
		return nil, domain.ErrNotConnected
	}
	return m.sess.transport, nil
}

// Connect opens a session to address. It never retries: only an
// unsolicited drop of an established session starts the reconnect loop.
func (m *ConnectionManager) Connect(ctx context.Context, address, password string) domain.ConnectResult {
	log := logging.Component("connection")
	if address == "" {
		return m.failedConnect(domain.ErrInvalidAddress)
	}

	m.mu.Lock()
	if m.state == domain.StateConnecting || m.state == domain.StateReconnecting {
		state := m.state
		m.mu.Unlock()
		return domain.ConnectResult{State: state, Message: "connect rejected", Error: domain.ErrConnectInProgress.Error()}
	}
	old := m.endLifeLocked()
	m.epoch++
	epoch := m.epoch
	m.address, m.password = address, password
	life, lifeCancel := context.WithCancel(context.Background())
	m.life, m.lifeCancel = life, lifeCancel
	m.setStateLocked(domain.StateConnecting, nil)
	m.mu.Unlock()

	if old != nil {
		log.Debug().Msg("closing previous session")
		old.transport.Close()
	}
	m.cache.Clear()

	dctx, cancel := context.WithTimeout(ctx, m.dialTimeout)
	stop := context.AfterFunc(life, cancel)
	t, err := m.dialer.Dial(dctx, address, password)
	stop()
	cancel()

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		if t != nil {
			t.Close()
		}
		return domain.ConnectResult{State: m.State(), Message: "connect cancelled", Error: domain.ErrConnectionClosed.Error()}
	}
	if err != nil {
		m.endLifeLocked()
		m.setStateLocked(domain.StateDisconnected, err)
		m.mu.Unlock()
		log.Warn().Err(err).Str("address", address).Msg("connect failed")
		return domain.ConnectResult{State: domain.StateDisconnected, Message: "connect failed", Error: err.Error()}
	}
	m.startSessionLocked(life, t)
	m.mu.Unlock()

	log.Info().Str("address", address).Msg("connected")

	res := domain.ConnectResult{Success: true, State: domain.StateConnected, Message: "connected to " + address}
	rctx, rcancel := context.WithTimeout(ctx, m.refreshTimeout)
	defer rcancel()
	if _, err := m.cache.Refresh(rctx); err != nil {
		log.Warn().Err(err).Msg("initial refresh failed")
		res.Message += " (initial refresh failed: " + err.Error() + ")"
	}
	return res
}

func (m *ConnectionManager) failedConnect(err error) domain.ConnectResult {
	return domain.ConnectResult{State: m.State(), Message: "connect failed", Error: err.Error()}
}

// Disconnect closes the session, cancels any reconnect loop and clears the
// cache. In-flight calls fail as the socket closes.
func (m *ConnectionManager) Disconnect() {
	m.mu.Lock()
	m.epoch++
	old := m.endLifeLocked()
	prev := m.state
	m.setStateLocked(domain.StateDisconnected, nil)
	m.mu.Unlock()

	if old != nil {
		old.transport.Close()
	}
	m.cache.Clear()
	if prev != domain.StateDisconnected {
		logging.Component("connection").Info().Str("from", prev.String()).Msg("disconnected")
	}
}

// Close disconnects and waits for every background goroutine to exit.
func (m *ConnectionManager) Close() {
	m.Disconnect()
	m.wg.Wait()
}

// endLifeLocked cancels the current session and reconnect loop and returns
// the session whose transport the caller must close outside the lock.
func (m *ConnectionManager) endLifeLocked() *session {
	if m.lifeCancel != nil {
		m.lifeCancel()
	}
	m.life, m.lifeCancel = nil, nil
	s := m.sess
	m.sess = nil
	return s
}

func (m *ConnectionManager) setStateLocked(state domain.ConnState, err error) {
	m.state = state
	m.lastErr = err
	m.recorder.ConnectionStateChanged(state)

	n := Notification{State: state, At: time.Now()}
	if err != nil {
		n.Error = err.Error()
	}
	m.publish(n)
}

// startSessionLocked binds the cache and starts the event pump and the
// refresher. Listener state never carries over from an earlier socket.
func (m *ConnectionManager) startSessionLocked(life context.Context, t domain.Transport) *session {
	ctx, cancel := context.WithCancel(life)
	s := &session{
		transport: t,
		ctx:       ctx,
		cancel:    cancel,
		refresh:   make(chan struct{}, 1),
	}
	m.sess = s
	m.cache.Bind(t)
	m.setStateLocked(domain.StateConnected, nil)

	m.wg.Add(2)
	go m.pump(s, m.epoch)
	go m.refresher(s)
	return s
}

// pump forwards events until the session ends and detects unsolicited drops.
func (m *ConnectionManager) pump(s *session, epoch uint64) {
	defer m.wg.Done()
	events := s.transport.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.publish(Notification{State: domain.StateConnected, Event: &ev, At: time.Now()})
			if domain.TriggersRefresh(ev.Type) {
				requestRefresh(s)
			}
		case <-s.transport.Done():
			m.handleDrop(s, epoch)
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// requestRefresh coalesces refresh requests into at most one pending signal.
func requestRefresh(s *session) {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

func (m *ConnectionManager) refresher(s *session) {
	defer m.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.refresh:
			ctx, cancel := context.WithTimeout(s.ctx, m.refreshTimeout)
			_, err := m.cache.Refresh(ctx)
			cancel()
			if err != nil && s.ctx.Err() == nil {
				logging.Component("connection").Debug().Err(err).Msg("event refresh failed")
			}
		}
	}
}

func (m *ConnectionManager) handleDrop(s *session, epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch || m.sess != s {
		m.mu.Unlock()
		return
	}
	s.cancel()
	m.sess = nil
	m.cache.Clear()
	cause := &domain.ConnectionError{Address: m.address, Err: domain.ErrConnectionClosed}
	m.setStateLocked(domain.StateReconnecting, cause)
	address, password, life := m.address, m.password, m.life
	m.wg.Add(1)
	m.mu.Unlock()

	logging.Component("connection").Warn().
		Str("address", address).
		Int("max_attempts", m.policy.MaxAttempts).
		Msg("connection lost, reconnecting")

	go m.reconnectLoop(life, epoch, address, password)
}

// reconnectLoop redials with the last address until it succeeds or the
// policy is exhausted. Disconnect cancels life and stops it between attempts.
func (m *ConnectionManager) reconnectLoop(ctx context.Context, epoch uint64, address, password string) {
	defer m.wg.Done()
	log := logging.Component("connection")

	var lastErr error
	for attempt := 1; attempt <= m.policy.MaxAttempts; attempt++ {
		delay := m.policy.Delay(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		log.Info().Int("attempt", attempt).Dur("after", delay).Msg("reconnect attempt")
		dctx, cancel := context.WithTimeout(ctx, m.dialTimeout)
		t, err := m.dialer.Dial(dctx, address, password)
		cancel()
		m.recorder.ReconnectAttempted(err == nil)
		if err != nil {
			lastErr = err
			log.Debug().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
			continue
		}

		m.mu.Lock()
		if m.epoch != epoch || ctx.Err() != nil {
			m.mu.Unlock()
			t.Close()
			return
		}
		s := m.startSessionLocked(ctx, t)
		m.mu.Unlock()

		log.Info().Int("attempt", attempt).Msg("reconnected")
		requestRefresh(s)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return
	}
	m.endLifeLocked()
	err := fmt.Errorf("%w after %d attempts", domain.ErrReconnectExhausted, m.policy.MaxAttempts)
	if lastErr != nil {
		err = fmt.Errorf("%w after %d attempts: %w", domain.ErrReconnectExhausted, m.policy.MaxAttempts, lastErr)
	}
	m.setStateLocked(domain.StateDisconnected, err)
	log.Error().Err(err).Msg("giving up")
}

// Subscribe returns a channel of notifications. Slow subscribers miss
// notifications rather than stall the manager.
func (m *ConnectionManager) Subscribe() <-chan Notification {
	ch := make(chan Notification, notificationBuffer)
	m.subsMu.Lock()
	m.subs[ch] = ch
	m.subsMu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (m *ConnectionManager) Unsubscribe(ch <-chan Notification) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if c, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(c)
	}
}

func (m *ConnectionManager) publish(n Notification) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, c := range m.subs {
		select {
		case c <- n:
		default:
			logging.Tracef("connection: subscriber full, dropping notification")
		}
	}
}
