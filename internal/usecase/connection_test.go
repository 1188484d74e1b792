package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obsdock/internal/domain"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func fastPolicy(attempts int) domain.ReconnectPolicy {
	return domain.ReconnectPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, Linear: true}
}

func newManager(t *testing.T, d *fakeDialer, policy domain.ReconnectPolicy, opts ...Option) (*ConnectionManager, *SnapshotCache) {
	t.Helper()
	cache := NewSnapshotCache(nil)
	opts = append([]Option{WithReconnectPolicy(policy)}, opts...)
	m := NewConnectionManager(d, cache, opts...)
	t.Cleanup(m.Close)
	return m, cache
}

// firstThenFail dials first on the first attempt and fails afterwards.
func firstThenFail(first domain.Transport) *fakeDialer {
	return &fakeDialer{fn: func(_ context.Context, n int) (domain.Transport, error) {
		if n == 1 {
			return first, nil
		}
		return nil, &domain.ConnectionError{Address: "obs:4455", Err: errDialRefused}
	}}
}

func TestConnectLoadsInitialSnapshot(t *testing.T) {
	w := newFakeWorld()
	ft := w.transport()
	m, cache := newManager(t, firstThenFail(ft), fastPolicy(3))

	res := m.Connect(context.Background(), "obs:4455", "")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, domain.StateConnected, res.State)
	assert.Equal(t, domain.StateConnected, m.State())

	snap, ok := cache.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "A", snap.CurrentProgramScene)

	tr, err := m.Transport()
	require.NoError(t, err)
	assert.Same(t, ft, tr)
}

func TestConnectFailureDoesNotRetry(t *testing.T) {
	d := &fakeDialer{fn: func(context.Context, int) (domain.Transport, error) {
		return nil, &domain.ConnectionError{Address: "obs:4455", Err: errDialRefused}
	}}
	m, _ := newManager(t, d, fastPolicy(3))

	res := m.Connect(context.Background(), "obs:4455", "")
	assert.False(t, res.Success)
	assert.Equal(t, domain.StateDisconnected, res.State)
	assert.Contains(t, res.Error, "connection refused")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, d.count())
	assert.Equal(t, domain.StateDisconnected, m.State())
	assert.ErrorIs(t, m.LastError(), errDialRefused)

	_, err := m.Transport()
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestConnectRequiresAddress(t *testing.T) {
	d := &fakeDialer{}
	m, _ := newManager(t, d, fastPolicy(3))

	res := m.Connect(context.Background(), "", "")
	assert.False(t, res.Success)
	assert.Equal(t, domain.ErrInvalidAddress.Error(), res.Error)
	assert.Equal(t, 0, d.count())
}

func TestReconnectStopsAfterMaxAttempts(t *testing.T) {
	ft := newFakeWorld().transport()
	d := firstThenFail(ft)
	rec := &recordingRecorder{}
	m, cache := newManager(t, d, fastPolicy(3), WithRecorder(rec))

	require.True(t, m.Connect(context.Background(), "obs:4455", "").Success)
	ft.drop()

	require.Eventually(t, func() bool {
		return m.State() == domain.StateDisconnected && d.count() == 4
	}, waitFor, tick)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 4, d.count(), "one connect plus exactly MaxAttempts redials")
	assert.Equal(t, []bool{false, false, false}, rec.reconnectAttempts())
	assert.True(t, errors.Is(m.LastError(), domain.ErrReconnectExhausted))
	assert.ErrorIs(t, m.LastError(), errDialRefused)

	_, ok := cache.Snapshot()
	assert.False(t, ok)
}

func TestReconnectWithoutAttemptsGivesUpCleanly(t *testing.T) {
	ft := newFakeWorld().transport()
	d := firstThenFail(ft)
	m, _ := newManager(t, d, domain.ReconnectPolicy{BaseDelay: time.Millisecond})

	require.True(t, m.Connect(context.Background(), "obs:4455", "").Success)
	ft.drop()

	require.Eventually(t, func() bool {
		return m.State() == domain.StateDisconnected && m.LastError() != nil
	}, waitFor, tick)
	assert.ErrorIs(t, m.LastError(), domain.ErrReconnectExhausted)
	assert.NotContains(t, m.LastError().Error(), "%!")
	assert.Equal(t, 1, d.count())
}

func TestReconnectRestoresSession(t *testing.T) {
	w := newFakeWorld()
	first, second := w.transport(), w.transport()
	d := &fakeDialer{fn: func(_ context.Context, n int) (domain.Transport, error) {
		switch n {
		case 1:
			return first, nil
		case 2:
			return nil, errDialRefused
		default:
			return second, nil
		}
	}}
	m, cache := newManager(t, d, fastPolicy(5))
	require.True(t, m.Connect(context.Background(), "obs:4455", "").Success)

	sub := m.Subscribe()
	first.drop()

	require.Eventually(t, func() bool { return m.State() == domain.StateConnected }, waitFor, tick)
	assert.Equal(t, 3, d.count())
	tr, err := m.Transport()
	require.NoError(t, err)
	assert.Same(t, second, tr)

	require.Eventually(t, func() bool {
		_, ok := cache.Snapshot()
		return ok
	}, waitFor, tick)

	// Events flow from the new socket without re-subscribing.
	second.emit("CustomEvent", map[string]string{"k": "v"})
	deadline := time.After(waitFor)
	for {
		select {
		case n := <-sub:
			if n.Event != nil && n.Event.Type == "CustomEvent" {
				return
			}
		case <-deadline:
			t.Fatal("event from reconnected session not delivered")
		}
	}
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	ft := newFakeWorld().transport()
	d := firstThenFail(ft)
	policy := domain.ReconnectPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, Linear: true}
	m, _ := newManager(t, d, policy)

	require.True(t, m.Connect(context.Background(), "obs:4455", "").Success)
	ft.drop()
	require.Eventually(t, func() bool { return m.State() == domain.StateReconnecting }, waitFor, tick)

	m.Disconnect()
	assert.Equal(t, domain.StateDisconnected, m.State())

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, d.count())
	assert.Equal(t, domain.StateDisconnected, m.State())
	assert.NoError(t, m.LastError())
}

func TestConnectRejectedWhileReconnecting(t *testing.T) {
	ft := newFakeWorld().transport()
	d := firstThenFail(ft)
	policy := domain.ReconnectPolicy{MaxAttempts: 2, BaseDelay: 200 * time.Millisecond}
	m, _ := newManager(t, d, policy)

	require.True(t, m.Connect(context.Background(), "obs:4455", "").Success)
	ft.drop()
	require.Eventually(t, func() bool { return m.State() == domain.StateReconnecting }, waitFor, tick)

	res := m.Connect(context.Background(), "obs:4455", "")
	assert.False(t, res.Success)
	assert.Equal(t, domain.StateReconnecting, res.State)
	assert.Equal(t, domain.ErrConnectInProgress.Error(), res.Error)
	assert.Equal(t, 1, d.count())
}

func TestConnectRejectedWhileConnecting(t *testing.T) {
	w := newFakeWorld()
	release := make(chan struct{})
	d := &fakeDialer{fn: func(context.Context, int) (domain.Transport, error) {
		<-release
		return w.transport(), nil
	}}
	m, _ := newManager(t, d, fastPolicy(1))

	done := make(chan domain.ConnectResult, 1)
	go func() { done <- m.Connect(context.Background(), "obs:4455", "") }()
	require.Eventually(t, func() bool { return m.State() == domain.StateConnecting }, waitFor, tick)

	second := m.Connect(context.Background(), "obs:4455", "")
	assert.False(t, second.Success)
	assert.Equal(t, domain.ErrConnectInProgress.Error(), second.Error)

	close(release)
	first := <-done
	assert.True(t, first.Success, first.Error)
	assert.Equal(t, 1, d.count())
}

func TestDisconnectAbortsConnect(t *testing.T) {
	d := &fakeDialer{fn: func(ctx context.Context, _ int) (domain.Transport, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	m, _ := newManager(t, d, fastPolicy(1))

	done := make(chan domain.ConnectResult, 1)
	go func() { done <- m.Connect(context.Background(), "obs:4455", "") }()
	require.Eventually(t, func() bool { return m.State() == domain.StateConnecting }, waitFor, tick)

	m.Disconnect()
	select {
	case res := <-done:
		assert.False(t, res.Success)
	case <-time.After(waitFor):
		t.Fatal("connect did not return after disconnect")
	}
	assert.Equal(t, domain.StateDisconnected, m.State())
}

func TestConnectReplacesLiveSession(t *testing.T) {
	w := newFakeWorld()
	first, second := w.transport(), w.transport()
	d := &fakeDialer{fn: func(_ context.Context, n int) (domain.Transport, error) {
		if n == 1 {
			return first, nil
		}
		return second, nil
	}}
	m, _ := newManager(t, d, fastPolicy(3))

	require.True(t, m.Connect(context.Background(), "obs:4455", "").Success)
	require.True(t, m.Connect(context.Background(), "other:4455", "").Success)

	select {
	case <-first.Done():
	default:
		t.Fatal("previous transport left open")
	}
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, domain.StateConnected, m.State())
	assert.Equal(t, 2, d.count(), "closing the old session must not start a reconnect")
	assert.Equal(t, "other:4455", m.Address())
}

func TestDisconnectClearsSnapshot(t *testing.T) {
	ft := newFakeWorld().transport()
	m, cache := newManager(t, firstThenFail(ft), fastPolicy(1))
	require.True(t, m.Connect(context.Background(), "obs:4455", "").Success)

	m.Disconnect()

	_, ok := cache.Snapshot()
	assert.False(t, ok)
	select {
	case <-ft.Done():
	default:
		t.Fatal("transport not closed")
	}
}

func TestStateEventTriggersRefresh(t *testing.T) {
	w := newFakeWorld()
	ft := w.transport()
	m, cache := newManager(t, firstThenFail(ft), fastPolicy(1))
	require.True(t, m.Connect(context.Background(), "obs:4455", "").Success)

	w.setProgram("B")
	ft.emit("CurrentProgramSceneChanged", map[string]string{"sceneName": "B"})

	require.Eventually(t, func() bool {
		snap, ok := cache.Snapshot()
		return ok && snap.CurrentProgramScene == "B"
	}, waitFor, tick)
}

func TestSubscribersSeeStateTransitions(t *testing.T) {
	ft := newFakeWorld().transport()
	m, _ := newManager(t, firstThenFail(ft), fastPolicy(1))
	sub := m.Subscribe()

	require.True(t, m.Connect(context.Background(), "obs:4455", "").Success)
	m.Disconnect()

	var states []domain.ConnState
	for len(states) < 3 {
		select {
		case n := <-sub:
			if n.Event == nil {
				states = append(states, n.State)
			}
		case <-time.After(waitFor):
			t.Fatalf("got only %v", states)
		}
	}
	assert.Equal(t, []domain.ConnState{domain.StateConnecting, domain.StateConnected, domain.StateDisconnected}, states)

	m.Unsubscribe(sub)
	_, open := <-sub
	assert.False(t, open)
}
