package usecase

import (
	"context"

	"obsdock/internal/domain"
)

// DockUseCase is the primary port the CLI and the web API drive.
type DockUseCase interface {
	Connect(ctx context.Context, address, password string) domain.ConnectResult
	Disconnect()
	State() domain.ConnState
	// Address is the last address passed to Connect.
	Address() string
	LastError() error
	Dispatch(ctx context.Context, action domain.Action) domain.ActionResult
	Refresh(ctx context.Context) (domain.Snapshot, error)
	Snapshot() (domain.Snapshot, bool)
	Subscribe() <-chan Notification
	Unsubscribe(ch <-chan Notification)
	Close()
}

// dockInteractor wires the lifecycle manager, the cache and the gateway
// around one shared snapshot.
type dockInteractor struct {
	cache   *SnapshotCache
	conn    *ConnectionManager
	gateway *ActionGateway
}

// NewDockUseCase creates a disconnected dock. Dependencies are injected;
// recorder may be nil.
func NewDockUseCase(dialer domain.Dialer, policy domain.ReconnectPolicy, recorder Recorder, opts ...Option) DockUseCase {
	cache := NewSnapshotCache(recorder)
	opts = append([]Option{WithReconnectPolicy(policy), WithRecorder(recorder)}, opts...)
	conn := NewConnectionManager(dialer, cache, opts...)
	return &dockInteractor{
		cache:   cache,
		conn:    conn,
		gateway: NewActionGateway(conn, cache, recorder),
	}
}

func (d *dockInteractor) Connect(ctx context.Context, address, password string) domain.ConnectResult {
	return d.conn.Connect(ctx, address, password)
}

func (d *dockInteractor) Disconnect() { d.conn.Disconnect() }

func (d *dockInteractor) State() domain.ConnState { return d.conn.State() }

func (d *dockInteractor) Address() string { return d.conn.Address() }

func (d *dockInteractor) LastError() error { return d.conn.LastError() }

func (d *dockInteractor) Dispatch(ctx context.Context, action domain.Action) domain.ActionResult {
	return d.gateway.Dispatch(ctx, action)
}

// Refresh requires a live session; a snapshot is never fetched while
// reconnecting.
func (d *dockInteractor) Refresh(ctx context.Context) (domain.Snapshot, error) {
	if d.conn.State() != domain.StateConnected {
		return domain.Snapshot{}, domain.ErrNotConnected
	}
	return d.cache.Refresh(ctx)
}

func (d *dockInteractor) Snapshot() (domain.Snapshot, bool) { return d.cache.Snapshot() }

func (d *dockInteractor) Subscribe() <-chan Notification { return d.conn.Subscribe() }

func (d *dockInteractor) Unsubscribe(ch <-chan Notification) { d.conn.Unsubscribe(ch) }

func (d *dockInteractor) Close() { d.conn.Close() }
