package cli

import (
	"context"
	"errors"
	"sync"
	"time"

	"obsdock/internal/adapter/secondary/obsws"
	"obsdock/internal/adapter/secondary/repository"
	"obsdock/internal/domain"
	"obsdock/internal/logging"
	"obsdock/internal/metrics"
	"obsdock/internal/usecase"
)

// active is the shell's session; nil outside the shell.
var active *session

// session is the dock a command runs against. One-shot commands get a fresh
// one, shell lines share active.
type session struct {
	repo      domain.PreferencesRepository
	path      string
	prefs     domain.Preferences
	collector *metrics.Collector
	dock      usecase.DockUseCase

	mu sync.Mutex
}

func openSession() (*session, error) {
	repo, err := repository.NewFileRepository(cfgPath)
	if err != nil {
		return nil, err
	}
	prefs, err := repo.Load()
	if err != nil {
		return nil, err
	}
	collector := metrics.NewCollector()
	var opts []usecase.Option
	if d := settings.GetDuration("timeout"); d > 0 {
		opts = append(opts, usecase.WithDialTimeout(d))
	}
	return &session{
		repo:      repo,
		path:      repo.Path(),
		prefs:     prefs,
		collector: collector,
		dock:      usecase.NewDockUseCase(obsws.Dialer{}, prefs.Reconnect, collector, opts...),
	}, nil
}

// acquireSession returns the shell session when there is one. release must
// be called when the command is done.
func acquireSession() (*session, func(), error) {
	if active != nil {
		return active, func() {}, nil
	}
	s, err := openSession()
	if err != nil {
		return nil, nil, err
	}
	return s, s.close, nil
}

func (s *session) close() {
	s.dock.Close()
}

// target resolves the OBS endpoint: flag, then OBSDOCK_* env, then the
// preferences file.
func (s *session) target() (string, string) {
	address := settings.GetString("address")
	if address == "" {
		address = s.prefs.Address
	}
	password := settings.GetString("password")
	if password == "" {
		password = s.prefs.Password
	}
	return address, password
}

func (s *session) connect(ctx context.Context) (domain.ConnectResult, error) {
	address, password := s.target()
	res := s.dock.Connect(ctx, address, password)
	if !res.Success {
		return res, errors.New(res.Error)
	}
	s.remember(address)
	return res, nil
}

// remember stores the address that just connected. The password is only
// written by 'config set'.
func (s *session) remember(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs.Address = address
	s.prefs.LastConnected = time.Now()
	if err := s.repo.Save(s.prefs); err != nil {
		logging.Warnf("save preferences: %v", err)
	}
}

func (s *session) ensureConnected(ctx context.Context) error {
	if s.dock.State() == domain.StateConnected {
		return nil
	}
	_, err := s.connect(ctx)
	return err
}

// snapshot returns the cached snapshot or fetches one.
func (s *session) snapshot(ctx context.Context) (domain.Snapshot, error) {
	if snap, ok := s.dock.Snapshot(); ok {
		return snap, nil
	}
	return s.dock.Refresh(ctx)
}
