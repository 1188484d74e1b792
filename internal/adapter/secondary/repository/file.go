package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"obsdock/internal/domain"
	"obsdock/internal/logging"
)

// FileRepository implements domain.PreferencesRepository on a flat JSON file.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

// NewFileRepository creates the parent directory of path if needed.
func NewFileRepository(path string) (*FileRepository, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	return &FileRepository{path: path}, nil
}

// Path returns the file backing the repository.
func (f *FileRepository) Path() string {
	return f.path
}

// persistedData is the on-disk layout.
type persistedData struct {
	Address               string  `json:"address"`
	Password              string  `json:"password,omitempty"`
	ReconnectAttempts     int     `json:"reconnectAttempts"`
	ReconnectDelaySeconds float64 `json:"reconnectDelaySeconds"`
	ReconnectLinear       *bool   `json:"reconnectLinear,omitempty"`
	LastConnected         string  `json:"lastConnected,omitempty"`
}

// Load reads preferences; a missing file yields the defaults.
func (f *FileRepository) Load() (domain.Preferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.DefaultPreferences(), nil
		}
		return domain.Preferences{}, fmt.Errorf("read preferences: %w", err)
	}

	var persisted persistedData
	if err := json.Unmarshal(data, &persisted); err != nil {
		return domain.Preferences{}, fmt.Errorf("unmarshal preferences: %w", err)
	}

	prefs := domain.DefaultPreferences()
	if persisted.Address != "" {
		prefs.Address = persisted.Address
	}
	prefs.Password = persisted.Password
	if persisted.ReconnectAttempts > 0 {
		prefs.Reconnect.MaxAttempts = persisted.ReconnectAttempts
	}
	if persisted.ReconnectDelaySeconds > 0 {
		prefs.Reconnect.BaseDelay = time.Duration(persisted.ReconnectDelaySeconds * float64(time.Second))
	}
	if persisted.ReconnectLinear != nil {
		prefs.Reconnect.Linear = *persisted.ReconnectLinear
	}
	if persisted.LastConnected != "" {
		if t, err := time.Parse(time.RFC3339, persisted.LastConnected); err == nil {
			prefs.LastConnected = t
		}
	}
	if err := prefs.Reconnect.Validate(); err != nil {
		logging.Warnf("preferences %s: %v, using the default reconnect policy", f.path, err)
		prefs.Reconnect = domain.DefaultReconnectPolicy()
	}
	return prefs, nil
}

// Save writes preferences atomically. The file holds a password, so it is
// created owner-readable only.
func (f *FileRepository) Save(prefs domain.Preferences) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	linear := prefs.Reconnect.Linear
	persisted := persistedData{
		Address:               prefs.Address,
		Password:              prefs.Password,
		ReconnectAttempts:     prefs.Reconnect.MaxAttempts,
		ReconnectDelaySeconds: prefs.Reconnect.BaseDelay.Seconds(),
		ReconnectLinear:       &linear,
	}
	if !prefs.LastConnected.IsZero() {
		persisted.LastConnected = prefs.LastConnected.UTC().Format(time.RFC3339)
	}

	data, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("rename tmp: %w", err)
	}
	return nil
}

// DefaultPath returns ~/.config/obsdock/config.json, or a file in the
// working directory when there is no home.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".config", "obsdock", "config.json")
	}
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, "obsdock-config.json")
}
