package domain

import "context"

// Transport is a secondary port over the obs-websocket protocol client.
// Implementations correlate each Call with its own response.
type Transport interface {
	// Call sends requestType with params and decodes responseData into out
	// when out is non-nil. A failed request status is a *ProtocolError.
	Call(ctx context.Context, requestType string, params, out any) error
	// Events delivers pushed events and is closed when the socket goes away.
	Events() <-chan Event
	// Done is closed once the connection is gone for any reason.
	Done() <-chan struct{}
	Close() error
}

// Dialer opens a fresh Transport. Listener state never survives a socket,
// so every successful dial starts with a new event stream.
type Dialer interface {
	Dial(ctx context.Context, address, password string) (Transport, error)
}

// PreferencesRepository is a secondary port that persists user preferences.
type PreferencesRepository interface {
	Load() (Preferences, error)
	Save(Preferences) error
}
