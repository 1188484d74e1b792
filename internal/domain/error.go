package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is reported when an operation needs a live session.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectInProgress rejects a connect while another handshake runs.
	ErrConnectInProgress = errors.New("connection attempt already in progress")

	// ErrConnectionClosed indicates the socket went away under a request.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrReconnectExhausted is the terminal error after the last reconnect attempt.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// ErrNoCurrentScene rejects an action that omitted sceneName while no
	// program scene is known.
	ErrNoCurrentScene = errors.New("no sceneName given and no current program scene is known")

	// ErrInvalidAddress indicates that no OBS address was supplied.
	ErrInvalidAddress = errors.New("address is required")

	// ErrInvalidReconnectAttempts indicates that the attempt bound is out of range.
	ErrInvalidReconnectAttempts = errors.New("reconnect attempts must be between 1 and 10")

	// ErrInvalidReconnectDelay indicates that the reconnect delay is out of range.
	ErrInvalidReconnectDelay = errors.New("reconnect delay must be between 0 and 1m")
)

// ErrorKind classifies a failed ActionResult.
type ErrorKind string

const (
	KindNotConnected ErrorKind = "not_connected"
	KindInvalid      ErrorKind = "invalid"
	KindResolution   ErrorKind = "resolution"
	KindProtocol     ErrorKind = "protocol"
	KindConnection   ErrorKind = "connection"
	KindUnsupported  ErrorKind = "unsupported"
	KindUnknown      ErrorKind = "error"
)

// ConnectionError is a failure to establish or keep the OBS connection.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("connection: %v", e.Err)
	}
	return fmt.Sprintf("connection to %s: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ResolutionError names a scene or source that could not be found.
type ResolutionError struct {
	Scene  string
	Source string
}

func (e *ResolutionError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("scene %q not found", e.Scene)
	}
	return fmt.Sprintf("source %q not found in scene %q", e.Source, e.Scene)
}

// ProtocolError carries a failed request status verbatim from OBS.
type ProtocolError struct {
	RequestType string
	Code        int
	Comment     string
}

func (e *ProtocolError) Error() string {
	if e.Comment == "" {
		return fmt.Sprintf("%s failed with code %d", e.RequestType, e.Code)
	}
	return fmt.Sprintf("%s failed with code %d: %s", e.RequestType, e.Code, e.Comment)
}

// UnsupportedActionError is reported for action types with no mapping.
type UnsupportedActionError struct {
	Type string
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("unsupported action %q", e.Type)
}

// ValidationError rejects an action with a missing or malformed field.
type ValidationError struct {
	Action ActionType
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("%s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", e.Action, e.Field, e.Reason)
}

// Classify maps an error onto the ActionResult taxonomy.
func Classify(err error) ErrorKind {
	var (
		connErr        *ConnectionError
		resolutionErr  *ResolutionError
		protocolErr    *ProtocolError
		unsupportedErr *UnsupportedActionError
		validationErr  *ValidationError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConnected):
		return KindNotConnected
	case errors.As(err, &unsupportedErr):
		return KindUnsupported
	case errors.As(err, &validationErr):
		return KindInvalid
	case errors.As(err, &resolutionErr), errors.Is(err, ErrNoCurrentScene):
		return KindResolution
	case errors.As(err, &protocolErr):
		return KindProtocol
	case errors.As(err, &connErr),
		errors.Is(err, ErrConnectionClosed),
		errors.Is(err, ErrReconnectExhausted),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindConnection
	default:
		return KindUnknown
	}
}
