package usecase

import (
	"time"

	"obsdock/internal/domain"
)

// Recorder receives lifecycle and dispatch observations.
// internal/metrics provides the prometheus implementation.
type Recorder interface {
	ConnectionStateChanged(state domain.ConnState)
	ReconnectAttempted(success bool)
	ActionDispatched(action domain.ActionType, result domain.ActionResult, elapsed time.Duration)
	SnapshotRefreshed(err error, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ConnectionStateChanged(domain.ConnState)                              {}
func (nopRecorder) ReconnectAttempted(bool)                                              {}
func (nopRecorder) ActionDispatched(domain.ActionType, domain.ActionResult, time.Duration) {}
func (nopRecorder) SnapshotRefreshed(error, time.Duration)                               {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
