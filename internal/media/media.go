// Package media defines the capture/playback capability boundary and the
// single arbitration point that enforces the one-active-device rule.
package media

import (
	"context"
	"time"
)

// Recording is the opaque result of a finished capture: a reference the
// engine never interprets plus the measured length.
type Recording struct {
	Ref      string
	Duration time.Duration
}

// CaptureDevice is the exclusive microphone resource. Start fails with
// domain.ErrPermissionDenied or domain.ErrDeviceBusy; callers must treat
// both as recoverable.
type CaptureDevice interface {
	RequestPermission(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) (Recording, error)
	Release()
}

// PlaybackStatus is a point-in-time view of the playback slot.
type PlaybackStatus struct {
	Position time.Duration `json:"position"`
	Duration time.Duration `json:"duration"`
	Playing  bool          `json:"isPlaying"`
}

// PlaybackController plays one source at a time. Loading a new source
// unloads the active one; natural completion stops and rewinds to zero.
type PlaybackController interface {
	Load(ctx context.Context, ref string) error
	Play() error
	Pause() error
	Seek(pos time.Duration) error
	Status() PlaybackStatus
	Release()
}
