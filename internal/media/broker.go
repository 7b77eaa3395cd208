package media

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrNoCaptureBackend means the deployment has no microphone backend.
	ErrNoCaptureBackend = errors.New("no capture backend configured")
	// ErrNoPlaybackBackend means the deployment has no playback backend.
	ErrNoPlaybackBackend = errors.New("no playback backend configured")
)

// Broker is the single arbitration point for the capture and playback slots.
// There is no lock protocol for callers to follow: acquiring either slot
// force-releases whatever either slot currently holds, so at most one device
// is active process-wide.
type Broker struct {
	newCapture  func() CaptureDevice
	newPlayback func() PlaybackController
	log         zerolog.Logger

	mu       sync.Mutex
	capture  CaptureDevice
	playback PlaybackController
}

// NewBroker wires the device constructors. Either constructor may be nil
// when the deployment has no such backend (text-only service).
func NewBroker(newCapture func() CaptureDevice, newPlayback func() PlaybackController, log zerolog.Logger) *Broker {
	return &Broker{
		newCapture:  newCapture,
		newPlayback: newPlayback,
		log:         log.With().Str("component", "media-broker").Logger(),
	}
}

// AcquireCapture hands out the capture slot, releasing any prior holder of
// either slot first.
func (b *Broker) AcquireCapture(ctx context.Context) (CaptureDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.releaseAllLocked()
	if b.newCapture == nil {
		return nil, ErrNoCaptureBackend
	}
	b.capture = b.newCapture()
	return b.capture, nil
}

// AcquirePlayback hands out the playback slot, releasing any prior holder of
// either slot first.
func (b *Broker) AcquirePlayback(ctx context.Context) (PlaybackController, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.releaseAllLocked()
	if b.newPlayback == nil {
		return nil, ErrNoPlaybackBackend
	}
	b.playback = b.newPlayback()
	return b.playback, nil
}

// Release returns a device to the broker. Releasing a device the broker no
// longer tracks is a no-op: the displacement path already released it.
func (b *Broker) Release(dev any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch d := dev.(type) {
	case CaptureDevice:
		if b.capture == d {
			d.Release()
			b.capture = nil
		}
	case PlaybackController:
		if b.playback == d {
			d.Release()
			b.playback = nil
		}
	}
}

func (b *Broker) releaseAllLocked() {
	if b.capture != nil {
		b.log.Debug().Msg("displacing active capture device")
		b.capture.Release()
		b.capture = nil
	}
	if b.playback != nil {
		b.log.Debug().Msg("displacing active playback controller")
		b.playback.Release()
		b.playback = nil
	}
}
