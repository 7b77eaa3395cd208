package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"lingua-practice-service/internal/domain"
)

const (
	micSampleRate     = 16000
	micChannels       = 1
	micBytesPerSample = 2 // S16
)

// MicrophoneCapture records from the default system microphone via
// miniaudio. Captured PCM is buffered in memory and flushed to a file on
// Stop; the file path is the opaque recording reference.
type MicrophoneCapture struct {
	dir string

	mu        sync.Mutex
	ctx       *malgo.AllocatedContext
	device    *malgo.Device
	buf       bytes.Buffer
	recording bool
}

// NewMicrophoneCapture writes recordings into dir (the OS temp dir if empty).
func NewMicrophoneCapture(dir string) *MicrophoneCapture {
	if dir == "" {
		dir = os.TempDir()
	}
	return &MicrophoneCapture{dir: dir}
}

// RequestPermission initializes the audio context. On platforms where the OS
// gates microphone access, initialization failure is how denial surfaces.
func (m *MicrophoneCapture) RequestPermission(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		return nil
	}
	actx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	}
	m.ctx = actx
	return nil
}

// Start begins capture. Fails with ErrPermissionDenied when the context was
// never granted, ErrDeviceBusy when the device cannot be opened.
func (m *MicrophoneCapture) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return domain.ErrPermissionDenied
	}
	if m.recording {
		return domain.ErrDeviceBusy
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = micChannels
	cfg.SampleRate = micSampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, _ uint32) {
			m.mu.Lock()
			if m.recording {
				m.buf.Write(data)
			}
			m.mu.Unlock()
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeviceBusy, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("%w: %v", domain.ErrDeviceBusy, err)
	}
	m.buf.Reset()
	m.device = dev
	m.recording = true
	return nil
}

// Stop ends capture, writes the PCM buffer out, and returns the reference
// plus the duration measured from the captured sample count.
func (m *MicrophoneCapture) Stop(ctx context.Context) (Recording, error) {
	if err := ctx.Err(); err != nil {
		return Recording{}, err
	}
	m.mu.Lock()
	if !m.recording {
		m.mu.Unlock()
		return Recording{}, domain.ErrDeviceBusy
	}
	m.recording = false
	dev := m.device
	m.device = nil
	m.mu.Unlock()

	// Stopped outside the lock: the data callback takes m.mu and the device
	// drains callbacks before Stop returns.
	dev.Stop()
	dev.Uninit()

	m.mu.Lock()
	defer m.mu.Unlock()
	frames := m.buf.Len() / (micBytesPerSample * micChannels)
	duration := time.Duration(frames) * time.Second / micSampleRate

	f, err := os.CreateTemp(m.dir, "capture-*.pcm")
	if err != nil {
		return Recording{}, fmt.Errorf("write recording: %w", err)
	}
	if _, err := f.Write(m.buf.Bytes()); err != nil {
		f.Close()
		return Recording{}, fmt.Errorf("write recording: %w", err)
	}
	if err := f.Close(); err != nil {
		return Recording{}, fmt.Errorf("write recording: %w", err)
	}
	m.buf.Reset()
	return Recording{Ref: f.Name(), Duration: duration}, nil
}

// PCMFileDuration derives a recording's duration from the size of a raw PCM
// file produced by MicrophoneCapture.
func PCMFileDuration(ref string) (time.Duration, error) {
	info, err := os.Stat(ref)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrNoSource, err)
	}
	frames := info.Size() / (micBytesPerSample * micChannels)
	return time.Duration(frames) * time.Second / micSampleRate, nil
}

// Release tears everything down; safe to call at any point and repeatedly.
func (m *MicrophoneCapture) Release() {
	m.mu.Lock()
	m.recording = false
	dev := m.device
	m.device = nil
	actx := m.ctx
	m.ctx = nil
	m.buf.Reset()
	m.mu.Unlock()

	if dev != nil {
		dev.Stop()
		dev.Uninit()
	}
	if actx != nil {
		actx.Uninit()
		actx.Free()
	}
}
