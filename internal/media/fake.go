package media

import (
	"context"
	"sync"
	"time"

	"lingua-practice-service/internal/domain"
)

// FakeCapture is a deterministic capture device for tests and for
// deployments where the recording happens on the client. Counters let tests
// assert the acquire/release balance across a session's lifetime.
type FakeCapture struct {
	// PermissionErr is returned by RequestPermission when set.
	PermissionErr error
	// StartErr is returned by Start when set.
	StartErr error
	// Rec is the recording returned by Stop.
	Rec Recording

	mu           sync.Mutex
	recording    bool
	startedAt    time.Time
	StartCalls   int
	StopCalls    int
	ReleaseCalls int
}

// NewFakeCapture returns a capture device that yields the given recording.
func NewFakeCapture(rec Recording) *FakeCapture {
	return &FakeCapture{Rec: rec}
}

func (f *FakeCapture) RequestPermission(ctx context.Context) error {
	if f.PermissionErr != nil {
		return f.PermissionErr
	}
	return ctx.Err()
}

func (f *FakeCapture) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return f.StartErr
	}
	if f.recording {
		return domain.ErrDeviceBusy
	}
	f.recording = true
	f.startedAt = time.Now()
	f.StartCalls++
	return nil
}

func (f *FakeCapture) Stop(ctx context.Context) (Recording, error) {
	if err := ctx.Err(); err != nil {
		return Recording{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recording = false
	f.StopCalls++
	rec := f.Rec
	if rec.Duration == 0 {
		rec.Duration = time.Since(f.startedAt)
	}
	return rec, nil
}

func (f *FakeCapture) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recording = false
	f.ReleaseCalls++
}

// Recording reports whether capture is currently running.
func (f *FakeCapture) Recording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}
