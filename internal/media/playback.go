package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lingua-practice-service/internal/domain"
)

// DurationResolver reports the length of a recording reference. The engine
// knows attempt durations already; other sources (sample audio) resolve
// through lesson metadata.
type DurationResolver func(ref string) (time.Duration, error)

// TimedPlayback models playback position against the wall clock. It is the
// engine-side view of the player: position advances while playing, natural
// completion stops and rewinds to zero, and loading a new source always
// unloads the previous one.
type TimedPlayback struct {
	resolve DurationResolver
	now     func() time.Time

	mu       sync.Mutex
	ref      string
	duration time.Duration
	base     time.Duration // accumulated position while paused
	startAt  time.Time     // wall time Play was called
	playing  bool
}

// NewTimedPlayback builds a playback controller backed by the wall clock.
func NewTimedPlayback(resolve DurationResolver) *TimedPlayback {
	return NewTimedPlaybackWithClock(resolve, time.Now)
}

// NewTimedPlaybackWithClock allows deterministic time in tests.
func NewTimedPlaybackWithClock(resolve DurationResolver, now func() time.Time) *TimedPlayback {
	return &TimedPlayback{resolve: resolve, now: now}
}

// Load binds a new source, displacing the active one first.
func (p *TimedPlayback) Load(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, err := p.resolve(ref)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPlaybackFailure, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.ref = ref
	p.duration = d
	p.base = 0
	p.playing = false
	return nil
}

func (p *TimedPlayback) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ref == "" {
		return domain.ErrNoSource
	}
	if p.playing {
		return nil
	}
	p.playing = true
	p.startAt = p.now()
	return nil
}

func (p *TimedPlayback) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ref == "" {
		return domain.ErrNoSource
	}
	p.settleLocked()
	p.playing = false
	return nil
}

func (p *TimedPlayback) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ref == "" {
		return domain.ErrNoSource
	}
	if pos < 0 {
		pos = 0
	}
	if pos > p.duration {
		pos = p.duration
	}
	p.base = pos
	if p.playing {
		p.startAt = p.now()
	}
	return nil
}

func (p *TimedPlayback) Status() PlaybackStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settleLocked()
	return PlaybackStatus{Position: p.base, Duration: p.duration, Playing: p.playing}
}

// Release unloads the source; further operations fail with ErrNoSource.
func (p *TimedPlayback) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ref = ""
	p.duration = 0
	p.base = 0
	p.playing = false
}

// settleLocked folds elapsed play time into base and applies the natural
// completion rule: stop and rewind to zero rather than loop.
func (p *TimedPlayback) settleLocked() {
	if p.playing {
		p.base += p.now().Sub(p.startAt)
		p.startAt = p.now()
	}
	if p.duration > 0 && p.base >= p.duration {
		p.base = 0
		p.playing = false
	}
}
