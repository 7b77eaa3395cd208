// Package session implements the timed practice-session state machine:
// Preparing -> Active -> Finished, with Retry from Finished and Abandon
// from anywhere. The controller owns its countdown clock and, for the
// speech modality, the capture device; both are released on every exit path.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lingua-practice-service/internal/clock"
	"lingua-practice-service/internal/domain"
	"lingua-practice-service/internal/media"
)

// State is the session phase.
type State string

const (
	StatePreparing State = "preparing"
	StateActive    State = "active"
	StateFinished  State = "finished"
)

// EventType discriminates session events sent to subscribers.
type EventType string

const (
	// EventState is sent whenever the session changes phase.
	EventState EventType = "state"
	// EventTick carries the countdown's remaining time.
	EventTick EventType = "tick"
	// EventAttempt is sent when a finalized attempt is produced.
	EventAttempt EventType = "attempt"
)

// Event is a session notification.
type Event struct {
	Type      EventType
	State     State
	Remaining time.Duration
	Attempt   *domain.Attempt
}

// Controller drives one learner's practice session. All methods are safe
// for concurrent use; transitions that await device I/O are serialized by
// an explicit in-flight guard, so a re-entrant call during a pending
// transition fails with domain.ErrTransitionInFlight instead of racing.
type Controller struct {
	lesson  domain.PracticeLesson
	learner string
	broker  *media.Broker
	unit    time.Duration
	now     func() time.Time
	log     zerolog.Logger

	mu          sync.Mutex
	state       State
	inFlight    bool
	abandoned   bool
	clock       *clock.Countdown
	capture     media.CaptureDevice
	playback    media.PlaybackController
	attempt     *domain.Attempt
	textDraft   string
	activeSince time.Time
	subscribers map[chan Event]struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithClockUnit shortens the countdown tick unit (tests).
func WithClockUnit(unit time.Duration) Option {
	return func(c *Controller) { c.unit = unit }
}

// WithNow injects a deterministic time source (tests).
func WithNow(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New builds a controller in the Preparing state. Call Begin to start the
// countdown (or to enter Active directly for lessons without preparation).
func New(lesson domain.PracticeLesson, learnerID string, broker *media.Broker, log zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		lesson:      lesson,
		learner:     learnerID,
		broker:      broker,
		unit:        time.Second,
		now:         time.Now,
		log:         log.With().Str("component", "session").Str("lesson", lesson.ID).Str("learner", learnerID).Logger(),
		state:       StatePreparing,
		subscribers: make(map[chan Event]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TimeRemaining reports the running countdown's remaining time, zero when
// no clock is active.
func (c *Controller) TimeRemaining() time.Duration {
	c.mu.Lock()
	cd := c.clock
	c.mu.Unlock()
	if cd == nil {
		return 0
	}
	return cd.Remaining()
}

// Attempt returns the finalized attempt, or ErrNoAttempt before Finished.
func (c *Controller) Attempt() (domain.Attempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt == nil {
		return domain.Attempt{}, domain.ErrNoAttempt
	}
	return *c.attempt, nil
}

// Subscribe returns a channel of session events plus a cancel function the
// caller must invoke to avoid leaks. The first event snapshots the state.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subscribers[ch] = struct{}{}
	// Sent under the lock so a concurrent Abandon cannot close the channel
	// first; the fresh buffered channel cannot block here.
	ch <- Event{Type: EventState, State: c.state}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// Begin starts the session: the preparation countdown when the lesson has
// one, otherwise an immediate transition into Active.
func (c *Controller) Begin(ctx context.Context) error {
	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		return domain.ErrSessionFinished
	}
	if c.state != StatePreparing || c.clock != nil {
		c.mu.Unlock()
		return domain.ErrTransitionInFlight
	}
	if c.lesson.HasPreparation() {
		c.startClockLocked(time.Duration(c.lesson.PrepSeconds)*c.unit, StatePreparing)
		c.broadcastLocked(Event{Type: EventState, State: StatePreparing})
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.enterActive(ctx)
}

// SkipPreparation is the explicit "skip" action: it tries to enter Active
// immediately. On device failure the session stays in Preparing and the
// preparation countdown keeps running, so the learner can skip again or
// wait for expiry to retrigger activation.
func (c *Controller) SkipPreparation(ctx context.Context) error {
	return c.enterActive(ctx)
}

// UpdateDraft stores in-progress text. Advisory only; FinalizeText decides
// what gets into the attempt.
func (c *Controller) UpdateDraft(text string) {
	c.mu.Lock()
	c.textDraft = text
	c.mu.Unlock()
}

// FinalizeText ends a text session with the given body. Rejects with a
// ValidationError naming the shortfall when the lesson's minimum word count
// is not met; the session stays Active so the learner can keep writing.
func (c *Controller) FinalizeText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.abandoned {
		return domain.ErrSessionFinished
	}
	if c.lesson.Modality != domain.ModalityText {
		return domain.Validationf("modality", "text finalization on a %s lesson", c.lesson.Modality)
	}
	if c.state != StateActive {
		return domain.ErrSessionFinished
	}
	if c.inFlight {
		return domain.ErrTransitionInFlight
	}

	trimmed := strings.TrimSpace(text)
	words := domain.CountWords(trimmed)
	if min := c.lesson.MinWords; words < min {
		return domain.Validationf("wordCount", "need %d more words", min-words)
	}

	attempt := c.newAttemptLocked()
	attempt.Text = trimmed
	attempt.WordCount = words
	c.finishLocked(attempt)
	return nil
}

// StopCapture is the explicit "stop" action for speech sessions. It is also
// invoked internally on clock expiry.
func (c *Controller) StopCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		return domain.ErrSessionFinished
	}
	if c.lesson.Modality != domain.ModalitySpeech {
		c.mu.Unlock()
		return domain.Validationf("modality", "capture stop on a %s lesson", c.lesson.Modality)
	}
	if c.state != StateActive {
		c.mu.Unlock()
		return domain.ErrSessionFinished
	}
	if c.inFlight {
		c.mu.Unlock()
		return domain.ErrTransitionInFlight
	}
	c.inFlight = true
	capture := c.capture
	c.mu.Unlock()

	rec, err := capture.Stop(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if c.abandoned {
		return domain.ErrSessionFinished
	}
	if err != nil {
		// Stop failure is recoverable; the session stays Active with the
		// clock still running.
		c.log.Warn().Err(err).Msg("capture stop failed")
		return err
	}

	attempt := c.newAttemptLocked()
	attempt.RecordingRef = rec.Ref
	attempt.RecordingDurationSeconds = int(rec.Duration.Round(time.Second) / time.Second)
	c.finishLocked(attempt)
	return nil
}

// Retry discards the finished attempt, releases any playback bound to it,
// resets the countdown to the lesson's configured value, and re-enters
// Preparing (or Active directly when the lesson has no preparation phase).
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		return domain.ErrSessionFinished
	}
	if c.state != StateFinished {
		c.mu.Unlock()
		return domain.Validationf("state", "retry is only available from finished, session is %s", c.state)
	}
	if c.inFlight {
		c.mu.Unlock()
		return domain.ErrTransitionInFlight
	}
	if c.playback != nil {
		c.broker.Release(c.playback)
		c.playback = nil
	}
	c.attempt = nil
	c.textDraft = ""
	c.state = StatePreparing
	if c.lesson.HasPreparation() {
		c.startClockLocked(time.Duration(c.lesson.PrepSeconds)*c.unit, StatePreparing)
		c.broadcastLocked(Event{Type: EventState, State: StatePreparing})
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.enterActive(ctx)
}

// OpenPlayback binds the playback slot to a recording, typically the
// finished attempt or the lesson's sample audio. The controller tracks the
// instance so Retry and Abandon release it.
func (c *Controller) OpenPlayback(ctx context.Context, ref string) (media.PlaybackController, error) {
	player, err := c.broker.AcquirePlayback(ctx)
	if err != nil {
		return nil, err
	}
	if err := player.Load(ctx, ref); err != nil {
		c.broker.Release(player)
		return nil, err
	}
	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		c.broker.Release(player)
		return nil, domain.ErrSessionFinished
	}
	c.playback = player
	c.mu.Unlock()
	return player, nil
}

// Abandon tears the session down from any state: the clock is cancelled and
// every held device is released before the controller becomes inert. It is
// idempotent.
func (c *Controller) Abandon() {
	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		return
	}
	c.abandoned = true
	c.stopClockLocked()
	capture := c.capture
	playback := c.playback
	c.capture = nil
	c.playback = nil
	for ch := range c.subscribers {
		close(ch)
	}
	c.subscribers = make(map[chan Event]struct{})
	c.mu.Unlock()

	if capture != nil {
		c.broker.Release(capture)
	}
	if playback != nil {
		c.broker.Release(playback)
	}
	c.log.Debug().Msg("session abandoned")
}

// enterActive performs the Preparing -> Active transition, acquiring the
// capture device for speech lessons. On failure the session remains in
// Preparing with the preparation clock untouched.
func (c *Controller) enterActive(ctx context.Context) error {
	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		return domain.ErrSessionFinished
	}
	if c.state != StatePreparing {
		c.mu.Unlock()
		return domain.Validationf("state", "cannot activate from %s", c.state)
	}
	if c.inFlight {
		c.mu.Unlock()
		return domain.ErrTransitionInFlight
	}
	c.inFlight = true
	speech := c.lesson.Modality == domain.ModalitySpeech
	c.mu.Unlock()

	var capture media.CaptureDevice
	if speech {
		var err error
		capture, err = c.broker.AcquireCapture(ctx)
		if err == nil {
			err = capture.RequestPermission(ctx)
		}
		if err == nil {
			err = capture.Start(ctx)
		}
		if err != nil {
			if capture != nil {
				c.broker.Release(capture)
			}
			c.mu.Lock()
			c.inFlight = false
			c.mu.Unlock()
			c.log.Warn().Err(err).Msg("capture activation failed, staying in preparing")
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if c.abandoned {
		if capture != nil {
			c.broker.Release(capture)
		}
		return domain.ErrSessionFinished
	}
	c.stopClockLocked()
	c.state = StateActive
	c.capture = capture
	c.activeSince = c.now()
	if limit := c.activeLimitLocked(); limit > 0 {
		c.startClockLocked(limit, StateActive)
	}
	c.broadcastLocked(Event{Type: EventState, State: StateActive})
	return nil
}

// activeLimitLocked returns the Active-phase countdown duration in clock
// units. For text lessons the limit is advisory: the clock runs but expiry
// forces nothing.
func (c *Controller) activeLimitLocked() time.Duration {
	if c.lesson.Modality == domain.ModalitySpeech {
		return time.Duration(c.lesson.RecordLimitSeconds) * c.unit
	}
	return time.Duration(c.lesson.WriteLimitSeconds) * c.unit
}

func (c *Controller) newAttemptLocked() domain.Attempt {
	return domain.Attempt{
		ID:               uuid.NewString(),
		LessonID:         c.lesson.ID,
		Modality:         c.lesson.Modality,
		TimeSpentSeconds: int(c.now().Sub(c.activeSince).Round(time.Second) / time.Second),
		CreatedAt:        c.now(),
	}
}

// finishLocked enters the terminal state: the clock is cancelled and the
// capture device, if held, is released unconditionally.
func (c *Controller) finishLocked(attempt domain.Attempt) {
	c.stopClockLocked()
	if c.capture != nil {
		c.broker.Release(c.capture)
		c.capture = nil
	}
	c.state = StateFinished
	c.attempt = &attempt
	c.broadcastLocked(Event{Type: EventState, State: StateFinished})
	c.broadcastLocked(Event{Type: EventAttempt, State: StateFinished, Attempt: &attempt})
}

func (c *Controller) startClockLocked(d time.Duration, phase State) {
	cd := clock.NewWithUnit(c.unit)
	c.clock = cd
	_ = cd.Start(d)
	go c.watch(cd, phase)
}

func (c *Controller) stopClockLocked() {
	if c.clock != nil {
		c.clock.Cancel()
		c.clock = nil
	}
}

// watch forwards one countdown's events into the state machine. Events from
// a clock the controller no longer owns are dropped: cancellation swaps
// c.clock before the watcher can observe stale ticks.
func (c *Controller) watch(cd *clock.Countdown, phase State) {
	for ev := range cd.Events() {
		switch ev.Kind {
		case clock.EventTick:
			c.mu.Lock()
			if c.clock == cd && !c.abandoned {
				c.broadcastLocked(Event{Type: EventTick, State: c.state, Remaining: ev.Remaining})
			}
			c.mu.Unlock()
		case clock.EventExpired:
			c.onExpired(cd, phase)
		}
	}
}

func (c *Controller) onExpired(cd *clock.Countdown, phase State) {
	c.mu.Lock()
	if c.clock != cd || c.abandoned {
		c.mu.Unlock()
		return
	}
	c.clock = nil
	state := c.state
	speech := c.lesson.Modality == domain.ModalitySpeech
	c.broadcastLocked(Event{Type: EventTick, State: state, Remaining: 0})
	c.mu.Unlock()

	switch {
	case state == StatePreparing:
		if err := c.enterActive(context.Background()); err != nil {
			c.log.Warn().Err(err).Msg("activation on preparation expiry failed")
		}
	case state == StateActive && speech:
		if err := c.StopCapture(context.Background()); err != nil {
			c.log.Warn().Err(err).Msg("capture stop on expiry failed")
		}
	default:
		// Text limits are advisory; the learner keeps writing.
	}
}

// broadcastLocked fans an event out to subscribers, dropping the oldest
// buffered event for a slow consumer rather than blocking the session.
func (c *Controller) broadcastLocked(ev Event) {
	for ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
