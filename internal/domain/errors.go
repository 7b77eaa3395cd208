package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLessonNotFound indicates the practice lesson could not be loaded.
	ErrLessonNotFound = errors.New("practice lesson not found")
	// ErrSessionNotFound is returned when no live session exists for the learner/lesson pair.
	ErrSessionNotFound = errors.New("practice session not found")
	// ErrSubmissionNotFound indicates an unknown submission ID.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrPermissionDenied means microphone permission was not granted.
	ErrPermissionDenied = errors.New("microphone permission required")
	// ErrDeviceBusy means another capture is already active and could not be displaced.
	ErrDeviceBusy = errors.New("capture device busy")
	// ErrPlaybackFailure covers load/play errors on the playback controller.
	ErrPlaybackFailure = errors.New("playback failure")
	// ErrNoSource is returned for playback operations before a source is loaded.
	ErrNoSource = errors.New("no audio source loaded")
	// ErrTransitionInFlight rejects a session action while a previous
	// asynchronous transition is still pending.
	ErrTransitionInFlight = errors.New("session transition already in flight")
	// ErrSessionFinished rejects capture/text actions after the session
	// reached its terminal state.
	ErrSessionFinished = errors.New("session already finished")
	// ErrNoAttempt is returned when submitting before any attempt was finalized.
	ErrNoAttempt = errors.New("no finalized attempt")
)

// ValidationError reports a rejected input with the specific reason, so
// callers can surface "need 10 more words" instead of a generic failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError with a formatted reason.
func Validationf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// TransitionError reports an illegal submission status change. It is a
// contract violation: the store keeps the prior record untouched.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid submission transition %s -> %s", e.From, e.To)
}
