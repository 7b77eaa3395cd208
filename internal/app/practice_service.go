package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lingua-practice-service/internal/domain"
	"lingua-practice-service/internal/evaluation"
	"lingua-practice-service/internal/media"
	"lingua-practice-service/internal/session"
)

// LessonRepository loads practice lesson content (from cache/backing store).
type LessonRepository interface {
	GetLesson(ctx context.Context, lessonID string) (domain.PracticeLesson, error)
}

// SubmissionRepository persists submissions and enforces the status graph.
type SubmissionRepository interface {
	Create(ctx context.Context, learnerID string, attempt domain.Attempt) (domain.Submission, error)
	Get(ctx context.Context, id string) (domain.Submission, error)
	List(ctx context.Context, filter domain.SubmissionFilter) ([]domain.Submission, error)
	AttachEvaluation(ctx context.Context, id string, eval domain.Evaluation) (domain.Submission, error)
	Return(ctx context.Context, id string) (domain.Submission, error)
	MarkResubmitted(ctx context.Context, id string) (domain.Submission, error)
	Delete(ctx context.Context, id string) error
}

// SessionTracker marks live sessions in shared infrastructure (optional).
type SessionTracker interface {
	Track(learnerID, lessonID string)
	Untrack(learnerID, lessonID string)
}

// PracticeService contains the practice and evaluation use cases. It keeps
// at most one live session per learner: opening a new one abandons the old,
// the same displacement rule the media broker applies to devices.
type PracticeService struct {
	lessons LessonRepository
	subs    SubmissionRepository
	engine  *evaluation.Engine
	broker  *media.Broker
	tracker SessionTracker
	log     zerolog.Logger
	unit    time.Duration

	mu       sync.Mutex
	sessions map[string]*session.Controller
	lessonOf map[string]string
}

// ServiceOption configures the PracticeService.
type ServiceOption func(*PracticeService)

// WithSessionTracker wires an external liveness tracker.
func WithSessionTracker(t SessionTracker) ServiceOption {
	return func(s *PracticeService) { s.tracker = t }
}

// WithSessionClockUnit shortens session countdown units (tests).
func WithSessionClockUnit(unit time.Duration) ServiceOption {
	return func(s *PracticeService) { s.unit = unit }
}

func NewPracticeService(lessons LessonRepository, subs SubmissionRepository, engine *evaluation.Engine, broker *media.Broker, log zerolog.Logger, opts ...ServiceOption) *PracticeService {
	s := &PracticeService{
		lessons:  lessons,
		subs:     subs,
		engine:   engine,
		broker:   broker,
		log:      log.With().Str("component", "practice-service").Logger(),
		unit:     time.Second,
		sessions: make(map[string]*session.Controller),
		lessonOf: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenSession starts a practice session for the learner on the lesson,
// abandoning any session the learner already has. A recoverable device
// error (permission denied, device busy) is returned alongside the session,
// which remains usable in Preparing.
func (s *PracticeService) OpenSession(ctx context.Context, learnerID, lessonID string) (*session.Controller, error) {
	lesson, err := s.lessons.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if old, ok := s.sessions[learnerID]; ok {
		old.Abandon()
		if s.tracker != nil {
			s.tracker.Untrack(learnerID, s.lessonOf[learnerID])
		}
	}
	ctrl := session.New(lesson, learnerID, s.broker, s.log, session.WithClockUnit(s.unit))
	s.sessions[learnerID] = ctrl
	s.lessonOf[learnerID] = lessonID
	s.mu.Unlock()

	if s.tracker != nil {
		s.tracker.Track(learnerID, lessonID)
	}

	if err := ctrl.Begin(ctx); err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrDeviceBusy) {
			// Recoverable: the session stays in Preparing and the learner
			// can grant permission and skip again.
			return ctrl, err
		}
		s.CloseSession(learnerID)
		return nil, err
	}
	return ctrl, nil
}

// Session returns the learner's live session, if any.
func (s *PracticeService) Session(learnerID string) (*session.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctrl, ok := s.sessions[learnerID]
	return ctrl, ok
}

// CloseSession abandons and forgets the learner's session. Safe to call
// when none exists.
func (s *PracticeService) CloseSession(learnerID string) {
	s.mu.Lock()
	ctrl, ok := s.sessions[learnerID]
	lessonID := s.lessonOf[learnerID]
	delete(s.sessions, learnerID)
	delete(s.lessonOf, learnerID)
	s.mu.Unlock()
	if !ok {
		return
	}
	ctrl.Abandon()
	if s.tracker != nil {
		s.tracker.Untrack(learnerID, lessonID)
	}
}

// Submit persists the learner's finalized attempt as a submission and closes
// the session. On a store failure the session (and its attempt) is kept so
// the learner can retry the submit.
func (s *PracticeService) Submit(ctx context.Context, learnerID string) (domain.Submission, error) {
	ctrl, ok := s.Session(learnerID)
	if !ok {
		return domain.Submission{}, domain.ErrSessionNotFound
	}
	attempt, err := ctrl.Attempt()
	if err != nil {
		return domain.Submission{}, err
	}
	sub, err := s.subs.Create(ctx, learnerID, attempt)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("create submission: %w", err)
	}
	s.CloseSession(learnerID)
	s.log.Info().Str("submission", sub.ID).Str("learner", learnerID).Msg("attempt submitted")
	return sub, nil
}

// Evaluate scores a submission with the modality's rubric and attaches the
// result. Invoked by the evaluator actor, never by the learner flow.
func (s *PracticeService) Evaluate(ctx context.Context, submissionID string, scores map[domain.Criterion]float64, feedback, corrections, suggestions string) (domain.Submission, error) {
	sub, err := s.subs.Get(ctx, submissionID)
	if err != nil {
		return domain.Submission{}, err
	}
	eval, err := s.engine.Evaluate(evaluation.Input{
		Modality:    sub.Attempt.Modality,
		Scores:      scores,
		Feedback:    feedback,
		Corrections: corrections,
		Suggestions: suggestions,
	})
	if err != nil {
		return domain.Submission{}, err
	}
	return s.subs.AttachEvaluation(ctx, submissionID, eval)
}

// GetSubmission fetches one submission.
func (s *PracticeService) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	return s.subs.Get(ctx, id)
}

// ListSubmissions fetches submissions matching the filter.
func (s *PracticeService) ListSubmissions(ctx context.Context, filter domain.SubmissionFilter) ([]domain.Submission, error) {
	return s.subs.List(ctx, filter)
}

// ReturnSubmission hands an evaluated submission back for revision.
func (s *PracticeService) ReturnSubmission(ctx context.Context, id string) (domain.Submission, error) {
	return s.subs.Return(ctx, id)
}

// Resubmit marks a returned submission as resubmitted.
func (s *PracticeService) Resubmit(ctx context.Context, id string) (domain.Submission, error) {
	return s.subs.MarkResubmitted(ctx, id)
}

// DeleteSubmission removes a submission.
func (s *PracticeService) DeleteSubmission(ctx context.Context, id string) error {
	return s.subs.Delete(ctx, id)
}
