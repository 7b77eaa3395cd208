package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lingua-practice-service/internal/app"
	"lingua-practice-service/internal/domain"
	"lingua-practice-service/internal/evaluation"
	"lingua-practice-service/internal/infra/memory"
	"lingua-practice-service/internal/media"
)

type trackerLog struct {
	tracked   []string
	untracked []string
}

func (l *trackerLog) Track(learnerID, lessonID string) {
	l.tracked = append(l.tracked, learnerID+"/"+lessonID)
}

func (l *trackerLog) Untrack(learnerID, lessonID string) {
	l.untracked = append(l.untracked, learnerID+"/"+lessonID)
}

func newTestService(opts ...app.ServiceOption) *app.PracticeService {
	lessons := memory.NewLessonRepository(memory.NewStaticLessonLoader(testLessons()), time.Minute)
	broker := media.NewBroker(
		func() media.CaptureDevice { return media.NewFakeCapture(media.Recording{Ref: "rec.pcm", Duration: 9 * time.Second}) },
		nil,
		zerolog.Nop(),
	)
	opts = append([]app.ServiceOption{app.WithSessionClockUnit(5 * time.Millisecond)}, opts...)
	return app.NewPracticeService(lessons, memory.NewSubmissionRepository(), evaluation.New(), broker, zerolog.Nop(), opts...)
}

func testLessons() map[string]domain.PracticeLesson {
	return map[string]domain.PracticeLesson{
		"write-1": {
			ID:                "write-1",
			Title:             "Describe your day",
			Modality:          domain.ModalityText,
			WriteLimitSeconds: 1000,
			MinWords:          10,
			MaxWords:          100,
		},
		"speak-1": {
			ID:                 "speak-1",
			Title:              "Introduce yourself",
			Modality:           domain.ModalitySpeech,
			RecordLimitSeconds: 1000,
		},
	}
}

func TestSubmitTextAttempt(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	ctrl, err := service.OpenSession(ctx, "u1", "write-1")
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	if err := ctrl.FinalizeText(ctx, strings.Repeat("word ", 20)); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	sub, err := service.Submit(ctx, "u1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Status != domain.StatusSubmitted {
		t.Fatalf("expected submitted, got %s", sub.Status)
	}
	if sub.Attempt.WordCount != 20 {
		t.Fatalf("expected 20 words, got %d", sub.Attempt.WordCount)
	}
	if _, ok := service.Session("u1"); ok {
		t.Fatalf("expected session to close after submit")
	}
}

func TestSubmitWithoutAttempt(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	if _, err := service.Submit(ctx, "nobody"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}

	if _, err := service.OpenSession(ctx, "u1", "write-1"); err != nil {
		t.Fatalf("open session: %v", err)
	}
	if _, err := service.Submit(ctx, "u1"); !errors.Is(err, domain.ErrNoAttempt) {
		t.Fatalf("expected no attempt, got %v", err)
	}
	// The session must survive a failed submit so the learner can finish.
	if _, ok := service.Session("u1"); !ok {
		t.Fatalf("expected session to survive failed submit")
	}
}

func TestOpenSessionDisplacesPrevious(t *testing.T) {
	ctx := context.Background()
	tracker := &trackerLog{}
	service := newTestService(app.WithSessionTracker(tracker))

	first, err := service.OpenSession(ctx, "u1", "write-1")
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	if _, err := service.OpenSession(ctx, "u1", "speak-1"); err != nil {
		t.Fatalf("open second: %v", err)
	}
	if err := first.FinalizeText(ctx, strings.Repeat("word ", 20)); !errors.Is(err, domain.ErrSessionFinished) {
		t.Fatalf("expected abandoned session to reject actions, got %v", err)
	}
	if len(tracker.tracked) != 2 {
		t.Fatalf("expected 2 track calls, got %v", tracker.tracked)
	}
	if len(tracker.untracked) != 1 || tracker.untracked[0] != "u1/write-1" {
		t.Fatalf("expected first session untracked, got %v", tracker.untracked)
	}
}

func TestEvaluateAttachesRubricResult(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	ctrl, err := service.OpenSession(ctx, "u1", "write-1")
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	if err := ctrl.FinalizeText(ctx, strings.Repeat("word ", 20)); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	sub, err := service.Submit(ctx, "u1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	scores := map[domain.Criterion]float64{
		domain.CriterionGrammar:    8,
		domain.CriterionVocabulary: 7,
		domain.CriterionStructure:  9,
		domain.CriterionContent:    8,
		domain.CriterionCoherence:  6,
	}
	evaluated, err := service.Evaluate(ctx, sub.ID, scores, "solid", "", "")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if evaluated.Evaluation == nil || evaluated.Evaluation.TotalScore != 7.8 {
		t.Fatalf("expected total 7.8, got %+v", evaluated.Evaluation)
	}

	// Scoring with the wrong rubric's criteria must fail before any write.
	badScores := map[domain.Criterion]float64{
		domain.CriterionPronunciation: 8,
		domain.CriterionFluency:       7,
		domain.CriterionVocabulary:    9,
		domain.CriterionGrammar:       6,
		domain.CriterionContent:       8,
	}
	if _, err := service.Evaluate(ctx, sub.ID, badScores, "nope", "", ""); err == nil {
		t.Fatalf("expected rubric mismatch error")
	}
}

func TestEvaluateUnknownSubmission(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	_, err := service.Evaluate(ctx, "missing", nil, "x", "", "")
	if !errors.Is(err, domain.ErrSubmissionNotFound) {
		t.Fatalf("expected submission not found, got %v", err)
	}
}
