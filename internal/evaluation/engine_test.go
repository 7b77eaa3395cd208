package evaluation

import (
	"errors"
	"testing"
	"time"

	"lingua-practice-service/internal/domain"
)

func testEngine() *Engine {
	return NewWithClock(func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) })
}

func speakingScores() map[domain.Criterion]float64 {
	return map[domain.Criterion]float64{
		domain.CriterionPronunciation: 8,
		domain.CriterionFluency:       7,
		domain.CriterionVocabulary:    9,
		domain.CriterionGrammar:       6,
		domain.CriterionContent:       8,
	}
}

func TestSpeakingTotalIsMean(t *testing.T) {
	ev, err := testEngine().Evaluate(Input{
		Modality: domain.ModalitySpeech,
		Scores:   speakingScores(),
		Feedback: "Solid delivery, watch article usage.",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if ev.TotalScore != 7.6 {
		t.Fatalf("equal weights should yield the mean 7.6, got %g", ev.TotalScore)
	}
	if ev.EvaluatedAt.IsZero() {
		t.Fatalf("expected evaluatedAt to be set")
	}
}

func TestWritingWeightedTotal(t *testing.T) {
	ev, err := testEngine().Evaluate(Input{
		Modality: domain.ModalityText,
		Scores: map[domain.Criterion]float64{
			domain.CriterionGrammar:    8,
			domain.CriterionVocabulary: 7,
			domain.CriterionStructure:  9,
			domain.CriterionContent:    8,
			domain.CriterionCoherence:  6,
		},
		Feedback: "Good structure, work on cohesion.",
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if ev.TotalScore != 7.8 {
		t.Fatalf("expected weighted total 7.8, got %g", ev.TotalScore)
	}
}

func TestScoreOutOfRangeRejected(t *testing.T) {
	scores := speakingScores()
	scores[domain.CriterionFluency] = 10.5
	_, err := testEngine().Evaluate(Input{
		Modality: domain.ModalitySpeech,
		Scores:   scores,
		Feedback: "x",
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "scores" {
		t.Fatalf("expected score validation error, got %v", err)
	}

	scores[domain.CriterionFluency] = -1
	if _, err := testEngine().Evaluate(Input{Modality: domain.ModalitySpeech, Scores: scores, Feedback: "x"}); err == nil {
		t.Fatalf("negative score accepted")
	}
}

func TestBoundaryScoresAccepted(t *testing.T) {
	scores := map[domain.Criterion]float64{
		domain.CriterionPronunciation: 0,
		domain.CriterionFluency:       10,
		domain.CriterionVocabulary:    10,
		domain.CriterionGrammar:       0,
		domain.CriterionContent:       10,
	}
	ev, err := testEngine().Evaluate(Input{Modality: domain.ModalitySpeech, Scores: scores, Feedback: "x"})
	if err != nil {
		t.Fatalf("boundary scores rejected: %v", err)
	}
	if ev.TotalScore != 6.0 {
		t.Fatalf("expected 6.0, got %g", ev.TotalScore)
	}
}

func TestMissingFeedbackRejected(t *testing.T) {
	_, err := testEngine().Evaluate(Input{
		Modality: domain.ModalitySpeech,
		Scores:   speakingScores(),
		Feedback: "   ",
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "feedback" {
		t.Fatalf("expected feedback validation error, got %v", err)
	}
}

func TestRubricMismatchRejected(t *testing.T) {
	scores := speakingScores()
	delete(scores, domain.CriterionContent)
	if _, err := testEngine().Evaluate(Input{Modality: domain.ModalitySpeech, Scores: scores, Feedback: "x"}); err == nil {
		t.Fatalf("missing criterion accepted")
	}

	scores = speakingScores()
	scores[domain.CriterionCoherence] = 5 // writing-only criterion
	if _, err := testEngine().Evaluate(Input{Modality: domain.ModalitySpeech, Scores: scores, Feedback: "x"}); err == nil {
		t.Fatalf("unknown criterion accepted")
	}
}
