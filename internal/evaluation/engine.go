// Package evaluation derives rubric-based evaluations from raw criterion
// scores. The engine is pure computation: it never touches sessions,
// devices, or storage.
package evaluation

import (
	"math"
	"strings"
	"time"

	"lingua-practice-service/internal/domain"
)

// Input is one evaluator's scoring of a submission.
type Input struct {
	Modality    domain.Modality
	Scores      map[domain.Criterion]float64
	Feedback    string
	Corrections string
	Suggestions string
}

// Engine validates scores against the modality's fixed rubric and computes
// the weighted total.
type Engine struct {
	now func() time.Time
}

// New builds an engine using the wall clock.
func New() *Engine {
	return NewWithClock(time.Now)
}

// NewWithClock allows deterministic timestamps in tests.
func NewWithClock(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Evaluate checks every rubric criterion is scored in [0,10] and feedback is
// present, then returns the evaluation with the weight-normalized total
// rounded to one decimal.
func (e *Engine) Evaluate(in Input) (domain.Evaluation, error) {
	if strings.TrimSpace(in.Feedback) == "" {
		return domain.Evaluation{}, domain.Validationf("feedback", "feedback is required")
	}

	rubric := domain.RubricFor(in.Modality)
	for criterion := range in.Scores {
		if _, ok := rubric[criterion]; !ok {
			return domain.Evaluation{}, domain.Validationf("scores", "criterion %s is not part of the %s rubric", criterion, in.Modality)
		}
	}

	weighted := 0.0
	scores := make(map[domain.Criterion]float64, len(rubric))
	for criterion, weight := range rubric {
		score, ok := in.Scores[criterion]
		if !ok {
			return domain.Evaluation{}, domain.Validationf("scores", "missing score for %s", criterion)
		}
		if score < 0 || score > 10 {
			return domain.Evaluation{}, domain.Validationf("scores", "score must be 0-10, got %g for %s", score, criterion)
		}
		scores[criterion] = score
		weighted += score * float64(weight)
	}

	return domain.Evaluation{
		Scores:      scores,
		Feedback:    in.Feedback,
		Corrections: in.Corrections,
		Suggestions: in.Suggestions,
		TotalScore:  round1(weighted / 100),
		EvaluatedAt: e.now(),
	}, nil
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
