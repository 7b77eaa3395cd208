package domain

import "fmt"

// Criterion names one rubric dimension.
type Criterion string

const (
	CriterionGrammar       Criterion = "grammar"
	CriterionVocabulary    Criterion = "vocabulary"
	CriterionStructure     Criterion = "structure"
	CriterionContent       Criterion = "content"
	CriterionCoherence     Criterion = "coherence"
	CriterionPronunciation Criterion = "pronunciation"
	CriterionFluency       Criterion = "fluency"
)

// Rubric maps each criterion of a modality to its weight in percent.
// Weights always sum to 100; mustRubric enforces that at package init so a
// bad table can never reach scoring.
type Rubric map[Criterion]int

var (
	writingRubric = mustRubric(Rubric{
		CriterionGrammar:    25,
		CriterionVocabulary: 25,
		CriterionStructure:  20,
		CriterionContent:    20,
		CriterionCoherence:  10,
	})
	speakingRubric = mustRubric(Rubric{
		CriterionPronunciation: 20,
		CriterionFluency:       20,
		CriterionVocabulary:    20,
		CriterionGrammar:       20,
		CriterionContent:       20,
	})
)

func mustRubric(r Rubric) Rubric {
	sum := 0
	for _, w := range r {
		sum += w
	}
	if sum != 100 {
		panic(fmt.Sprintf("rubric weights sum to %d, want 100", sum))
	}
	return r
}

// RubricFor returns the fixed weight table for a modality.
func RubricFor(m Modality) Rubric {
	if m == ModalitySpeech {
		return speakingRubric
	}
	return writingRubric
}

// Criteria lists the rubric's criteria; order is unspecified.
func (r Rubric) Criteria() []Criterion {
	out := make([]Criterion, 0, len(r))
	for c := range r {
		out = append(out, c)
	}
	return out
}
