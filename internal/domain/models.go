package domain

import (
	"strings"
	"time"
)

// Modality selects the practice exercise kind. Speech sessions own a capture
// device; text sessions never touch one.
type Modality string

const (
	ModalitySpeech Modality = "speech"
	ModalityText   Modality = "text"
)

// PracticeLesson is the immutable definition of a practice exercise. Lessons
// are authored elsewhere; the engine only reads them.
type PracticeLesson struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Prompt   string   `json:"prompt"`
	Hints    []string `json:"hints,omitempty"`
	Modality Modality `json:"modality"`

	// PrepSeconds is the preparation countdown; zero skips the phase.
	PrepSeconds int `json:"prepSeconds"`

	// RecordLimitSeconds caps speech capture. Ignored for text lessons.
	RecordLimitSeconds int `json:"recordLimitSeconds,omitempty"`

	// WriteLimitSeconds is the advisory writing countdown for text lessons;
	// expiry never forces a transition.
	WriteLimitSeconds int `json:"writeLimitSeconds,omitempty"`

	// MinWords is enforced on text finalization; MaxWords is advisory only.
	MinWords int `json:"minWords,omitempty"`
	MaxWords int `json:"maxWords,omitempty"`

	// Optional reference material shown after the learner finishes.
	SampleAnswer   string `json:"sampleAnswer,omitempty"`
	SampleAudioRef string `json:"sampleAudioRef,omitempty"`
}

// HasPreparation reports whether the lesson defines a preparation phase.
func (l PracticeLesson) HasPreparation() bool {
	return l.PrepSeconds > 0
}

// CaptureLimit returns the active-phase countdown duration, or zero if the
// lesson defines no limit.
func (l PracticeLesson) CaptureLimit() time.Duration {
	if l.Modality == ModalitySpeech {
		return time.Duration(l.RecordLimitSeconds) * time.Second
	}
	return 0
}

// Attempt is the finalized output of one completed practice session. Exactly
// one of (RecordingRef, Text) is set depending on modality. Immutable once
// produced; a retry discards it and produces a new one with a new ID.
type Attempt struct {
	ID       string   `json:"id"`
	LessonID string   `json:"lessonId"`
	Modality Modality `json:"modality"`

	// Speech payload: an opaque handle to the captured audio plus its
	// measured length. The engine never interprets the reference.
	RecordingRef             string `json:"recordingReference,omitempty"`
	RecordingDurationSeconds int    `json:"recordingDurationSeconds,omitempty"`

	// Text payload.
	Text      string `json:"content,omitempty"`
	WordCount int    `json:"wordCount,omitempty"`

	TimeSpentSeconds int       `json:"timeSpentSeconds"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Submission is the persisted, evaluable record derived from an Attempt.
type Submission struct {
	ID          string      `json:"id"`
	LessonID    string      `json:"lessonId"`
	LearnerID   string      `json:"learnerId"`
	Attempt     Attempt     `json:"attempt"`
	Status      Status      `json:"status"`
	SubmittedAt time.Time   `json:"submittedAt"`
	Evaluation  *Evaluation `json:"evaluation,omitempty"`
}

// Evaluation is the rubric-scored result attached to a submission by an
// evaluator. Scores are per-criterion in [0,10]; TotalScore is the
// weight-normalized average rounded to one decimal.
type Evaluation struct {
	Scores      map[Criterion]float64 `json:"scores"`
	Feedback    string                `json:"feedback"`
	Corrections string                `json:"corrections,omitempty"`
	Suggestions string                `json:"suggestions,omitempty"`
	TotalScore  float64               `json:"totalScore"`
	EvaluatedAt time.Time             `json:"evaluatedAt"`
}

// SubmissionFilter narrows List queries; zero values match everything.
type SubmissionFilter struct {
	LearnerID string
	LessonID  string
	Status    Status
}

// Matches reports whether the submission satisfies every set filter field.
func (f SubmissionFilter) Matches(s Submission) bool {
	if f.LearnerID != "" && s.LearnerID != f.LearnerID {
		return false
	}
	if f.LessonID != "" && s.LessonID != f.LessonID {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}

// CountWords counts whitespace-separated tokens, the measure used for the
// text modality's minimum-word check.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
