package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lingua-practice-service/internal/domain"
)

// SubmissionRepository is an in-memory implementation of
// app.SubmissionRepository. Every mutation validates the status graph first
// and leaves the stored record untouched on rejection.
type SubmissionRepository struct {
	now func() time.Time

	mu   sync.RWMutex
	subs map[string]domain.Submission
}

func NewSubmissionRepository() *SubmissionRepository {
	return NewSubmissionRepositoryWithClock(time.Now)
}

// NewSubmissionRepositoryWithClock allows deterministic timestamps in tests.
func NewSubmissionRepositoryWithClock(now func() time.Time) *SubmissionRepository {
	return &SubmissionRepository{
		now:  now,
		subs: make(map[string]domain.Submission),
	}
}

func (r *SubmissionRepository) Create(_ context.Context, learnerID string, attempt domain.Attempt) (domain.Submission, error) {
	sub := domain.Submission{
		ID:          uuid.NewString(),
		LessonID:    attempt.LessonID,
		LearnerID:   learnerID,
		Attempt:     attempt,
		Status:      domain.StatusSubmitted,
		SubmittedAt: r.now(),
	}
	r.mu.Lock()
	r.subs[sub.ID] = sub
	r.mu.Unlock()
	return sub, nil
}

func (r *SubmissionRepository) Get(_ context.Context, id string) (domain.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	return sub, nil
}

func (r *SubmissionRepository) List(_ context.Context, filter domain.SubmissionFilter) ([]domain.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Submission, 0)
	for _, sub := range r.subs {
		if filter.Matches(sub) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}

func (r *SubmissionRepository) AttachEvaluation(_ context.Context, id string, eval domain.Evaluation) (domain.Submission, error) {
	return r.transition(id, domain.StatusEvaluated, func(sub *domain.Submission) {
		sub.Evaluation = &eval
	})
}

func (r *SubmissionRepository) Return(_ context.Context, id string) (domain.Submission, error) {
	return r.transition(id, domain.StatusReturned, nil)
}

func (r *SubmissionRepository) MarkResubmitted(_ context.Context, id string) (domain.Submission, error) {
	return r.transition(id, domain.StatusResubmitted, nil)
}

func (r *SubmissionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return domain.ErrSubmissionNotFound
	}
	delete(r.subs, id)
	return nil
}

func (r *SubmissionRepository) transition(id string, to domain.Status, mutate func(*domain.Submission)) (domain.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if !domain.CanTransition(sub.Status, to) {
		return domain.Submission{}, &domain.TransitionError{From: sub.Status, To: to}
	}
	sub.Status = to
	if mutate != nil {
		mutate(&sub)
	}
	r.subs[id] = sub
	return sub, nil
}
