package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"lingua-practice-service/internal/domain"
)

// SubmissionRepository persists submissions in Postgres. Attempt and
// evaluation payloads are JSONB; the status column is the lifecycle state.
// Transitions are enforced in the UPDATE's WHERE clause, so an illegal
// change never writes anything.
type SubmissionRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool, now: time.Now}
}

const submissionColumns = `id, lesson_id, learner_id, status, submitted_at, attempt, evaluation`

func (r *SubmissionRepository) Create(ctx context.Context, learnerID string, attempt domain.Attempt) (domain.Submission, error) {
	sub := domain.Submission{
		ID:          uuid.NewString(),
		LessonID:    attempt.LessonID,
		LearnerID:   learnerID,
		Attempt:     attempt,
		Status:      domain.StatusSubmitted,
		SubmittedAt: r.now(),
	}
	rawAttempt, err := json.Marshal(attempt)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("marshal attempt: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO submissions (id, lesson_id, learner_id, status, submitted_at, attempt) VALUES ($1,$2,$3,$4,$5,$6)`,
		sub.ID, sub.LessonID, sub.LearnerID, string(sub.Status), sub.SubmittedAt, rawAttempt)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("insert submission: %w", err)
	}
	return sub, nil
}

func (r *SubmissionRepository) Get(ctx context.Context, id string) (domain.Submission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=$1`, id)
	return scanSubmission(row)
}

func (r *SubmissionRepository) List(ctx context.Context, filter domain.SubmissionFilter) ([]domain.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE ($1 = '' OR learner_id = $1)
		   AND ($2 = '' OR lesson_id = $2)
		   AND ($3 = '' OR status = $3)
		 ORDER BY submitted_at DESC`,
		filter.LearnerID, filter.LessonID, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (r *SubmissionRepository) AttachEvaluation(ctx context.Context, id string, eval domain.Evaluation) (domain.Submission, error) {
	raw, err := json.Marshal(eval)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("marshal evaluation: %w", err)
	}
	return r.guardedUpdate(ctx, id, domain.StatusEvaluated,
		`UPDATE submissions SET status=$2, evaluation=$3 WHERE id=$1 AND status = ANY($4) RETURNING `+submissionColumns,
		id, string(domain.StatusEvaluated), raw, statusStrings(domain.TransitionSources(domain.StatusEvaluated)))
}

func (r *SubmissionRepository) Return(ctx context.Context, id string) (domain.Submission, error) {
	return r.guardedUpdate(ctx, id, domain.StatusReturned,
		`UPDATE submissions SET status=$2 WHERE id=$1 AND status = ANY($3) RETURNING `+submissionColumns,
		id, string(domain.StatusReturned), statusStrings(domain.TransitionSources(domain.StatusReturned)))
}

func (r *SubmissionRepository) MarkResubmitted(ctx context.Context, id string) (domain.Submission, error) {
	return r.guardedUpdate(ctx, id, domain.StatusResubmitted,
		`UPDATE submissions SET status=$2 WHERE id=$1 AND status = ANY($3) RETURNING `+submissionColumns,
		id, string(domain.StatusResubmitted), statusStrings(domain.TransitionSources(domain.StatusResubmitted)))
}

func (r *SubmissionRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM submissions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubmissionNotFound
	}
	return nil
}

// guardedUpdate runs a status-guarded UPDATE. When no row matches, it
// distinguishes a missing submission from an illegal transition so the
// caller gets the precise failure.
func (r *SubmissionRepository) guardedUpdate(ctx context.Context, id string, to domain.Status, query string, args ...any) (domain.Submission, error) {
	sub, err := scanSubmission(r.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, domain.ErrSubmissionNotFound) {
		return domain.Submission{}, err
	}

	current, getErr := r.Get(ctx, id)
	if getErr != nil {
		return domain.Submission{}, getErr
	}
	return domain.Submission{}, &domain.TransitionError{From: current.Status, To: to}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (domain.Submission, error) {
	var (
		sub        domain.Submission
		status     string
		rawAttempt []byte
		rawEval    []byte
	)
	err := row.Scan(&sub.ID, &sub.LessonID, &sub.LearnerID, &status, &sub.SubmittedAt, &rawAttempt, &rawEval)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("scan submission: %w", err)
	}
	sub.Status, err = domain.ParseStatus(status)
	if err != nil {
		return domain.Submission{}, err
	}
	if err := json.Unmarshal(rawAttempt, &sub.Attempt); err != nil {
		return domain.Submission{}, fmt.Errorf("unmarshal attempt: %w", err)
	}
	if len(rawEval) > 0 {
		var eval domain.Evaluation
		if err := json.Unmarshal(rawEval, &eval); err != nil {
			return domain.Submission{}, fmt.Errorf("unmarshal evaluation: %w", err)
		}
		sub.Evaluation = &eval
	}
	return sub, nil
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
