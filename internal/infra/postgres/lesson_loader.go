package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"lingua-practice-service/internal/domain"
)

// LessonLoader loads lesson JSONB from Postgres.
type LessonLoader struct {
	pool *pgxpool.Pool
}

func NewLessonLoader(pool *pgxpool.Pool) *LessonLoader {
	return &LessonLoader{pool: pool}
}

func (l *LessonLoader) LoadLesson(ctx context.Context, lessonID string) (domain.PracticeLesson, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM lessons WHERE id=$1`, lessonID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PracticeLesson{}, domain.ErrLessonNotFound
	}
	if err != nil {
		return domain.PracticeLesson{}, fmt.Errorf("load lesson: %w", err)
	}
	var lesson domain.PracticeLesson
	if err := json.Unmarshal(raw, &lesson); err != nil {
		return domain.PracticeLesson{}, fmt.Errorf("unmarshal lesson: %w", err)
	}
	return lesson, nil
}
