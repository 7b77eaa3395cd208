package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"lingua-practice-service/internal/domain"
)

// LessonLoader fetches lesson content from a backing store (e.g., Postgres).
type LessonLoader interface {
	LoadLesson(ctx context.Context, lessonID string) (domain.PracticeLesson, error)
}

// LessonRepository caches whole lessons as JSON in Redis and falls back to a
// loader on cache miss. Key layout: SET practice:lesson:{lessonID} {json}.
type LessonRepository struct {
	client *redis.Client
	loader LessonLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewLessonRepository(client *redis.Client, loader LessonLoader, ttl time.Duration) *LessonRepository {
	return &LessonRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *LessonRepository) GetLesson(ctx context.Context, lessonID string) (domain.PracticeLesson, error) {
	key := r.key(lessonID)

	if raw, err := r.client.Get(ctx, key).Bytes(); err == nil {
		var lesson domain.PracticeLesson
		if err := json.Unmarshal(raw, &lesson); err == nil {
			return lesson, nil
		}
		// Corrupt cache entry: fall through and reload.
	}

	result, err, _ := r.sf.Do(lessonID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := r.client.Get(ctx, key).Bytes(); err == nil {
			var lesson domain.PracticeLesson
			if err := json.Unmarshal(raw, &lesson); err == nil {
				return lesson, nil
			}
		}

		lesson, err := r.loader.LoadLesson(ctx, lessonID)
		if err != nil {
			return domain.PracticeLesson{}, err
		}

		if raw, err := json.Marshal(lesson); err == nil {
			_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		}
		return lesson, nil
	})
	if err != nil {
		return domain.PracticeLesson{}, err
	}
	return result.(domain.PracticeLesson), nil
}

func (r *LessonRepository) key(lessonID string) string {
	return "practice:lesson:" + lessonID
}

func (r *LessonRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
