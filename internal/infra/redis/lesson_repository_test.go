package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"lingua-practice-service/internal/domain"
	"lingua-practice-service/internal/infra/memory"
)

func TestLessonRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		LessonLoader: memory.NewStaticLessonLoader(map[string]domain.PracticeLesson{
			"lesson-1": sampleLesson(),
		}),
	}
	repo := NewLessonRepository(client, loader, time.Minute)

	lesson, err := repo.GetLesson(context.Background(), "lesson-1")
	if err != nil {
		t.Fatalf("get lesson: %v", err)
	}
	if lesson.Prompt != "Describe your hometown" {
		t.Fatalf("unexpected lesson %+v", lesson)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("practice:lesson:lesson-1") {
		t.Fatalf("expected lesson cached in redis")
	}

	// Second call should hit cache, loader not incremented.
	cached, err := repo.GetLesson(context.Background(), "lesson-1")
	if err != nil {
		t.Fatalf("get lesson cached: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if cached.RecordLimitSeconds != lesson.RecordLimitSeconds {
		t.Fatalf("cache round-trip lost fields: %+v", cached)
	}
}

func TestLessonRepositoryMissPropagates(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewLessonRepository(newClient(mr), memory.NewStaticLessonLoader(nil), time.Minute)
	if _, err := repo.GetLesson(context.Background(), "missing"); err != domain.ErrLessonNotFound {
		t.Fatalf("expected ErrLessonNotFound, got %v", err)
	}
}

type countingLoader struct {
	memory.LessonLoader
	calls int
}

func (l *countingLoader) LoadLesson(ctx context.Context, lessonID string) (domain.PracticeLesson, error) {
	l.calls++
	return l.LessonLoader.LoadLesson(ctx, lessonID)
}

func sampleLesson() domain.PracticeLesson {
	return domain.PracticeLesson{
		ID:                 "lesson-1",
		Title:              "Hometown",
		Prompt:             "Describe your hometown",
		Modality:           domain.ModalitySpeech,
		PrepSeconds:        30,
		RecordLimitSeconds: 90,
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
