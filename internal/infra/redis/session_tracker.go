package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionTracker marks live practice sessions in Redis so operators (and
// future cross-instance coordination) can see who is mid-session. Markers
// are best-effort liveness keys with a TTL; losing one never affects the
// in-process session.
type SessionTracker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionTracker(client *redis.Client, ttl time.Duration) *SessionTracker {
	return &SessionTracker{client: client, ttl: ttl}
}

func (t *SessionTracker) Track(learnerID, lessonID string) {
	_ = t.client.Set(context.Background(), t.key(learnerID, lessonID), "1", t.ttl).Err()
}

func (t *SessionTracker) Untrack(learnerID, lessonID string) {
	_ = t.client.Del(context.Background(), t.key(learnerID, lessonID)).Err()
}

func (t *SessionTracker) key(learnerID, lessonID string) string {
	return "practice:session:" + learnerID + ":" + lessonID
}
