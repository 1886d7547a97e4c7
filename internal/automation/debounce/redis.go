package debounce

import (
	"context"
	"fmt"
	"time"

	platformredis "nimbus/internal/platform/redis"
	id "nimbus/pkg/domain"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "automation:debounce:"

// RedisStore persists last-fired timestamps so a process restart cannot
// re-fire a rule inside its cool-down window. Keys expire once the
// window has passed, so a cache miss always means "allowed".
type RedisStore struct {
	client *platformredis.Client
}

func NewRedisStore(client *platformredis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(ruleID id.RuleID) string { return keyPrefix + ruleID.String() }

func (s *RedisStore) LastFired(ctx context.Context, ruleID id.RuleID) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, key(ruleID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("debounce get: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("debounce parse %q: %w", raw, err)
	}
	return at, true, nil
}

func (s *RedisStore) MarkFired(ctx context.Context, ruleID id.RuleID, at time.Time, window time.Duration) error {
	if window <= 0 {
		// Nothing to suppress; keep a short record for observability.
		window = time.Minute
	}
	if err := s.client.Set(ctx, key(ruleID), at.Format(time.RFC3339Nano), window).Err(); err != nil {
		return fmt.Errorf("debounce set: %w", err)
	}
	return nil
}

func (s *RedisStore) Forget(ctx context.Context, ruleID id.RuleID) error {
	if err := s.client.Del(ctx, key(ruleID)).Err(); err != nil {
		return fmt.Errorf("debounce del: %w", err)
	}
	return nil
}
