package lock

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// RedisStore keeps locks as plain keys with a PX expiry.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key, token string, lease time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, token, lease).Result()
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, key, token string) error {
	_, err := compareAndDeleteScript.Run(ctx, s.client, []string{key}, token).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
