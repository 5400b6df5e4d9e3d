package jobinfo

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "video-pipeline:pending-transcode:"

// RedisStore backs the pending-job counters with redis so several workers
// can share them
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Increase(ctx context.Context, videoUUID string, amount int64) (int64, error) {
	return s.client.IncrBy(ctx, keyPrefix+videoUUID, amount).Result()
}

func (s *RedisStore) Decrease(ctx context.Context, videoUUID string) (int64, error) {
	return s.client.Decr(ctx, keyPrefix+videoUUID).Result()
}

func (s *RedisStore) Get(ctx context.Context, videoUUID string) (int64, error) {
	value, err := s.client.Get(ctx, keyPrefix+videoUUID).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return value, err
}

func (s *RedisStore) Reset(ctx context.Context, videoUUID string) error {
	return s.client.Del(ctx, keyPrefix+videoUUID).Err()
}
