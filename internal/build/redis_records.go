package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "qubic:build:"

// RedisRecordStore keeps build outcomes in Redis so they survive server
// restarts when several instances share one Redis.
type RedisRecordStore struct {
	client *redis.Client
}

func NewRedisRecordStore(client *redis.Client) *RedisRecordStore {
	return &RedisRecordStore{client: client}
}

func redisKey(user, project string) string {
	return fmt.Sprintf("%s%s:%s", redisKeyPrefix, user, project)
}

func (s *RedisRecordStore) Save(ctx context.Context, res Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode build record: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(res.User, res.Project), data, 0).Err(); err != nil {
		return fmt.Errorf("store build record: %w", err)
	}
	return nil
}

func (s *RedisRecordStore) Load(ctx context.Context, user, project string) (Result, bool, error) {
	data, err := s.client.Get(ctx, redisKey(user, project)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Result{}, false, nil
		}
		return Result{}, false, fmt.Errorf("load build record: %w", err)
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, false, fmt.Errorf("decode build record: %w", err)
	}
	return res, true, nil
}
