package flowstate

import (
	"context"
	"errors"
	"time"

	"github.com/as3contender/alex-orator-bot/pkg/errs"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "orator:flow:"

type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errs.Storage("put flow state", s.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err())
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, errs.Storage("get flow state", err)
	}
	return raw, nil
}

func (s *RedisStore) Take(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.client.GetDel(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, errs.Storage("take flow state", err)
	}
	return raw, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return errs.Storage("delete flow state", s.client.Del(ctx, redisKeyPrefix+key).Err())
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
