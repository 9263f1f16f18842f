// Package flowstate keeps short-lived conversational state, such as the
// candidates last offered to a user, outside process memory so it survives
// restarts and is shared by every bot instance.
package flowstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/as3contender/alex-orator-bot/pkg/config"
	"github.com/as3contender/alex-orator-bot/pkg/errs"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Store is a keyed TTL store. Get and Take fail with errs.ErrNotFound for
// missing or expired keys.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Take returns the value and removes it; of several concurrent callers
	// at most one succeeds.
	Take(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Open builds the configured backend. The auto backend picks Redis when an
// address is configured and the database table otherwise.
func Open(cfg config.FlowStateConfig, rcfg config.RedisConfig, gdb *gorm.DB) (Store, error) {
	backend := cfg.Backend
	if backend == config.FlowStateAuto {
		backend = config.FlowStateDatabase
		if rcfg.Addr != "" {
			backend = config.FlowStateRedis
		}
	}
	switch backend {
	case config.FlowStateRedis:
		if rcfg.Addr == "" {
			return nil, errors.New("flowstate: redis backend without an address")
		}
		return NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     rcfg.Addr,
			Password: rcfg.Password,
			DB:       rcfg.DB,
		})), nil
	case config.FlowStateDatabase:
		if gdb == nil {
			return nil, errors.New("flowstate: database backend without a connection")
		}
		return NewDBStore(gdb), nil
	case config.FlowStateMemory:
		return NewMemoryStore(nil), nil
	default:
		return nil, fmt.Errorf("flowstate: unknown backend %q", cfg.Backend)
	}
}

func notFound(key string) error {
	return errs.NotFound("flow state", key)
}

func PutJSON[T any](ctx context.Context, s Store, key string, value T, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, raw, ttl)
}

func GetJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var out T
	raw, err := s.Get(ctx, key)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

func TakeJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var out T
	raw, err := s.Take(ctx, key)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}
