package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hanyki111/workflow-tool/types"
)

const (
	stateKeySuffix = "state"
	retryKeySuffix = "retry"
)

// RedisStore is a Redis-backed Store for setups where workflow state is
// shared off the working tree. Saves use single-key SET, so the
// whole-record replacement stays atomic.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisOptions configures the Redis connection and key namespace.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "workflow:"
	}
	return &RedisStore{client: client, keyPrefix: prefix}, nil
}

func (s *RedisStore) key(suffix string) string {
	return s.keyPrefix + suffix
}

func (s *RedisStore) save(ctx context.Context, suffix string, value interface{}) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %v", suffix, err)
		}
		if err := s.client.Set(ctx, s.key(suffix), data, 0).Err(); err != nil {
			return fmt.Errorf("failed to set %s in Redis: %v", s.key(suffix), err)
		}
		return nil
	})
}

// LoadState reads the workflow state; a missing key yields the zero
// state and an undecodable value yields ErrStateCorrupt.
func (s *RedisStore) LoadState(ctx context.Context) (types.WorkflowState, error) {
	return withContext(ctx, func() (types.WorkflowState, error) {
		var st types.WorkflowState
		data, err := s.client.Get(ctx, s.key(stateKeySuffix)).Bytes()
		if errors.Is(err, redis.Nil) {
			return st, nil
		}
		if err != nil {
			return st, fmt.Errorf("failed to get %s from Redis: %v", s.key(stateKeySuffix), err)
		}
		if err := json.Unmarshal(data, &st); err != nil {
			return types.WorkflowState{}, fmt.Errorf("%w: %v", ErrStateCorrupt, err)
		}
		return st, nil
	})
}

// SaveState replaces the workflow state record.
func (s *RedisStore) SaveState(ctx context.Context, st types.WorkflowState) error {
	return s.save(ctx, stateKeySuffix, st)
}

// LoadRetry reads retry state; missing or undecodable values yield the
// empty state.
func (s *RedisStore) LoadRetry(ctx context.Context) (types.RetryState, error) {
	return withContext(ctx, func() (types.RetryState, error) {
		rs := types.RetryState{Items: map[string]types.RetryRecord{}}
		data, err := s.client.Get(ctx, s.key(retryKeySuffix)).Bytes()
		if err != nil {
			return rs, nil
		}
		if err := json.Unmarshal(data, &rs); err != nil {
			return types.RetryState{Items: map[string]types.RetryRecord{}}, nil
		}
		if rs.Items == nil {
			rs.Items = map[string]types.RetryRecord{}
		}
		return rs, nil
	})
}

// SaveRetry replaces the retry state record.
func (s *RedisStore) SaveRetry(ctx context.Context, rs types.RetryState) error {
	return s.save(ctx, retryKeySuffix, rs)
}

// ClearRetry removes the retry record.
func (s *RedisStore) ClearRetry(ctx context.Context) error {
	return withContextError(ctx, func() error {
		return s.client.Del(ctx, s.key(retryKeySuffix)).Err()
	})
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
