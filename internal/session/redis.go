// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/erikg84/supabase-sdk/auth"
)

// RedisConfig addresses a single Redis instance.
type RedisConfig struct {
	Address  string
	Password string
	Database int
	Key      string
	// TTL expires the stored session. Zero keeps it until cleared.
	TTL time.Duration
}

// RedisStore keeps the session as JSON under one key, so several processes
// can share a sign-in.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects and pings Redis.
func NewRedisStore(ctx context.Context, config RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.Database,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return NewRedisStoreWithClient(client, config.Key, config.TTL), nil
}

// NewRedisStoreWithClient uses an existing client, standalone or cluster.
func NewRedisStoreWithClient(client redis.UniversalClient, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = "supabase:session"
	}
	return &RedisStore{client: client, key: key, ttl: ttl}
}

func (r *RedisStore) Load(ctx context.Context) (*auth.Session, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	var s auth.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("stored session is corrupt: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *auth.Session) error {
	if s == nil {
		return r.Clear(ctx)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.client.Set(ctx, r.key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// Close releases the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
