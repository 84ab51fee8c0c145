package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "sharebot:"
	pendingPrefix    = "session:pending:"
	awaitingPrefix   = "session:awaiting:"
)

type RedisStore struct {
	client *goredis.Client
	prefix string
}

func NewRedis(client *goredis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) pendingKey(owner int64) string {
	return r.prefix + pendingPrefix + strconv.FormatInt(owner, 10)
}

func (r *RedisStore) awaitingKey(owner int64) string {
	return r.prefix + awaitingPrefix + strconv.FormatInt(owner, 10)
}

func (r *RedisStore) put(ctx context.Context, key string, v any, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, key, raw, ttl).Err()
}

func decode[T any](raw string, err error) (T, bool, error) {
	var v T
	if errors.Is(err, goredis.Nil) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, false, fmt.Errorf("decode session value: %w", err)
	}
	return v, true, nil
}

func (r *RedisStore) SetPending(ctx context.Context, owner int64, p PendingBroadcast, ttl time.Duration) error {
	if err := r.put(ctx, r.pendingKey(owner), p, ttl); err != nil {
		return fmt.Errorf("set pending broadcast: %w", err)
	}
	return nil
}

func (r *RedisStore) TakePending(ctx context.Context, owner int64) (PendingBroadcast, bool, error) {
	return decode[PendingBroadcast](r.client.GetDel(ctx, r.pendingKey(owner)).Result())
}

func (r *RedisStore) ClearPending(ctx context.Context, owner int64) (bool, error) {
	n, err := r.client.Del(ctx, r.pendingKey(owner)).Result()
	if err != nil {
		return false, fmt.Errorf("clear pending broadcast: %w", err)
	}
	return n > 0, nil
}

func (r *RedisStore) SetAwaiting(ctx context.Context, owner int64, a AwaitingInput, ttl time.Duration) error {
	if err := r.put(ctx, r.awaitingKey(owner), a, ttl); err != nil {
		return fmt.Errorf("set awaiting input: %w", err)
	}
	return nil
}

func (r *RedisStore) Awaiting(ctx context.Context, owner int64) (AwaitingInput, bool, error) {
	return decode[AwaitingInput](r.client.Get(ctx, r.awaitingKey(owner)).Result())
}

func (r *RedisStore) ClearAwaiting(ctx context.Context, owner int64) error {
	return r.client.Del(ctx, r.awaitingKey(owner)).Err()
}

func (r *RedisStore) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
