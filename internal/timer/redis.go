package timer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/nhle/reminders/internal/model"
)

// DefaultRedisKey is the sorted set holding armed timers.
const DefaultRedisKey = "reminders:timers"

// RedisBackend keeps timers in a sorted set scored by fire time in epoch
// milliseconds, with payloads in a companion hash.
type RedisBackend struct {
	client   *redis.Client
	zsetKey  string
	hashKey  string
	ownsConn bool
}

// NewRedisBackend connects to addr, which may be a host:port or a
// redis:// URL, and verifies the connection.
func NewRedisBackend(ctx context.Context, addr, key string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	b := NewRedisBackendFromClient(client, key)
	b.ownsConn = true
	return b, nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client *redis.Client, key string) *RedisBackend {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisBackend{client: client, zsetKey: key, hashKey: key + ":payloads"}
}

// UpsertTimer arms t, replacing any timer with the same key.
func (b *RedisBackend) UpsertTimer(ctx context.Context, t model.Timer) error {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return fmt.Errorf("encoding payload of timer %s: %w", t.Key, err)
	}
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, b.zsetKey, &redis.Z{Score: float64(t.FireAtMillis()), Member: t.Key})
		pipe.HSet(ctx, b.hashKey, t.Key, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upserting timer %s: %w", t.Key, err)
	}
	return nil
}

// DeleteTimer removes key from both structures.
func (b *RedisBackend) DeleteTimer(ctx context.Context, key string) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, b.zsetKey, key)
		pipe.HDel(ctx, b.hashKey, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting timer %s: %w", key, err)
	}
	return nil
}

// HasTimer reports whether key is armed.
func (b *RedisBackend) HasTimer(ctx context.Context, key string) (bool, error) {
	err := b.client.ZScore(ctx, b.zsetKey, key).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking timer %s: %w", key, err)
	}
	return true, nil
}

// DueTimers returns every timer scored at or before now, earliest first.
func (b *RedisBackend) DueTimers(ctx context.Context, now time.Time) ([]model.Timer, error) {
	entries, err := b.client.ZRangeByScoreWithScores(ctx, b.zsetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("querying due timers: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	keys := make([]string, len(entries))
	for i, z := range entries {
		keys[i] = z.Member.(string)
	}
	payloads, err := b.client.HMGet(ctx, b.hashKey, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading timer payloads: %w", err)
	}

	timers := make([]model.Timer, 0, len(entries))
	for i, z := range entries {
		t := model.Timer{Key: keys[i], FireAt: time.UnixMilli(int64(z.Score))}
		if raw, ok := payloads[i].(string); ok {
			if err := json.Unmarshal([]byte(raw), &t.Payload); err != nil {
				return nil, fmt.Errorf("decoding payload of timer %s: %w", t.Key, err)
			}
		}
		timers = append(timers, t)
	}
	return timers, nil
}

// NextTimerAt returns the earliest armed instant.
func (b *RedisBackend) NextTimerAt(ctx context.Context) (time.Time, bool, error) {
	entries, err := b.client.ZRangeWithScores(ctx, b.zsetKey, 0, 0).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying next timer: %w", err)
	}
	if len(entries) == 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(int64(entries[0].Score)), true, nil
}

// Close releases the connection when the backend opened it.
func (b *RedisBackend) Close() error {
	if b.ownsConn {
		return b.client.Close()
	}
	return nil
}
