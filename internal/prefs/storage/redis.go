package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisPrefix namespaces preference keys on a shared server.
const DefaultRedisPrefix = "prefs:"

// RedisConfig configures a Redis adapter.
type RedisConfig struct {
	// URL is a redis:// connection URL.
	URL string
	// Prefix is prepended to every key. Defaults to DefaultRedisPrefix.
	Prefix string
}

// Redis stores documents as plain string values on a Redis server.
type Redis struct {
	client *redis.Client
	prefix string
	owned  bool
}

// NewRedis connects to the server in cfg and verifies it with a PING.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	r := NewRedisWithClient(client, cfg.Prefix)
	r.owned = true
	return r, nil
}

// NewRedisWithClient wraps an existing client. Close does not close it.
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// Get implements Adapter.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// Set implements Adapter. Values never expire.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Remove implements Adapter.
func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

// Clear implements Adapter. Only keys under the adapter's prefix are deleted.
func (r *Redis) Clear(ctx context.Context) error {
	keys, err := r.scan(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clearing: %w", err)
	}
	return nil
}

// Keys implements Adapter.
func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	raw, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(raw))
	for i, k := range raw {
		keys[i] = k[len(r.prefix):]
	}
	sort.Strings(keys)
	return keys, nil
}

// scan returns the full server-side names of every key under the prefix.
func (r *Redis) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning keys: %w", err)
	}
	return keys, nil
}

// Close closes the client if the adapter created it.
func (r *Redis) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
