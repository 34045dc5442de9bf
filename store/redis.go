package store

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/strata/types"
)

// DefaultRedisPrefix namespaces the records hash.
const DefaultRedisPrefix = "strata"

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Prefix namespaces keys (default: strata). Records live in <prefix>:files.
	Prefix string
}

// Redis stores records in a single hash. Each mutation is one HSET or HDEL,
// which Redis serializes.
type Redis struct {
	client *goredis.Client
	key    string
}

// NewRedis connects a Redis-backed store.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.URL == "" {
		return nil, wrap("open", "", errors.New("redis backend requires a URL"))
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, wrap("open", "", fmt.Errorf("invalid URL: %w", err))
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultRedisPrefix
	}
	return &Redis{
		client: goredis.NewClient(opts),
		key:    cfg.Prefix + ":files",
	}, nil
}

// Key returns the hash key holding the records.
func (r *Redis) Key() string { return r.key }

// Put inserts or replaces the record for name.
func (r *Redis) Put(ctx context.Context, name, path string) error {
	return wrap("put", name, r.client.HSet(ctx, r.key, name, path).Err())
}

// Get returns the record for name.
func (r *Redis) Get(ctx context.Context, name string) (types.FileRecord, error) {
	path, err := r.client.HGet(ctx, r.key, name).Result()
	if errors.Is(err, goredis.Nil) {
		return types.FileRecord{}, wrap("get", name, ErrNotFound)
	}
	if err != nil {
		return types.FileRecord{}, wrap("get", name, err)
	}
	return types.FileRecord{Name: name, Path: path}, nil
}

// Delete removes the record for name.
func (r *Redis) Delete(ctx context.Context, name string) error {
	n, err := r.client.HDel(ctx, r.key, name).Result()
	if err != nil {
		return wrap("delete", name, err)
	}
	if n == 0 {
		return wrap("delete", name, ErrNotFound)
	}
	return nil
}

// List returns every record sorted by name.
func (r *Redis) List(ctx context.Context) ([]types.FileRecord, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, wrap("list", "", err)
	}
	return sortedRecords(all), nil
}

// Close releases the client connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Store = (*Redis)(nil)
