package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	appLog "famcal/internal/log"
)

// RedisOptions configures a Redis cache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	// Prefix namespaces every key, e.g. "famcal:".
	Prefix string
}

// Redis shares cached windows between instances that use the same
// Postgres database.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if opts.Addr == "" {
		return nil, errors.New("cache: redis addr is empty")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Prefix == "" {
		opts.Prefix = "famcal:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: connect to redis: %w", err)
	}

	appLog.Info("cache: connected to redis", "addr", opts.Addr, "db", opts.DB)
	return &Redis{client: client, ttl: opts.TTL, prefix: opts.Prefix}, nil
}

func (r *Redis) versionKey() string { return r.prefix + "version" }

func (r *Redis) entryKey(version int64, key string) string {
	return r.prefix + "occ:" + strconv.FormatInt(version, 10) + ":" + key
}

func (r *Redis) Version(ctx context.Context) (int64, error) {
	v, err := r.client.Get(ctx, r.versionKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache: read version: %w", err)
	}
	return v, nil
}

func (r *Redis) Get(ctx context.Context, version int64, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.entryKey(version, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get: %w", err)
	}
	return data, true, nil
}

func (r *Redis) Set(ctx context.Context, version int64, key string, val []byte) error {
	if err := r.client.Set(ctx, r.entryKey(version, key), val, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

// Invalidate increments the shared version; old entries expire by TTL.
func (r *Redis) Invalidate(ctx context.Context) error {
	if err := r.client.Incr(ctx, r.versionKey()).Err(); err != nil {
		return fmt.Errorf("cache: invalidate: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Cache = (*Redis)(nil)
