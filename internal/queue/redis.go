package queue

import (
	"context"
	"fmt"
	"time"

	"biometric-attendance-sync/internal/config"

	"github.com/go-redis/redis/v8"
)

type RedisClient struct {
	client *redis.Client
	cfg    *config.Config
}

func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis at %s: %w", cfg.RedisAddr(), err)
	}

	return &RedisClient{
		client: rdb,
		cfg:    cfg,
	}, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// QueueDepths reports how many jobs wait on the sync and import queues and
// how many are parked on their dead-letter lists.
func (r *RedisClient) QueueDepths(ctx context.Context) (map[string]int64, error) {
	redisCfg := r.cfg.Redis
	names := []string{
		redisCfg.SyncQueue,
		redisCfg.SyncQueue + redisCfg.DLQSuffix,
		redisCfg.ImportQueue,
		redisCfg.ImportQueue + redisCfg.DLQSuffix,
	}

	pipe := r.client.Pipeline()
	lengths := make([]*redis.IntCmd, len(names))
	for i, name := range names {
		lengths[i] = pipe.LLen(ctx, name)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue depths: %w", err)
	}

	depths := make(map[string]int64, len(names))
	for i, name := range names {
		depths[name] = lengths[i].Val()
	}
	return depths, nil
}
