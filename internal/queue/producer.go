package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"biometric-attendance-sync/internal/config"
	"biometric-attendance-sync/internal/model"

	"github.com/go-redis/redis/v8"
)

// Producer hands work to the sync and import workers.
type Producer struct {
	redis  *RedisClient
	client *redis.Client
	cfg    *config.Config
}

func NewProducer(redisClient *RedisClient, cfg *config.Config) *Producer {
	return &Producer{
		redis:  redisClient,
		client: redisClient.Client(),
		cfg:    cfg,
	}
}

// Backlog returns the depth of every work and dead-letter queue.
func (p *Producer) Backlog(ctx context.Context) (map[string]int64, error) {
	return p.redis.QueueDepths(ctx)
}

func (p *Producer) EnqueueSyncJob(ctx context.Context, job model.SyncJob) error {
	return p.push(ctx, p.cfg.Redis.SyncQueue, job)
}

func (p *Producer) EnqueueImportJob(ctx context.Context, job model.ImportJob) error {
	return p.push(ctx, p.cfg.Redis.ImportQueue, job)
}

func (p *Producer) push(ctx context.Context, queueName string, job interface{}) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	if err := p.client.LPush(ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue to %s: %w", queueName, err)
	}
	return nil
}
