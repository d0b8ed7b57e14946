package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"biometric-attendance-sync/internal/config"
	"biometric-attendance-sync/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const (
	defaultPollTimeout = 5 * time.Second
	errorBackoff       = time.Second
)

type Consumer struct {
	client      *redis.Client
	cfg         *config.Config
	pollTimeout time.Duration
	log         zerolog.Logger
}

type MessageHandler func(ctx context.Context, data []byte) error

func NewConsumer(redisClient *RedisClient, cfg *config.Config) *Consumer {
	return &Consumer{
		client:      redisClient.Client(),
		cfg:         cfg,
		pollTimeout: defaultPollTimeout,
		log:         logger.Get(),
	}
}

func (c *Consumer) ConsumeSyncQueue(ctx context.Context, handler MessageHandler) error {
	return c.consume(ctx, c.cfg.Redis.SyncQueue, handler)
}

func (c *Consumer) ConsumeImportQueue(ctx context.Context, handler MessageHandler) error {
	return c.consume(ctx, c.cfg.Redis.ImportQueue, handler)
}

// consume pops messages until ctx is done. A message whose handler fails is
// parked on the queue's DLQ untouched, so it can be inspected and replayed.
func (c *Consumer) consume(ctx context.Context, queueName string, handler MessageHandler) error {
	log := c.log.With().Str("queue", queueName).Logger()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := c.client.BRPop(ctx, c.pollTimeout, queueName).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Failed to consume message")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(errorBackoff):
			}
			continue
		}

		if len(result) < 2 {
			continue
		}

		message := result[1]
		if err := handler(ctx, []byte(message)); err != nil {
			log.Error().Err(err).Msg("Failed to process message")
			if dlqErr := c.DeadLetter(ctx, queueName, []byte(message)); dlqErr != nil {
				log.Error().Err(dlqErr).Msg("Failed to move message to DLQ")
			}
		}
	}
}

// DeadLetter parks a message on the DLQ of queueName. It also serves jobs that
// fail after the handler has already handed them to a worker pool.
func (c *Consumer) DeadLetter(ctx context.Context, queueName string, data []byte) error {
	dlqName := queueName + c.cfg.Redis.DLQSuffix
	if err := c.client.LPush(context.WithoutCancel(ctx), dlqName, data).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", dlqName, err)
	}
	return nil
}
