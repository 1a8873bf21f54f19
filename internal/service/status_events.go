package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"burrito-analytics/internal/model"
	"burrito-analytics/internal/pkg/logger"
)

// StatusPublisher fans out text-analysis status transitions to interested
// subscribers (the API gateway forwards them to clients). Delivery is
// at-least-once with no ordering guarantee across questions.
type StatusPublisher interface {
	PublishStatusChanged(ctx context.Context, event model.TextAnalysisStatusEvent) error
}

type redisStatusPublisher struct {
	rdb     *redis.Client
	channel string
	log     *logger.Logger
}

// NewRedisStatusPublisher publishes status events on a Redis pub/sub channel.
func NewRedisStatusPublisher(rdb *redis.Client, channel string, log *logger.Logger) StatusPublisher {
	return &redisStatusPublisher{
		rdb:     rdb,
		channel: channel,
		log:     log.With("component", "status-publisher"),
	}
}

func (p *redisStatusPublisher) PublishStatusChanged(ctx context.Context, event model.TextAnalysisStatusEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, raw).Err()
}
