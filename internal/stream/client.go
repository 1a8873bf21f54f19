package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"burrito-analytics/internal/config"
	"burrito-analytics/internal/pkg/logger"
)

// Client talks to the intelligence request/result/DLQ streams.
type Client interface {
	// PublishRequest appends an enrichment request to the request stream and
	// returns the stream-assigned message id.
	PublishRequest(ctx context.Context, env Envelope) (string, error)

	// PublishDLQ appends a failed message to the dead-letter stream.
	PublishDLQ(ctx context.Context, entry DLQEntry) (string, error)

	// EnsureResultGroup creates the durable consumer group on the result
	// stream at the current tail. Safe to call when the group already exists.
	EnsureResultGroup(ctx context.Context) error

	// ReadResults blocking-reads up to count undelivered messages for this
	// consumer. A nil slice means the block interval elapsed with no messages.
	ReadResults(ctx context.Context, consumer string, count int, block time.Duration) ([]Message, error)

	// AckResult acknowledges one result message by id.
	AckResult(ctx context.Context, id string) error

	RequestStream() string
	ResultStream() string
	DLQStream() string
}

type redisStreamClient struct {
	rdb           *redis.Client
	requestStream string
	resultStream  string
	dlqStream     string
	group         string
	log           *logger.Logger
}

// NewRedisClient creates a stream client over an existing Redis connection.
func NewRedisClient(rdb *redis.Client, cfg *config.Config, log *logger.Logger) Client {
	return &redisStreamClient{
		rdb:           rdb,
		requestStream: cfg.RequestStream,
		resultStream:  cfg.ResultStream,
		dlqStream:     cfg.DLQStream,
		group:         cfg.ConsumerGroup,
		log:           log.With("component", "stream"),
	}
}

func (c *redisStreamClient) PublishRequest(ctx context.Context, env Envelope) (string, error) {
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.requestStream,
		Values: env.Fields(),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("append to request stream: %w", err)
	}
	return id, nil
}

func (c *redisStreamClient) PublishDLQ(ctx context.Context, entry DLQEntry) (string, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("encode dlq entry: %w", err)
	}
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.dlqStream,
		Values: map[string]interface{}{"payload": string(raw)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("append to dlq stream: %w", err)
	}
	return id, nil
}

func (c *redisStreamClient) EnsureResultGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.resultStream, c.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func (c *redisStreamClient) ReadResults(ctx context.Context, consumer string, count int, block time.Duration) ([]Message, error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: consumer,
		Streams:  []string{c.resultStream, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read result stream: %w", err)
	}

	var messages []Message
	for _, streamRes := range res {
		for _, entry := range streamRes.Messages {
			env, err := EnvelopeFromFields(entry.Values)
			if err != nil {
				// Deliver it anyway; the consumer will route it to the DLQ.
				c.log.Warn("result message has no payload", "id", entry.ID)
				env = Envelope{}
			}
			messages = append(messages, Message{ID: entry.ID, Envelope: env})
		}
	}
	return messages, nil
}

func (c *redisStreamClient) AckResult(ctx context.Context, id string) error {
	return c.rdb.XAck(ctx, c.resultStream, c.group, id).Err()
}

func (c *redisStreamClient) RequestStream() string { return c.requestStream }
func (c *redisStreamClient) ResultStream() string  { return c.resultStream }
func (c *redisStreamClient) DLQStream() string     { return c.dlqStream }
