// Package queue carries links that failed in one crawl session over to a later
// one. Each task type has its own Redis stream read through one consumer group.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"grocery/crawler/internal/config"
	"grocery/crawler/internal/domain/task"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// NoBlock makes GetTask return immediately when the stream has no new messages
const NoBlock = -1 * time.Millisecond

const (
	fieldType  = "task_type"
	fieldData  = "task_data"
	claimBatch = 100
)

// Queue is the failed link stream as a crawl session uses it
type Queue interface {
	// AddTask publishes a task and returns its message ID
	AddTask(ctx context.Context, task task.Task) (string, error)
	GetTask(ctx context.Context, group, consumer, stream string, block time.Duration) (*redis.XMessage, error)
	AckTask(ctx context.Context, stream, group, msgID string) error
	CreateGroup(ctx context.Context, stream, group string) error
	AutoClaim(ctx context.Context, group, consumer, stream string, minIdleTime time.Duration) ([]redis.XMessage, error)
	Backlog(ctx context.Context, stream string) (int64, error)
	EnsureStreamsExist(ctx context.Context) error
	StreamName(taskType string) string
	GroupName() string
}

type RedisQueue struct {
	redisClient  *redis.Client
	streamPrefix string
	groupName    string
}

func NewRedisQueue(ctx context.Context, redisClient *redis.Client, cfg config.RedisConfig) (*RedisQueue, error) {
	q := &RedisQueue{
		redisClient:  redisClient,
		streamPrefix: cfg.KeyPrefix + "stream:",
		groupName:    cfg.ConsumerGroup,
	}

	if err := q.EnsureStreamsExist(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare failed link streams: %w", err)
	}

	return q, nil
}

func (q *RedisQueue) StreamName(taskType string) string {
	return q.streamPrefix + taskType
}

func (q *RedisQueue) GroupName() string {
	return q.groupName
}

// CreateGroup creates group on stream, creating the stream too. An existing
// group is not an error.
func (q *RedisQueue) CreateGroup(ctx context.Context, stream, group string) error {
	err := q.redisClient.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (q *RedisQueue) AddTask(ctx context.Context, t task.Task) (string, error) {
	stream := q.StreamName(t.TaskType())

	data, err := t.TaskValue()
	if err != nil {
		return "", fmt.Errorf("failed to serialize %s: %w", t.TaskType(), err)
	}

	id, err := q.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			fieldType: t.TaskType(),
			fieldData: string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", stream, err)
	}

	log.Debugf("📮 Published %s %s", t.TaskType(), id)
	return id, nil
}

// GetTask reads one new message for consumer. A zero block waits forever,
// NoBlock returns at once. It returns nil when nothing arrived.
// The message stays pending until it is acknowledged.
func (q *RedisQueue) GetTask(ctx context.Context, group, consumer, stream string, block time.Duration) (*redis.XMessage, error) {
	result, err := q.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from %s: %w", stream, err)
	}

	if len(result) == 0 || len(result[0].Messages) == 0 {
		return nil, nil
	}
	return &result[0].Messages[0], nil
}

// AckTask marks a message handled and drops it from the stream, so the stream
// only ever holds links nobody has retried yet.
func (q *RedisQueue) AckTask(ctx context.Context, stream, group, msgID string) error {
	_, err := q.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, stream, group, msgID)
		pipe.XDel(ctx, stream, msgID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ack %s on %s: %w", msgID, stream, err)
	}
	return nil
}

// AutoClaim hands consumer every message that was read by an earlier consumer
// but never acknowledged, page by page.
func (q *RedisQueue) AutoClaim(ctx context.Context, group, consumer, stream string, minIdleTime time.Duration) ([]redis.XMessage, error) {
	var claimed []redis.XMessage

	start := "0-0"
	for {
		msgs, next, err := q.redisClient.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    group,
			Consumer: consumer,
			MinIdle:  minIdleTime,
			Start:    start,
			Count:    claimBatch,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return claimed, fmt.Errorf("failed to claim from %s: %w", stream, err)
		}

		claimed = append(claimed, msgs...)
		if len(msgs) == 0 || next == "" || next == "0-0" {
			return claimed, nil
		}
		start = next
	}
}

// Backlog counts the messages still in stream, pending ones included
func (q *RedisQueue) Backlog(ctx context.Context, stream string) (int64, error) {
	n, err := q.redisClient.XLen(ctx, stream).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", stream, err)
	}
	return n, nil
}

// EnsureStreamsExist creates the stream and consumer group of every task type
func (q *RedisQueue) EnsureStreamsExist(ctx context.Context) error {
	for _, taskType := range task.TaskTypes {
		stream := q.StreamName(taskType)
		if err := q.CreateGroup(ctx, stream, q.groupName); err != nil {
			return fmt.Errorf("failed to create consumer group for %s: %w", taskType, err)
		}
		log.Debugf("Stream %s ready for group %s", stream, q.groupName)
	}

	return nil
}

// Decode unmarshals the task carried by msg
func Decode[T any](msg *redis.XMessage) (*T, error) {
	data, ok := msg.Values[fieldData].(string)
	if !ok {
		return nil, fmt.Errorf("message %s has no task data", msg.ID)
	}

	t, err := task.UnmarshalTask[T]([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode message %s: %w", msg.ID, err)
	}
	return t, nil
}
