package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rewired-gh/pumpwatch/internal/models"
)

const redisTimeout = 5 * time.Second

// RedisLog appends alerts to a Redis stream.
type RedisLog struct {
	client *redis.Client
	stream string
}

// NewRedisLog checks connectivity and returns a log writing to stream.
func NewRedisLog(client *redis.Client, stream string) (*RedisLog, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisLog{client: client, stream: stream}, nil
}

func alertValues(alert *models.Alert) map[string]interface{} {
	return map[string]interface{}{
		"id":          alert.ID,
		"detected_at": alert.DetectedAt.UnixNano(),
		"symbol":      alert.Symbol,
		"score":       alert.Score,
		"reasons":     alert.JoinedReasons(),
	}
}

func alertFromValues(values map[string]interface{}) (models.Alert, error) {
	str := func(key string) string {
		s, _ := values[key].(string)
		return s
	}

	nanos, err := strconv.ParseInt(str("detected_at"), 10, 64)
	if err != nil {
		return models.Alert{}, fmt.Errorf("invalid detected_at: %w", err)
	}
	score, err := strconv.Atoi(str("score"))
	if err != nil {
		return models.Alert{}, fmt.Errorf("invalid score: %w", err)
	}
	return models.Alert{
		ID:         str("id"),
		DetectedAt: time.Unix(0, nanos).UTC(),
		Symbol:     str("symbol"),
		Score:      score,
		Reasons:    models.SplitReasons(str("reasons")),
	}, nil
}

func (l *RedisLog) AddAlert(alert *models.Alert) error {
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("invalid alert: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		Values: alertValues(alert),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append alert: %w", err)
	}
	return nil
}

// GetRecentAlerts returns up to k alerts, newest first.
func (l *RedisLog) GetRecentAlerts(k int) ([]models.Alert, error) {
	if k <= 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	msgs, err := l.client.XRevRangeN(ctx, l.stream, "+", "-", int64(k)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read alerts: %w", err)
	}
	alerts := make([]models.Alert, 0, len(msgs))
	for _, msg := range msgs {
		a, err := alertFromValues(msg.Values)
		if err != nil {
			return nil, fmt.Errorf("malformed stream entry %s: %w", msg.ID, err)
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

func (l *RedisLog) Close() error {
	return l.client.Close()
}
