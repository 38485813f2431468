// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mstrand/partyhub/internal/lobby"
)

// DefaultQueueKey is the Redis list that receives accepted lobby events for
// external overlay and dashboard tooling.
var DefaultQueueKey = "partyhub:events"

// feedMaxLen caps the event list so an unattended feed cannot grow without
// bound.
const feedMaxLen = 10000

// ConnectRedis builds a client from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_PASSWORD (optional)
//   - REDIS_DB (optional, default 0)
func ConnectRedis() (*redis.Client, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

// RedisSink implements lobby.EventSink by pushing event records onto a
// capped Redis list. Publishing is fire-and-forget: a slow or absent Redis
// never blocks lobby dispatch.
type RedisSink struct {
	client *redis.Client
	queue  string
	logger *logrus.Logger
}

// NewRedisSink wraps client as an event sink. The queue key comes from
// REDIS_EVENT_QUEUE_KEY when set.
func NewRedisSink(client *redis.Client, logger *logrus.Logger) *RedisSink {
	return &RedisSink{
		client: client,
		queue:  getEnv("REDIS_EVENT_QUEUE_KEY", DefaultQueueKey),
		logger: logger,
	}
}

// Publish implements lobby.EventSink.
func (s *RedisSink) Publish(rec lobby.EventRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warnf("failed to marshal event record: %v", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		pipe := s.client.Pipeline()
		pipe.LPush(ctx, s.queue, data)
		pipe.LTrim(ctx, s.queue, 0, feedMaxLen-1)
		if _, err := pipe.Exec(ctx); err != nil {
			s.logger.Warnf("failed to publish event to redis: %v", err)
		}
	}()
}

// getEnv returns the environment variable's value or a fallback.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// getEnvInt parses the environment variable as int, or returns a fallback.
func getEnvInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}
