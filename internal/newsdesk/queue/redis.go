package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis connection for RedisQueue.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"NEWSDESK_REDIS_ADDR"`
	Password string `yaml:"password" env:"NEWSDESK_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"NEWSDESK_REDIS_DB"`
	Prefix   string `yaml:"prefix" env:"NEWSDESK_REDIS_PREFIX"`
}

// Both keys are passed to every script so a cluster sees them together.
var (
	addScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[2], ARGV[1]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
return 1
`)

	claimScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 1 then
  redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
  return 1
end
return 0
`)

	restoreScript = redis.NewScript(`
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
return 1
`)
)

// RedisQueue stores the schedule sets as Redis sorted sets scored by
// milliseconds since the epoch.
type RedisQueue struct {
	client     *redis.Client
	pendingKey string
	historyKey string
	logger     *slog.Logger
}

// DialRedis connects to Redis and verifies the connection.
func DialRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewRedisQueue creates a queue using keys "<prefix>:pending" and "<prefix>:history".
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "newsdesk:schedule"
	}
	return &RedisQueue{
		client:     client,
		pendingKey: prefix + ":pending",
		historyKey: prefix + ":history",
		logger:     slog.Default(),
	}
}

func (q *RedisQueue) keys() []string {
	return []string{q.pendingKey, q.historyKey}
}

func (q *RedisQueue) Add(ctx context.Context, articleID string, dueAt time.Time) error {
	added, err := addScript.Run(ctx, q.client, q.keys(), articleID, dueAt.UnixMilli()).Int()
	if err != nil {
		return fmt.Errorf("schedule %s: %w", articleID, err)
	}
	if added == 0 {
		return ErrAlreadyPublished
	}
	return nil
}

func (q *RedisQueue) Due(ctx context.Context, now time.Time) ([]Entry, error) {
	zs, err := q.client.ZRangeByScoreWithScores(ctx, q.pendingKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read due entries: %w", err)
	}
	return toEntries(zs), nil
}

func (q *RedisQueue) Claim(ctx context.Context, articleID string, publishedAt time.Time) (bool, error) {
	moved, err := claimScript.Run(ctx, q.client, q.keys(), articleID, publishedAt.UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", articleID, err)
	}
	return moved == 1, nil
}

func (q *RedisQueue) Restore(ctx context.Context, e Entry) error {
	if err := restoreScript.Run(ctx, q.client, q.keys(), e.ArticleID, e.At.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("restore %s: %w", e.ArticleID, err)
	}
	return nil
}

func (q *RedisQueue) Pending(ctx context.Context) ([]Entry, error) {
	zs, err := q.client.ZRangeWithScores(ctx, q.pendingKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read pending entries: %w", err)
	}
	return toEntries(zs), nil
}

func (q *RedisQueue) History(ctx context.Context, limit int) ([]Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	zs, err := q.client.ZRevRangeWithScores(ctx, q.historyKey, 0, stop).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read history entries: %w", err)
	}
	return toEntries(zs), nil
}

func toEntries(zs []redis.Z) []Entry {
	entries := make([]Entry, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			ArticleID: id,
			At:        time.UnixMilli(int64(z.Score)).UTC(),
		})
	}
	return entries
}
