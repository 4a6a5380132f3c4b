package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDispatchLog implements collection.DispatchLogStore on a Redis sorted
// set scored by dispatch time. The log feeds the rolling per-minute rate
// limiter, so it survives restarts and can be shared when more than one
// instance dials from the same provider account.
type RedisDispatchLog struct {
	client *redis.Client
	key    string
	// retention bounds how far back stamps are kept before pruning
	retention time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisDispatchLog creates a Redis-backed dispatch log
func NewRedisDispatchLog(cfg RedisConfig) (*RedisDispatchLog, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisDispatchLogWithClient(client, ""), nil
}

// NewRedisDispatchLogWithClient creates a dispatch log with an existing Redis
// client. Useful for testing or when sharing a client across components.
func NewRedisDispatchLogWithClient(client *redis.Client, key string) *RedisDispatchLog {
	if key == "" {
		key = "caller:dispatch:log"
	}
	return &RedisDispatchLog{
		client:    client,
		key:       key,
		retention: 5 * time.Minute,
	}
}

// Append records a dispatch timestamp and prunes stamps past retention
func (s *RedisDispatchLog) Append(ctx context.Context, t time.Time) error {
	nanos := t.UnixNano()
	member := strconv.FormatInt(nanos, 10)

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.key, redis.Z{Score: float64(nanos), Member: member})
	cutoff := t.Add(-s.retention).UnixNano()
	pipe.ZRemRangeByScore(ctx, s.key, "-inf", strconv.FormatInt(cutoff, 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append dispatch timestamp: %w", err)
	}
	return nil
}

// Since returns the timestamps at or after cutoff, oldest first
func (s *RedisDispatchLog) Since(ctx context.Context, cutoff time.Time) ([]time.Time, error) {
	members, err := s.client.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff.UnixNano(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dispatch log: %w", err)
	}

	stamps := make([]time.Time, 0, len(members))
	for _, m := range members {
		nanos, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		stamps = append(stamps, time.Unix(0, nanos))
	}
	return stamps, nil
}

// Close closes the Redis client
func (s *RedisDispatchLog) Close() error {
	return s.client.Close()
}
