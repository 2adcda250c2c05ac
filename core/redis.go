package core

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const threatCounterPrefix = "security:detections:"

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// RedisCounter is the minimal subset of redis commands the threat metrics use.
type RedisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// ThreatMetrics keeps running per-category detection totals in Redis so the
// counters survive restarts and are shared across replicas.
type ThreatMetrics struct {
	redis RedisCounter
}

func NewThreatMetrics(client RedisCounter) *ThreatMetrics {
	return &ThreatMetrics{redis: client}
}

// RecordDetection increments the counter for one verdict. Failures are logged
// and swallowed: losing a counter tick must not affect request handling.
func (m *ThreatMetrics) RecordDetection(verdict Verdict) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.redis.Incr(ctx, threatCounterPrefix+string(verdict)).Err(); err != nil {
		log.Printf("failed to record %s detection: %v", verdict, err)
	}
}

// Totals returns the detection count for every non-clean category.
func (m *ThreatMetrics) Totals(ctx context.Context) (map[Verdict]int64, error) {
	categories := []Verdict{
		VerdictSQLInjection,
		VerdictXSS,
		VerdictPathTraversal,
		VerdictCommandInjection,
	}
	out := make(map[Verdict]int64, len(categories))
	for _, v := range categories {
		n, err := m.redis.Get(ctx, threatCounterPrefix+string(v)).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				out[v] = 0
				continue
			}
			return nil, err
		}
		out[v] = n
	}
	return out, nil
}
