// Package sink publishes benchmark results to external stores as they are
// produced.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Yoosu-L/llmstreambench/internal/utils"

	"github.com/redis/go-redis/v9"
)

// Envelope kinds pushed to the list.
const (
	KindAggregate  = "aggregate"
	KindComparison = "comparison"
)

// Envelope wraps every pushed record so consumers can tell them apart.
type Envelope struct {
	Kind string          `json:"kind"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// lister is the subset of the redis client the sink needs.
type lister interface {
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
}

// RedisSink appends results as JSON to a Redis list.
type RedisSink struct {
	client lister
	closer func() error
	key    string
	now    func() time.Time
}

var _ utils.ResultSink = (*RedisSink)(nil)

// NewRedis connects to addr and verifies the connection with PING.
func NewRedis(ctx context.Context, addr, password string, db int, key string) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisSink{client: rdb, closer: rdb.Close, key: key, now: time.Now}, nil
}

func (s *RedisSink) PublishAggregate(ctx context.Context, agg utils.AggregateResult) error {
	return s.push(ctx, KindAggregate, agg)
}

func (s *RedisSink) PublishComparison(ctx context.Context, report utils.ComparisonReport) error {
	return s.push(ctx, KindComparison, report)
}

func (s *RedisSink) push(ctx context.Context, kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	payload, err := json.Marshal(Envelope{Kind: kind, At: s.now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := s.client.RPush(ctx, s.key, payload).Err(); err != nil {
		return fmt.Errorf("redis rpush error: %w", err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
