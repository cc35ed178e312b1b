package storage

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/governance"
)

// redisPageSize is the XRANGE batch size used while iterating.
const redisPageSize = 500

// RedisConfig contains configuration for the Redis stream sink.
type RedisConfig struct {
	Address  string
	Password string
	DB       int

	// Stream is the stream key. Default: "arbiter:audit"
	Stream string

	// ConnectRetries bounds connection attempts at startup.
	// Default: 5
	ConnectRetries uint64
}

// RedisSink stores audit entries in a Redis stream. Stream ids are derived
// from sequence numbers, so Redis itself rejects out-of-order appends.
type RedisSink struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

// OpenRedis connects to Redis, retrying with backoff until it answers.
func OpenRedis(ctx context.Context, cfg *RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	s := NewRedisSink(client, cfg.Stream)

	retries := cfg.ConnectRetries
	if retries == 0 {
		retries = 5
	}
	b := retry.WithMaxRetries(retries, retry.NewFibonacci(250*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			s.logger.Warn("redis not reachable, will retry", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, audit.NewStorageError("redis", "connect", err)
	}
	return s, nil
}

// NewRedisSink wraps an existing client.
func NewRedisSink(client *redis.Client, stream string) *RedisSink {
	if stream == "" {
		stream = "arbiter:audit"
	}
	return &RedisSink{
		client: client,
		stream: stream,
		logger: slog.Default().With("component", "audit.storage.redis"),
	}
}

func streamID(sequence uint64) string {
	return fmt.Sprintf("%d-0", sequence)
}

// Append adds entry to the stream.
func (s *RedisSink) Append(ctx context.Context, entry *governance.AuditEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return audit.NewStorageError("redis", "append", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		ID:     streamID(entry.Sequence),
		Values: map[string]interface{}{"entry": string(data)},
	}).Err()
	if err != nil {
		return audit.NewStorageError("redis", "append", err)
	}
	return nil
}

// Entries pages through the stream up to the last id present when
// iteration starts.
func (s *RedisSink) Entries(ctx context.Context) iter.Seq2[*governance.AuditEntry, error] {
	return func(yield func(*governance.AuditEntry, error) bool) {
		tail, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", 1).Result()
		if err != nil {
			yield(nil, audit.NewStorageError("redis", "entries", err))
			return
		}
		if len(tail) == 0 {
			return
		}
		end := tail[0].ID

		start := "-"
		for {
			msgs, err := s.client.XRangeN(ctx, s.stream, start, end, redisPageSize).Result()
			if err != nil {
				yield(nil, audit.NewStorageError("redis", "entries", err))
				return
			}
			for _, msg := range msgs {
				entry, err := decodeMessage(msg)
				if err != nil {
					yield(nil, audit.NewStorageError("redis", "entries", err))
					return
				}
				if !yield(entry, nil) {
					return
				}
			}
			if len(msgs) < redisPageSize || msgs[len(msgs)-1].ID == end {
				return
			}
			start = "(" + msgs[len(msgs)-1].ID
		}
	}
}

// Last returns the newest entry.
func (s *RedisSink) Last(ctx context.Context) (*governance.AuditEntry, error) {
	msgs, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", 1).Result()
	if err != nil {
		return nil, audit.NewStorageError("redis", "last", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	entry, err := decodeMessage(msgs[0])
	if err != nil {
		return nil, audit.NewStorageError("redis", "last", err)
	}
	return entry, nil
}

// Count returns the stream length.
func (s *RedisSink) Count(ctx context.Context) (int, error) {
	n, err := s.client.XLen(ctx, s.stream).Result()
	if err != nil {
		return 0, audit.NewStorageError("redis", "count", err)
	}
	return int(n), nil
}

// Close closes the client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

func decodeMessage(msg redis.XMessage) (*governance.AuditEntry, error) {
	raw, ok := msg.Values["entry"].(string)
	if !ok {
		return nil, fmt.Errorf("stream message %s has no entry field", msg.ID)
	}
	return decodeEntry([]byte(raw))
}
