package stubrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the default list key used to store the journal in Redis.
const DefaultRedisKey = "contractkit:journal"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// Key is the Redis list key (defaults to "contractkit:journal")
	Key string

	// MaxEntries caps the list length (defaults to DefaultJournalMaxEntries)
	MaxEntries int
}

// RedisJournal implements Journal on a Redis list.
// This lets several stub runner instances share one journal.
type RedisJournal struct {
	client     *redis.Client
	key        string
	maxEntries int
}

// NewRedisJournal connects to Redis and returns a journal.
func NewRedisJournal(cfg RedisConfig) (*RedisJournal, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	j := newRedisJournal(client, cfg.Key, cfg.MaxEntries)
	slog.Info("redis journal connected", "key", j.key, "max_entries", j.maxEntries)
	return j, nil
}

func newRedisJournal(client *redis.Client, key string, maxEntries int) *RedisJournal {
	if key == "" {
		key = DefaultRedisKey
	}
	if maxEntries <= 0 {
		maxEntries = DefaultJournalMaxEntries
	}
	return &RedisJournal{client: client, key: key, maxEntries: maxEntries}
}

// Append pushes an entry and trims the list to capacity.
func (j *RedisJournal) Append(ctx context.Context, entry JournalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	pipe := j.client.TxPipeline()
	pipe.RPush(ctx, j.key, data)
	pipe.LTrim(ctx, j.key, int64(-j.maxEntries), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append journal entry to redis: %w", err)
	}
	return nil
}

// Entries reads the whole list.
func (j *RedisJournal) Entries(ctx context.Context) ([]JournalEntry, error) {
	raw, err := j.client.LRange(ctx, j.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read journal from redis: %w", err)
	}

	entries := make([]JournalEntry, 0, len(raw))
	for _, item := range raw {
		var entry JournalEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to parse journal entry from redis: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Reset deletes the list.
func (j *RedisJournal) Reset(ctx context.Context) error {
	if err := j.client.Del(ctx, j.key).Err(); err != nil {
		return fmt.Errorf("failed to reset journal in redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (j *RedisJournal) Close() error {
	if j.client != nil {
		return j.client.Close()
	}
	return nil
}
