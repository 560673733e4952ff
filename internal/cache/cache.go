package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"question-rag/internal/config"
	"question-rag/internal/models"
)

// NewRedisClient connects to Redis and pings it once.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redisv9.Client, error) {
	client := redisv9.NewClient(&redisv9.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis failed: %w", err)
	}
	return client, nil
}

const clearBatchSize = 200

// QuestionCache keeps authoritative records in Redis so repeat uploads of
// the same content skip the database round trip.
type QuestionCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewQuestionCache(client *redisv9.Client, ttl time.Duration) *QuestionCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &QuestionCache{client: client, ttl: ttl}
}

func (c *QuestionCache) Get(ctx context.Context, hash string) (*models.HistoryEntry, bool, error) {
	raw, err := c.client.Get(ctx, questionsKey(hash)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get questions failed: %w", err)
	}

	var entry models.HistoryEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached questions failed: %w", err)
	}
	if entry.Questions == "" {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (c *QuestionCache) Set(ctx context.Context, entry *models.HistoryEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal questions cache failed: %w", err)
	}
	if err := c.client.Set(ctx, questionsKey(entry.ContentHash), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set questions failed: %w", err)
	}
	return nil
}

func (c *QuestionCache) Delete(ctx context.Context, hash string) error {
	if err := c.client.Del(ctx, questionsKey(hash)).Err(); err != nil {
		return fmt.Errorf("redis delete questions failed: %w", err)
	}
	return nil
}

// Clear removes every cached question set and returns how many were
// dropped.
func (c *QuestionCache) Clear(ctx context.Context) (int, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, questionsKey("*"), 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan questions failed: %w", err)
	}
	for start := 0; start < len(keys); start += clearBatchSize {
		end := min(start+clearBatchSize, len(keys))
		if err := c.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return start, fmt.Errorf("redis clear questions failed: %w", err)
		}
	}
	return len(keys), nil
}

func questionsKey(hash string) string {
	return "questions:" + hash
}
