package chat

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/voice-agent/backend/internal/model/chat"
)

// DefaultKeyPrefix namespaces session lists in Redis.
const DefaultKeyPrefix = "session:"

// RedisStore keeps each session as a Redis list of JSON encoded turns.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. An empty prefix uses DefaultKeyPrefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Load implements Store. Sessions already live in Redis, so this only checks connectivity.
func (s *RedisStore) Load(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, sessionID string, turn chat.Turn) error {
	data, err := sonic.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}
	if err := s.client.RPush(ctx, s.key(sessionID), data).Err(); err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	values, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return []chat.Turn{}, fmt.Errorf("redis lrange: %w", err)
	}

	turns := make([]chat.Turn, 0, len(values))
	for _, value := range values {
		var turn chat.Turn
		if err := sonic.UnmarshalString(value, &turn); err != nil {
			return []chat.Turn{}, fmt.Errorf("decode turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	removed, err := s.client.Del(ctx, s.key(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if removed == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}
