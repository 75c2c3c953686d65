package sink

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTagStore keeps one redis set per wallet. SADD makes EnsureTag
// idempotent: applying the same tag twice yields one member.
type RedisTagStore struct {
	client *redis.Client
	prefix string
}

func NewRedisTagStore(client *redis.Client, prefix string) *RedisTagStore {
	return &RedisTagStore{client: client, prefix: prefix}
}

func (s *RedisTagStore) key(wallet string) string {
	return fmt.Sprintf("%s:%s", s.prefix, wallet)
}

func (s *RedisTagStore) EnsureTag(ctx context.Context, wallet, tag string) error {
	if err := s.client.SAdd(ctx, s.key(wallet), tag).Err(); err != nil {
		return fmt.Errorf("sadd tag %s for %s: %w", tag, wallet, err)
	}
	return nil
}

// Tags returns the wallet's tag set, for the query surface and tests.
func (s *RedisTagStore) Tags(ctx context.Context, wallet string) ([]string, error) {
	return s.client.SMembers(ctx, s.key(wallet)).Result()
}

// RedisFetchQueue pushes addresses onto a redis list consumed by the
// external fetcher.
type RedisFetchQueue struct {
	client *redis.Client
	key    string
}

func NewRedisFetchQueue(client *redis.Client, key string) *RedisFetchQueue {
	return &RedisFetchQueue{client: client, key: key}
}

func (q *RedisFetchQueue) Enqueue(ctx context.Context, wallet string) error {
	if err := q.client.RPush(ctx, q.key, wallet).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", wallet, err)
	}
	return nil
}
