package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient initializes and returns a Redis client.
func NewRedisClient(redisURL string) *redis.Client {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Invalid Redis URL: %v", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	log.Println("Connected to Redis")
	return client
}

// IdempotencyStore maps submission idempotency keys to sale ids with a TTL.
// It is a fast path in front of the unique index on the sales table: a miss
// here still hits the database before a new sale is created.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

func (s *IdempotencyStore) key(idempotencyKey string) string {
	return fmt.Sprintf("sales:idem:%s", idempotencyKey)
}

// Lookup returns the sale id previously stored for the key, or "" on a miss.
// Redis errors degrade to a miss; the database remains authoritative.
func (s *IdempotencyStore) Lookup(ctx context.Context, idempotencyKey string) string {
	val, err := s.client.Get(ctx, s.key(idempotencyKey)).Result()
	if err != nil {
		return ""
	}
	return val
}

// Remember stores the key -> sale id mapping. Failures are ignored.
func (s *IdempotencyStore) Remember(ctx context.Context, idempotencyKey, saleID string) {
	_ = s.client.Set(ctx, s.key(idempotencyKey), saleID, s.ttl).Err()
}
