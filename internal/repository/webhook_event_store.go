package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// WebhookEventStore remembers which LINE webhook events were already handled.
type WebhookEventStore interface {
	// MarkSeen records eventID and reports whether this is its first delivery.
	MarkSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	// Forget clears the mark so a redelivery of eventID is handled again.
	Forget(ctx context.Context, eventID string) error
}

const webhookEventKeyPrefix = "line:webhook:event:"

type redisWebhookEventStore struct {
	client *redis.Client
}

// NewWebhookEventStore returns a Redis-backed store.
func NewWebhookEventStore(client *redis.Client) WebhookEventStore {
	return &redisWebhookEventStore{client: client}
}

func (s *redisWebhookEventStore) MarkSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, webhookEventKeyPrefix+eventID, 1, ttl).Result()
}

func (s *redisWebhookEventStore) Forget(ctx context.Context, eventID string) error {
	return s.client.Del(ctx, webhookEventKeyPrefix+eventID).Err()
}
