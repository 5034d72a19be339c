package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vinakademin/vinakademin-backend/models"
)

// WebhookClaimTTL bounds how long an in-flight webhook event blocks a retry
// of the same event.
const WebhookClaimTTL = 10 * time.Minute

// IdempotencyStore claims event ids so that concurrent deliveries of the same
// webhook are processed once.
type IdempotencyStore interface {
	// Claim returns true if key was free and is now held for ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisIdempotencyStore shares claims between instances using SETNX.
type RedisIdempotencyStore struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, keyPrefix: "webhook:idempotency:"}
}

func (s *RedisIdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.keyPrefix+key).Err()
}

// MemoryIdempotencyStore is the single-instance fallback when Redis is not configured.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{entries: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryIdempotencyStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.entries[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.entries[key] = now.Add(ttl)

	// drop expired entries so the map does not grow without bound
	for k, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, k)
		}
	}
	return true, nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Idempotency is set at startup; it defaults to the in-memory store.
var Idempotency IdempotencyStore = NewMemoryIdempotencyStore()

// WebhookGuard wraps one webhook delivery: Begin claims it, Finish records it
// in the ledger, Abort releases the claim so the provider's retry can run.
type WebhookGuard struct {
	db       *gorm.DB
	store    IdempotencyStore
	provider string
	eventID  string
	key      string
}

func NewWebhookGuard(db *gorm.DB, store IdempotencyStore, provider, eventID string) *WebhookGuard {
	return &WebhookGuard{
		db:       db,
		store:    store,
		provider: provider,
		eventID:  eventID,
		key:      provider + ":" + eventID,
	}
}

// Begin returns ErrDuplicateEvent when the event is in flight or already recorded.
func (g *WebhookGuard) Begin(ctx context.Context) error {
	claimed, err := g.store.Claim(ctx, g.key, WebhookClaimTTL)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrDuplicateEvent
	}

	var n int64
	err = g.db.Model(&models.WebhookEvent{}).
		Where("provider = ? AND event_id = ?", g.provider, g.eventID).
		Count(&n).Error
	if err != nil {
		_ = g.store.Release(ctx, g.key)
		return err
	}
	if n > 0 {
		return ErrDuplicateEvent
	}
	return nil
}

func (g *WebhookGuard) Finish(eventType string) error {
	row := models.WebhookEvent{
		Provider:    g.provider,
		EventID:     g.eventID,
		Type:        eventType,
		ProcessedAt: time.Now().UTC(),
	}
	return g.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (g *WebhookGuard) Abort(ctx context.Context) {
	_ = g.store.Release(ctx, g.key)
}
