// Package draft keeps the unsaved document of each open editor in Redis so
// a session survives a restart of the service.
package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a page has no draft, or it expired.
var ErrNotFound = errors.New("draft not found")

// DefaultTTL applies when the store is created with a zero TTL.
const DefaultTTL = 7 * 24 * time.Hour

// Draft is an autosaved editor document. Document is the JSON node tree;
// BaseHash is the hash of the saved page the draft was started from.
type Draft struct {
	TenantID  string    `cbor:"tenant_id"`
	PageID    string    `cbor:"page_id"`
	Document  []byte    `cbor:"document"`
	Hash      string    `cbor:"hash"`
	BaseHash  string    `cbor:"base_hash"`
	UpdatedBy string    `cbor:"updated_by"`
	SavedAt   time.Time `cbor:"saved_at"`
}

// RedisStore stores drafts as CBOR values under draft:<tenant>:<page>.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: "draft:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(tenantID, pageID string) string {
	return s.prefix + tenantID + ":" + pageID
}

// Save writes d, replacing any earlier draft, and restarts its TTL.
func (s *RedisStore) Save(ctx context.Context, d Draft) error {
	if d.SavedAt.IsZero() {
		d.SavedAt = time.Now().UTC()
	}
	data, err := cbor.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if err := s.client.Set(ctx, s.key(d.TenantID, d.PageID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Load returns the page's draft or ErrNotFound.
func (s *RedisStore) Load(ctx context.Context, tenantID, pageID string) (Draft, error) {
	data, err := s.client.Get(ctx, s.key(tenantID, pageID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Draft{}, ErrNotFound
	}
	if err != nil {
		return Draft{}, fmt.Errorf("load draft: %w", err)
	}

	var d Draft
	if err := cbor.Unmarshal(data, &d); err != nil {
		return Draft{}, fmt.Errorf("decode draft: %w", err)
	}
	return d, nil
}

// Delete removes the page's draft. Deleting a missing draft is not an error.
func (s *RedisStore) Delete(ctx context.Context, tenantID, pageID string) error {
	if err := s.client.Del(ctx, s.key(tenantID, pageID)).Err(); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
