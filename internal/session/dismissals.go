// Package session holds client-scoped, non-authoritative state. The dismissal
// set only suppresses re-prompting within a session; the invitation itself
// stays pending server-side and keeps appearing in authoritative lists.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DismissalStore records which invitation ids a session has already been
// shown and closed without a decision. Implementations must be idempotent:
// dismissing twice or reopening an absent id are no-ops.
type DismissalStore interface {
	Dismiss(ctx context.Context, sessionKey, requestID string) error
	Reopen(ctx context.Context, sessionKey, requestID string) error
	IsDismissed(ctx context.Context, sessionKey, requestID string) (bool, error)
	Dismissed(ctx context.Context, sessionKey string) (map[string]struct{}, error)
}

// RedisDismissalStore keeps one Redis set per session key with a TTL so the
// set expires with the session instead of accumulating forever.
type RedisDismissalStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDismissalStore constructs the store.
func NewRedisDismissalStore(client *redis.Client, ttl time.Duration) *RedisDismissalStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisDismissalStore{client: client, ttl: ttl}
}

func (s *RedisDismissalStore) key(sessionKey string) string {
	return fmt.Sprintf("dismissals:%s", sessionKey)
}

// Dismiss adds the request id to the session's dismissal set.
func (s *RedisDismissalStore) Dismiss(ctx context.Context, sessionKey, requestID string) error {
	key := s.key(sessionKey)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, requestID)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dismiss invitation: %w", err)
	}
	return nil
}

// Reopen removes the request id, letting a still-pending invitation resurface.
func (s *RedisDismissalStore) Reopen(ctx context.Context, sessionKey, requestID string) error {
	if err := s.client.SRem(ctx, s.key(sessionKey), requestID).Err(); err != nil {
		return fmt.Errorf("reopen invitation: %w", err)
	}
	return nil
}

// IsDismissed reports membership for a single request id.
func (s *RedisDismissalStore) IsDismissed(ctx context.Context, sessionKey, requestID string) (bool, error) {
	dismissed, err := s.client.SIsMember(ctx, s.key(sessionKey), requestID).Result()
	if err != nil {
		return false, fmt.Errorf("check dismissal: %w", err)
	}
	return dismissed, nil
}

// Dismissed returns the full dismissal set for the session.
func (s *RedisDismissalStore) Dismissed(ctx context.Context, sessionKey string) (map[string]struct{}, error) {
	members, err := s.client.SMembers(ctx, s.key(sessionKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("load dismissals: %w", err)
	}
	set := make(map[string]struct{}, len(members))
	for _, member := range members {
		set[member] = struct{}{}
	}
	return set, nil
}
