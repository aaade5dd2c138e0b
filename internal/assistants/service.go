// Package assistants exposes the provider's assistant catalog through a
// read-through cache, so the management UI can list assistants without
// hitting the provider API on every page load.
package assistants

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ai-call-gateway/internal/telephony"
	"ai-call-gateway/pkg/logger"
)

const (
	defaultCacheTTL = time.Minute

	listCacheKey       = "assistants:list"
	assistantKeyPrefix = "assistants:id:"
)

// Service is a read-through proxy over the provider's assistant catalog.
// The provider remains the source of truth; the cache only absorbs repeated
// reads. Cache failures degrade to a direct provider call.
type Service struct {
	provider telephony.CallProvider
	cache    Cache
	ttl      time.Duration
}

func NewService(provider telephony.CallProvider, cache Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Service{provider: provider, cache: cache, ttl: ttl}
}

// List returns all assistants configured at the provider.
func (s *Service) List(ctx context.Context) ([]telephony.Assistant, error) {
	var cached []telephony.Assistant
	if s.readCache(ctx, listCacheKey, &cached) {
		return cached, nil
	}

	items, err := s.provider.ListAssistants(ctx)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, listCacheKey, items)
	return items, nil
}

// Get returns a single assistant by provider id. Returns
// telephony.ErrAssistantNotFound when the provider does not know the id.
func (s *Service) Get(ctx context.Context, id string) (telephony.Assistant, error) {
	key := assistantKeyPrefix + id

	var cached telephony.Assistant
	if s.readCache(ctx, key, &cached) {
		return cached, nil
	}

	a, err := s.provider.GetAssistant(ctx, id)
	if err != nil {
		return telephony.Assistant{}, err
	}
	s.writeCache(ctx, key, a)
	return a, nil
}

func (s *Service) readCache(ctx context.Context, key string, out any) bool {
	if s.cache == nil {
		return false
	}
	b, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			logger.From(ctx).Warn("assistant cache read failed", "key", key, "err", err)
		}
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		logger.From(ctx).Warn("assistant cache entry corrupt, refetching", "key", key, "err", err)
		return false
	}
	return true
}

func (s *Service) writeCache(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
		logger.From(ctx).Warn("assistant cache write failed", "key", key, "err", err)
	}
}
