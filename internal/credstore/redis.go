package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// RedisStore persists tokens and settings in Redis. Values are stored without
// a TTL: token lifetime is governed by the OAuth expiry inside the payload,
// not by store eviction, and settings live until changed.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SaveToken(ctx context.Context, providerID string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := s.client.Set(ctx, tokenKey(providerID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadToken(ctx context.Context, providerID string) (*oauth2.Token, error) {
	data, err := s.client.Get(ctx, tokenKey(providerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &tok, nil
}

func (s *RedisStore) DeleteToken(ctx context.Context, providerID string) error {
	if err := s.client.Del(ctx, tokenKey(providerID)).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveSettings(ctx context.Context, settings Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := s.client.Set(ctx, keySettings, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadSettings(ctx context.Context) (Settings, error) {
	data, err := s.client.Get(ctx, keySettings).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Settings{}, ErrNotFound
		}
		return Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return settings, nil
}
