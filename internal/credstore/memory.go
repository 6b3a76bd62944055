package credstore

import (
	"context"
	"sync"

	"golang.org/x/oauth2"
)

// MemoryStore is a process-local Store. It backs the engine when no Redis is
// configured (tokens then survive only as long as the process) and all tests.
type MemoryStore struct {
	mu       sync.Mutex
	tokens   map[string]oauth2.Token
	settings *Settings
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]oauth2.Token)}
}

func (s *MemoryStore) SaveToken(_ context.Context, providerID string, tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[providerID] = *tok
	return nil
}

func (s *MemoryStore) LoadToken(_ context.Context, providerID string) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[providerID]
	if !ok {
		return nil, ErrNotFound
	}
	out := tok
	return &out, nil
}

func (s *MemoryStore) DeleteToken(_ context.Context, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, providerID)
	return nil
}

func (s *MemoryStore) SaveSettings(_ context.Context, settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := settings
	if settings.Enabled != nil {
		copied.Enabled = make(map[string]bool, len(settings.Enabled))
		for k, v := range settings.Enabled {
			copied.Enabled[k] = v
		}
	}
	s.settings = &copied
	return nil
}

func (s *MemoryStore) LoadSettings(_ context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings == nil {
		return Settings{}, ErrNotFound
	}
	return *s.settings, nil
}
