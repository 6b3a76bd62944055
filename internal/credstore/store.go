package credstore

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// ErrNotFound is returned when no value exists for the requested key.
var ErrNotFound = errors.New("credstore: not found")

// Settings are the user-tunable engine knobs persisted across restarts.
type Settings struct {
	RefreshInterval time.Duration   `json:"refresh_interval"`
	CacheTTL        time.Duration   `json:"cache_ttl"`
	ShowAllDay      bool            `json:"show_all_day"`
	Enabled         map[string]bool `json:"enabled"`
}

// Store is the process-durable secret/settings store. Token values are opaque
// to everything but the token lifecycle manager; settings are simple
// key/value state. Implementations must be safe for concurrent use.
type Store interface {
	SaveToken(ctx context.Context, providerID string, tok *oauth2.Token) error
	// LoadToken returns ErrNotFound when the provider has no persisted set.
	LoadToken(ctx context.Context, providerID string) (*oauth2.Token, error)
	// DeleteToken is idempotent: deleting an absent token is not an error.
	DeleteToken(ctx context.Context, providerID string) error

	SaveSettings(ctx context.Context, s Settings) error
	// LoadSettings returns ErrNotFound when nothing was persisted yet.
	LoadSettings(ctx context.Context) (Settings, error)
}
