package providers

import (
	"fmt"

	"github.com/upnext/upnextd/internal/credstore"
	"github.com/upnext/upnextd/internal/logger"
	"github.com/upnext/upnextd/internal/provider"
	"github.com/upnext/upnextd/internal/provider/caldav"
	"github.com/upnext/upnextd/internal/provider/google"
	"github.com/upnext/upnextd/internal/provider/outlook"
)

// Mapper builds concrete providers from the declaration file.
type Mapper struct {
	redirectBase string
	store        credstore.Store
	log          logger.Logger
}

// NewMapper creates a provider mapper. redirectBase is the externally
// reachable base URL of this daemon; OAuth redirect URLs derive from it.
func NewMapper(redirectBase string, store credstore.Store, log logger.Logger) *Mapper {
	return &Mapper{
		redirectBase: redirectBase,
		store:        store,
		log:          log,
	}
}

// Map instantiates every declared provider, preserving file order. The
// returned enabled map carries the file's initial enabled flags.
func (m *Mapper) Map(config Config) ([]provider.Provider, map[string]bool, error) {
	built := make([]provider.Provider, 0, len(config.Providers))
	enabled := make(map[string]bool, len(config.Providers))

	for _, entry := range config.Providers {
		p, err := m.build(entry)
		if err != nil {
			return nil, nil, fmt.Errorf("provider %q: %w", entry.ID, err)
		}
		built = append(built, p)
		enabled[entry.ID] = entry.EnabledDefault()
	}
	return built, enabled, nil
}

func (m *Mapper) build(entry Entry) (provider.Provider, error) {
	redirect := m.redirectBase + "/oauth/callback/" + entry.ID

	switch entry.Type {
	case "google":
		cfg := google.Config{RedirectURL: redirect}
		if entry.Google != nil {
			cfg.ClientID = entry.Google.ClientID
			cfg.ClientSecret = entry.Google.ClientSecret
		}
		return google.New(entry.ID, cfg, m.store, m.log), nil

	case "outlook":
		cfg := outlook.Config{RedirectURL: redirect}
		if entry.Outlook != nil {
			cfg.ClientID = entry.Outlook.ClientID
			cfg.ClientSecret = entry.Outlook.ClientSecret
			cfg.Tenant = entry.Outlook.Tenant
		}
		return outlook.New(entry.ID, cfg, m.store, m.log), nil

	case "caldav":
		if entry.CalDAV == nil {
			return nil, fmt.Errorf("caldav entry has no caldav block")
		}
		return caldav.New(entry.ID, caldav.Config{
			ServerURL: entry.CalDAV.ServerURL,
			Username:  entry.CalDAV.Username,
			Password:  entry.CalDAV.Password,
			HomeSet:   entry.CalDAV.HomeSet,
		}, m.log)

	default:
		return nil, fmt.Errorf("unknown type %q", entry.Type)
	}
}
