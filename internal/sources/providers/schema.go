package providers

// Entry is one provider declaration in providers.yaml. Exactly one of the
// type-specific blocks must match Type.
type Entry struct {
	ID      string `yaml:"id"`
	Type    string `yaml:"type"`
	Enabled *bool  `yaml:"enabled"`

	Google  *OAuthClient  `yaml:"google"`
	Outlook *OutlookEntry `yaml:"outlook"`
	CalDAV  *CalDAVEntry  `yaml:"caldav"`
}

// OAuthClient is a deployment's OAuth client registration.
type OAuthClient struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
}

// OutlookEntry extends the OAuth client with the Azure AD tenant.
type OutlookEntry struct {
	OAuthClient `yaml:",inline"`
	Tenant      string `yaml:"tenant"`
}

// CalDAVEntry locates a CalDAV store.
type CalDAVEntry struct {
	ServerURL string `yaml:"serverUrl"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	HomeSet   string `yaml:"homeSet"`
}

// Config is the root structure of providers.yaml.
type Config struct {
	Providers []Entry `yaml:"providers"`
}

// EnabledDefault reports whether the entry starts enabled; entries are
// enabled unless the file says otherwise.
func (e Entry) EnabledDefault() bool {
	return e.Enabled == nil || *e.Enabled
}
