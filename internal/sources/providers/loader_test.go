package providers

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProvidersFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "providers.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestLoaderLoad(t *testing.T) {
	t.Setenv("TEST_GOOGLE_SECRET", "s3cret")

	path := writeProvidersFile(t, `---
providers:
  - id: google
    type: google
    google:
      clientId: google-client
      clientSecret: ${TEST_GOOGLE_SECRET}
  - id: work
    type: outlook
    enabled: false
    outlook:
      clientId: outlook-client
      tenant: organizations
  - id: apple
    type: caldav
    caldav:
      serverUrl: https://dav.example.com/
      username: me
      password: pw
      homeSet: /calendars/me/
`)

	config, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(config.Providers) != 3 {
		t.Fatalf("got %d providers, want 3", len(config.Providers))
	}

	g := config.Providers[0]
	if g.Google == nil || g.Google.ClientSecret != "s3cret" {
		t.Errorf("env reference not expanded: %+v", g.Google)
	}
	if !g.EnabledDefault() {
		t.Error("entries without an enabled key should default to enabled")
	}

	if config.Providers[1].EnabledDefault() {
		t.Error("enabled: false was not honored")
	}
	if got := config.Providers[1].Outlook.Tenant; got != "organizations" {
		t.Errorf("tenant = %q, want organizations", got)
	}

	if config.Providers[2].CalDAV.ServerURL != "https://dav.example.com/" {
		t.Errorf("caldav block = %+v", config.Providers[2].CalDAV)
	}
}

func TestLoaderLoadMissingFile(t *testing.T) {
	if _, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml")).Load(); err == nil {
		t.Error("Load on a missing file should fail")
	}
}

func TestLoaderLoadInvalidYAML(t *testing.T) {
	path := writeProvidersFile(t, "providers: [unclosed")
	if _, err := NewLoader(path).Load(); err == nil {
		t.Error("Load on malformed yaml should fail")
	}
}

func TestLoaderValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", "providers: []\n"},
		{"missing id", "providers:\n  - type: google\n"},
		{"duplicate id", "providers:\n  - id: a\n    type: google\n  - id: a\n    type: outlook\n"},
		{"unknown type", "providers:\n  - id: a\n    type: exchange\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeProvidersFile(t, tt.content)
			if _, err := NewLoader(path).Load(); err == nil {
				t.Errorf("Load should reject %s", tt.name)
			}
		})
	}
}
