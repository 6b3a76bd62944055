package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/upnext/upnextd/internal/credstore"
	"github.com/upnext/upnextd/internal/domain"
	"github.com/upnext/upnextd/internal/logger"
	"github.com/upnext/upnextd/internal/provider"
)

func newTestManager(t *testing.T, tokenEndpoint string) (*Manager, *credstore.MemoryStore) {
	t.Helper()
	store := credstore.NewMemoryStore()
	cfg := &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenEndpoint, AuthURL: tokenEndpoint + "/auth"},
		RedirectURL:  "http://127.0.0.1:8484/oauth/callback/google",
		Scopes:       []string{"calendar.readonly"},
	}
	return NewManager("google", cfg, store, logger.New("error", false)), store
}

func expiredToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "stale-access",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Hour),
	}
}

func TestEnsureValidWithoutTokenSet(t *testing.T) {
	m, _ := newTestManager(t, "http://invalid.test/token")

	_, err := m.EnsureValid(context.Background())
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("EnsureValid on empty store = %v, want ErrUnauthenticated", err)
	}
	if got := m.State(); got != provider.StateUnauthorized {
		t.Errorf("State() = %v, want unauthorized", got)
	}
}

func TestEnsureValidRefreshesExpiredToken(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		// Response deliberately omits refresh_token: providers are not
		// required to rotate it.
		fmt.Fprint(w, `{"access_token":"fresh-access","token_type":"Bearer","expires_in":3600}`)
	}))
	defer ts.Close()

	m, store := newTestManager(t, ts.URL)
	ctx := context.Background()
	if err := store.SaveToken(ctx, "google", expiredToken()); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	tok, err := m.EnsureValid(ctx)
	if err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if tok.AccessToken != "fresh-access" {
		t.Errorf("access token = %q, want fresh-access", tok.AccessToken)
	}
	if !tok.Expiry.After(time.Now()) {
		t.Error("refreshed token is already expired")
	}

	persisted, err := store.LoadToken(ctx, "google")
	if err != nil {
		t.Fatalf("LoadToken after refresh: %v", err)
	}
	if persisted.AccessToken != "fresh-access" {
		t.Errorf("persisted access token = %q, want fresh-access", persisted.AccessToken)
	}
	if persisted.RefreshToken != "refresh-1" {
		t.Errorf("prior refresh token not preserved: %q", persisted.RefreshToken)
	}
	if got := m.State(); got != provider.StateAuthorized {
		t.Errorf("State() = %v, want authorized", got)
	}
	if hits.Load() != 1 {
		t.Errorf("token endpoint hit %d times, want 1", hits.Load())
	}
}

func TestEnsureValidReturnsUnexpiredTokenWithoutNetwork(t *testing.T) {
	m, store := newTestManager(t, "http://invalid.test/token")
	ctx := context.Background()

	live := &oauth2.Token{
		AccessToken:  "live-access",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour),
	}
	if err := store.SaveToken(ctx, "google", live); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	tok, err := m.EnsureValid(ctx)
	if err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if tok.AccessToken != "live-access" {
		t.Errorf("access token = %q, want live-access", tok.AccessToken)
	}
}

func TestEnsureValidRejectedRefreshClearsStore(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	defer ts.Close()

	m, store := newTestManager(t, ts.URL)
	ctx := context.Background()
	if err := store.SaveToken(ctx, "google", expiredToken()); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	_, err := m.EnsureValid(ctx)
	if !errors.Is(err, domain.ErrReauthRequired) {
		t.Fatalf("EnsureValid = %v, want ErrReauthRequired", err)
	}
	if _, err := store.LoadToken(ctx, "google"); !errors.Is(err, credstore.ErrNotFound) {
		t.Error("persisted token set should be cleared after a rejected refresh")
	}

	// Idempotent: subsequent calls keep reporting reauth-required without
	// touching the already-cleared store.
	if _, err := m.EnsureValid(ctx); !errors.Is(err, domain.ErrReauthRequired) {
		t.Errorf("second EnsureValid = %v, want ErrReauthRequired", err)
	}
}

func TestEnsureValidTransientRefreshFailureKeepsTokenSet(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	m, store := newTestManager(t, ts.URL)
	ctx := context.Background()
	if err := store.SaveToken(ctx, "google", expiredToken()); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	_, err := m.EnsureValid(ctx)
	if !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("EnsureValid = %v, want ErrNetwork", err)
	}
	if got := m.State(); got != provider.StateError {
		t.Errorf("State() = %v, want error", got)
	}
	// The set survives; the next cycle retries.
	if _, err := store.LoadToken(ctx, "google"); err != nil {
		t.Errorf("token set should survive a transient failure, got %v", err)
	}
}

func TestEnsureValidSingleRefreshUnderConcurrency(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond) // widen the pile-up window
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh-access","token_type":"Bearer","expires_in":3600}`)
	}))
	defer ts.Close()

	m, store := newTestManager(t, ts.URL)
	ctx := context.Background()
	if err := store.SaveToken(ctx, "google", expiredToken()); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := m.EnsureValid(ctx)
			if err != nil {
				t.Errorf("concurrent EnsureValid: %v", err)
				return
			}
			if tok.AccessToken != "fresh-access" {
				t.Errorf("concurrent caller got %q", tok.AccessToken)
			}
		}()
	}
	wg.Wait()

	if hits.Load() != 1 {
		t.Errorf("token endpoint hit %d times under concurrency, want 1", hits.Load())
	}
}

func TestRestorePrimesStateFromPersistedSet(t *testing.T) {
	// Endpoint is unreachable on purpose: restoring a live token must not
	// touch the network.
	m, store := newTestManager(t, "http://invalid.test/token")
	ctx := context.Background()

	tok := &oauth2.Token{
		AccessToken:  "live-access",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour),
	}
	if err := store.SaveToken(ctx, "google", tok); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	if err := m.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := m.State(); got != provider.StateAuthorized {
		t.Fatalf("State() after restore = %v, want authorized", got)
	}

	got, err := m.EnsureValid(ctx)
	if err != nil {
		t.Fatalf("EnsureValid after restore: %v", err)
	}
	if got.AccessToken != "live-access" {
		t.Errorf("AccessToken = %q, want the persisted one", got.AccessToken)
	}
}

func TestRestoreWithEmptyStoreStaysUnauthorized(t *testing.T) {
	m, _ := newTestManager(t, "http://invalid.test/token")

	if err := m.Restore(context.Background()); err != nil {
		t.Fatalf("an empty store is not a restore failure: %v", err)
	}
	if got := m.State(); got != provider.StateUnauthorized {
		t.Errorf("State() = %v, want unauthorized", got)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	m, store := newTestManager(t, "http://invalid.test/token")
	ctx := context.Background()
	if err := store.SaveToken(ctx, "google", expiredToken()); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	if err := m.Revoke(ctx); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := m.Revoke(ctx); err != nil {
		t.Errorf("second Revoke should not fail: %v", err)
	}
	if got := m.State(); got != provider.StateUnauthorized {
		t.Errorf("State() after revoke = %v, want unauthorized", got)
	}
	if _, err := m.EnsureValid(ctx); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("EnsureValid after revoke = %v, want ErrUnauthenticated", err)
	}
}

func TestBeginAuthRequiresClientConfig(t *testing.T) {
	store := credstore.NewMemoryStore()
	m := NewManager("google", &oauth2.Config{}, store, logger.New("error", false))

	if _, err := m.BeginAuth(); !errors.Is(err, domain.ErrConfigMissing) {
		t.Errorf("BeginAuth without client id = %v, want ErrConfigMissing", err)
	}
}

func TestCompleteAuthExchangesCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q, want authorization_code", got)
		}
		if r.Form.Get("code_verifier") == "" {
			t.Error("code exchange is missing the PKCE verifier")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"granted","refresh_token":"rt-new","token_type":"Bearer","expires_in":3600}`)
	}))
	defer ts.Close()

	m, store := newTestManager(t, ts.URL)
	ctx := context.Background()

	authURL, err := m.BeginAuth()
	if err != nil {
		t.Fatalf("BeginAuth: %v", err)
	}
	if authURL == "" {
		t.Fatal("BeginAuth returned an empty consent URL")
	}
	if got := m.State(); got != provider.StateAuthorizing {
		t.Errorf("State() during flow = %v, want authorizing", got)
	}

	if err := m.CompleteAuth(ctx, "wrong-state", "code-1"); err == nil {
		t.Error("CompleteAuth with a mismatched state should fail")
	}

	m.mu.Lock()
	state := m.pending.state
	m.mu.Unlock()

	if err := m.CompleteAuth(ctx, state, "code-1"); err != nil {
		t.Fatalf("CompleteAuth: %v", err)
	}
	if got := m.State(); got != provider.StateAuthorized {
		t.Errorf("State() after exchange = %v, want authorized", got)
	}
	persisted, err := store.LoadToken(ctx, "google")
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if persisted.AccessToken != "granted" || persisted.RefreshToken != "rt-new" {
		t.Errorf("persisted token = %+v, want the exchanged set", persisted)
	}
}

func TestMarkDenied(t *testing.T) {
	m, _ := newTestManager(t, "http://invalid.test/token")

	if _, err := m.BeginAuth(); err != nil {
		t.Fatalf("BeginAuth: %v", err)
	}
	m.MarkDenied()
	if got := m.State(); got != provider.StateDenied {
		t.Errorf("State() = %v, want denied", got)
	}
	// Denied sticks across EnsureValid failures.
	if _, err := m.EnsureValid(context.Background()); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("EnsureValid while denied = %v, want ErrUnauthenticated", err)
	}
	if got := m.State(); got != provider.StateDenied {
		t.Errorf("State() after EnsureValid = %v, want denied to persist", got)
	}
}
