package token

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/upnext/upnextd/internal/credstore"
	"github.com/upnext/upnextd/internal/domain"
	"github.com/upnext/upnextd/internal/logger"
	"github.com/upnext/upnextd/internal/provider"
)

// expirySkew is subtracted from the recorded expiry when deciding whether a
// token is still usable, so a token about to lapse mid-request counts as
// expired.
const expirySkew = 60 * time.Second

// Manager owns the OAuth token lifecycle for one provider: interactive
// acquisition (authorization code + PKCE), refresh-before-use, persistence
// and revocation.
//
// EnsureValid is safe to call from concurrent fetches; at most one refresh
// request is in flight at a time and concurrent callers share its outcome.
type Manager struct {
	providerID string
	cfg        *oauth2.Config
	store      credstore.Store
	log        logger.Logger
	now        func() time.Time

	mu      sync.Mutex
	tok     *oauth2.Token
	state   provider.AuthState
	reauth  bool
	pending *pendingAuth

	refreshGroup singleflight.Group
}

type pendingAuth struct {
	state    string
	verifier string
}

// NewManager creates a lifecycle manager for providerID backed by cfg and the
// given secret store.
func NewManager(providerID string, cfg *oauth2.Config, store credstore.Store, log logger.Logger) *Manager {
	return &Manager{
		providerID: providerID,
		cfg:        cfg,
		store:      store,
		log:        log,
		now:        time.Now,
		state:      provider.StateUnauthorized,
	}
}

// State returns the current authorization state.
func (m *Manager) State() provider.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EnsureValid returns a currently-usable access token or a definitive error.
//
// Order of resolution: in-memory token set, persisted set, refresh grant.
// A definitive refresh rejection clears the persisted set and pins the
// manager into reauth-required until the user reconnects; transient refresh
// failures leave the set in place and surface as a network error for this
// cycle only.
func (m *Manager) EnsureValid(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	if m.reauth {
		m.mu.Unlock()
		return nil, domain.ErrReauthRequired
	}
	if m.tok == nil {
		tok, err := m.store.LoadToken(ctx, m.providerID)
		if err != nil {
			if errors.Is(err, credstore.ErrNotFound) {
				if m.state != provider.StateDenied && m.state != provider.StateAuthorizing {
					m.state = provider.StateUnauthorized
				}
				m.mu.Unlock()
				return nil, domain.ErrUnauthenticated
			}
			m.mu.Unlock()
			return nil, fmt.Errorf("failed to load token set: %w", err)
		}
		m.tok = tok
		m.state = provider.StateAuthorized
	}
	cur := *m.tok
	m.mu.Unlock()

	if m.usable(&cur) {
		return &cur, nil
	}

	v, err, _ := m.refreshGroup.Do("refresh", func() (interface{}, error) {
		return m.refresh(ctx, &cur)
	})
	if err != nil {
		return nil, err
	}
	tok := v.(oauth2.Token)
	return &tok, nil
}

// refresh runs under singleflight: callers that piled up behind an in-flight
// refresh re-check the shared token before issuing another grant, since some
// providers rate-limit or invalidate duplicate refresh requests.
func (m *Manager) refresh(ctx context.Context, old *oauth2.Token) (interface{}, error) {
	m.mu.Lock()
	if m.tok != nil && m.usable(m.tok) {
		tok := *m.tok
		m.mu.Unlock()
		return tok, nil
	}
	m.mu.Unlock()

	if old.RefreshToken == "" {
		m.invalidate(ctx, "token expired and no refresh token available")
		return nil, domain.ErrReauthRequired
	}

	newTok, err := m.cfg.TokenSource(ctx, old).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			m.invalidate(ctx, "refresh grant rejected by provider")
			return nil, fmt.Errorf("refresh rejected (%d): %w",
				retrieveErr.Response.StatusCode, domain.ErrReauthRequired)
		}
		m.setState(provider.StateError)
		return nil, fmt.Errorf("%w: token refresh: %v", domain.ErrNetwork, err)
	}

	// Providers are not required to rotate the refresh token; keep the old
	// one when the response omits it, or the next refresh would fail.
	if newTok.RefreshToken == "" {
		newTok.RefreshToken = old.RefreshToken
	}

	if err := m.store.SaveToken(ctx, m.providerID, newTok); err != nil {
		m.log.Warn("failed to persist refreshed token",
			logger.String("provider", m.providerID),
			logger.Error(err))
	}

	m.mu.Lock()
	m.tok = newTok
	m.state = provider.StateAuthorized
	m.mu.Unlock()

	m.log.Debug("token refreshed", logger.String("provider", m.providerID))
	return *newTok, nil
}

// Restore primes the manager from the persisted token set after a process
// restart. A stored set marks the provider authorized even when the access
// token has lapsed; the refresh grant runs on the first fetch. An empty
// store leaves the state untouched.
func (m *Manager) Restore(ctx context.Context) error {
	tok, err := m.store.LoadToken(ctx, m.providerID)
	if err != nil {
		if errors.Is(err, credstore.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load token set: %w", err)
	}

	m.mu.Lock()
	m.tok = tok
	m.reauth = false
	m.state = provider.StateAuthorized
	m.mu.Unlock()

	m.log.Info("restored persisted session", logger.String("provider", m.providerID))
	return nil
}

// BeginAuth starts an interactive authorization code flow with PKCE and
// offline access, returning the consent URL the user must visit. The state
// nonce binds the eventual redirect back to this attempt.
func (m *Manager) BeginAuth() (authURL string, err error) {
	if m.cfg.ClientID == "" {
		return "", domain.ErrConfigMissing
	}

	verifier := oauth2.GenerateVerifier()
	state, err := randomState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state nonce: %w", err)
	}

	m.mu.Lock()
	m.pending = &pendingAuth{state: state, verifier: verifier}
	m.state = provider.StateAuthorizing
	m.mu.Unlock()

	return m.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier)), nil
}

// CompleteAuth finishes the flow started by BeginAuth: it validates the state
// nonce, exchanges the code with the stored PKCE verifier, and persists the
// resulting token set.
func (m *Manager) CompleteAuth(ctx context.Context, state, code string) error {
	m.mu.Lock()
	pending := m.pending
	m.mu.Unlock()

	if pending == nil {
		return errors.New("no authorization attempt in progress")
	}
	if subtle.ConstantTimeCompare([]byte(pending.state), []byte(state)) != 1 {
		return errors.New("authorization state mismatch")
	}

	tok, err := m.cfg.Exchange(ctx, code, oauth2.VerifierOption(pending.verifier))
	if err != nil {
		m.setState(provider.StateError)
		return fmt.Errorf("code exchange failed: %w", err)
	}

	if err := m.store.SaveToken(ctx, m.providerID, tok); err != nil {
		m.log.Warn("failed to persist token set",
			logger.String("provider", m.providerID),
			logger.Error(err))
	}

	m.mu.Lock()
	m.tok = tok
	m.pending = nil
	m.reauth = false
	m.state = provider.StateAuthorized
	m.mu.Unlock()

	m.log.Info("provider authorized", logger.String("provider", m.providerID))
	return nil
}

// MarkDenied records that the user declined the consent screen. Only a new
// BeginAuth leaves this state.
func (m *Manager) MarkDenied() {
	m.mu.Lock()
	m.pending = nil
	m.state = provider.StateDenied
	m.mu.Unlock()
}

// Revoke deletes the persisted token set and resets to unauthorized.
// Idempotent.
func (m *Manager) Revoke(ctx context.Context) error {
	if err := m.store.DeleteToken(ctx, m.providerID); err != nil {
		return fmt.Errorf("failed to delete token set: %w", err)
	}

	m.mu.Lock()
	m.tok = nil
	m.pending = nil
	m.reauth = false
	m.state = provider.StateUnauthorized
	m.mu.Unlock()
	return nil
}

// Invalidate handles a 401 observed mid-fetch: the provider no longer honors
// our credentials, so the stored set is treated as revoked.
func (m *Manager) Invalidate(ctx context.Context) {
	m.invalidate(ctx, "provider rejected access token")
}

func (m *Manager) invalidate(ctx context.Context, reason string) {
	if err := m.store.DeleteToken(ctx, m.providerID); err != nil {
		m.log.Warn("failed to clear token set",
			logger.String("provider", m.providerID),
			logger.Error(err))
	}

	m.mu.Lock()
	m.tok = nil
	m.reauth = true
	m.state = provider.StateUnauthorized
	m.mu.Unlock()

	m.log.Warn("provider needs reconnect",
		logger.String("provider", m.providerID),
		logger.String("reason", reason))
}

func (m *Manager) setState(s provider.AuthState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) usable(tok *oauth2.Token) bool {
	if tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return m.now().Add(expirySkew).Before(tok.Expiry)
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
