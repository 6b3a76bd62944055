package domain

import "errors"

// Authorization errors, surfaced by the token lifecycle manager.
var (
	// ErrUnauthenticated: no token set exists; the user never connected.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrReauthRequired: the token set was invalidated (refresh definitively
	// rejected, or a 401 from the provider); only user action clears this.
	ErrReauthRequired = errors.New("reauthorization required")
	// ErrConsentDenied: the user declined the consent screen.
	ErrConsentDenied = errors.New("consent denied")
	// ErrConfigMissing: the provider has no usable OAuth client configuration.
	ErrConfigMissing = errors.New("provider configuration missing")
)

// Fetch errors, classified by provider adapters.
var (
	// ErrUnauthorized: the provider rejected our credentials mid-fetch.
	ErrUnauthorized = errors.New("provider rejected credentials")
	// ErrNetwork: transport-level failure; retried by the next cycle.
	ErrNetwork = errors.New("network failure")
	// ErrParse: the provider answered with something we could not decode.
	ErrParse = errors.New("malformed provider response")
	// ErrTimeout: the per-fetch deadline elapsed.
	ErrTimeout = errors.New("fetch timed out")
)
