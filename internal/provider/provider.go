package provider

import (
	"context"
	"time"

	"github.com/upnext/upnextd/internal/domain"
)

// AuthState is the authorization state of one provider. Transitions happen
// only inside the token lifecycle manager (OAuth providers) or the adapter's
// own validation path (the local CalDAV store).
type AuthState int

const (
	StateUnauthorized AuthState = iota
	StateAuthorizing
	StateAuthorized
	// StateDenied: the user refused consent or the server rejected the
	// configured credentials. Requires user action to leave.
	StateDenied
	// StateRestricted: access blocked by policy rather than by the user.
	StateRestricted
	// StateError: last authorization or refresh attempt failed transiently.
	StateError
)

func (s AuthState) String() string {
	switch s {
	case StateAuthorizing:
		return "authorizing"
	case StateAuthorized:
		return "authorized"
	case StateDenied:
		return "denied"
	case StateRestricted:
		return "restricted"
	case StateError:
		return "error"
	default:
		return "unauthorized"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s AuthState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Provider is the uniform capability set over one calendar source.
//
// FetchRange returns an explicit error on failure; an empty slice with a nil
// error means the provider authentically has no events in the window. The
// aggregator relies on this distinction for its degraded computation.
type Provider interface {
	ID() string
	Status() AuthState

	// Authorize starts the provider's consent flow. OAuth providers return
	// a URL the user must visit; the flow completes via CompleteAuth when
	// the redirect is captured. Local providers validate synchronously and
	// return an empty URL.
	Authorize(ctx context.Context) (authURL string, err error)

	// Disconnect revokes stored credentials and resets to unauthorized.
	// Idempotent.
	Disconnect(ctx context.Context) error

	FetchRange(ctx context.Context, start, end time.Time) ([]domain.Meeting, error)
}

// OAuthProvider is implemented by providers whose consent flow finishes
// through a captured redirect.
type OAuthProvider interface {
	Provider

	// Restore resumes an authorized session from the persisted token set
	// after a restart. A missing set is not an error; the provider simply
	// stays unauthorized until the user connects.
	Restore(ctx context.Context) error

	// CompleteAuth validates state against the pending attempt and
	// exchanges the authorization code for a token set.
	CompleteAuth(ctx context.Context, state, code string) error

	// MarkDenied records that the user declined the consent screen.
	MarkDenied()
}
