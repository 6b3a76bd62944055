package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/upnext/upnextd/internal/httpserver/deps"
	"github.com/upnext/upnextd/internal/httpserver/handlers"
	"github.com/upnext/upnextd/internal/httpserver/mw"
)

func init() { Register(registerProviders) }

func registerProviders(r chi.Router, d deps.Deps) {
	guarded := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	guarded.Post("/api/providers/{id}/connect", handlers.Connect(d))
	guarded.Post("/api/providers/{id}/disconnect", handlers.Disconnect(d))
	guarded.Post("/api/providers/{id}/enabled", handlers.SetEnabled(d))

	// The callback reaches the token endpoint on every hit; rate limit it so a
	// misbehaving browser extension cannot burn the OAuth client's quota.
	guarded.With(mw.RateLimit(mw.RateLimitConfig{
		Burst:             5,
		RefillPerIPPerMin: 10,
		MaxEntries:        1024,
		TrustProxy:        d.TrustProxy,
	})).Get("/oauth/callback/{id}", handlers.OAuthCallback(d))
}
