package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/upnext/upnextd/internal/domain"
	"github.com/upnext/upnextd/internal/httpserver/deps"
	"github.com/upnext/upnextd/internal/logger"
)

type connectResponse struct {
	AuthURL string `json:"authUrl,omitempty"`
	State   string `json:"state"`
}

// Connect starts a provider's consent flow. OAuth providers answer with the
// URL the user must visit; the CalDAV provider validates synchronously.
func Connect(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, ok := d.Engine.Provider(id)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown provider")
			return
		}

		authURL, err := p.Authorize(r.Context())
		if err != nil {
			if errors.Is(err, domain.ErrConfigMissing) {
				writeError(w, http.StatusUnprocessableEntity, "provider has no client configuration")
				return
			}
			d.Logger.Warn("provider connect failed",
				logger.String("provider", id),
				logger.Error(err))
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, connectResponse{
			AuthURL: authURL,
			State:   p.Status().String(),
		})
	}
}

// Disconnect revokes a provider's stored credentials.
func Disconnect(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, ok := d.Engine.Provider(id); !ok {
			writeError(w, http.StatusNotFound, "unknown provider")
			return
		}

		if err := d.Engine.Disconnect(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		d.Logger.Info("provider disconnected", logger.String("provider", id))
		w.WriteHeader(http.StatusNoContent)
	}
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

// SetEnabled flips a provider's enabled flag and nudges the refresh loop so
// the snapshot reflects the change promptly.
func SetEnabled(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req enabledRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}

		if err := d.Engine.SetEnabled(r.Context(), id, req.Enabled); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		// Best effort: a pending refresh will pick the change up anyway.
		_ = d.Refresher.Force()

		d.Logger.Info("provider enabled flag changed",
			logger.String("provider", id),
			logger.Bool("enabled", req.Enabled))
		w.WriteHeader(http.StatusNoContent)
	}
}
