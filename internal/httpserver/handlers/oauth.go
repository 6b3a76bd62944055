package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/upnext/upnextd/internal/httpserver/deps"
	"github.com/upnext/upnextd/internal/logger"
	"github.com/upnext/upnextd/internal/provider"
)

// OAuthCallback captures the provider's redirect and completes the pending
// authorization code exchange. The response is a minimal page for the browser
// tab the consent screen opened.
func OAuthCallback(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, ok := d.Engine.Provider(id)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown provider")
			return
		}
		op, ok := p.(provider.OAuthProvider)
		if !ok {
			writeError(w, http.StatusBadRequest, "provider has no redirect flow")
			return
		}

		q := r.URL.Query()
		if errCode := q.Get("error"); errCode != "" {
			if errCode == "access_denied" {
				op.MarkDenied()
				d.Logger.Warn("user declined consent", logger.String("provider", id))
				writePage(w, http.StatusOK, "Access was declined. You can close this window.")
				return
			}
			d.Logger.Warn("authorization failed",
				logger.String("provider", id),
				logger.String("oauth_error", errCode))
			writePage(w, http.StatusBadRequest, "Authorization failed: "+errCode)
			return
		}

		if err := op.CompleteAuth(r.Context(), q.Get("state"), q.Get("code")); err != nil {
			d.Logger.Error("code exchange failed",
				logger.String("provider", id),
				logger.Error(err))
			writePage(w, http.StatusBadRequest, "Authorization failed. Check the daemon logs.")
			return
		}

		// Pull in the newly reachable calendars right away.
		_ = d.Refresher.Force()

		d.Logger.Info("provider connected", logger.String("provider", id))
		writePage(w, http.StatusOK, "Connected. You can close this window.")
	}
}

func writePage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte("<!DOCTYPE html><html><body><p>" + msg + "</p></body></html>\n"))
}
