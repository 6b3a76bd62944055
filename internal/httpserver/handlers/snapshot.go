package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/upnext/upnextd/internal/domain"
	"github.com/upnext/upnextd/internal/httpserver/deps"
	"github.com/upnext/upnextd/internal/provider"
)

type providerStatus struct {
	ID      string             `json:"id"`
	State   provider.AuthState `json:"state"`
	Enabled bool               `json:"enabled"`
}

type snapshotResponse struct {
	domain.Snapshot
	Providers []providerStatus `json:"providers"`
}

// Snapshot serves the current aggregate snapshot plus per-provider state.
func Snapshot(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := snapshotResponse{Snapshot: d.Engine.Snapshot()}
		for _, id := range d.Engine.ProviderIDs() {
			p, _ := d.Engine.Provider(id)
			resp.Providers = append(resp.Providers, providerStatus{
				ID:      id,
				State:   p.Status(),
				Enabled: d.Engine.Enabled(id),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
