package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/upnext/upnextd/internal/httpserver/deps"
)

// eventsWaitWindow bounds the long poll below the server's request timeout
// so the connection is answered before the middleware cuts it.
const eventsWaitWindow = 10 * time.Second

// Events long-polls the snapshot stream: the response is the next snapshot
// the engine publishes, or the current one when the wait window elapses
// first. A `timeout` query parameter (seconds) shortens the window.
func Events(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wait := eventsWaitWindow
		if raw := r.URL.Query().Get("timeout"); raw != "" {
			secs, err := strconv.Atoi(raw)
			if err != nil || secs < 0 {
				writeError(w, http.StatusBadRequest, "invalid timeout")
				return
			}
			if d := time.Duration(secs) * time.Second; d < wait {
				wait = d
			}
		}

		ch := d.Engine.Subscribe()
		defer d.Engine.Unsubscribe(ch)

		timer := time.NewTimer(wait)
		defer timer.Stop()

		w.Header().Set("Cache-Control", "no-store")
		select {
		case snap := <-ch:
			writeJSON(w, http.StatusOK, snap)
		case <-timer.C:
			writeJSON(w, http.StatusOK, d.Engine.Snapshot())
		case <-r.Context().Done():
		}
	}
}
