package handlers

import (
	"errors"
	"net/http"

	"github.com/upnext/upnextd/internal/httpserver/deps"
	"github.com/upnext/upnextd/internal/logger"
	"github.com/upnext/upnextd/internal/scheduler"
)

// Refresh queues an immediate cache-bypassing refresh cycle.
func Refresh(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Refresher.Force(); err != nil {
			if errors.Is(err, scheduler.ErrRefreshPending) {
				d.Logger.Warn("forced refresh already pending",
					logger.String("remote_ip", r.RemoteAddr))
				writeError(w, http.StatusTooManyRequests, "refresh already pending")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		d.Logger.Info("forced refresh triggered via endpoint",
			logger.String("remote_ip", r.RemoteAddr))
		w.WriteHeader(http.StatusAccepted)
	}
}
