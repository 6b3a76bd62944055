package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/upnext/upnextd/internal/httpserver/deps"
	"github.com/upnext/upnextd/internal/logger"
)

// settingsRequest uses pointers so absent fields leave their setting alone.
type settingsRequest struct {
	RefreshIntervalSeconds *int  `json:"refreshIntervalSeconds"`
	CacheTTLSeconds        *int  `json:"cacheTtlSeconds"`
	ShowAllDay             *bool `json:"showAllDay"`
}

// Settings applies user preference changes: refresh interval, cache TTL,
// all-day visibility. Each change is persisted and takes effect immediately.
func Settings(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req settingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}

		ctx := r.Context()
		if req.RefreshIntervalSeconds != nil {
			if *req.RefreshIntervalSeconds <= 0 {
				writeError(w, http.StatusBadRequest, "refreshIntervalSeconds must be positive")
				return
			}
			interval := time.Duration(*req.RefreshIntervalSeconds) * time.Second
			if err := d.Engine.SetInterval(ctx, interval); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			d.Refresher.SetInterval(interval)
			d.Logger.Info("refresh interval changed", logger.Duration("interval", interval))
		}

		if req.CacheTTLSeconds != nil {
			if *req.CacheTTLSeconds <= 0 {
				writeError(w, http.StatusBadRequest, "cacheTtlSeconds must be positive")
				return
			}
			ttl := time.Duration(*req.CacheTTLSeconds) * time.Second
			if err := d.Engine.SetTTL(ctx, ttl); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			d.Logger.Info("cache ttl changed", logger.Duration("ttl", ttl))
		}

		if req.ShowAllDay != nil {
			if err := d.Engine.SetShowAllDay(ctx, *req.ShowAllDay); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			d.Logger.Info("all-day visibility changed", logger.Bool("show", *req.ShowAllDay))
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

type visibilityRequest struct {
	Visible bool `json:"visible"`
}

// Visibility records whether a UI is currently watching, which pins the
// refresh cadence to its fast setting.
func Visibility(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req visibilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}

		d.Refresher.SetUIVisible(req.Visible)
		w.WriteHeader(http.StatusNoContent)
	}
}
