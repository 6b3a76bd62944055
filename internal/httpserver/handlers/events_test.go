package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/upnext/upnextd/internal/aggregator"
	"github.com/upnext/upnextd/internal/cache"
	"github.com/upnext/upnextd/internal/credstore"
	"github.com/upnext/upnextd/internal/domain"
	"github.com/upnext/upnextd/internal/httpserver/deps"
	"github.com/upnext/upnextd/internal/logger"
)

func newEventsDeps(t *testing.T) (deps.Deps, *aggregator.Engine) {
	t.Helper()
	e := aggregator.New(nil, nil, cache.New(time.Minute),
		credstore.NewMemoryStore(), logger.New("error", false))
	return deps.Deps{Logger: logger.New("error", false), Engine: e}, e
}

func TestEventsTimeoutFallsBackToCurrentSnapshot(t *testing.T) {
	d, e := newEventsDeps(t)
	if err := e.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	rec := httptest.NewRecorder()
	Events(d)(rec, httptest.NewRequest(http.MethodGet, "/api/events?timeout=0", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("body is not a snapshot: %v", err)
	}
	if snap.GeneratedAt.IsZero() {
		t.Error("fallback snapshot missing generatedAt")
	}
}

func TestEventsDeliversNextPublishedSnapshot(t *testing.T) {
	d, e := newEventsDeps(t)

	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		Events(d)(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	}()

	// Publish until the poller answers; the first publish can land before
	// the handler has subscribed.
	deadline := time.After(5 * time.Second)
poll:
	for {
		if err := e.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		select {
		case <-done:
			break poll
		case <-deadline:
			t.Fatal("poller never answered a publish")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("body is not a snapshot: %v", err)
	}
	if snap.GeneratedAt.IsZero() {
		t.Error("published snapshot missing generatedAt")
	}
}

func TestEventsRejectsBadTimeout(t *testing.T) {
	d, _ := newEventsDeps(t)

	rec := httptest.NewRecorder()
	Events(d)(rec, httptest.NewRequest(http.MethodGet, "/api/events?timeout=soon", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
