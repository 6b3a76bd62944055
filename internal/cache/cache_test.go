package cache

import (
	"testing"
	"time"

	"github.com/upnext/upnextd/internal/domain"
)

func testMeetings(ids ...string) []domain.Meeting {
	ms := make([]domain.Meeting, 0, len(ids))
	for _, id := range ids {
		ms = append(ms, domain.Meeting{ID: id, Title: "m-" + id})
	}
	return ms
}

func TestCacheRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	c := New(5 * time.Minute)
	c.now = func() time.Time { return now }

	day := domain.DayOf(now)
	c.Set("google", day, testMeetings("google:1", "google:2"))

	got, ok := c.Get("google", day)
	if !ok {
		t.Fatal("Get() miss immediately after Set()")
	}
	if len(got) != 2 || got[0].ID != "google:1" || got[1].ID != "google:2" {
		t.Errorf("Get() = %+v, want the exact previously-set list", got)
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	c := New(5 * time.Minute)
	c.now = func() time.Time { return now }

	day := domain.DayOf(now)
	c.Set("google", day, testMeetings("google:1"))

	// Still inside the window.
	now = now.Add(5 * time.Minute)
	if _, ok := c.Get("google", day); !ok {
		t.Error("Get() at exactly TTL should still hit")
	}

	now = now.Add(time.Second)
	if _, ok := c.Get("google", day); ok {
		t.Error("Get() past TTL should miss")
	}

	// Lazy expiry evicted the entry; a later Get inside a fresh window
	// must not resurrect it.
	if _, ok := c.Get("google", day); ok {
		t.Error("expired entry was not evicted on read")
	}
}

func TestCacheInvalidateIsPerProvider(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	c := New(time.Hour)
	c.now = func() time.Time { return now }

	day := domain.DayOf(now)
	c.Set("google", day, testMeetings("google:1"))
	c.Set("outlook", day, testMeetings("outlook:1"))

	c.Invalidate("google")

	if _, ok := c.Get("google", day); ok {
		t.Error("google entries should be gone after Invalidate(google)")
	}
	if _, ok := c.Get("outlook", day); !ok {
		t.Error("outlook entries must survive Invalidate(google)")
	}
}

func TestCacheInvalidateAll(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	c := New(time.Hour)
	c.now = func() time.Time { return now }

	day := domain.DayOf(now)
	c.Set("google", day, testMeetings("google:1"))
	c.Set("caldav", day, testMeetings("caldav:1"))

	c.InvalidateAll()

	if _, ok := c.Get("google", day); ok {
		t.Error("InvalidateAll left a google entry")
	}
	if _, ok := c.Get("caldav", day); ok {
		t.Error("InvalidateAll left a caldav entry")
	}
}

func TestCacheSetTTLAppliesOnNextRead(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	c := New(time.Hour)
	c.now = func() time.Time { return now }

	day := domain.DayOf(now)
	c.Set("google", day, testMeetings("google:1"))

	now = now.Add(10 * time.Minute)
	c.SetTTL(time.Minute)

	if _, ok := c.Get("google", day); ok {
		t.Error("entry older than the new TTL should miss on next read")
	}
}

func TestCacheKeyStableAcrossSameDayQueries(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	c := New(time.Hour)
	c.now = func() time.Time { return base.Add(8 * time.Hour) }

	c.Set("google", domain.DayOf(base.Add(8*time.Hour)), testMeetings("google:1"))

	// A query later the same day resolves to the same day key.
	if _, ok := c.Get("google", domain.DayOf(base.Add(17*time.Hour))); !ok {
		t.Error("same-day queries at different times should share one entry")
	}
}
