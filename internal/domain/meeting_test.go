package domain

import (
	"testing"
	"time"
)

func minuteOffset(base time.Time, minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func TestMergeMeetingsSortedAndStable(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	google := []Meeting{
		{ID: "google:b", StartTime: minuteOffset(base, 60), EndTime: minuteOffset(base, 90)},
		{ID: "google:a", StartTime: minuteOffset(base, 0), EndTime: minuteOffset(base, 30)},
	}
	outlook := []Meeting{
		{ID: "outlook:x", StartTime: minuteOffset(base, 0), EndTime: minuteOffset(base, 45)},
		{ID: "outlook:y", StartTime: minuteOffset(base, 120), EndTime: minuteOffset(base, 150)},
	}

	merged := MergeMeetings(google, outlook)

	if len(merged) != 4 {
		t.Fatalf("merged length = %d, want 4", len(merged))
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].StartTime.Before(merged[i-1].StartTime) {
			t.Errorf("merged[%d] starts before merged[%d]", i, i-1)
		}
	}

	// The 09:00 tie must keep input order (google list passed first), and
	// repeated merges of the same input must agree.
	if merged[0].ID != "google:a" || merged[1].ID != "outlook:x" {
		t.Errorf("tie order = [%s, %s], want [google:a, outlook:x]", merged[0].ID, merged[1].ID)
	}
	again := MergeMeetings(google, outlook)
	for i := range merged {
		if merged[i].ID != again[i].ID {
			t.Fatalf("merge not deterministic at index %d: %s vs %s", i, merged[i].ID, again[i].ID)
		}
	}
}

func TestNextMeetingPrefersUpcoming(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	meetings := []Meeting{
		{ID: "a", StartTime: minuteOffset(now, -10), EndTime: minuteOffset(now, -5)}, // ended
		{ID: "b", StartTime: minuteOffset(now, 5), EndTime: minuteOffset(now, 35)},
		{ID: "c", StartTime: minuteOffset(now, 40), EndTime: minuteOffset(now, 70)},
	}

	next := NextMeeting(meetings, now)
	if next == nil || next.ID != "b" {
		t.Fatalf("NextMeeting = %+v, want meeting b", next)
	}
}

func TestNextMeetingFallsBackToInProgress(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	meetings := []Meeting{
		{ID: "ongoing", StartTime: minuteOffset(now, -10), EndTime: minuteOffset(now, 20)},
	}
	next := NextMeeting(meetings, now)
	if next == nil || next.ID != "ongoing" {
		t.Fatalf("NextMeeting = %+v, want the in-progress meeting", next)
	}
	if got := UrgencyFor(next, now); got != UrgencyNormal {
		t.Errorf("urgency for in-progress fallback = %v, want normal", got)
	}

	// An upcoming meeting beats the in-progress one even when it starts later.
	meetings = append(meetings, Meeting{ID: "later", StartTime: minuteOffset(now, 40), EndTime: minuteOffset(now, 70)})
	next = NextMeeting(meetings, now)
	if next == nil || next.ID != "later" {
		t.Fatalf("NextMeeting = %+v, want the upcoming meeting", next)
	}
}

func TestNextMeetingIgnoresAllDayAndEnded(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	meetings := []Meeting{
		{ID: "allday", IsAllDay: true, StartTime: DayOf(now), EndTime: DayOf(now).Add(24 * time.Hour)},
		{ID: "done", StartTime: minuteOffset(now, -60), EndTime: minuteOffset(now, -30)},
	}
	if next := NextMeeting(meetings, now); next != nil {
		t.Errorf("NextMeeting = %+v, want nil", next)
	}
}

func TestBuildSnapshotArrangesAllDayFirst(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	merged := MergeMeetings([]Meeting{
		{ID: "timed", StartTime: minuteOffset(now, 30), EndTime: minuteOffset(now, 60)},
		{ID: "allday", IsAllDay: true, StartTime: DayOf(now), EndTime: DayOf(now).Add(24 * time.Hour)},
	})

	snap := BuildSnapshot(merged, true, now)
	if len(snap.Meetings) != 2 || !snap.Meetings[0].IsAllDay {
		t.Errorf("all-day meeting not ordered first: %+v", snap.Meetings)
	}
	if snap.Next == nil || snap.Next.ID != "timed" {
		t.Errorf("snapshot next = %+v, want the timed meeting", snap.Next)
	}

	snap = BuildSnapshot(merged, false, now)
	if len(snap.Meetings) != 1 || snap.Meetings[0].ID != "timed" {
		t.Errorf("all-day meeting should be hidden: %+v", snap.Meetings)
	}
}

func TestDayOfStableAcrossSameDay(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	morning := time.Date(2026, 3, 10, 7, 12, 0, 0, loc)
	evening := time.Date(2026, 3, 10, 22, 48, 0, 0, loc)
	if !DayOf(morning).Equal(DayOf(evening)) {
		t.Errorf("DayOf differs across one day: %v vs %v", DayOf(morning), DayOf(evening))
	}
}
