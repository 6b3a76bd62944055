package domain

import (
	"sort"
	"time"
)

// DefaultTitle is substituted when a provider returns an event without a title.
const DefaultTitle = "Untitled event"

// Meeting is the canonical event representation shared by all providers.
//
// A Meeting is a value: it is rebuilt wholesale on every successful fetch and
// never mutated after construction. ID is namespaced by provider (see
// MeetingID) so events from different providers can never collide.
type Meeting struct {
	// ID is globally unique: "<providerID>:<provider event id>".
	ID string `json:"id"`

	// Title is never empty; DefaultTitle is substituted at mapping time.
	Title string `json:"title"`

	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`

	// IsAllDay marks day-granular events; StartTime/EndTime are then
	// midnight-aligned.
	IsAllDay bool `json:"isAllDay"`

	Location string `json:"location,omitempty"`

	// JoinURL is the extracted video-conference link, empty when none was
	// recognized.
	JoinURL string `json:"joinUrl,omitempty"`

	// Provenance metadata, display-only.
	Provider      string `json:"provider"`
	CalendarName  string `json:"calendarName,omitempty"`
	CalendarColor string `json:"calendarColor,omitempty"`
}

// MeetingID builds the provider-namespaced event ID.
func MeetingID(providerID, rawID string) string {
	return providerID + ":" + rawID
}

// TitleOrDefault returns title, or DefaultTitle when title is empty.
func TitleOrDefault(title string) string {
	if title == "" {
		return DefaultTitle
	}
	return title
}

// InProgress reports whether the meeting has started but not yet ended at now.
func (m Meeting) InProgress(now time.Time) bool {
	return !m.StartTime.After(now) && m.EndTime.After(now)
}

// Ended reports whether the meeting is over at now.
func (m Meeting) Ended(now time.Time) bool {
	return !m.EndTime.After(now)
}

// MergeMeetings concatenates per-provider lists and stable-sorts the result
// ascending by start time. Cross-provider ties keep their input order, so
// repeated merges of the same input always produce the same output.
func MergeMeetings(lists ...[]Meeting) []Meeting {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	merged := make([]Meeting, 0, total)
	for _, l := range lists {
		merged = append(merged, l...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].StartTime.Before(merged[j].StartTime)
	})
	return merged
}

// PartitionAllDay splits meetings into the all-day and timed groups,
// preserving order within each group.
func PartitionAllDay(meetings []Meeting) (allDay, timed []Meeting) {
	for _, m := range meetings {
		if m.IsAllDay {
			allDay = append(allDay, m)
		} else {
			timed = append(timed, m)
		}
	}
	return allDay, timed
}

// NextMeeting picks the meeting a consumer should care about: the earliest
// timed meeting that has not started yet, falling back to the earliest timed
// meeting currently in progress. All-day and ended meetings never qualify.
// Returns nil when nothing remains.
func NextMeeting(meetings []Meeting, now time.Time) *Meeting {
	var upcoming, inProgress *Meeting
	for i := range meetings {
		m := &meetings[i]
		if m.IsAllDay || m.Ended(now) {
			continue
		}
		if !m.StartTime.Before(now) {
			if upcoming == nil || m.StartTime.Before(upcoming.StartTime) {
				upcoming = m
			}
			continue
		}
		if inProgress == nil || m.StartTime.Before(inProgress.StartTime) {
			inProgress = m
		}
	}
	if upcoming != nil {
		out := *upcoming
		return &out
	}
	if inProgress != nil {
		out := *inProgress
		return &out
	}
	return nil
}

// DayOf returns the midnight-aligned day boundary containing t, in t's
// location. Cache keys derive from this so that repeated same-day queries
// issued at different wall-clock times share one entry.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
