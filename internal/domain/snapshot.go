package domain

import "time"

// Snapshot is the published aggregate state: one consistent view per refresh
// cycle. It is immutable once published; a new cycle replaces it wholesale.
type Snapshot struct {
	GeneratedAt time.Time `json:"generatedAt"`

	// Meetings is today's merged list arranged for display: the all-day
	// group (when shown) ahead of the timed group, each sorted by start.
	Meetings []Meeting `json:"meetings"`

	// Next is the meeting NextMeeting selected, nil when none remains.
	Next *Meeting `json:"next,omitempty"`

	// MinutesUntilNext is floored minutes until Next starts; negative while
	// Next is in progress, zero when Next is nil.
	MinutesUntilNext int `json:"minutesUntilNext"`

	Urgency Urgency `json:"urgency"`

	// Degraded is set when at least one enabled provider failed to fetch
	// while another one still contributed data.
	Degraded bool `json:"degraded"`

	// LastError is a short human-readable summary of the most recent cycle's
	// provider failures, empty after a fully successful refresh.
	LastError string `json:"lastError,omitempty"`
}

// BuildSnapshot derives the display list and next-meeting fields from a merged
// meeting set. The merged input must already be sorted (see MergeMeetings).
func BuildSnapshot(merged []Meeting, showAllDay bool, now time.Time) Snapshot {
	allDay, timed := PartitionAllDay(merged)

	display := timed
	if showAllDay && len(allDay) > 0 {
		display = make([]Meeting, 0, len(allDay)+len(timed))
		display = append(display, allDay...)
		display = append(display, timed...)
	}

	next := NextMeeting(merged, now)
	return Snapshot{
		GeneratedAt:      now,
		Meetings:         display,
		Next:             next,
		MinutesUntilNext: MinutesUntil(next, now),
		Urgency:          UrgencyFor(next, now),
	}
}
