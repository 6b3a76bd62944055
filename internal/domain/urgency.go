package domain

import "time"

// Urgency classifies how soon the next meeting starts.
type Urgency int

const (
	// UrgencyNone means there is no upcoming or in-progress meeting.
	UrgencyNone Urgency = iota
	// UrgencyNormal: 30 minutes or more away, or already in progress.
	UrgencyNormal
	// UrgencyApproaching: starts in [15, 30) minutes.
	UrgencyApproaching
	// UrgencySoon: starts in [5, 15) minutes.
	UrgencySoon
	// UrgencyImminent: starts in less than 5 minutes.
	UrgencyImminent
)

func (u Urgency) String() string {
	switch u {
	case UrgencyNormal:
		return "normal"
	case UrgencyApproaching:
		return "approaching"
	case UrgencySoon:
		return "soon"
	case UrgencyImminent:
		return "imminent"
	default:
		return "none"
	}
}

// MarshalText makes Urgency render as its name in JSON payloads.
func (u Urgency) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UrgencyFor maps minutes-until-start of next onto an Urgency level.
//
// Boundaries are left-closed on floored minutes: <5 imminent, [5,15) soon,
// [15,30) approaching, >=30 normal. A meeting that already started (the
// in-progress fallback) is always normal, never escalated.
func UrgencyFor(next *Meeting, now time.Time) Urgency {
	if next == nil {
		return UrgencyNone
	}
	if next.StartTime.Before(now) {
		return UrgencyNormal
	}
	minutes := int(next.StartTime.Sub(now) / time.Minute)
	switch {
	case minutes < 5:
		return UrgencyImminent
	case minutes < 15:
		return UrgencySoon
	case minutes < 30:
		return UrgencyApproaching
	default:
		return UrgencyNormal
	}
}

// MinutesUntil returns floored whole minutes from now until the meeting
// starts; negative once the meeting has started.
func MinutesUntil(next *Meeting, now time.Time) int {
	if next == nil {
		return 0
	}
	d := next.StartTime.Sub(now)
	if d < 0 {
		return -int(-d / time.Minute)
	}
	return int(d / time.Minute)
}
