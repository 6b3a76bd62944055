package domain

import (
	"testing"
	"time"
)

func TestUrgencyForBoundaries(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		minutesAway  int
		want         Urgency
	}{
		{"starts now", 0, UrgencyImminent},
		{"4 minutes away", 4, UrgencyImminent},
		{"5 minute boundary", 5, UrgencySoon},
		{"14 minutes away", 14, UrgencySoon},
		{"15 minute boundary", 15, UrgencyApproaching},
		{"29 minutes away", 29, UrgencyApproaching},
		{"30 minute boundary", 30, UrgencyNormal},
		{"hours away", 240, UrgencyNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Meeting{
				ID:        "google:evt",
				Title:     "standup",
				StartTime: now.Add(time.Duration(tt.minutesAway) * time.Minute),
				EndTime:   now.Add(time.Duration(tt.minutesAway+30) * time.Minute),
			}
			if got := UrgencyFor(m, now); got != tt.want {
				t.Errorf("UrgencyFor(+%dm) = %v, want %v", tt.minutesAway, got, tt.want)
			}
		})
	}
}

func TestUrgencyForSubMinuteBoundary(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// 4m59s floors to 4 minutes -> still imminent; 5m01s floors to 5 -> soon.
	m := &Meeting{StartTime: now.Add(4*time.Minute + 59*time.Second), EndTime: now.Add(time.Hour)}
	if got := UrgencyFor(m, now); got != UrgencyImminent {
		t.Errorf("UrgencyFor(4m59s) = %v, want imminent", got)
	}
	m = &Meeting{StartTime: now.Add(5*time.Minute + 1*time.Second), EndTime: now.Add(time.Hour)}
	if got := UrgencyFor(m, now); got != UrgencySoon {
		t.Errorf("UrgencyFor(5m01s) = %v, want soon", got)
	}
}

func TestUrgencyForInProgressNeverEscalates(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	m := &Meeting{
		StartTime: now.Add(-10 * time.Minute),
		EndTime:   now.Add(20 * time.Minute),
	}
	if got := UrgencyFor(m, now); got != UrgencyNormal {
		t.Errorf("UrgencyFor(in progress) = %v, want normal", got)
	}
}

func TestUrgencyForNoMeeting(t *testing.T) {
	if got := UrgencyFor(nil, time.Now()); got != UrgencyNone {
		t.Errorf("UrgencyFor(nil) = %v, want none", got)
	}
}

func TestMinutesUntil(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	m := &Meeting{StartTime: now.Add(16*time.Minute + 30*time.Second)}
	if got := MinutesUntil(m, now); got != 16 {
		t.Errorf("MinutesUntil(+16m30s) = %d, want 16", got)
	}
	m = &Meeting{StartTime: now.Add(-3*time.Minute - 30*time.Second)}
	if got := MinutesUntil(m, now); got != -3 {
		t.Errorf("MinutesUntil(-3m30s) = %d, want -3", got)
	}
	if got := MinutesUntil(nil, now); got != 0 {
		t.Errorf("MinutesUntil(nil) = %d, want 0", got)
	}
}
