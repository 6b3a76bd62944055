package scheduler

import (
	"context"
	"time"
)

// UrgencyInterval is how often the countdown-derived fields are recomputed
// between refreshes.
const UrgencyInterval = 30 * time.Second

// UrgencyTicker periodically re-derives next meeting and urgency from the
// meetings already held by the engine. It never touches the network.
type UrgencyTicker struct {
	engine   Engine
	interval time.Duration
	stopCh   chan struct{}
}

// NewUrgencyTicker creates an urgency ticker. interval zero means
// UrgencyInterval.
func NewUrgencyTicker(engine Engine, interval time.Duration) *UrgencyTicker {
	if interval == 0 {
		interval = UrgencyInterval
	}
	return &UrgencyTicker{
		engine:   engine,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic recompute process.
func (u *UrgencyTicker) Start(ctx context.Context) error {
	ticker := time.NewTicker(u.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				u.engine.RecomputeUrgency()
			case <-u.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop stops the ticker.
func (u *UrgencyTicker) Stop() {
	close(u.stopCh)
}
