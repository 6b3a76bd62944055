// Package scheduler drives the aggregation engine: an adaptive refresh loop
// whose cadence follows UI visibility and remaining meetings, and a fixed
// ticker that keeps the urgency countdown honest between refreshes.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/upnext/upnextd/internal/domain"
	"github.com/upnext/upnextd/internal/logger"
)

const (
	// VisibleInterval applies while a UI reports itself visible.
	VisibleInterval = 30 * time.Second
	// IdleInterval applies when no meetings remain today and nothing is
	// watching.
	IdleInterval = 300 * time.Second
	// DefaultInterval is the user interval before any configuration.
	DefaultInterval = 60 * time.Second

	// MinInterval and MaxInterval clamp the user-configured interval.
	MinInterval = 30 * time.Second
	MaxInterval = 600 * time.Second
)

// ErrRefreshPending is returned by Force when a forced refresh is already
// queued and not yet started.
var ErrRefreshPending = errors.New("a forced refresh is already pending")

// Engine is the part of the aggregator the schedulers drive.
type Engine interface {
	Refresh(ctx context.Context) error
	ForceRefresh(ctx context.Context) error
	Snapshot() domain.Snapshot
	RecomputeUrgency()
}

// Refresher handles periodic aggregation with an adaptive cadence.
type Refresher struct {
	engine Engine
	logger logger.Logger

	mu             sync.Mutex
	userInterval   time.Duration
	uiVisible      bool
	meetingsRemain bool

	wakeCh  chan struct{}
	forceCh chan struct{}
	stopCh  chan struct{}
}

// NewRefresher creates a refresher. userInterval zero means DefaultInterval.
func NewRefresher(engine Engine, log logger.Logger, userInterval time.Duration) *Refresher {
	if userInterval == 0 {
		userInterval = DefaultInterval
	}
	return &Refresher{
		engine:       engine,
		logger:       log,
		userInterval: userInterval,
		wakeCh:       make(chan struct{}, 1),
		forceCh:      make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}
}

// Start runs an immediate first cycle, then begins the periodic loop.
func (r *Refresher) Start(ctx context.Context) error {
	if err := r.engine.Refresh(ctx); err != nil {
		r.logger.Warn("initial refresh failed", logger.Error(err))
	}
	r.observeSnapshot()

	go r.loop(ctx)
	return nil
}

// Stop stops the refresher.
func (r *Refresher) Stop() {
	close(r.stopCh)
}

// Force queues an immediate refresh that bypasses the cache and the cadence.
// Returns ErrRefreshPending when one is already queued.
func (r *Refresher) Force() error {
	select {
	case r.forceCh <- struct{}{}:
		return nil
	default:
		return ErrRefreshPending
	}
}

// SetUIVisible records whether a UI is watching; visibility pins the cadence
// to VisibleInterval.
func (r *Refresher) SetUIVisible(visible bool) {
	r.mu.Lock()
	changed := r.uiVisible != visible
	r.uiVisible = visible
	r.mu.Unlock()
	if changed {
		r.wake()
	}
}

// SetInterval updates the user-configured interval; the clamp to
// [MinInterval, MaxInterval] happens at cadence computation.
func (r *Refresher) SetInterval(interval time.Duration) {
	if interval == 0 {
		interval = DefaultInterval
	}
	r.mu.Lock()
	changed := r.userInterval != interval
	r.userInterval = interval
	r.mu.Unlock()
	if changed {
		r.wake()
	}
}

func (r *Refresher) loop(ctx context.Context) {
	running := r.cadence()
	ticker := time.NewTicker(running)
	defer ticker.Stop()

	rearm := func() {
		if desired := r.cadence(); desired != running {
			r.logger.Debug("refresh cadence changed",
				logger.Duration("from", running),
				logger.Duration("to", desired))
			running = desired
			ticker.Reset(desired)
		}
	}

	for {
		select {
		case <-ticker.C:
			if err := r.engine.Refresh(ctx); err != nil {
				r.logger.Error("scheduled refresh failed", logger.Error(err))
			}
			r.observeSnapshot()
			rearm()
		case <-r.forceCh:
			r.logger.Info("forced refresh triggered")
			if err := r.engine.ForceRefresh(ctx); err != nil {
				r.logger.Error("forced refresh failed", logger.Error(err))
			}
			r.observeSnapshot()
			rearm()
		case <-r.wakeCh:
			rearm()
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cadence computes the desired interval from current inputs. Visibility wins,
// an exhausted day slows down, otherwise the clamped user interval applies.
func (r *Refresher) cadence() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.uiVisible {
		return VisibleInterval
	}
	if !r.meetingsRemain {
		return IdleInterval
	}
	return clamp(r.userInterval)
}

// observeSnapshot feeds the published snapshot back into cadence selection.
func (r *Refresher) observeSnapshot() {
	snap := r.engine.Snapshot()
	r.mu.Lock()
	r.meetingsRemain = snap.Next != nil
	r.mu.Unlock()
}

func (r *Refresher) wake() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

func clamp(d time.Duration) time.Duration {
	if d < MinInterval {
		return MinInterval
	}
	if d > MaxInterval {
		return MaxInterval
	}
	return d
}
