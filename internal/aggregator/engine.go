// Package aggregator runs the fan-out/fan-in refresh cycle: every enabled and
// authorized provider is fetched concurrently, results are merged into one
// ordered meeting list, and the derived snapshot is published atomically.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/upnext/upnextd/internal/cache"
	"github.com/upnext/upnextd/internal/credstore"
	"github.com/upnext/upnextd/internal/domain"
	"github.com/upnext/upnextd/internal/logger"
	"github.com/upnext/upnextd/internal/provider"
)

// fetchTimeout bounds one provider's fetch so a hung provider cannot stall the
// whole cycle.
const fetchTimeout = 15 * time.Second

// Engine aggregates meetings across providers and owns the published
// snapshot. All methods are safe for concurrent use.
type Engine struct {
	providers []provider.Provider
	byID      map[string]provider.Provider
	cache     *cache.Cache
	store     credstore.Store
	log       logger.Logger
	now       func() time.Time

	mu          sync.Mutex
	enabled     map[string]bool
	showAllDay  bool
	interval    time.Duration
	meetings    []domain.Meeting
	snapshot    domain.Snapshot
	cycleSeq    uint64
	published   uint64
	subscribers []chan domain.Snapshot
}

// New constructs an engine over the given providers. enabled carries the
// initial per-provider flags from the declaration file; persisted settings are
// applied on top via ApplySettings.
func New(providers []provider.Provider, enabled map[string]bool, c *cache.Cache, store credstore.Store, log logger.Logger) *Engine {
	byID := make(map[string]provider.Provider, len(providers))
	for _, p := range providers {
		byID[p.ID()] = p
	}
	flags := make(map[string]bool, len(enabled))
	for id, v := range enabled {
		flags[id] = v
	}
	return &Engine{
		providers: providers,
		byID:      byID,
		cache:     c,
		store:     store,
		log:       log,
		now:       time.Now,
		enabled:   flags,
	}
}

// ProviderIDs returns every registered provider id in declaration order.
func (e *Engine) ProviderIDs() []string {
	ids := make([]string, 0, len(e.providers))
	for _, p := range e.providers {
		ids = append(ids, p.ID())
	}
	return ids
}

// Provider returns the provider registered under id.
func (e *Engine) Provider(id string) (provider.Provider, bool) {
	p, ok := e.byID[id]
	return p, ok
}

// Snapshot returns the currently published snapshot.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

// Ready reports whether at least one cycle has published.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.published > 0
}

// Subscribe returns a channel that receives every published snapshot. The
// send never blocks: a slow consumer sees the latest value, not the backlog.
// Callers release the channel with Unsubscribe when done.
func (e *Engine) Subscribe() <-chan domain.Snapshot {
	ch := make(chan domain.Snapshot, 1)
	e.mu.Lock()
	e.subscribers = append(e.subscribers, ch)
	e.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel obtained from Subscribe.
func (e *Engine) Unsubscribe(ch <-chan domain.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, sub := range e.subscribers {
		if sub == ch {
			e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

type fetchResult struct {
	providerID string
	meetings   []domain.Meeting
	err        error
}

// Refresh runs one aggregation cycle for today: cache-or-fetch per enabled and
// authorized provider, merge, derive, publish. Failed providers contribute
// nothing to the list; a cycle that loses the race against a newer one drops
// its write instead of clobbering fresher data.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	e.cycleSeq++
	cycle := e.cycleSeq
	e.mu.Unlock()

	now := e.now()
	day := domain.DayOf(now)
	dayEnd := day.AddDate(0, 0, 1)

	targets := e.activeProviders()
	results := make([]fetchResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range targets {
		g.Go(func() error {
			results[i] = e.fetchOne(gctx, p, day, dayEnd)
			return nil
		})
	}
	_ = g.Wait()

	var (
		lists     [][]domain.Meeting
		successes int
		failures  []string
	)
	for _, r := range results {
		if r.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", r.providerID, r.err))
			e.log.Warn("provider fetch failed",
				logger.String("provider", r.providerID),
				logger.Error(r.err))
			continue
		}
		successes++
		lists = append(lists, r.meetings)
	}
	sort.Strings(failures)

	merged := domain.MergeMeetings(lists...)

	e.mu.Lock()
	defer e.mu.Unlock()
	if cycle < e.published {
		e.log.Debug("dropping stale cycle", logger.Int("cycle", int(cycle)))
		return ctx.Err()
	}

	snap := domain.BuildSnapshot(merged, e.showAllDay, now)
	snap.Degraded = len(failures) > 0 && successes > 0
	snap.LastError = strings.Join(failures, "; ")

	e.meetings = merged
	e.snapshot = snap
	e.published = cycle
	e.notifyLocked(snap)
	return ctx.Err()
}

// RecomputeUrgency re-derives the time-dependent snapshot fields from the held
// meeting list without touching the network. Runs between refreshes so the
// countdown stays honest.
func (e *Engine) RecomputeUrgency() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.published == 0 {
		return
	}

	snap := domain.BuildSnapshot(e.meetings, e.showAllDay, e.now())
	snap.Degraded = e.snapshot.Degraded
	snap.LastError = e.snapshot.LastError
	e.snapshot = snap
	e.notifyLocked(snap)
}

// ForceRefresh drops every cached entry and runs an immediate cycle.
func (e *Engine) ForceRefresh(ctx context.Context) error {
	e.cache.InvalidateAll()
	return e.Refresh(ctx)
}

// SetEnabled flips one provider's enabled flag. Disabling also drops the
// provider's cached results so they cannot reappear on re-enable as stale
// data. The change is persisted.
func (e *Engine) SetEnabled(ctx context.Context, providerID string, enabled bool) error {
	if _, ok := e.byID[providerID]; !ok {
		return fmt.Errorf("unknown provider %q", providerID)
	}

	e.mu.Lock()
	e.enabled[providerID] = enabled
	e.mu.Unlock()

	if !enabled {
		e.cache.Invalidate(providerID)
	}
	return e.persistSettings(ctx)
}

// Enabled reports one provider's flag.
func (e *Engine) Enabled(providerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled[providerID]
}

// Disconnect revokes a provider's credentials and drops its cached results.
// The provider stays enabled; it simply no longer contributes until
// reconnected.
func (e *Engine) Disconnect(ctx context.Context, providerID string) error {
	p, ok := e.byID[providerID]
	if !ok {
		return fmt.Errorf("unknown provider %q", providerID)
	}
	if err := p.Disconnect(ctx); err != nil {
		return err
	}
	e.cache.Invalidate(providerID)
	return nil
}

// SetShowAllDay updates the all-day visibility preference, rebuilds the
// display list from held meetings, and persists the change.
func (e *Engine) SetShowAllDay(ctx context.Context, show bool) error {
	e.mu.Lock()
	e.showAllDay = show
	if e.published > 0 {
		snap := domain.BuildSnapshot(e.meetings, show, e.now())
		snap.Degraded = e.snapshot.Degraded
		snap.LastError = e.snapshot.LastError
		e.snapshot = snap
		e.notifyLocked(snap)
	}
	e.mu.Unlock()
	return e.persistSettings(ctx)
}

// SetTTL changes the cache TTL and persists it.
func (e *Engine) SetTTL(ctx context.Context, ttl time.Duration) error {
	e.cache.SetTTL(ttl)
	return e.persistSettings(ctx)
}

// SetInterval records the user's refresh interval for persistence. The
// scheduler applies it to its cadence separately.
func (e *Engine) SetInterval(ctx context.Context, interval time.Duration) error {
	e.mu.Lock()
	e.interval = interval
	e.mu.Unlock()
	return e.persistSettings(ctx)
}

// ApplySettings overlays persisted settings on the file-declared defaults.
// Returns the persisted refresh interval (zero when unset) for the scheduler.
func (e *Engine) ApplySettings(s credstore.Settings) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.showAllDay = s.ShowAllDay
	e.interval = s.RefreshInterval
	for id, enabled := range s.Enabled {
		if _, ok := e.byID[id]; ok {
			e.enabled[id] = enabled
		}
	}
	if s.CacheTTL > 0 {
		e.cache.SetTTL(s.CacheTTL)
	}
	return s.RefreshInterval
}

func (e *Engine) persistSettings(ctx context.Context) error {
	e.mu.Lock()
	s := credstore.Settings{
		RefreshInterval: e.interval,
		CacheTTL:        e.cache.TTL(),
		ShowAllDay:      e.showAllDay,
		Enabled:         make(map[string]bool, len(e.enabled)),
	}
	for id, v := range e.enabled {
		s.Enabled[id] = v
	}
	e.mu.Unlock()

	if err := e.store.SaveSettings(ctx, s); err != nil {
		return fmt.Errorf("failed to persist settings: %w", err)
	}
	return nil
}

// activeProviders snapshots the providers that participate in this cycle:
// enabled, and either authorized or stuck on a transient error. Error-state
// providers are retried every cycle so one failed refresh or probe cannot
// strand them; unauthorized, denied and restricted providers wait for user
// action.
func (e *Engine) activeProviders() []provider.Provider {
	e.mu.Lock()
	defer e.mu.Unlock()

	var active []provider.Provider
	for _, p := range e.providers {
		if !e.enabled[p.ID()] {
			continue
		}
		switch p.Status() {
		case provider.StateAuthorized, provider.StateError:
			active = append(active, p)
		}
	}
	return active
}

func (e *Engine) fetchOne(ctx context.Context, p provider.Provider, day, dayEnd time.Time) fetchResult {
	id := p.ID()
	if cached, ok := e.cache.Get(id, day); ok {
		return fetchResult{providerID: id, meetings: cached}
	}

	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	meetings, err := p.FetchRange(fctx, day, dayEnd)
	if err != nil {
		if fctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w: %v", domain.ErrTimeout, err)
		}
		return fetchResult{providerID: id, err: err}
	}

	e.cache.Set(id, day, meetings)
	return fetchResult{providerID: id, meetings: meetings}
}

// notifyLocked pushes snap to every subscriber, replacing an unread older
// value. Callers hold e.mu.
func (e *Engine) notifyLocked(snap domain.Snapshot) {
	for _, ch := range e.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
