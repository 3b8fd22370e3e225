package location

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"attendance.service/internal/core/model"
	"attendance.service/internal/geofence"
)

// RefreshFunc acquires a new position from the platform location API.
type RefreshFunc func(ctx context.Context) (model.LocationSample, error)

// Scheduler abstracts timer scheduling so the polling policy can be driven
// deterministically in tests. Schedule returns a cancel func for the single
// pending timer.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) (cancel func())
}

// TimerScheduler is the real implementation over time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(delay time.Duration, fn func()) func() {
	t := time.AfterFunc(delay, fn)
	return func() { t.Stop() }
}

// Config bounds the adaptive polling policy.
type Config struct {
	// StaleThreshold is the maximum sample age still considered fresh for
	// background gating. The boundary is closed.
	StaleThreshold time.Duration
	// MinInterval and MaxInterval bound the adaptive refresh interval.
	MinInterval time.Duration
	MaxInterval time.Duration
	// MovementThresholdMeters resets the interval to MinInterval when the
	// device moved at least this far since the previous sample.
	MovementThresholdMeters float64
}

// Tracker caches the last known position and decides whether it is still
// trustworthy enough to gate a punch. It drives a battery-conscious refresh
// schedule: the interval shrinks when the device is moving and grows when it
// is parked or when the location API is failing. This is a scheduling policy,
// not a correctness guarantee; the punch path always re-validates freshness
// synchronously.
type Tracker struct {
	mu      sync.Mutex
	cfg     Config
	refresh RefreshFunc
	sched   Scheduler
	now     func() time.Time

	last       *model.LocationSample
	lastUpdate time.Time
	failed     bool
	interval   time.Duration
	cancel     func()
	running    bool
}

// NewTracker creates a tracker. A nil scheduler gets the real timer.
func NewTracker(cfg Config, refresh RefreshFunc, sched Scheduler) *Tracker {
	if sched == nil {
		sched = TimerScheduler{}
	}
	return &Tracker{
		cfg:      cfg,
		refresh:  refresh,
		sched:    sched,
		now:      time.Now,
		interval: cfg.MinInterval,
	}
}

// Start performs an immediate refresh and begins the polling loop.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	t.running = true
	t.mu.Unlock()

	t.refreshOnce(ctx)
}

// Stop cancels the pending timer. The cached sample stays usable until stale.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// Fresh reports whether the cached sample is recent enough for background
// gating. A sample aged exactly at the threshold is still fresh.
func (t *Tracker) Fresh() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.freshLocked(t.cfg.StaleThreshold)
}

// FreshWithin applies a caller-supplied threshold, used for the tighter
// at-punch check.
func (t *Tracker) FreshWithin(threshold time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.freshLocked(threshold)
}

func (t *Tracker) freshLocked(threshold time.Duration) bool {
	if t.last == nil || t.failed {
		return false
	}
	return t.now().Sub(t.lastUpdate) <= threshold
}

// Last returns the cached sample, if any.
func (t *Tracker) Last() (model.LocationSample, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return model.LocationSample{}, false
	}
	return *t.last, true
}

// Interval exposes the current polling interval.
func (t *Tracker) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// RefreshNow forces a synchronous refresh, used at punch time when the cache
// is stale. It feeds the adaptive policy the same way a scheduled refresh does.
func (t *Tracker) RefreshNow(ctx context.Context) (model.LocationSample, error) {
	sample, err := t.refresh(ctx)
	t.observe(sample, err)
	if err != nil {
		return model.LocationSample{}, err
	}
	return sample, nil
}

func (t *Tracker) refreshOnce(ctx context.Context) {
	sample, err := t.refresh(ctx)
	t.observe(sample, err)
	if err != nil {
		log.Debug().Err(err).Msg("Location refresh failed")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	delay := t.interval
	t.cancel = t.sched.Schedule(delay, func() { t.refreshOnce(ctx) })
}

// observe folds a refresh outcome into the tracker state and adapts the
// polling interval.
func (t *Tracker) observe(sample model.LocationSample, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		// Back off instead of hot-looping on a failing location API, and
		// stop trusting the cache.
		t.failed = true
		t.growIntervalLocked()
		return
	}

	moved := t.last != nil && geofence.Distance(
		sample.Latitude, sample.Longitude,
		t.last.Latitude, t.last.Longitude,
	) > t.cfg.MovementThresholdMeters

	if t.last == nil || moved {
		t.interval = t.cfg.MinInterval
	} else {
		t.growIntervalLocked()
	}

	s := sample
	t.last = &s
	t.lastUpdate = t.now()
	t.failed = false
}

func (t *Tracker) growIntervalLocked() {
	next := t.interval * 2
	if next < t.cfg.MinInterval {
		next = t.cfg.MinInterval
	}
	if next > t.cfg.MaxInterval {
		next = t.cfg.MaxInterval
	}
	t.interval = next
}
