package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"attendance.service/internal/core/model"
	"attendance.service/internal/device/location"
	"attendance.service/internal/geofence"
)

var (
	// ErrOutsideGeofence blocks a punch before any network or identity call.
	ErrOutsideGeofence = errors.New("outside office geofence")
	// ErrStaleLocation means no fresh sample could be obtained even after a
	// forced refresh.
	ErrStaleLocation = errors.New("location could not be refreshed")
	// ErrBiometricDenied means the user failed the device prompt.
	ErrBiometricDenied = errors.New("device authentication denied")
	// ErrBiometricUnavailable blocks when policy demands a working gate.
	ErrBiometricUnavailable = errors.New("device authentication unavailable")
	// ErrFaceNotMatched is the server's business rejection of the capture.
	ErrFaceNotMatched = errors.New("face not matched")
)

// Config is the device-side punch policy.
type Config struct {
	Geofence model.OfficeGeofence
	// PunchFreshness is the tighter at-punch staleness bound; a stale cache
	// forces a synchronous refresh before the punch can proceed.
	PunchFreshness time.Duration
	GatePolicy     UnavailablePolicy
	PromptText     string
}

// PunchStatus is what the UI shows after a punch attempt resolves.
type PunchStatus struct {
	Direction model.PunchDirection
	Message   string
}

// Coordinator runs the device half of the punch protocol: location gating,
// biometric gate, then the face-match punch call, reconciling the local cache
// from the server's authoritative answer. A single in-flight guard keeps a
// retry-happy UI from dispatching the same intent twice while one is pending.
type Coordinator struct {
	api     API
	tracker *location.Tracker
	gate    BiometricGate
	cache   *StateCache
	cfg     Config

	inflight singleflight.Group
}

// NewCoordinator wires the coordinator's collaborators.
func NewCoordinator(api API, tracker *location.Tracker, gate BiometricGate, cache *StateCache, cfg Config) *Coordinator {
	if gate == nil {
		gate = NopGate{}
	}
	return &Coordinator{
		api:     api,
		tracker: tracker,
		gate:    gate,
		cache:   cache,
		cfg:     cfg,
	}
}

// Punch attempts a punch for the employee. Concurrent calls for the same
// employee collapse onto one in-flight request.
func (c *Coordinator) Punch(ctx context.Context, employeeID string, image []byte) (PunchStatus, error) {
	v, err, _ := c.inflight.Do(employeeID, func() (interface{}, error) {
		return c.punch(ctx, employeeID, image)
	})
	if err != nil {
		return PunchStatus{}, err
	}
	return v.(PunchStatus), nil
}

func (c *Coordinator) punch(ctx context.Context, employeeID string, image []byte) (PunchStatus, error) {
	sample, err := c.currentLocation(ctx)
	if err != nil {
		return PunchStatus{}, err
	}

	// Geofence gating happens before any identity or network call.
	if !geofence.IsWithin(sample, c.cfg.Geofence) {
		return PunchStatus{}, ErrOutsideGeofence
	}

	if err := c.runGate(ctx); err != nil {
		return PunchStatus{}, err
	}

	// Direction is derived from the last known flag; the server is
	// authoritative and will reject a contradiction.
	direction := model.DirectionIn
	if c.cache.IsPunchedIn() {
		direction = model.DirectionOut
	}

	resp, err := c.api.MatchAndPunch(ctx, employeeID, direction, image, sample)
	if err != nil {
		var rej *ServerRejectionError
		if errors.As(err, &rej) && !rej.Matched {
			return PunchStatus{}, fmt.Errorf("%w: %s", ErrFaceNotMatched, rej.Message)
		}
		return PunchStatus{}, err
	}
	if !resp.Matched {
		return PunchStatus{}, fmt.Errorf("%w: %s", ErrFaceNotMatched, resp.Message)
	}

	if err := c.cache.Reconcile(direction == model.DirectionIn, time.Now(), &sample); err != nil {
		return PunchStatus{}, fmt.Errorf("failed to persist local state: %w", err)
	}

	return PunchStatus{Direction: direction, Message: resp.Message}, nil
}

// currentLocation returns a punch-fresh sample, forcing a synchronous refresh
// when the cache is stale.
func (c *Coordinator) currentLocation(ctx context.Context) (model.LocationSample, error) {
	if c.tracker.FreshWithin(c.cfg.PunchFreshness) {
		if sample, ok := c.tracker.Last(); ok {
			return sample, nil
		}
	}

	sample, err := c.tracker.RefreshNow(ctx)
	if err != nil {
		return model.LocationSample{}, fmt.Errorf("%w: %v", ErrStaleLocation, err)
	}
	return sample, nil
}

func (c *Coordinator) runGate(ctx context.Context) error {
	result, err := c.gate.Authenticate(ctx, c.cfg.PromptText)
	if err != nil {
		return fmt.Errorf("biometric gate: %w", err)
	}
	switch result {
	case GateDenied:
		return ErrBiometricDenied
	case GateUnavailable:
		if c.cfg.GatePolicy == UnavailableBlocks {
			return ErrBiometricUnavailable
		}
	}
	return nil
}

// SyncHistory refreshes the cached month history from the server.
func (c *Coordinator) SyncHistory(ctx context.Context, employeeID string, month time.Month, year int) ([]model.AttendanceRecord, error) {
	records, err := c.api.History(ctx, employeeID, month, year)
	if err != nil {
		// Degrade to the cached copy; it is a cache, not the truth.
		if cached := c.cache.History(); len(cached) > 0 {
			return cached, nil
		}
		return nil, err
	}
	if err := c.cache.StoreHistory(records); err != nil {
		return nil, err
	}
	return records, nil
}
