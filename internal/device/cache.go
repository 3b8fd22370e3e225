package device

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"attendance.service/internal/core/model"
)

// cachedState is the device-local attendance view. It is a cache reconciled
// from server responses, never authoritative over them.
type cachedState struct {
	IsPunchedIn  bool                     `json:"isPunchedIn"`
	LastPunchAt  time.Time                `json:"lastPunchAt"`
	LastLocation *model.LocationSample    `json:"lastLocation,omitempty"`
	History      []model.AttendanceRecord `json:"history,omitempty"`
}

// StateCache persists the device-local state as a JSON file.
type StateCache struct {
	mu    sync.Mutex
	path  string
	state cachedState
}

// NewStateCache loads existing state from path; a missing or corrupt file
// just starts empty.
func NewStateCache(path string) *StateCache {
	c := &StateCache{path: path}
	if raw, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(raw, &c.state)
	}
	return c
}

// IsPunchedIn is the client's last known punch flag, used only to derive the
// direction to attempt. The server re-derives the legal direction regardless.
func (c *StateCache) IsPunchedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.IsPunchedIn
}

// Reconcile folds the server's authoritative punch outcome into the cache.
func (c *StateCache) Reconcile(punchedIn bool, at time.Time, loc *model.LocationSample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.IsPunchedIn = punchedIn
	c.state.LastPunchAt = at
	if loc != nil {
		c.state.LastLocation = loc
	}
	return c.flushLocked()
}

// StoreHistory caches the server's history response.
func (c *StateCache) StoreHistory(records []model.AttendanceRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.History = records
	return c.flushLocked()
}

// History returns the cached history list.
func (c *StateCache) History() []model.AttendanceRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.AttendanceRecord(nil), c.state.History...)
}

func (c *StateCache) flushLocked() error {
	raw, err := json.Marshal(c.state)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, raw, 0o600)
}
