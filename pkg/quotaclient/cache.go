package quotaclient

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// cacheState is the JSON document persisted between runs. The counter only
// ever applies to the date it was recorded for; a new day starts from zero.
type cacheState struct {
	DeviceID        string `json:"device_id"`
	Date            string `json:"date"` // UTC, YYYY-MM-DD
	GenerationsUsed int    `json:"generations_used"`
}

// fallbackCache is a date-scoped local usage counter persisted to a JSON
// file. It is non-authoritative: a user can delete the file, so the server
// remains the source of truth and this cache only softens offline checks.
type fallbackCache struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func newFallbackCache(stateDir string, now func() time.Time) *fallbackCache {
	return &fallbackCache{
		path: filepath.Join(stateDir, "quota_cache.json"),
		now:  now,
	}
}

// used returns the locally counted generations for the current UTC day.
// A stale or unreadable file reads as zero.
func (c *fallbackCache) used(deviceID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.load()
	if err != nil {
		return 0
	}
	if state.DeviceID != deviceID || state.Date != c.today() {
		return 0
	}
	return state.GenerationsUsed
}

// set overwrites the local counter with the server's authoritative count.
func (c *fallbackCache) set(deviceID string, used int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.store(&cacheState{
		DeviceID:        deviceID,
		Date:            c.today(),
		GenerationsUsed: used,
	})
}

func (c *fallbackCache) today() string {
	return c.now().UTC().Format("2006-01-02")
}

func (c *fallbackCache) load() (*cacheState, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}
	var state cacheState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *fallbackCache) store(state *cacheState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0600)
}
