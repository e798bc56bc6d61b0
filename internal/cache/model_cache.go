package cache

import (
	"sync"
	"time"

	"github.com/andresuchdata/wasteflow/backend-go/internal/domain"
	"github.com/andresuchdata/wasteflow/backend-go/internal/forecast"
)

// ModelState is everything a successful training run produced.
type ModelState struct {
	Model     *forecast.Model
	Residuals forecast.ResidualTable
	From      time.Time
	To        time.Time
	TrainedAt time.Time
	Result    domain.TrainResult
	// Version increases by one with every Replace.
	Version int64
}

// ModelCache holds the current model. Readers always see either the previous
// or the new state, never a mix of the two.
type ModelCache struct {
	mu      sync.RWMutex
	state   *ModelState
	version int64
}

func NewModelCache() *ModelCache {
	return &ModelCache{}
}

// TryGet returns the current state, or false when nothing has been trained.
func (c *ModelCache) TryGet() (ModelState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return ModelState{}, false
	}
	return *c.state, true
}

// Replace installs a new state and returns its version.
func (c *ModelCache) Replace(s ModelState) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
	s.Version = c.version
	c.state = &s
	return s.Version
}
