package myelectric

import (
	"context"
	"sync"
	"time"

	"github.com/emonview/emonview/pkg/types"
)

// startOfDayCache remembers the cumulative reading at midnight for the kWh
// feed. It holds a single entry that is reused only on the same calendar day
// and for the same feed; anything else triggers a new lookup that replaces it.
type startOfDayCache struct {
	mu     sync.Mutex
	day    time.Time
	feedID string
	value  types.DataPoint
	valid  bool
}

// baseline returns the cached value for midnight or calls fetch and caches its
// result. The lock is held during fetch so concurrent callers share one lookup.
func (c *startOfDayCache) baseline(ctx context.Context, feedID string, midnight time.Time, fetch func(ctx context.Context) (types.DataPoint, error)) (types.DataPoint, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.feedID == feedID && c.day.Equal(midnight) {
		return c.value, true, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		return types.DataPoint{}, false, err
	}
	c.day = midnight
	c.feedID = feedID
	c.value = v
	c.valid = true
	return v, false, nil
}
