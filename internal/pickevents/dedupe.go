package pickevents

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type recentPicks struct {
	mu     sync.Mutex
	window time.Duration
	lru    *lru.Cache[string, time.Time]
}

func newRecentPicks(size int, window time.Duration) *recentPicks {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, time.Time](size)
	return &recentPicks{lru: c, window: window}
}

// returns true unless key was seen less than window before at
func (d *recentPicks) first(key string, at time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && at.Sub(last) < d.window && !at.Before(last) {
		return false
	}
	d.lru.Add(key, at)
	return true
}
