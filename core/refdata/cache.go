package refdata

import (
	"sync"
	"time"
)

type (
	// FormTitles is the cached {formID: formTitle} aggregate plus the time it
	// was assembled. It is eventually-stale by design: nothing invalidates it
	// automatically, callers refresh through Cache.Invalidate (wired to an
	// admin action).
	FormTitles struct {
		Titles    map[int]string
		FetchedAt time.Time
	}

	// Cache stores the form-title aggregate between requests.
	Cache interface {
		Get() (FormTitles, bool)
		Set(FormTitles)
		Invalidate()
	}
)

// MemCache is the process-wide in-memory Cache.
type MemCache struct {
	mu     sync.RWMutex
	titles FormTitles
	set    bool
}

var _ Cache = (*MemCache)(nil)

func NewMemCache() *MemCache {
	return &MemCache{}
}

func (c *MemCache) Get() (FormTitles, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.set || len(c.titles.Titles) == 0 {
		return FormTitles{}, false
	}
	return c.titles, true
}

func (c *MemCache) Set(ft FormTitles) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = ft
	c.set = true
}

func (c *MemCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = FormTitles{}
	c.set = false
}
