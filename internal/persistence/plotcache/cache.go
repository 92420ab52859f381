package plotcache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"plotkeeper.ai/internal/plot"
)

// Observer receives hit/miss notifications.
type Observer interface {
	CacheHit()
	CacheMiss()
}

// Cache holds the last observed Plot (sentinels included) per cell.
// A nil *Cache, or one built with size <= 0, caches nothing.
type Cache struct {
	lru *lru.Cache[plot.Key, plot.Plot]
	obs Observer
}

func New(size int, obs Observer) (*Cache, error) {
	c := &Cache{obs: obs}
	if size <= 0 {
		return c, nil
	}
	l, err := lru.New[plot.Key, plot.Plot](size)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

func (c *Cache) Enabled() bool { return c != nil && c.lru != nil }

func (c *Cache) Get(level string, x, z int) (plot.Plot, bool) {
	if !c.Enabled() {
		return plot.Plot{}, false
	}
	p, ok := c.lru.Get(plot.Key{Level: level, X: x, Z: z})
	if c.obs != nil {
		if ok {
			c.obs.CacheHit()
		} else {
			c.obs.CacheMiss()
		}
	}
	if !ok {
		return plot.Plot{}, false
	}
	return p.Clone(), true
}

// Put stores p under its cell, replacing any previous entry. When the cache is
// full the least recently used entry is evicted.
func (c *Cache) Put(p plot.Plot) {
	if !c.Enabled() {
		return
	}
	c.lru.Add(p.Key(), p.Clone())
}

func (c *Cache) Len() int {
	if !c.Enabled() {
		return 0
	}
	return c.lru.Len()
}

// Peek is Get without side effects: no observer call and no change to the
// eviction order.
func (c *Cache) Peek(level string, x, z int) (plot.Plot, bool) {
	if !c.Enabled() {
		return plot.Plot{}, false
	}
	p, ok := c.lru.Peek(plot.Key{Level: level, X: x, Z: z})
	if !ok {
		return plot.Plot{}, false
	}
	return p.Clone(), true
}
