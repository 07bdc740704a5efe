package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process ViewCache with a background sweeper.
type MemoryCache struct {
	store sync.Map
	ttl   time.Duration
	now   func() time.Time

	// mu orders Set against Revalidate for the generation check.
	mu   sync.Mutex
	gens map[string]uint64

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type cacheItem struct {
	value      []byte
	expiration time.Time
}

// NewMemoryCache starts a cache whose entries live for ttl. Expired entries
// are swept every sweepEvery.
func NewMemoryCache(ttl, sweepEvery time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	cache := &MemoryCache{
		ttl:  ttl,
		now:  time.Now,
		gens: make(map[string]uint64),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go cache.cleanup(sweepEvery)

	return cache
}

func (c *MemoryCache) Generation(_ context.Context, userID string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[userID], nil
}

// Set stores view unless the user's views were revalidated after gen was read.
func (c *MemoryCache) Set(_ context.Context, userID, path string, gen uint64, view []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[userID] != gen {
		return nil
	}

	stored := make([]byte, len(view))
	copy(stored, view)
	c.store.Store(Key(userID, path), &cacheItem{
		value:      stored,
		expiration: c.now().Add(c.ttl),
	})
	return nil
}

func (c *MemoryCache) Get(_ context.Context, userID, path string) ([]byte, bool, error) {
	key := Key(userID, path)
	item, exists := c.store.Load(key)
	if !exists {
		return nil, false, nil
	}

	cached := item.(*cacheItem)
	if c.now().After(cached.expiration) {
		c.store.Delete(key)
		return nil, false, nil
	}

	return cached.value, true, nil
}

func (c *MemoryCache) Revalidate(_ context.Context, userID string, paths ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[userID]++
	for _, path := range paths {
		c.store.Delete(Key(userID, path))
	}
	return nil
}

// Len counts stored entries, expired ones included until swept.
func (c *MemoryCache) Len() int {
	count := 0
	c.store.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (c *MemoryCache) sweep() {
	now := c.now()
	c.store.Range(func(key, value interface{}) bool {
		if now.After(value.(*cacheItem).expiration) {
			c.store.Delete(key)
		}
		return true
	})
}

func (c *MemoryCache) cleanup(every time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

// Close stops the sweeper. It is safe to call more than once.
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
	return nil
}
