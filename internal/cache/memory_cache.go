// Package cache provides the TTL caches used for plan memoization: a
// process-local map and a file-backed variant that survives restarts.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// Store is the error-returning cache contract shared by the in-memory and
// file-backed implementations. A miss surfaces as a not-found error.
type Store interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}) error
}

const sweepInterval = 10 * time.Minute

// InMemoryCache is a mutex-guarded TTL cache. Expired entries are refused
// on read and swept in the background.
type InMemoryCache struct {
	mutex  sync.RWMutex
	items  map[string]memoryItem
	ttl    time.Duration
	logger Logger
}

type memoryItem struct {
	value     interface{}
	expiresAt time.Time
}

func (it memoryItem) expired(now time.Time) bool {
	return now.After(it.expiresAt)
}

// NewInMemoryCache creates a cache whose entries live for defaultTTL.
func NewInMemoryCache(defaultTTL time.Duration, logger Logger) *InMemoryCache {
	if logger == nil {
		logger = NewZapLogger(nil)
	}
	c := &InMemoryCache{
		items:  make(map[string]memoryItem),
		ttl:    defaultTTL,
		logger: logger,
	}
	go c.sweep()
	return c
}

// Get returns the cached value, or a not-found error for missing and
// expired keys.
func (c *InMemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return nil, err
	}

	c.mutex.RLock()
	item, found := c.items[key]
	c.mutex.RUnlock()

	if !found {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item not found", nil))
	}
	if item.expired(time.Now()) {
		c.logger.Info("cache item expired", map[string]interface{}{"key": key})
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item expired", nil))
	}
	return item.value, nil
}

// Set stores a value under the default TTL, replacing any prior entry.
func (c *InMemoryCache) Set(ctx context.Context, key string, value interface{}) error {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return err
	}

	c.mutex.Lock()
	c.items[key] = memoryItem{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mutex.Unlock()
	return nil
}

func (c *InMemoryCache) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for now := range ticker.C {
		c.mutex.Lock()
		for key, item := range c.items {
			if item.expired(now) {
				delete(c.items, key)
			}
		}
		c.mutex.Unlock()
	}
}
