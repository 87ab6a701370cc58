package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow-inc/docuflow-engine/pkg/models"
)

const (
	// DefaultTTL is how long a merged rule set stays valid.
	DefaultTTL = 5 * time.Minute
	// DefaultCleanupInterval is how often expired entries are swept.
	DefaultCleanupInterval = 1 * time.Minute
)

// memoryEntry holds one cached rule set with its expiry.
type memoryEntry struct {
	ruleSet   *models.EffectiveRuleSet
	expiresAt time.Time
}

// MemoryCache is an in-process RuleSetCache with TTL expiry and a background
// sweep goroutine that runs until Close is called.
type MemoryCache struct {
	mu       sync.RWMutex
	entries  map[Key]*memoryEntry
	ttl      time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache creates a memory cache with the given TTL (DefaultTTL when
// non-positive) and starts its cleanup goroutine.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &MemoryCache{
		entries:  make(map[Key]*memoryEntry),
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Get returns the cached rule set for key if present and not expired.
func (c *MemoryCache) Get(_ context.Context, key Key) (*models.EffectiveRuleSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		// Expired entries are left for the sweeper.
		return nil, false
	}
	return entry.ruleSet, true
}

// Set stores a rule set under key with the cache TTL.
func (c *MemoryCache) Set(_ context.Context, key Key, ruleSet *models.EffectiveRuleSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &memoryEntry{
		ruleSet:   ruleSet,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Invalidate drops the entry for key, if any.
func (c *MemoryCache) Invalidate(_ context.Context, key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateCompany drops every entry for one company.
func (c *MemoryCache) InvalidateCompany(_ context.Context, companyID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.CompanyID == companyID {
			delete(c.entries, key)
		}
	}
}

// InvalidateFormat drops every entry for one document format.
func (c *MemoryCache) InvalidateFormat(_ context.Context, formatID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.DocumentFormatID == formatID {
			delete(c.entries, key)
		}
	}
}

// Clear drops every entry.
func (c *MemoryCache) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*memoryEntry)
}

// Len returns the number of entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (c *MemoryCache) Close() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}

// sweep removes expired entries on a fixed interval.
func (c *MemoryCache) sweep() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
