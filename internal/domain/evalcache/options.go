package evalcache

import "time"

// DefaultTTL is how long an evaluation stays fresh.
const DefaultTTL = 5 * time.Minute

// Option applies a configuration option to the MemoryCache.
type Option func(*MemoryCache)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *MemoryCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCleanupInterval starts a janitor that drops expired entries every interval.
func WithCleanupInterval(interval time.Duration) Option {
	return func(c *MemoryCache) {
		if interval > 0 {
			c.cleanupInterval = interval
		}
	}
}
