package engine

import (
	"time"

	"github.com/wolfinder/badges/internal/domain/evalcache"
	"github.com/wolfinder/badges/pkg/logger"
)

// Option configures an Engine.
type Option func(*Engine)

// WithCache sets the evaluation cache. The default caches nothing.
func WithCache(c evalcache.Cache) Option {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides time.Now, used for award and revoke timestamps and decay checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
