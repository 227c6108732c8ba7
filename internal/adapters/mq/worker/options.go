// Package worker runs background jobs on a sharded pool of serialized writers.
package worker

import (
	"time"

	"github.com/wolfinder/badges/internal/domain/model"
	"github.com/wolfinder/badges/pkg/logger"
)

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithWorkers sets the number of workers, one queue each.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workerCount = n
		}
	}
}

// WithQueueCapacity sets the capacity of every worker queue.
func WithQueueCapacity(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.queueCapacity = n
		}
	}
}

// WithLogger sets a custom logger for the pool and its workers.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for queued jobs to drain.
func WithShutdownTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.shutdownTimeout = d
		}
	}
}

// WithCoalesce drops a job of one of kinds while an identical job for the
// same professional is still queued.
func WithCoalesce(kinds ...model.JobKind) Option {
	return func(p *Pool) {
		for _, k := range kinds {
			p.coalesce[k] = true
		}
	}
}
