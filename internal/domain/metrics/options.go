package metrics

import "time"

// Default aggregation windows.
const (
	DefaultRecentWindow         = 30 * 24 * time.Hour
	DefaultLowReviewWindow      = 180 * 24 * time.Hour
	DefaultMinDescriptionLength = 50
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithClock sets the time source used for tenure and windows.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithRecentWindow sets the window counted as recent reviews.
func WithRecentWindow(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.recentWindow = d
		}
	}
}

// WithLowReviewWindow sets the window checked for reviews below four stars.
func WithLowReviewWindow(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.lowReviewWindow = d
		}
	}
}

// WithMinDescriptionLength sets the description length, in runes, counted as complete.
func WithMinDescriptionLength(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.minDescriptionLength = n
		}
	}
}
