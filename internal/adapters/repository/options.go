package repository

import "time"

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	now          func() time.Time
	maxOpenConns int
	maxIdleConns int
	connLifetime time.Duration
	pingTimeout  time.Duration
}

func defaultOptions() options {
	return options{
		now:          time.Now,
		maxOpenConns: 10,
		maxIdleConns: 5,
		connLifetime: 30 * time.Minute,
		pingTimeout:  30 * time.Second,
	}
}

// WithClock sets the time source for award timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithPool sets the SQL connection pool limits. SQLite always uses a single connection.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) Option {
	return func(o *options) {
		if maxOpen > 0 {
			o.maxOpenConns = maxOpen
		}
		if maxIdle >= 0 {
			o.maxIdleConns = maxIdle
		}
		if lifetime > 0 {
			o.connLifetime = lifetime
		}
	}
}

// WithPingTimeout bounds how long OpenSQL retries the first connection.
func WithPingTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pingTimeout = d
		}
	}
}
