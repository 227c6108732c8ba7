package service

import (
	"errors"
	"fmt"

	"github.com/wolfinder/badges/internal/adapters/mq/worker"
)

// Sentinel errors returned by the Service.
var (
	// ErrNotStarted wraps worker.ErrNotStarted so callers can treat a stopped
	// service and a stopped pool alike.
	ErrNotStarted     = fmt.Errorf("service not started: %w", worker.ErrNotStarted)
	ErrUnknownJobKind = errors.New("unknown job kind")
)
