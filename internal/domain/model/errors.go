package model

import "errors"

// ErrNotFound is wrapped by every not-found error returned by the engine and its stores.
var ErrNotFound = errors.New("not found")
