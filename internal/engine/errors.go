package engine

import "errors"

// Domain-specific errors for the engine package.
var (
	ErrUnreadableItem  = errors.New("item core fields are unreadable")
	ErrNotSeriesMaster = errors.New("item is not a series master")
)
