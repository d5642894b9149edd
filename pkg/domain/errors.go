package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrNodeNotFound is returned when an explicit node id does not exist in the inventory.
// It indicates a broken internal reference, never a runtime condition.
var ErrNodeNotFound = errors.New("node not found")

// ErrFlagNotFound is returned by flag stores for keys that were never set.
var ErrFlagNotFound = errors.New("flag not found")
