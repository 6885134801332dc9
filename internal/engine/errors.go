package engine

import (
	"errors"
	"fmt"

	"github.com/mrlokans/possync/internal/registry"
)

// ErrCycleInProgress is returned when another cycle holds the cycle lock.
var ErrCycleInProgress = errors.New("a sync cycle is already in progress")

// ConfigurationError stops a cycle before it starts: missing credentials,
// unknown entity types, an unresolvable dependency graph.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("sync configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// FetchError is a remote failure scoped to one entity type.
type FetchError struct {
	EntityType registry.EntityType
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.EntityType, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ApplyError is a mapping or write failure scoped to one entity type. The
// type's transaction was rolled back.
type ApplyError struct {
	EntityType registry.EntityType
	Err        error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply %s: %v", e.EntityType, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// TrackingError is a failure to read or write sync state. It is logged and
// never changes a type's outcome; a stale watermark only widens the next
// fetch window.
type TrackingError struct {
	EntityType registry.EntityType
	Err        error
}

func (e *TrackingError) Error() string {
	if e.EntityType == "" {
		return fmt.Sprintf("sync tracking: %v", e.Err)
	}
	return fmt.Sprintf("sync tracking %s: %v", e.EntityType, e.Err)
}

func (e *TrackingError) Unwrap() error { return e.Err }
