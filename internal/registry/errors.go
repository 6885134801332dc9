package registry

import "errors"

// ErrUnknownEntityType is returned for names outside the registry.
var ErrUnknownEntityType = errors.New("unknown entity type")

// ErrDuplicateEntityType is returned when a type is declared twice.
var ErrDuplicateEntityType = errors.New("duplicate entity type")

// ErrUnknownDependency is returned when a prerequisite is not registered.
var ErrUnknownDependency = errors.New("unknown dependency")

// ErrDependencyCycle is returned when prerequisites form a cycle.
var ErrDependencyCycle = errors.New("dependency cycle")
