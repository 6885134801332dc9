package applier

import (
	"errors"
	"fmt"
)

// ErrUnsupportedEntityType is returned for a type the applier has no table for.
var ErrUnsupportedEntityType = errors.New("no destination table for entity type")

// MappingError means a remote record could not be turned into a row.
type MappingError struct {
	RecordID string
	Err      error
}

func (e *MappingError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("failed to map record: %v", e.Err)
	}
	return fmt.Sprintf("failed to map record %s: %v", e.RecordID, e.Err)
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

var errMissingID = errors.New("missing id")
