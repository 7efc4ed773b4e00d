package mesh

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a handle, tag, or tag value does not exist.
	ErrNotFound = errors.New("mesh: not found")

	// ErrWrongType is returned when an entity has a different type than the
	// operation requires (e.g. adding members to a vertex).
	ErrWrongType = errors.New("mesh: wrong entity type")

	// ErrCorrupt is returned when a geometry file fails validation.
	ErrCorrupt = errors.New("mesh: corrupt file")

	// ErrUnsupported is returned for unknown file versions, codecs, or compression types.
	ErrUnsupported = errors.New("mesh: unsupported format")
)

// ErrEntityNotFound indicates a handle that does not address a live entity.
type ErrEntityNotFound struct {
	Handle Handle
}

func (e *ErrEntityNotFound) Error() string {
	return fmt.Sprintf("mesh: entity %d not found", e.Handle)
}

// Is makes ErrEntityNotFound match ErrNotFound.
func (e *ErrEntityNotFound) Is(target error) bool { return target == ErrNotFound }
