package brepq

import (
	"errors"
	"fmt"

	"github.com/hupe1980/brepq/blobstore"
	"github.com/hupe1980/brepq/internal/handleindex"
	"github.com/hupe1980/brepq/internal/synth"
	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/props"
	"github.com/hupe1980/brepq/query"
	"github.com/hupe1980/brepq/topo"
)

var (
	// ErrNotFound is returned when an entity, index, tag or property does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidGeometry is returned when a synthesized box would be degenerate.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrInvalidContext is returned for a context id outside [0, Contexts()).
	ErrInvalidContext = errors.New("invalid context")

	// ErrIoFailure is returned when a geometry file cannot be read or written.
	ErrIoFailure = errors.New("io failure")

	// ErrIndexStale is returned when a handle index is used after a rebuild.
	ErrIndexStale = errors.New("index stale")

	// ErrInvalidState is returned when a manager operation is called in the wrong state.
	ErrInvalidState = errors.New("invalid state")

	// ErrClosed is returned when a closed session or manager is used.
	ErrClosed = errors.New("closed")
)

// ContextError reports a failure while building or using one context.
//
// The underlying error is available through errors.Unwrap.
type ContextError struct {
	Context int
	cause   error
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("context %d: %v", e.Context, e.cause)
}

func (e *ContextError) Unwrap() error { return e.cause }

// StateError reports a manager call made in the wrong state.
type StateError struct {
	Op    string
	State State
	Want  State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: manager is %s, want %s", e.Op, e.State, e.Want)
}

func (e *StateError) Is(target error) bool { return target == ErrInvalidState }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	var enf *mesh.ErrEntityNotFound
	switch {
	case errors.As(err, &enf),
		errors.Is(err, mesh.ErrNotFound),
		errors.Is(err, topo.ErrNotFound),
		errors.Is(err, query.ErrNotFound),
		errors.Is(err, props.ErrNotFound),
		errors.Is(err, handleindex.ErrNotFound):
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	if errors.Is(err, synth.ErrInvalidGeometry) {
		return fmt.Errorf("%w: %w", ErrInvalidGeometry, err)
	}
	if errors.Is(err, handleindex.ErrIndexStale) {
		return fmt.Errorf("%w: %w", ErrIndexStale, err)
	}

	return err
}

// translateIOError maps storage and decoding failures onto ErrIoFailure.
// A missing blob is both ErrIoFailure and ErrNotFound.
func translateIOError(err error) error {
	if err == nil || errors.Is(err, ErrIoFailure) {
		return err
	}
	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %w: %w", ErrIoFailure, ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", ErrIoFailure, err)
}
