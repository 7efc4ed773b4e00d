package brepq

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brepq/blobstore"
	"github.com/hupe1980/brepq/internal/handleindex"
	"github.com/hupe1980/brepq/internal/synth"
	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/props"
	"github.com/hupe1980/brepq/query"
	"github.com/hupe1980/brepq/topo"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want []error
	}{
		{"nil", nil, nil},
		{"mesh", fmt.Errorf("x: %w", mesh.ErrNotFound), []error{ErrNotFound, mesh.ErrNotFound}},
		{"mesh entity", &mesh.ErrEntityNotFound{Handle: 7}, []error{ErrNotFound, mesh.ErrNotFound}},
		{"topo", topo.ErrNotFound, []error{ErrNotFound, topo.ErrNotFound}},
		{"query", query.ErrNotFound, []error{ErrNotFound}},
		{"props", props.ErrNotFound, []error{ErrNotFound}},
		{"handleindex", handleindex.ErrNotFound, []error{ErrNotFound}},
		{"stale", handleindex.ErrIndexStale, []error{ErrIndexStale}},
		{"geometry", synth.ErrInvalidGeometry, []error{ErrInvalidGeometry, synth.ErrInvalidGeometry}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError(tt.in)
			if tt.in == nil {
				require.NoError(t, got)
				return
			}
			for _, want := range tt.want {
				assert.ErrorIs(t, got, want)
			}
		})
	}

	t.Run("already translated", func(t *testing.T) {
		err := fmt.Errorf("%w: %w", ErrNotFound, topo.ErrNotFound)
		assert.Same(t, err, translateError(err))
	})

	t.Run("passthrough", func(t *testing.T) {
		err := errors.New("boom")
		assert.Same(t, err, translateError(err))
	})
}

func TestTranslateIOError(t *testing.T) {
	require.NoError(t, translateIOError(nil))

	err := translateIOError(mesh.ErrCorrupt)
	require.ErrorIs(t, err, ErrIoFailure)
	require.ErrorIs(t, err, mesh.ErrCorrupt)
	require.NotErrorIs(t, err, ErrNotFound)

	err = translateIOError(fmt.Errorf("open: %w", blobstore.ErrNotFound))
	require.ErrorIs(t, err, ErrIoFailure)
	require.ErrorIs(t, err, ErrNotFound)

	assert.Same(t, err, translateIOError(err))
}

func TestContextError(t *testing.T) {
	cause := fmt.Errorf("%w: volume 9", ErrNotFound)
	err := error(&ContextError{Context: 3, cause: cause})

	assert.Equal(t, "context 3: not found: volume 9", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestStateError(t *testing.T) {
	err := error(&StateError{Op: "initialize", State: Indexed, Want: TopologyLoaded})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "initialize: manager is indexed, want topology loaded", err.Error())
	assert.Equal(t, "State(9)", State(9).String())
}
