package topo

import (
	"fmt"
	"slices"

	"github.com/hupe1980/brepq/mesh"
)

// ImplicitComplement returns the implicit complement volume, if one exists.
func (t *Tool) ImplicitComplement() (mesh.Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ic, t.ic != 0
}

// IsImplicitComplement reports whether vol is the implicit complement.
func (t *Tool) IsImplicitComplement(vol mesh.Handle) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return vol != 0 && vol == t.ic
}

// SetupImplicitComplement returns the implicit complement, creating it when
// absent. The complement takes every surface with an empty sense slot; it is
// placed in that slot so that it lies on the open side of the surface.
func (t *Tool) SetupImplicitComplement() (mesh.Handle, error) {
	if ic, ok := t.ImplicitComplement(); ok {
		return ic, nil
	}

	surfaces, err := t.Entities(DimSurface)
	if err != nil {
		return 0, err
	}

	ic := t.db.CreateSet()
	if err := t.db.SetString(t.nameTag, ic, ImplicitComplementName); err != nil {
		return 0, err
	}
	if err := t.AddGeoSet(ic, DimVolume); err != nil {
		return 0, err
	}

	for _, surf := range surfaces {
		pair, err := t.senses(surf)
		if err != nil {
			return 0, err
		}
		switch {
		case pair[0] == 0 && pair[1] == 0:
			continue
		case pair[0] == 0:
			err = t.SetSense(surf, ic, Forward)
		case pair[1] == 0:
			err = t.SetSense(surf, ic, Reverse)
		default:
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("topo: add surface %d to implicit complement: %w", surf, err)
		}
	}

	t.mu.Lock()
	t.ic = ic
	t.mu.Unlock()
	return ic, nil
}

// DeleteImplicitComplement removes the implicit complement, clearing its
// sense slots and parent/child links. It is a no-op when none exists.
func (t *Tool) DeleteImplicitComplement() error {
	ic, ok := t.ImplicitComplement()
	if !ok {
		return nil
	}

	surfaces, err := t.db.Children(ic)
	if err != nil {
		return err
	}
	for _, surf := range surfaces {
		pair, err := t.senses(surf)
		if err != nil {
			return err
		}
		for i := range pair {
			if pair[i] == ic {
				pair[i] = 0
			}
		}
		if err := t.db.SetHandles(t.senseTag, surf, pair[0], pair[1]); err != nil {
			return err
		}
	}
	if err := t.db.DeleteEntities(ic); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sets[DimVolume] = slices.DeleteFunc(t.sets[DimVolume], func(h mesh.Handle) bool { return h == ic })
	t.ic = 0
	return nil
}
