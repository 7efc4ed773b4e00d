// Package testutil provides testing utilities for brepq.
//
// This package is intended for use in tests, examples and benchmarks. It
// provides a small builder for faceted box models.
//
// # Models
//
//	m := testutil.NewModel()
//	vol := m.AddCube(mesh.Vec3{-1, -1, -1}, mesh.Vec3{1, 1, 1})
//	m.AddGroup("mat:steel", vol)
package testutil
