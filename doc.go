// Package brepq provides a geometry-query session layer over faceted
// boundary-representation models for Monte Carlo particle transport.
//
// A model is a set of triangle-faceted surfaces grouped into volumes.
// brepq loads it, numbers its surfaces and volumes, synthesizes a
// graveyard around it, parses material and boundary properties from group
// names, and answers ray and containment queries. A Manager replicates the
// query state across N execution contexts so each transport thread owns
// its own spatial index and ray history while sharing one model.
//
// # Quick Start
//
//	ctx := context.Background()
//	m, _ := brepq.NewManager(brepq.WithLogLevel(slog.LevelInfo))
//	defer m.Close()
//
//	_ = m.Load(ctx, "model.bgm")
//	_ = m.Initialize(ctx, runtime.NumCPU())
//
//	s, _ := m.Session(0)
//	vol, _ := s.EntityByIndex(topo.DimVolume, 1)
//	surf, dist, _ := m.RayFire(0, vol, origin, dir)
//
// # Remote Models
//
// Geometry files may live in any blobstore.BlobStore:
//
//	store, _ := s3.New(ctx, "my-bucket", "models/")
//	_ = m.LoadFrom(ctx, store, "reactor.bgm")
//
// # Contexts
//
// Context 0 is the master. It alone mutates the shared topology while
// loading and during Initialize. Afterwards every context may be driven by
// its own goroutine; calls on one context must not overlap.
//
// # Properties
//
// Group names such as "mat:steel/rho:7.8" are split on delimiters into
// keyword/value pairs:
//
//	_ = m.ParseProperties(ctx, []string{"mat", "density"},
//		map[string]string{"rho": "density"}, props.DefaultDelimiters)
//	mat, _ := m.Properties().Value(vol, "mat")
package brepq
