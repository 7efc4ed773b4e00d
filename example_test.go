package brepq_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/brepq"
	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/props"
	"github.com/hupe1980/brepq/query"
	"github.com/hupe1980/brepq/testutil"
)

func newModel() (*testutil.Model, mesh.Handle) {
	model := testutil.NewModel()
	steel := model.AddCube(mesh.Vec3{-1, -1, -1}, mesh.Vec3{1, 1, 1})
	model.AddGroup("mat:steel/rho:7.8", steel)
	return model, steel
}

// ExampleManager shows ray queries on two execution contexts sharing one model.
func ExampleManager() {
	ctx := context.Background()
	model, steel := newModel()

	m, err := brepq.NewManager(brepq.WithTopology(model.Tool))
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	if err := m.LoadExisting(); err != nil {
		log.Fatal(err)
	}
	if err := m.Initialize(ctx, 2); err != nil {
		log.Fatal(err)
	}

	_, dist, err := m.RayFire(1, steel, mesh.Vec3{0, 0, 0}, mesh.Vec3{1, 0, 0})
	if err != nil {
		log.Fatal(err)
	}
	c, err := m.PointInVolume(0, steel, mesh.Vec3{0.5, 0, 0}, mesh.Vec3{0, 0, 1}, false)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("distance to boundary: %.1f\n", dist)
	fmt.Println("inside:", c == query.Inside)
	// Output:
	// distance to boundary: 1.0
	// inside: true
}

// ExampleSession_ParseProperties demonstrates keyword synonyms.
func ExampleSession_ParseProperties() {
	ctx := context.Background()
	model, steel := newModel()

	s := brepq.NewSession(brepq.WithTopology(model.Tool), brepq.WithoutGraveyard())
	defer s.Close()
	if err := s.Init(ctx); err != nil {
		log.Fatal(err)
	}

	synonyms := map[string]string{"rho": "density"}
	if err := s.ParseProperties(ctx, []string{"mat", "density"}, synonyms, props.DefaultDelimiters); err != nil {
		log.Fatal(err)
	}
	mat, _ := s.Properties().Value(steel, "mat")
	rho, _ := s.Properties().Value(steel, "density")
	v, _ := s.MeasureVolume(steel)

	fmt.Printf("%s %s %.1f\n", mat, rho, v)
	// Output: steel 7.8 8.0
}
