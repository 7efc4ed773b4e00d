package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/brepq"
	"github.com/hupe1980/brepq/internal/synth"
	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/query"
	"github.com/hupe1980/brepq/topo"
)

type genFlags struct {
	cubes     int
	size      float64
	gap       float64
	materials []string
}

func newGenCmd(g *globals) *cobra.Command {
	f := &genFlags{}
	cmd := &cobra.Command{
		Use:   "gen <target>",
		Short: "Write a sample model of cubes in a row",
		Long: `Write a sample model of axis-aligned cubes placed in a row along x.
Each cube gets a material group; materials are assigned round-robin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGen(cmd, g, f, args[0])
		},
	}
	cmd.Flags().IntVar(&f.cubes, "cubes", 3, "number of cubes")
	cmd.Flags().Float64Var(&f.size, "size", 10, "cube edge length")
	cmd.Flags().Float64Var(&f.gap, "gap", 5, "gap between cubes")
	cmd.Flags().StringSliceVar(&f.materials, "materials", []string{"steel/rho:7.8", "water/rho:1.0"}, "material group suffixes")
	return cmd
}

func runGen(cmd *cobra.Command, g *globals, f *genFlags, target string) error {
	if f.cubes < 1 || f.size <= 0 || f.gap < 0 || len(f.materials) == 0 {
		return fmt.Errorf("gen: need at least one cube, positive size, non-negative gap and a material")
	}
	cfg, err := g.config()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	s := brepq.NewSession(cfg.Options()...)
	defer func() { _ = s.Close() }()
	if err := buildCubes(s.Topology(), f); err != nil {
		return err
	}

	store, name, err := openSource(ctx, cfg, target)
	if err != nil {
		return err
	}
	if err := s.WriteTo(ctx, store, name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d cubes to %s\n", f.cubes, target)
	return nil
}

func buildCubes(tool *topo.Tool, f *genFlags) error {
	db := tool.DB()
	sy := synth.New(tool, query.New(tool))

	groups := make(map[string]mesh.Handle, len(f.materials))
	for i := range f.cubes {
		x := float64(i) * (f.size + f.gap)
		box := mesh.Box{Min: mesh.Vec3{x, 0, 0}, Max: mesh.Vec3{x + f.size, f.size, f.size}}

		surf, err := sy.BoxSurface(box, true)
		if err != nil {
			return err
		}
		vol := db.CreateSet()
		if err := tool.AddGeoSet(vol, topo.DimVolume); err != nil {
			return err
		}
		if err := tool.SetSense(surf, vol, topo.Forward); err != nil {
			return err
		}

		name := "mat:" + f.materials[i%len(f.materials)]
		group, ok := groups[name]
		if !ok {
			group = db.CreateSet()
			if err := db.SetString(tool.NameTag(), group, name); err != nil {
				return err
			}
			if err := tool.AddGeoSet(group, topo.DimGroup); err != nil {
				return err
			}
			groups[name] = group
		}
		if err := db.AddEntities(group, vol); err != nil {
			return err
		}
	}
	return nil
}
