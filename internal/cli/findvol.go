package cli

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/brepq"
	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/query"
	"github.com/hupe1980/brepq/topo"
)

func newFindVolCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "findvol <source> <x> <y> <z>",
		Short: "Print the volume containing a point",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pt mesh.Vec3
			for i, a := range args[1:] {
				v, err := strconv.ParseFloat(a, 64)
				if err != nil {
					return fmt.Errorf("findvol: coordinate %q: %w", a, err)
				}
				pt[i] = v
			}
			return runFindVol(cmd, g, args[0], pt)
		},
	}
}

// probeDirection avoids axis-aligned rays grazing facet edges.
var probeDirection = mesh.Vec3{0.5773, 0.5774, 0.5775}

func runFindVol(cmd *cobra.Command, g *globals, source string, pt mesh.Vec3) error {
	cfg, err := g.config()
	if err != nil {
		return err
	}
	m, err := openManager(cmd.Context(), cfg, source, 1)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	s, err := m.Session(0)
	if err != nil {
		return err
	}
	vol, err := findVolume(m, s, 0, pt)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if s.IsImplicitComplement(vol) {
		color.New(color.FgYellow).Fprintf(out, "point %v is in the implicit complement\n", pt)
		return nil
	}
	id, err := s.EntityID(vol)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(out, "point %v is in volume %d\n", pt, id)
	return nil
}

// findVolume returns the first explicit volume containing pt, else the
// implicit complement.
func findVolume(m *brepq.Manager, s *brepq.Session, ctxID int, pt mesh.Vec3) (mesh.Handle, error) {
	var ic mesh.Handle
	for i := 1; i <= s.NumEntities(topo.DimVolume); i++ {
		vol, err := s.EntityByIndex(topo.DimVolume, i)
		if err != nil {
			return 0, err
		}
		if s.IsImplicitComplement(vol) {
			ic = vol
			continue
		}
		c, err := m.PointInVolume(ctxID, vol, pt, probeDirection, false)
		if err != nil {
			return 0, err
		}
		if c != query.Outside {
			return vol, nil
		}
	}
	if ic == 0 {
		return 0, fmt.Errorf("%w: no volume contains %v", brepq.ErrNotFound, pt)
	}
	return ic, nil
}
