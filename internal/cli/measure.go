package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/brepq/topo"
)

func newMeasureCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "measure <source>",
		Short: "Print the volume of every volume and the area of every surface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeasure(cmd, g, args[0])
		},
	}
}

func runMeasure(cmd *cobra.Command, g *globals, source string) error {
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
	out := cmd.OutOrStdout()

	heading(out, "%-8s %-8s %16s", "volume", "id", "measure")
	for i := 1; i <= s.NumEntities(topo.DimVolume); i++ {
		vol, err := s.EntityByIndex(topo.DimVolume, i)
		if err != nil {
			return err
		}
		id, err := s.EntityID(vol)
		if err != nil {
			return err
		}
		v, err := s.MeasureVolume(vol)
		if err != nil {
			return err
		}
		note := ""
		if s.IsImplicitComplement(vol) {
			note = " (implicit complement)"
		}
		fmt.Fprintf(out, "%-8d %-8d %16.6g%s\n", i, id, v, note)
	}

	heading(out, "%-8s %-8s %16s", "surface", "id", "area")
	for i := 1; i <= s.NumEntities(topo.DimSurface); i++ {
		surf, err := s.EntityByIndex(topo.DimSurface, i)
		if err != nil {
			return err
		}
		id, err := s.EntityID(surf)
		if err != nil {
			return err
		}
		a, err := s.MeasureArea(surf)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-8d %-8d %16.6g\n", i, id, a)
	}
	return nil
}
