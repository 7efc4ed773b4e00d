package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/brepq"
	"github.com/hupe1980/brepq/mesh"
)

// ResabsTag names the float64 tag holding the absolute geometry tolerance.
const ResabsTag = "GEOMETRY_RESABS"

type preprocFlags struct {
	facetingTol float64
	resabs      float64
}

func newPreprocCmd(g *globals) *cobra.Command {
	f := &preprocFlags{}
	cmd := &cobra.Command{
		Use:   "preproc <source> <target>",
		Short: "Add a graveyard and tolerance tags, then write the model",
		Long: `Load a model, set up the implicit complement and the graveyard, tag the
faceting and absolute tolerances on the root set, and write the result.
A model written by preproc already carries its graveyard.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreproc(cmd, g, f, args[0], args[1])
		},
	}
	cmd.Flags().Float64Var(&f.facetingTol, "faceting-tol", 0, "faceting tolerance to tag (0 keeps the loaded value)")
	cmd.Flags().Float64Var(&f.resabs, "resabs", 0, "absolute geometry tolerance to tag (0 skips)")
	return cmd
}

func runPreproc(cmd *cobra.Command, g *globals, f *preprocFlags, source, target string) error {
	if f.facetingTol < 0 || f.resabs < 0 {
		return fmt.Errorf("preproc: tolerances must not be negative")
	}
	cfg, err := g.config()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	m, err := openManager(ctx, cfg, source, 1)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	s, err := m.Session(0)
	if err != nil {
		return err
	}

	tol := s.FacetingTolerance()
	if f.facetingTol > 0 {
		tol = f.facetingTol
	}
	if err := setRootFloat(s.DB(), brepq.FacetingToleranceTag, tol); err != nil {
		return err
	}
	if f.resabs > 0 {
		if err := setRootFloat(s.DB(), ResabsTag, f.resabs); err != nil {
			return err
		}
	}

	store, name, err := openSource(ctx, cfg, target)
	if err != nil {
		return err
	}
	if err := s.WriteTo(ctx, store, name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (faceting tolerance %g)\n", target, tol)
	return nil
}

func setRootFloat(db *mesh.DB, name string, v float64) error {
	tag, err := db.Tag(name, mesh.TagCreate)
	if err != nil {
		return err
	}
	return db.SetFloat64(tag, mesh.Root, v)
}
