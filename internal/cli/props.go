package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/brepq/topo"
)

func newPropsCmd(g *globals) *cobra.Command {
	var keywords []string
	cmd := &cobra.Command{
		Use:   "props <source>",
		Short: "Print the properties parsed from group names",
		Long: `Parse group names into keyword/value properties and print them per
volume and surface. Keywords default to the config's properties section.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProps(cmd, g, args[0], keywords)
		},
	}
	cmd.Flags().StringSliceVarP(&keywords, "keyword", "k", nil, "keywords to parse (repeatable)")
	return cmd
}

func runProps(cmd *cobra.Command, g *globals, source string, keywords []string) error {
	cfg, err := g.config()
	if err != nil {
		return err
	}
	if len(keywords) == 0 {
		keywords = cfg.Properties.Keywords
	}
	ctx := cmd.Context()

	m, err := openManager(ctx, cfg, source, 1)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	p := cfg.Properties
	if err := m.ParseProperties(ctx, keywords, p.Synonyms, p.Delimiters); err != nil {
		return err
	}
	s, err := m.Session(0)
	if err != nil {
		return err
	}
	store := m.Properties()

	out := cmd.OutOrStdout()
	bold := color.New(color.Bold)
	for _, dim := range []topo.Dimension{topo.DimVolume, topo.DimSurface} {
		heading(out, "%ss", dim.Category())
		for i := 1; i <= s.NumEntities(dim); i++ {
			h, err := s.EntityByIndex(dim, i)
			if err != nil {
				return err
			}
			var parts []string
			for _, kw := range store.Keywords() {
				vals, err := store.Values(h, kw)
				if err != nil || len(vals) == 0 {
					continue
				}
				parts = append(parts, kw+"="+strings.Join(vals, ","))
			}
			if len(parts) == 0 {
				continue
			}
			id, err := s.EntityID(h)
			if err != nil {
				return err
			}
			bold.Fprintf(out, "  %d", id)
			fmt.Fprintf(out, "\t%s\n", strings.Join(parts, " "))
		}
	}
	return nil
}
