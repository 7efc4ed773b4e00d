// Package cli implements the brepq command-line interface.
package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/brepq"
	"github.com/hupe1980/brepq/internal/config"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	configPath string
	logLevel   string
	contexts   int
}

// config loads the configuration and applies flag overrides.
func (g *globals) config() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.contexts > 0 {
		cfg.Contexts = g.contexts
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewRootCommand builds the brepq command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "brepq",
		Short: "Query faceted b-rep geometry for particle transport",
		Long: `brepq loads faceted boundary-representation models, synthesizes a
graveyard around them, parses group-name properties and answers ray and
containment queries across one or more execution contexts.

Sources may be local paths, s3://bucket/key or minio://host/bucket/key.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (default ./"+config.DefaultFile+" if present)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().IntVarP(&g.contexts, "contexts", "n", 0, "number of execution contexts")

	root.AddCommand(
		newGenCmd(g),
		newFindVolCmd(g),
		newPropsCmd(g),
		newMeasureCmd(g),
		newPreprocCmd(g),
		newTraceCmd(g),
	)
	return root
}

// Execute runs the root command and reports a failure on stderr.
func Execute(ctx context.Context, stderr io.Writer) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		red := color.New(color.FgRed)
		red.Fprintf(stderr, "error: %v\n", err)
	}
	return err
}

// openManager loads source and initializes contexts execution contexts.
func openManager(ctx context.Context, cfg *config.Config, source string, contexts int, extra ...brepq.Option) (*brepq.Manager, error) {
	store, name, err := openSource(ctx, cfg, source)
	if err != nil {
		return nil, err
	}
	m, err := brepq.NewManager(append(cfg.Options(), extra...)...)
	if err != nil {
		return nil, err
	}
	if err := m.LoadFrom(ctx, store, name); err != nil {
		_ = m.Close()
		return nil, err
	}
	if err := m.Initialize(ctx, contexts); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

// verbose reports whether the configured level includes info output.
func verbose(cfg *config.Config) bool {
	var l slog.Level
	return l.UnmarshalText([]byte(cfg.Log.Level)) == nil && l <= slog.LevelInfo
}

func heading(w io.Writer, format string, args ...any) {
	color.New(color.FgCyan, color.Bold).Fprintf(w, format+"\n", args...)
}
