package cli

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/brepq"
	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/internal/sampling"
	"github.com/hupe1980/brepq/promcollector"
	"github.com/hupe1980/brepq/topo"
)

type traceFlags struct {
	rays     int
	maxSteps int
	seed     int64
}

func newTraceCmd(g *globals) *cobra.Command {
	f := &traceFlags{}
	cmd := &cobra.Command{
		Use:   "trace <source>",
		Short: "Track random particles through the model on every context",
		Long: `Start particles at the centers of random cells with random directions
and follow them across surfaces until they reach the graveyard, escape or
hit the step limit. Each context runs on its own goroutine with its own
ray history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, g, f, args[0])
		},
	}
	cmd.Flags().IntVar(&f.rays, "rays", 1000, "particles per context")
	cmd.Flags().IntVar(&f.maxSteps, "max-steps", 1000, "surface crossings per particle before it is dropped")
	cmd.Flags().Int64Var(&f.seed, "seed", 42, "random seed; context i uses seed+i")
	return cmd
}

type traceStats struct {
	particles  atomic.Int64
	crossings  atomic.Int64
	graveyard  atomic.Int64
	lost       atomic.Int64
	stepLimits atomic.Int64
}

func runTrace(cmd *cobra.Command, g *globals, f *traceFlags, source string) error {
	if f.rays < 1 || f.maxSteps < 1 {
		return fmt.Errorf("trace: rays and max-steps must be positive")
	}
	cfg, err := g.config()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	reg := prometheus.NewRegistry()
	metrics, err := promcollector.New(reg, "")
	if err != nil {
		return err
	}
	m, err := openManager(ctx, cfg, source, cfg.Contexts, brepq.WithMetricsCollector(metrics))
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	p := cfg.Properties
	if err := m.ParseProperties(ctx, []string{"mat"}, p.Synonyms, p.Delimiters); err != nil {
		return err
	}
	master, err := m.Session(0)
	if err != nil {
		return err
	}
	cells, err := startCells(master, m)
	if err != nil {
		return err
	}

	var stats traceStats
	start := time.Now()
	grp, gctx := errgroup.WithContext(ctx)
	for id := range m.Contexts() {
		grp.Go(func() error {
			s, err := m.Session(id)
			if err != nil {
				return err
			}
			rng := sampling.NewRNG(f.seed + int64(id))
			for n := range f.rays {
				if err := gctx.Err(); err != nil {
					return err
				}
				cell := cells[rng.Intn(len(cells))]
				if err := trackParticle(m, s, id, int64(n+1), cell, rng.UnitVec3(), f.maxSteps, &stats); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	out := cmd.OutOrStdout()
	heading(out, "traced %d particles on %d contexts in %v", stats.particles.Load(), m.Contexts(), elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "  surface crossings  %d\n", stats.crossings.Load())
	color.New(color.FgGreen).Fprintf(out, "  reached graveyard  %d\n", stats.graveyard.Load())
	if n := stats.lost.Load(); n > 0 {
		color.New(color.FgRed).Fprintf(out, "  lost               %d\n", n)
	}
	if n := stats.stepLimits.Load(); n > 0 {
		color.New(color.FgYellow).Fprintf(out, "  step limit         %d\n", n)
	}
	if verbose(cfg) {
		families, err := reg.Gather()
		if err != nil {
			return err
		}
		for _, fam := range families {
			fmt.Fprintf(out, "  %s: %d series\n", fam.GetName(), len(fam.GetMetric()))
		}
	}
	return nil
}

type cell struct {
	vol    mesh.Handle
	center mesh.Vec3
}

// startCells returns the explicit, non-graveyard volumes with their box
// centers.
func startCells(s *brepq.Session, m *brepq.Manager) ([]cell, error) {
	store := m.Properties()
	var cells []cell
	for i := 1; i <= s.NumEntities(topo.DimVolume); i++ {
		vol, err := s.EntityByIndex(topo.DimVolume, i)
		if err != nil {
			return nil, err
		}
		if s.IsImplicitComplement(vol) || isGraveyard(store.Value(vol, "mat")) {
			continue
		}
		box, err := s.BoundingBox(vol)
		if err != nil {
			return nil, err
		}
		cells = append(cells, cell{vol: vol, center: box.Min.Add(box.Max).Scale(0.5)})
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("%w: model has no cells to start particles in", brepq.ErrNotFound)
	}
	return cells, nil
}

func isGraveyard(mat string, err error) bool {
	return err == nil && mat == "Graveyard"
}

// trackParticle follows one particle from c along dir on context id.
func trackParticle(m *brepq.Manager, s *brepq.Session, id int, track int64, c cell, dir mesh.Vec3, maxSteps int, stats *traceStats) error {
	st, err := m.RayState(id)
	if err != nil {
		return err
	}
	st.StartTrack(track)
	stats.particles.Add(1)

	store := m.Properties()
	vol, pos := c.vol, c.center
	for range maxSteps {
		surf, dist, err := m.RayFire(id, vol, pos, dir)
		if err != nil {
			return err
		}
		if surf == 0 {
			stats.lost.Add(1)
			return nil
		}
		pos = pos.Add(dir.Scale(dist))
		stats.crossings.Add(1)

		next, err := s.NextVolume(surf, vol)
		if errors.Is(err, brepq.ErrNotFound) {
			stats.lost.Add(1)
			return nil
		} else if err != nil {
			return err
		}
		if isGraveyard(store.Value(next, "mat")) {
			stats.graveyard.Add(1)
			return nil
		}
		vol = next
	}
	stats.stepLimits.Add(1)
	return nil
}
