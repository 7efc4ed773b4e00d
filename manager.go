package brepq

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/brepq/blobstore"
	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/props"
	"github.com/hupe1980/brepq/query"
	"github.com/hupe1980/brepq/topo"
)

// State is the lifecycle stage of a Manager.
type State uint8

const (
	// Uninitialized means no geometry has been loaded.
	Uninitialized State = iota
	// TopologyLoaded means geometry is loaded but no context is indexed.
	TopologyLoaded
	// Indexed means every context is ready for queries.
	Indexed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case TopologyLoaded:
		return "topology loaded"
	case Indexed:
		return "indexed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// RayState is the per-context bookkeeping of one particle track.
//
// A RayState belongs to the goroutine driving its context and is not safe
// for concurrent use.
type RayState struct {
	// History holds the facets crossed on the current track.
	History query.RayHistory
	// LastDirection is the direction of the most recent RayFire.
	LastDirection mesh.Vec3
	// VisitedSurface is set by callers once the track has crossed a surface.
	VisitedSurface bool
	// UseDistLimit applies DistLimit to every RayFire of this context.
	UseDistLimit bool
	DistLimit    float64
	// LastTrack is the track number seen by the most recent StartTrack.
	LastTrack int64

	bank  []query.RayHistory
	stack []query.RayHistory
}

// StartTrack resets the history when track differs from the last one.
// It reports whether a reset happened.
func (r *RayState) StartTrack(track int64) bool {
	if track == r.LastTrack {
		return false
	}
	r.LastTrack = track
	r.History.Reset()
	r.VisitedSurface = false
	return true
}

// SetDistanceLimit limits every later RayFire to limit.
func (r *RayState) SetDistanceLimit(limit float64) {
	r.UseDistLimit = true
	r.DistLimit = limit
}

// ClearDistanceLimit removes the distance limit.
func (r *RayState) ClearDistanceLimit() {
	r.UseDistLimit = false
	r.DistLimit = 0
}

// BankPush saves a copy of the history for a banked particle and returns
// the new bank depth.
func (r *RayState) BankPush() int {
	r.bank = append(r.bank, r.History.Clone())
	return len(r.bank)
}

// BankUseTop restores the history of the most recently banked particle and
// removes it from the bank.
func (r *RayState) BankUseTop() error {
	if len(r.bank) == 0 {
		return fmt.Errorf("%w: history bank is empty", ErrNotFound)
	}
	r.History = r.bank[len(r.bank)-1]
	r.bank = r.bank[:len(r.bank)-1]
	return nil
}

// BankPop discards the most recently banked history.
func (r *RayState) BankPop() error {
	if len(r.bank) == 0 {
		return fmt.Errorf("%w: history bank is empty", ErrNotFound)
	}
	r.bank = r.bank[:len(r.bank)-1]
	return nil
}

// BankClear empties the bank.
func (r *RayState) BankClear() { r.bank = r.bank[:0] }

// BankLen returns the number of banked histories.
func (r *RayState) BankLen() int { return len(r.bank) }

// SaveHistory pushes a copy of the history, e.g. before a point detector
// estimate walks off the track.
func (r *RayState) SaveHistory() {
	r.stack = append(r.stack, r.History.Clone())
}

// RestoreHistory pops the history saved by the matching SaveHistory.
func (r *RayState) RestoreHistory() error {
	if len(r.stack) == 0 {
		return fmt.Errorf("%w: no saved history", ErrNotFound)
	}
	r.History = r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	return nil
}

type replica struct {
	session *Session
	ray     *RayState
}

// Manager replicates a Session over N execution contexts that share one
// mesh database and topology. Context 0 is the master: it loads the model
// and performs every topology mutation. Contexts 1..N-1 get their own
// spatial and handle indexes over the shared topology.
//
// Lifecycle calls (Load, Initialize, Close) must not overlap. Once
// Indexed, each context may be driven by its own goroutine.
type Manager struct {
	mu    sync.RWMutex
	state State

	// masterReady records a completed master Init, so a retried
	// Initialize does not mutate the topology again.
	masterReady bool
	closed      bool

	id       string
	opts     options
	logger   *Logger
	metrics  MetricsCollector
	contexts []replica
}

// NewManager creates a manager with an uninitialized master context.
func NewManager(optFns ...Option) (*Manager, error) {
	opts := applyOptions(optFns)
	if opts.overlapThickness < 0 {
		return nil, fmt.Errorf("brepq: overlap thickness must not be negative, got %g", opts.overlapThickness)
	}
	if opts.numericalPrecision <= 0 {
		return nil, fmt.Errorf("brepq: numerical precision must be positive, got %g", opts.numericalPrecision)
	}
	if opts.margin <= 0 {
		return nil, fmt.Errorf("%w: graveyard margin must be positive, got %g", ErrInvalidGeometry, opts.margin)
	}

	id := uuid.NewString()
	logger := opts.logger.WithSession(id)

	masterOpts := opts
	masterOpts.logger = logger.WithContextID(0)

	m := &Manager{
		state:   Uninitialized,
		id:      id,
		opts:    opts,
		logger:  logger,
		metrics: opts.metricsCollector,
	}
	m.contexts = []replica{{session: newSession(masterOpts), ray: &RayState{}}}
	return m, nil
}

// ID returns the session id stamped on every log line of this manager.
func (m *Manager) ID() string { return m.id }

// State returns the lifecycle stage.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Contexts returns the number of contexts.
func (m *Manager) Contexts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.contexts)
}

func (m *Manager) master() *Session { return m.contexts[0].session }

// require checks the manager is open and in state want.
func (m *Manager) require(op string, want State) error {
	if m.closed {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	if m.state != want {
		return &StateError{Op: op, State: m.state, Want: want}
	}
	return nil
}

// Load loads a geometry file into the master context.
func (m *Manager) Load(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("load", Uninitialized); err != nil {
		return err
	}
	if err := m.master().Load(ctx, path); err != nil {
		return err
	}
	m.state = TopologyLoaded
	return nil
}

// LoadFrom loads the geometry file name from store into the master context.
func (m *Manager) LoadFrom(ctx context.Context, store blobstore.BlobStore, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("load", Uninitialized); err != nil {
		return err
	}
	if err := m.master().LoadFrom(ctx, store, name); err != nil {
		return err
	}
	m.state = TopologyLoaded
	return nil
}

// LoadExisting adopts geometry already present in the mesh database.
func (m *Manager) LoadExisting() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.require("load existing", Uninitialized); err != nil {
		return err
	}
	if err := m.master().LoadExisting(); err != nil {
		return err
	}
	m.state = TopologyLoaded
	return nil
}

// Initialize prepares n contexts. The master runs Init, which mutates the
// topology; the other contexts then build their indexes concurrently over
// the now read-only topology. The first failing context cancels the rest
// and is reported as a *ContextError. After a failed context build the
// manager stays TopologyLoaded and Initialize may be retried.
func (m *Manager) Initialize(ctx context.Context, n int) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.require("initialize", TopologyLoaded); err != nil {
		return err
	}
	if n < 1 {
		return fmt.Errorf("%w: need at least one context, got %d", ErrInvalidContext, n)
	}

	start := time.Now()
	defer func() {
		m.logger.LogInitialize(ctx, n, time.Since(start), err)
	}()

	if !m.masterReady {
		if err := m.master().Init(ctx); err != nil {
			return &ContextError{Context: 0, cause: err}
		}
		m.masterReady = true
	}

	children := make([]replica, n-1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 1; i < n; i++ {
		g.Go(func() error {
			s, err := m.buildContext(gctx, i)
			if err != nil {
				return &ContextError{Context: i, cause: err}
			}
			children[i-1] = replica{session: s, ray: &RayState{}}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.contexts = append(m.contexts[:1], children...)
	m.state = Indexed
	return nil
}

func (m *Manager) buildContext(ctx context.Context, i int) (*Session, error) {
	rc := m.opts.resources
	if err := rc.AcquireBuild(ctx); err != nil {
		return nil, err
	}
	defer rc.ReleaseBuild()

	start := time.Now()
	master := m.master()

	opts := m.opts
	opts.tool = master.Topology()
	opts.db = master.DB()
	opts.overlapThickness = master.OverlapThickness()
	opts.numericalPrecision = master.NumericalPrecision()
	opts.logger = m.logger.WithContextID(i)
	s := newSession(opts)

	err := s.prepareReplica(ctx)
	d := time.Since(start)
	m.metrics.RecordInit(i, d, err)
	s.logger.LogInit(ctx, s.NumEntities(topo.DimSurface), s.NumEntities(topo.DimVolume), d, err)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Manager) replica(id int) (replica, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return replica{}, ErrClosed
	}
	if m.state != Indexed {
		return replica{}, &StateError{Op: "query", State: m.state, Want: Indexed}
	}
	if id < 0 || id >= len(m.contexts) {
		return replica{}, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidContext, id, len(m.contexts))
	}
	return m.contexts[id], nil
}

// Session returns the session of context id.
func (m *Manager) Session(id int) (*Session, error) {
	r, err := m.replica(id)
	if err != nil {
		return nil, err
	}
	return r.session, nil
}

// RayState returns the ray bookkeeping of context id.
func (m *Manager) RayState(id int) (*RayState, error) {
	r, err := m.replica(id)
	if err != nil {
		return nil, err
	}
	return r.ray, nil
}

// RayFire fires a ray in context id. The context's ray history is applied
// and extended unless optFns disable it with query.WithHistory(nil).
func (m *Manager) RayFire(id int, vol mesh.Handle, origin, dir mesh.Vec3, optFns ...query.RayOption) (mesh.Handle, float64, error) {
	r, err := m.replica(id)
	if err != nil {
		return 0, 0, err
	}
	st := r.ray
	all := make([]query.RayOption, 0, len(optFns)+2)
	all = append(all, query.WithHistory(&st.History))
	if st.UseDistLimit {
		all = append(all, query.WithDistanceLimit(st.DistLimit))
	}
	all = append(all, optFns...)

	surf, dist, err := r.session.RayFire(vol, origin, dir, all...)
	if err != nil {
		return 0, 0, &ContextError{Context: id, cause: err}
	}
	st.LastDirection = dir
	return surf, dist, nil
}

// PointInVolume classifies pt against vol in context id. With useHistory
// the context's ray history is honored.
func (m *Manager) PointInVolume(id int, vol mesh.Handle, pt, dir mesh.Vec3, useHistory bool) (query.Containment, error) {
	r, err := m.replica(id)
	if err != nil {
		return query.Outside, err
	}
	optFns := []query.PointOption{query.WithDirection(dir)}
	if useHistory {
		optFns = append(optFns, query.WithPointHistory(&r.ray.History))
	}
	c, err := r.session.PointInVolume(vol, pt, optFns...)
	if err != nil {
		return query.Outside, &ContextError{Context: id, cause: err}
	}
	return c, nil
}

// PointInVolumeSlow classifies pt against vol in context id by solid angles.
func (m *Manager) PointInVolumeSlow(id int, vol mesh.Handle, pt mesh.Vec3) (query.Containment, error) {
	r, err := m.replica(id)
	if err != nil {
		return query.Outside, err
	}
	c, err := r.session.PointInVolumeSlow(vol, pt)
	if err != nil {
		return query.Outside, &ContextError{Context: id, cause: err}
	}
	return c, nil
}

// TestVolumeBoundary reports in context id whether crossing surf at pt
// along dir enters or leaves vol.
func (m *Manager) TestVolumeBoundary(id int, vol, surf mesh.Handle, pt, dir mesh.Vec3, useHistory bool) (query.Containment, error) {
	r, err := m.replica(id)
	if err != nil {
		return query.Outside, err
	}
	var h *query.RayHistory
	if useHistory {
		h = &r.ray.History
	}
	c, err := r.session.TestVolumeBoundary(vol, surf, pt, dir, h)
	if err != nil {
		return query.Outside, &ContextError{Context: id, cause: err}
	}
	return c, nil
}

// ClosestToLocation returns the distance from pt to the boundary of vol in
// context id.
func (m *Manager) ClosestToLocation(id int, vol mesh.Handle, pt mesh.Vec3) (float64, mesh.Handle, error) {
	r, err := m.replica(id)
	if err != nil {
		return 0, 0, err
	}
	d, surf, err := r.session.ClosestToLocation(vol, pt)
	if err != nil {
		return 0, 0, &ContextError{Context: id, cause: err}
	}
	return d, surf, nil
}

// SurfaceNormal returns the normal of surf near pt in context id.
func (m *Manager) SurfaceNormal(id int, surf mesh.Handle, pt mesh.Vec3, useHistory bool) (mesh.Vec3, error) {
	r, err := m.replica(id)
	if err != nil {
		return mesh.Vec3{}, err
	}
	var h *query.RayHistory
	if useHistory {
		h = &r.ray.History
	}
	n, err := r.session.SurfaceNormal(surf, pt, h)
	if err != nil {
		return mesh.Vec3{}, &ContextError{Context: id, cause: err}
	}
	return n, nil
}

// MeasureVolume returns the volume enclosed by vol in context id.
func (m *Manager) MeasureVolume(id int, vol mesh.Handle) (float64, error) {
	r, err := m.replica(id)
	if err != nil {
		return 0, err
	}
	v, err := r.session.MeasureVolume(vol)
	if err != nil {
		return 0, &ContextError{Context: id, cause: err}
	}
	return v, nil
}

// ResetHistory clears the ray history of context id.
func (m *Manager) ResetHistory(id int) error {
	r, err := m.replica(id)
	if err != nil {
		return err
	}
	r.ray.History.Reset()
	return nil
}

// RollbackLastCrossing forgets the last crossing recorded in context id.
func (m *Manager) RollbackLastCrossing(id int) error {
	r, err := m.replica(id)
	if err != nil {
		return err
	}
	if err := r.ray.History.RollbackLastIntersection(); err != nil {
		return &ContextError{Context: id, cause: translateError(err)}
	}
	return nil
}

// HistoryLen returns the number of crossings recorded in context id.
func (m *Manager) HistoryLen(id int) (int, error) {
	r, err := m.replica(id)
	if err != nil {
		return 0, err
	}
	return r.ray.History.Len(), nil
}

// ParseProperties parses group names on the master context. Property
// values are stored per entity and are shared by all contexts.
func (m *Manager) ParseProperties(ctx context.Context, keywords []string, synonyms map[string]string, delimiters string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	if m.state == Uninitialized {
		return &StateError{Op: "parse properties", State: m.state, Want: TopologyLoaded}
	}
	return m.master().ParseProperties(ctx, keywords, synonyms, delimiters)
}

// Properties returns the master's property store.
func (m *Manager) Properties() *props.Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.master().Properties()
}

// Close tears down the contexts in reverse order. The shared mesh database
// is cleared only if the manager created it.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}

	var errs []error
	for i := len(m.contexts) - 1; i >= 0; i-- {
		if err := m.contexts[i].session.Close(); err != nil {
			errs = append(errs, &ContextError{Context: i, cause: err})
		}
	}
	err := errors.Join(errs...)
	m.logger.LogClose(context.Background(), len(m.contexts), err)

	m.contexts = m.contexts[:1]
	m.closed = true
	return err
}
