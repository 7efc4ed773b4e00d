package brepq

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/hupe1980/brepq/blobstore"
	"github.com/hupe1980/brepq/internal/handleindex"
	"github.com/hupe1980/brepq/internal/resource"
	"github.com/hupe1980/brepq/internal/synth"
	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/props"
	"github.com/hupe1980/brepq/query"
	"github.com/hupe1980/brepq/topo"
)

// FacetingToleranceTag names the float64 tag holding a model's faceting tolerance.
const FacetingToleranceTag = "FACETING_TOL"

// Ownership records whether a session created a dependency (Owned) or was
// handed it by its caller (Borrowed). Only owned dependencies are released
// on Close.
type Ownership uint8

const (
	Owned Ownership = iota
	Borrowed
)

func (o Ownership) String() string {
	if o == Borrowed {
		return "borrowed"
	}
	return "owned"
}

// Session is a query facade over one model. It owns one query engine and
// one topology tool, and owns or borrows the mesh database beneath them.
//
// A Session is not safe for concurrent use: its engine caches spatial
// indexes. Sessions sharing a topology may run on different goroutines once
// the topology is no longer being modified.
type Session struct {
	db      *mesh.DB
	dbOwn   Ownership
	tool    *topo.Tool
	toolOwn Ownership

	engine *query.Engine
	index  *handleindex.Index
	props  *props.Store

	facetingTolerance float64

	opts    options
	logger  *Logger
	metrics MetricsCollector
}

// NewSession creates a session. Without WithMesh or WithTopology it owns a
// fresh, empty mesh database.
func NewSession(optFns ...Option) *Session {
	opts := applyOptions(optFns)
	return newSession(opts)
}

func newSession(opts options) *Session {
	s := &Session{
		opts:              opts,
		logger:            opts.logger,
		metrics:           opts.metricsCollector,
		facetingTolerance: opts.facetingTolerance,
	}
	switch {
	case opts.tool != nil:
		s.tool, s.toolOwn = opts.tool, Borrowed
		s.db, s.dbOwn = opts.tool.DB(), Borrowed
	case opts.db != nil:
		s.db, s.dbOwn = opts.db, Borrowed
		s.tool, s.toolOwn = topo.New(opts.db), Owned
	default:
		s.db, s.dbOwn = mesh.New(), Owned
		s.tool, s.toolOwn = topo.New(s.db), Owned
	}
	s.engine = query.New(s.tool,
		query.WithOverlapThickness(opts.overlapThickness),
		query.WithNumericalPrecision(opts.numericalPrecision),
	)
	s.props = props.New(s.tool)
	return s
}

// DB returns the mesh database.
func (s *Session) DB() *mesh.DB { return s.db }

// Topology returns the topology tool.
func (s *Session) Topology() *topo.Tool { return s.tool }

// Ownership returns the ownership of the mesh database and the topology tool.
func (s *Session) Ownership() (db, tool Ownership) { return s.dbOwn, s.toolOwn }

// Load reads a geometry file from the local file system into the mesh
// database. Loading into a non-empty database appends.
func (s *Session) Load(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		err = translateIOError(err)
		s.logger.LogLoad(ctx, path, 0, 0, err)
		s.metrics.RecordLoad(0, 0, err)
		return err
	}
	defer func() { _ = f.Close() }()

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	return s.load(ctx, path, f, size)
}

// LoadFrom reads the geometry file name from store.
func (s *Session) LoadFrom(ctx context.Context, store blobstore.BlobStore, name string) error {
	b, err := store.Open(ctx, name)
	if err != nil {
		err = translateIOError(err)
		s.logger.LogLoad(ctx, name, 0, 0, err)
		s.metrics.RecordLoad(0, 0, err)
		return err
	}
	defer func() { _ = b.Close() }()
	return s.load(ctx, name, blobstore.NewReader(ctx, b), b.Size())
}

func (s *Session) load(ctx context.Context, source string, r io.Reader, size int64) (err error) {
	start := time.Now()
	defer func() {
		d := time.Since(start)
		s.metrics.RecordLoad(size, d, err)
		s.logger.LogLoad(ctx, source, s.db.Len(), d, err)
	}()

	rc := s.opts.resources
	if err := rc.AcquireMemory(ctx, size); err != nil {
		return translateIOError(err)
	}
	defer rc.ReleaseMemory(size)

	if _, err := s.db.Decode(resource.NewRateLimitedReader(ctx, r, rc)); err != nil {
		return translateIOError(fmt.Errorf("load %s: %w", source, err))
	}
	return s.finishLoading()
}

// LoadExisting adopts the contents already in the mesh database. It reads
// the faceting tolerance and, if the topology has not been scanned yet,
// finds the geometric sets. It does not modify a scanned topology.
func (s *Session) LoadExisting() error {
	if s.tool.Loaded() {
		return s.readFacetingTolerance()
	}
	return s.finishLoading()
}

func (s *Session) finishLoading() error {
	if err := s.readFacetingTolerance(); err != nil {
		return err
	}
	return translateError(s.tool.FindGeomSets())
}

// readFacetingTolerance takes the FACETING_TOL of the first tagged entity
// set, else of the root. Missing or non-positive values keep the default.
func (s *Session) readFacetingTolerance() error {
	tag, err := s.db.Tag(FacetingToleranceTag, mesh.TagLookup)
	if err != nil {
		return nil
	}
	tagged, err := s.db.TaggedEntities(tag)
	if err != nil {
		return translateError(err)
	}
	holder, found := mesh.Root, false
	for _, h := range tagged {
		if typ, err := s.db.Type(h); h != mesh.Root && err == nil && typ == mesh.TypeSet {
			holder, found = h, true
			break
		}
	}
	v, err := s.db.Float64(tag, holder)
	if err != nil {
		if found {
			return translateError(err)
		}
		return nil
	}
	if v > 0 {
		s.facetingTolerance = v
	}
	return nil
}

// FacetingTolerance returns the tolerance read at load, or the default.
func (s *Session) FacetingTolerance() float64 { return s.facetingTolerance }

// Init prepares a loaded model for querying: it finds the geometric sets,
// sets up the implicit complement, builds the spatial indexes, adds the
// graveyard and builds the handle index. Init mutates the topology.
func (s *Session) Init(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		d := time.Since(start)
		s.metrics.RecordInit(0, d, err)
		s.logger.LogInit(ctx, s.NumEntities(topo.DimSurface), s.NumEntities(topo.DimVolume), d, err)
	}()

	if err := s.tool.FindGeomSets(); err != nil {
		return translateError(fmt.Errorf("find geometric sets: %w", err))
	}
	if _, err := s.tool.SetupImplicitComplement(); err != nil {
		return translateError(fmt.Errorf("set up implicit complement: %w", err))
	}
	if err := s.BuildIndexes(ctx); err != nil {
		return err
	}
	if s.opts.graveyard {
		if _, err := s.CreateGraveyard(); err != nil {
			return err
		}
	}
	return s.SetupIndices()
}

// BuildIndexes builds a spatial index for every volume that lacks one.
func (s *Session) BuildIndexes(ctx context.Context) error {
	vols, err := s.tool.Entities(topo.DimVolume)
	if err != nil {
		return translateError(err)
	}
	for _, vol := range vols {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.engine.HasIndex(vol) {
			continue
		}
		if err := s.engine.BuildIndex(vol); err != nil {
			return translateError(fmt.Errorf("index volume %d: %w", vol, err))
		}
	}
	return nil
}

// prepareReplica readies a session that borrows an already initialized
// topology. It builds private indexes and leaves the topology untouched.
func (s *Session) prepareReplica(ctx context.Context) error {
	if err := s.LoadExisting(); err != nil {
		return err
	}
	if err := s.BuildIndexes(ctx); err != nil {
		return err
	}
	return s.SetupIndices()
}

// CreateGraveyard adds a graveyard volume around the model and repairs the
// implicit complement. Calling it twice nests a second graveyard.
func (s *Session) CreateGraveyard() (mesh.Handle, error) {
	sy := synth.New(s.tool, s.engine,
		synth.WithMargin(s.opts.margin),
		synth.WithLogger(s.logger.Logger),
	)
	vol, err := sy.Graveyard()
	if err != nil {
		return 0, translateError(err)
	}
	return vol, nil
}

// SetupIndices rebuilds the handle index over the current surfaces, volumes
// and groups. IDs from an earlier index are stale afterwards.
func (s *Session) SetupIndices() error {
	surfs, err := s.tool.Entities(topo.DimSurface)
	if err != nil {
		return translateError(err)
	}
	vols, err := s.tool.Entities(topo.DimVolume)
	if err != nil {
		return translateError(err)
	}
	groups, err := s.tool.Entities(topo.DimGroup)
	if err != nil {
		return translateError(err)
	}
	idx, err := handleindex.Build(surfs, vols, groups)
	if err != nil {
		return translateError(fmt.Errorf("build handle index: %w", err))
	}
	s.index = idx
	return nil
}

func (s *Session) handleIndex() (*handleindex.Index, error) {
	if s.index == nil {
		return nil, fmt.Errorf("%w: handle index not built", ErrNotFound)
	}
	return s.index, nil
}

// EntityByIndex returns the surface or volume with the given 1-based index.
func (s *Session) EntityByIndex(dim topo.Dimension, index int) (mesh.Handle, error) {
	idx, err := s.handleIndex()
	if err != nil {
		return 0, err
	}
	h, err := idx.Handle(dim, index)
	return h, translateError(err)
}

// IndexOf returns the 1-based index of a surface or volume.
func (s *Session) IndexOf(h mesh.Handle) (int, error) {
	idx, err := s.handleIndex()
	if err != nil {
		return 0, err
	}
	i, err := idx.IndexOf(h)
	return i, translateError(err)
}

// NumEntities returns the number of indexed entities of dimension dim.
func (s *Session) NumEntities(dim topo.Dimension) int {
	if s.index == nil {
		return 0
	}
	return s.index.Count(dim)
}

// Groups returns the indexed group sets.
func (s *Session) Groups() []mesh.Handle {
	if s.index == nil {
		return nil
	}
	return s.index.Groups()
}

// IndexGeneration identifies the current handle index. Pass it to
// CheckIndex to detect IDs held across a rebuild.
func (s *Session) IndexGeneration() uint64 {
	if s.index == nil {
		return 0
	}
	return s.index.Generation()
}

// CheckIndex returns ErrIndexStale when gen is not the current generation.
func (s *Session) CheckIndex(gen uint64) error {
	idx, err := s.handleIndex()
	if err != nil {
		return err
	}
	return translateError(idx.Check(gen))
}

// IDByIndex returns the global ID of the entity with the given index.
func (s *Session) IDByIndex(dim topo.Dimension, index int) (int, error) {
	h, err := s.EntityByIndex(dim, index)
	if err != nil {
		return 0, err
	}
	return s.EntityID(h)
}

// EntityByID returns the set of dimension dim with the given global ID.
func (s *Session) EntityByID(dim topo.Dimension, id int) (mesh.Handle, error) {
	h, err := s.tool.EntityByID(dim, id)
	return h, translateError(err)
}

// EntityID returns the global ID of a geometric set.
func (s *Session) EntityID(h mesh.Handle) (int, error) {
	id, err := s.tool.GlobalID(h)
	return id, translateError(err)
}

// IsImplicitComplement reports whether vol is the implicit complement.
func (s *Session) IsImplicitComplement(vol mesh.Handle) bool {
	return s.tool.IsImplicitComplement(vol)
}

// HasIndex reports whether vol has a spatial index in this session.
func (s *Session) HasIndex(vol mesh.Handle) bool { return s.engine.HasIndex(vol) }

// BoundingBox returns the axis-aligned bounding box of an indexed volume.
func (s *Session) BoundingBox(vol mesh.Handle) (mesh.Box, error) {
	b, err := s.engine.BoundingBox(vol)
	return b, translateError(err)
}

// OverlapThickness returns the current overlap thickness.
func (s *Session) OverlapThickness() float64 { return s.engine.OverlapThickness() }

// NumericalPrecision returns the current numerical precision.
func (s *Session) NumericalPrecision() float64 { return s.engine.NumericalPrecision() }

// SetOverlapThickness changes the overlap thickness of this session.
func (s *Session) SetOverlapThickness(v float64) { s.engine.SetOverlapThickness(v) }

// SetNumericalPrecision changes the numerical precision of this session.
func (s *Session) SetNumericalPrecision(v float64) { s.engine.SetNumericalPrecision(v) }

// RayFire returns the next surface hit by a ray from origin along dir inside
// vol and the distance to it. A miss yields surface 0 and +Inf.
func (s *Session) RayFire(vol mesh.Handle, origin, dir mesh.Vec3, optFns ...query.RayOption) (mesh.Handle, float64, error) {
	start := time.Now()
	surf, dist, err := s.engine.RayFire(vol, origin, dir, optFns...)
	err = translateError(err)
	s.metrics.RecordRayFire(time.Since(start), err == nil && !math.IsInf(dist, 1), err)
	return surf, dist, err
}

// PointInVolume classifies pt against vol.
func (s *Session) PointInVolume(vol mesh.Handle, pt mesh.Vec3, optFns ...query.PointOption) (query.Containment, error) {
	start := time.Now()
	c, err := s.engine.PointInVolume(vol, pt, optFns...)
	err = translateError(err)
	s.metrics.RecordPointInVolume(time.Since(start), err)
	return c, err
}

// PointInVolumeSlow classifies pt against vol by solid angles.
func (s *Session) PointInVolumeSlow(vol mesh.Handle, pt mesh.Vec3) (query.Containment, error) {
	start := time.Now()
	c, err := s.engine.PointInVolumeSlow(vol, pt)
	err = translateError(err)
	s.metrics.RecordPointInVolume(time.Since(start), err)
	return c, err
}

// TestVolumeBoundary reports whether a ray at pt along dir crossing surf
// enters (Inside) or leaves (Outside) vol.
func (s *Session) TestVolumeBoundary(vol, surf mesh.Handle, pt, dir mesh.Vec3, history *query.RayHistory) (query.Containment, error) {
	c, err := s.engine.TestVolumeBoundary(vol, surf, pt, dir, history)
	return c, translateError(err)
}

// ClosestToLocation returns the distance from pt to the nearest boundary of
// vol and the surface it lies on.
func (s *Session) ClosestToLocation(vol mesh.Handle, pt mesh.Vec3) (float64, mesh.Handle, error) {
	start := time.Now()
	d, surf, err := s.engine.ClosestToLocation(vol, pt)
	err = translateError(err)
	s.metrics.RecordClosest(time.Since(start), err)
	return d, surf, err
}

// MeasureVolume returns the signed volume enclosed by vol.
func (s *Session) MeasureVolume(vol mesh.Handle) (float64, error) {
	v, err := s.engine.MeasureVolume(vol)
	return v, translateError(err)
}

// MeasureArea returns the area of surf.
func (s *Session) MeasureArea(surf mesh.Handle) (float64, error) {
	a, err := s.engine.MeasureArea(surf)
	return a, translateError(err)
}

// SurfaceSense returns the sense of surf with respect to vol.
func (s *Session) SurfaceSense(vol, surf mesh.Handle) (topo.Sense, error) {
	sense, err := s.tool.Sense(surf, vol)
	return sense, translateError(err)
}

// SurfaceSenses returns the sense of each of surfs with respect to vol.
func (s *Session) SurfaceSenses(vol mesh.Handle, surfs []mesh.Handle) ([]topo.Sense, error) {
	out := make([]topo.Sense, len(surfs))
	for i, surf := range surfs {
		sense, err := s.SurfaceSense(vol, surf)
		if err != nil {
			return nil, err
		}
		out[i] = sense
	}
	return out, nil
}

// SurfaceNormal returns the unit normal of surf near pt.
func (s *Session) SurfaceNormal(surf mesh.Handle, pt mesh.Vec3, history *query.RayHistory) (mesh.Vec3, error) {
	n, err := s.engine.SurfaceNormal(surf, pt, history)
	return n, translateError(err)
}

// NextVolume returns the volume on the other side of surf from vol.
func (s *Session) NextVolume(surf, vol mesh.Handle) (mesh.Handle, error) {
	next, err := s.tool.NextVolume(surf, vol)
	return next, translateError(err)
}

// ParseProperties derives properties from the names of the indexed groups.
// keywords and the values of synonyms are the canonical property names;
// synonyms maps alternative spellings onto them. Group keywords that map to
// no property are logged.
func (s *Session) ParseProperties(ctx context.Context, keywords []string, synonyms map[string]string, delimiters string) (err error) {
	defer func() {
		s.logger.LogProperties(ctx, keywords, err)
	}()

	groups := s.Groups()
	if s.index == nil {
		groups, err = s.tool.Entities(topo.DimGroup)
		if err != nil {
			return translateError(err)
		}
	}
	if err := s.props.ParseAll(groups, keywords, synonyms, delimiters); err != nil {
		return translateError(err)
	}

	found, err := s.props.DetectKeywords(groups, delimiters)
	if err != nil {
		return translateError(err)
	}
	known := props.CanonicalKeywords(keywords, synonyms)
	var unknown []string
	for _, kw := range found {
		if _, ok := known[kw]; !ok {
			unknown = append(unknown, kw)
		}
	}
	s.logger.LogUnhandledKeywords(ctx, unknown)
	return nil
}

// Properties returns the property store.
func (s *Session) Properties() *props.Store { return s.props }

// WriteMesh writes the mesh database to path.
func (s *Session) WriteMesh(ctx context.Context, path string) (err error) {
	defer func() { s.logger.LogWrite(ctx, path, err) }()

	f, err := os.Create(path)
	if err != nil {
		return translateIOError(err)
	}
	w := resource.NewRateLimitedWriter(ctx, f, s.opts.resources)
	if err := s.db.Encode(w, s.encodeOptions()...); err != nil {
		_ = f.Close()
		return translateIOError(err)
	}
	return translateIOError(f.Close())
}

// WriteTo writes the mesh database to store under name.
func (s *Session) WriteTo(ctx context.Context, store blobstore.BlobStore, name string) (err error) {
	defer func() { s.logger.LogWrite(ctx, name, err) }()

	var buf bytes.Buffer
	if err := s.db.Encode(&buf, s.encodeOptions()...); err != nil {
		return translateIOError(err)
	}
	if err := s.opts.resources.AcquireIO(ctx, buf.Len()); err != nil {
		return err
	}
	return translateIOError(store.Put(ctx, name, buf.Bytes()))
}

func (s *Session) encodeOptions() []mesh.EncodeOption {
	return []mesh.EncodeOption{
		mesh.WithCompression(s.opts.compression),
		mesh.WithCodec(s.opts.codec),
	}
}

// Close drops the session's spatial and handle indexes and clears the mesh
// database if the session owns it.
func (s *Session) Close() error {
	s.engine = query.New(s.tool,
		query.WithOverlapThickness(s.engine.OverlapThickness()),
		query.WithNumericalPrecision(s.engine.NumericalPrecision()),
	)
	s.index = nil
	if s.dbOwn == Owned {
		s.db.Clear()
	}
	return nil
}
