package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitTriangle(t *testing.T, db *DB) (Handle, [3]Handle) {
	t.Helper()
	v0 := db.CreateVertex(Vec3{0, 0, 0})
	v1 := db.CreateVertex(Vec3{1, 0, 0})
	v2 := db.CreateVertex(Vec3{0, 1, 0})
	tri, err := db.CreateTriangle(v0, v1, v2)
	require.NoError(t, err)
	return tri, [3]Handle{v0, v1, v2}
}

func TestDB_CreateEntities(t *testing.T) {
	db := New()
	tri, verts := unitTriangle(t, db)

	assert.NotEqual(t, Root, verts[0], "handle 0 is never assigned")
	assert.Equal(t, 4, db.Len())

	typ, err := db.Type(tri)
	require.NoError(t, err)
	assert.Equal(t, TypeTriangle, typ)

	conn, err := db.Connectivity(tri)
	require.NoError(t, err)
	assert.Equal(t, verts, conn)

	coords, err := db.TriangleCoords(tri)
	require.NoError(t, err)
	assert.Equal(t, Vec3{1, 0, 0}, coords[1])

	_, err = db.CreateTriangle(verts[0], verts[1], tri)
	require.ErrorIs(t, err, ErrWrongType)

	_, err = db.Coords(999)
	require.ErrorIs(t, err, ErrNotFound)
	var nf *ErrEntityNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, Handle(999), nf.Handle)
}

func TestDB_SetsAndLinks(t *testing.T) {
	db := New()
	tri, _ := unitTriangle(t, db)
	parent := db.CreateSet()
	child := db.CreateSet()

	require.NoError(t, db.AddEntities(child, tri, tri))
	members, err := db.Members(child)
	require.NoError(t, err)
	assert.Equal(t, []Handle{tri}, members)

	require.NoError(t, db.AddEntities(parent, child))
	onlyTris, err := db.MembersOfType(parent, TypeTriangle)
	require.NoError(t, err)
	assert.Empty(t, onlyTris)

	require.NoError(t, db.AddParentChild(parent, child))
	require.NoError(t, db.AddParentChild(parent, child))
	children, err := db.Children(parent)
	require.NoError(t, err)
	assert.Equal(t, []Handle{child}, children)
	parents, err := db.Parents(child)
	require.NoError(t, err)
	assert.Equal(t, []Handle{parent}, parents)

	require.NoError(t, db.RemoveParentChild(parent, child))
	children, err = db.Children(parent)
	require.NoError(t, err)
	assert.Empty(t, children)

	require.ErrorIs(t, db.AddEntities(tri, child), ErrWrongType)
	assert.Equal(t, []Handle{parent, child}, db.EntitiesByType(TypeSet))
}

func TestDB_DeleteEntities(t *testing.T) {
	db := New()
	tri, _ := unitTriangle(t, db)
	parent := db.CreateSet()
	child := db.CreateSet()
	require.NoError(t, db.AddEntities(parent, tri, child))
	require.NoError(t, db.AddParentChild(parent, child))

	tag := db.MustTag("NAME")
	require.NoError(t, db.SetString(tag, child, "doomed"))

	require.NoError(t, db.DeleteEntities(child))
	assert.False(t, db.Exists(child))

	members, err := db.Members(parent)
	require.NoError(t, err)
	assert.Equal(t, []Handle{tri}, members)

	children, err := db.Children(parent)
	require.NoError(t, err)
	assert.Empty(t, children)

	_, err = db.String(tag, child)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, db.DeleteEntities(child), ErrNotFound)
}

func TestDB_Tags(t *testing.T) {
	db := New()
	set := db.CreateSet()

	_, err := db.Tag("MISSING", TagLookup)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = db.Tag("MISSING", TagLookup)
	require.ErrorIs(t, err, ErrNotFound, "lookup must never create")

	ft, err := db.Tag("FACETING_TOL", TagCreate)
	require.NoError(t, err)
	require.NoError(t, db.SetFloat64(ft, Root, 1e-4))
	tol, err := db.Float64(ft, Root)
	require.NoError(t, err)
	assert.InDelta(t, 1e-4, tol, 0)

	tagged, err := db.TaggedEntities(ft)
	require.NoError(t, err)
	assert.Empty(t, tagged, "root is not an entity")

	id := db.MustTag("GLOBAL_ID")
	require.NoError(t, db.SetInt(id, set, 7))
	v, err := db.Int(id, set)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	name := db.MustTag("NAME")
	require.NoError(t, db.SetString(name, set, "mat:Graveyard\x00\x00"))
	s, err := db.String(name, set)
	require.NoError(t, err)
	assert.Equal(t, "mat:Graveyard", s)

	_, err = db.Int(name, set)
	require.ErrorIs(t, err, ErrWrongType)

	matches, err := db.EntitiesWithValue(name, []byte("mat:Graveyard\x00\x00"))
	require.NoError(t, err)
	assert.Equal(t, []Handle{set}, matches)

	sense := db.MustTag("GEOM_SENSE_2")
	require.NoError(t, db.SetHandles(sense, set, set, 0))
	hs, err := db.Handles(sense, set)
	require.NoError(t, err)
	assert.Equal(t, []Handle{set, 0}, hs)

	assert.Equal(t, []string{"FACETING_TOL", "GEOM_SENSE_2", "GLOBAL_ID", "NAME"}, db.TagNames())

	require.ErrorIs(t, db.SetInt(id, 12345, 1), ErrNotFound)
}

func TestDB_Clear(t *testing.T) {
	db := New()
	unitTriangle(t, db)
	db.MustTag("X")
	db.Clear()

	assert.Zero(t, db.Len())
	assert.Empty(t, db.TagNames())
	assert.Equal(t, Handle(1), db.CreateSet())
}

func TestBox(t *testing.T) {
	b := EmptyBox()
	assert.True(t, b.Degenerate())

	b = b.Extend(Vec3{-1, -2, -3}).Extend(Vec3{1, 2, 3})
	assert.False(t, b.Degenerate())
	assert.InDelta(t, 48.0, b.Volume(), 1e-12)
	assert.True(t, b.Contains(Vec3{0, 0, 0}))
	assert.False(t, b.Contains(Vec3{2, 0, 0}))

	e := b.Expand(10)
	assert.Equal(t, Vec3{-11, -12, -13}, e.Min)
	assert.Equal(t, Vec3{11, 12, 13}, e.Max)

	flat := Box{Min: Vec3{0, 0, 0}, Max: Vec3{1, 0, 1}}
	assert.True(t, flat.Degenerate())

	tmin, tmax, ok := b.IntersectRay(Vec3{-5, 0, 0}, Vec3{1, 0, 0})
	require.True(t, ok)
	assert.InDelta(t, 4.0, tmin, 1e-12)
	assert.InDelta(t, 6.0, tmax, 1e-12)

	_, _, ok = b.IntersectRay(Vec3{-5, 10, 0}, Vec3{1, 0, 0})
	assert.False(t, ok)
}

func TestVec3(t *testing.T) {
	a := Vec3{1, 0, 0}
	b := Vec3{0, 1, 0}
	assert.Equal(t, Vec3{0, 0, 1}, a.Cross(b))
	assert.Zero(t, a.Dot(b))
	assert.InDelta(t, 5.0, Vec3{3, 4, 0}.Len(), 1e-12)
	assert.InDelta(t, 1.0, Vec3{3, 4, 0}.Unit().Len(), 1e-12)
	assert.Equal(t, Vec3{1, 1, 0}, a.Add(b))
	assert.Equal(t, Vec3{2, 0, 0}, a.Scale(2))
}
