package mesh

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Handle identifies one entity of a DB. Handle 0 is the database root.
type Handle uint64

// Root addresses the database itself; it can carry tags but is not an entity.
const Root Handle = 0

// EntityType classifies entities.
type EntityType uint8

const (
	// TypeVertex is a point with coordinates.
	TypeVertex EntityType = iota + 1
	// TypeTriangle is a facet referencing three vertices.
	TypeTriangle
	// TypeSet is an entity set (geometric entity or group).
	TypeSet
)

func (t EntityType) String() string {
	switch t {
	case TypeVertex:
		return "vertex"
	case TypeTriangle:
		return "triangle"
	case TypeSet:
		return "set"
	default:
		return fmt.Sprintf("EntityType(%d)", uint8(t))
	}
}

type entity struct {
	typ      EntityType
	coords   Vec3
	conn     [3]Handle
	members  []Handle
	children []Handle
	parents  []Handle
}

// DB is an in-memory mesh database.
type DB struct {
	mu   sync.RWMutex
	next Handle
	ents map[Handle]*entity
	tags map[string]*tagData
}

// New creates an empty DB.
func New() *DB {
	return &DB{
		next: 1,
		ents: make(map[Handle]*entity),
		tags: make(map[string]*tagData),
	}
}

func (db *DB) allocLocked(e *entity) Handle {
	h := db.next
	db.next++
	db.ents[h] = e
	return h
}

func (db *DB) getLocked(h Handle, typ EntityType) (*entity, error) {
	e, ok := db.ents[h]
	if !ok {
		return nil, &ErrEntityNotFound{Handle: h}
	}
	if typ != 0 && e.typ != typ {
		return nil, fmt.Errorf("%w: entity %d is a %s, want %s", ErrWrongType, h, e.typ, typ)
	}
	return e, nil
}

// CreateVertex adds a vertex at p.
func (db *DB) CreateVertex(p Vec3) Handle {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.allocLocked(&entity{typ: TypeVertex, coords: p})
}

// CreateTriangle adds a triangle over three existing vertices.
// The winding order v0 -> v1 -> v2 defines the facet normal.
func (db *DB) CreateTriangle(v0, v1, v2 Handle) (Handle, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, v := range [3]Handle{v0, v1, v2} {
		if _, err := db.getLocked(v, TypeVertex); err != nil {
			return 0, err
		}
	}
	return db.allocLocked(&entity{typ: TypeTriangle, conn: [3]Handle{v0, v1, v2}}), nil
}

// CreateSet adds an empty entity set.
func (db *DB) CreateSet() Handle {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.allocLocked(&entity{typ: TypeSet})
}

// Type returns the type of h.
func (db *DB) Type(h Handle) (EntityType, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	e, err := db.getLocked(h, 0)
	if err != nil {
		return 0, err
	}
	return e.typ, nil
}

// Exists reports whether h addresses a live entity.
func (db *DB) Exists(h Handle) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.ents[h]
	return ok
}

// Len returns the number of live entities.
func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.ents)
}

// Coords returns the coordinates of vertex h.
func (db *DB) Coords(h Handle) (Vec3, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	e, err := db.getLocked(h, TypeVertex)
	if err != nil {
		return Vec3{}, err
	}
	return e.coords, nil
}

// Connectivity returns the vertices of triangle h in winding order.
func (db *DB) Connectivity(h Handle) ([3]Handle, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	e, err := db.getLocked(h, TypeTriangle)
	if err != nil {
		return [3]Handle{}, err
	}
	return e.conn, nil
}

// TriangleCoords returns the corner coordinates of triangle h in winding order.
func (db *DB) TriangleCoords(h Handle) ([3]Vec3, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	e, err := db.getLocked(h, TypeTriangle)
	if err != nil {
		return [3]Vec3{}, err
	}
	var out [3]Vec3
	for i, v := range e.conn {
		out[i] = db.ents[v].coords
	}
	return out, nil
}

// AddEntities adds members to set. Members already present are skipped.
func (db *DB) AddEntities(set Handle, members ...Handle) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	s, err := db.getLocked(set, TypeSet)
	if err != nil {
		return err
	}
	for _, m := range members {
		if _, err := db.getLocked(m, 0); err != nil {
			return err
		}
		if !slices.Contains(s.members, m) {
			s.members = append(s.members, m)
		}
	}
	return nil
}

// RemoveEntities removes members from set. Absent members are ignored.
func (db *DB) RemoveEntities(set Handle, members ...Handle) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	s, err := db.getLocked(set, TypeSet)
	if err != nil {
		return err
	}
	s.members = slices.DeleteFunc(s.members, func(h Handle) bool {
		return slices.Contains(members, h)
	})
	return nil
}

// Members returns the members of set in insertion order.
func (db *DB) Members(set Handle) ([]Handle, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	s, err := db.getLocked(set, TypeSet)
	if err != nil {
		return nil, err
	}
	return slices.Clone(s.members), nil
}

// MembersOfType returns the members of set that have the given type.
func (db *DB) MembersOfType(set Handle, typ EntityType) ([]Handle, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	s, err := db.getLocked(set, TypeSet)
	if err != nil {
		return nil, err
	}
	var out []Handle
	for _, m := range s.members {
		if db.ents[m].typ == typ {
			out = append(out, m)
		}
	}
	return out, nil
}

// AddParentChild links parent and child sets. Existing links are kept as-is.
func (db *DB) AddParentChild(parent, child Handle) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, err := db.getLocked(parent, TypeSet)
	if err != nil {
		return err
	}
	c, err := db.getLocked(child, TypeSet)
	if err != nil {
		return err
	}
	if !slices.Contains(p.children, child) {
		p.children = append(p.children, child)
	}
	if !slices.Contains(c.parents, parent) {
		c.parents = append(c.parents, parent)
	}
	return nil
}

// RemoveParentChild unlinks parent and child.
func (db *DB) RemoveParentChild(parent, child Handle) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	p, err := db.getLocked(parent, TypeSet)
	if err != nil {
		return err
	}
	c, err := db.getLocked(child, TypeSet)
	if err != nil {
		return err
	}
	p.children = slices.DeleteFunc(p.children, func(h Handle) bool { return h == child })
	c.parents = slices.DeleteFunc(c.parents, func(h Handle) bool { return h == parent })
	return nil
}

// Children returns the child sets of h.
func (db *DB) Children(h Handle) ([]Handle, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	e, err := db.getLocked(h, TypeSet)
	if err != nil {
		return nil, err
	}
	return slices.Clone(e.children), nil
}

// Parents returns the parent sets of h.
func (db *DB) Parents(h Handle) ([]Handle, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	e, err := db.getLocked(h, TypeSet)
	if err != nil {
		return nil, err
	}
	return slices.Clone(e.parents), nil
}

// EntitiesByType returns all entities of typ in ascending handle order.
func (db *DB) EntitiesByType(typ EntityType) []Handle {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []Handle
	for h, e := range db.ents {
		if e.typ == typ {
			out = append(out, h)
		}
	}
	slices.Sort(out)
	return out
}

// DeleteEntities removes entities together with every set membership,
// parent/child link and tag value that references them.
func (db *DB) DeleteEntities(handles ...Handle) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, h := range handles {
		if _, err := db.getLocked(h, 0); err != nil {
			return err
		}
	}
	doomed := make(map[Handle]struct{}, len(handles))
	for _, h := range handles {
		doomed[h] = struct{}{}
	}
	gone := func(h Handle) bool {
		_, ok := doomed[h]
		return ok
	}
	for h := range doomed {
		delete(db.ents, h)
	}
	for _, e := range db.ents {
		if e.typ != TypeSet {
			continue
		}
		e.members = slices.DeleteFunc(e.members, gone)
		e.children = slices.DeleteFunc(e.children, gone)
		e.parents = slices.DeleteFunc(e.parents, gone)
	}
	for _, td := range db.tags {
		for h := range doomed {
			delete(td.values, h)
		}
	}
	return nil
}

// Clear deletes every entity and tag.
func (db *DB) Clear() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.next = 1
	db.ents = make(map[Handle]*entity)
	db.tags = make(map[string]*tagData)
}

// sortedHandlesLocked returns all live handles in ascending order.
func (db *DB) sortedHandlesLocked() []Handle {
	return slices.Sorted(maps.Keys(db.ents))
}
