package mesh

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strings"
)

// TagMode selects how DB.Tag treats a missing tag.
type TagMode uint8

const (
	// TagLookup returns ErrNotFound when the tag does not exist.
	TagLookup TagMode = iota
	// TagCreate creates the tag when it does not exist.
	TagCreate
)

// Tag is a named, sparse, variable-length byte tag.
type Tag struct {
	name string
}

// Name returns the tag name.
func (t *Tag) Name() string { return t.name }

type tagData struct {
	values map[Handle][]byte
	// handles marks tags whose values are handle lists; they are remapped on Decode.
	handles bool
}

// Tag returns the tag called name. With TagCreate a missing tag is created;
// with TagLookup a missing tag yields ErrNotFound.
func (db *DB) Tag(name string, mode TagMode) (*Tag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.tags[name]; !ok {
		if mode != TagCreate {
			return nil, fmt.Errorf("%w: tag %q", ErrNotFound, name)
		}
		db.tags[name] = &tagData{values: make(map[Handle][]byte)}
	}
	return &Tag{name: name}, nil
}

// MustTag returns the tag called name, creating it when missing.
func (db *DB) MustTag(name string) *Tag {
	t, _ := db.Tag(name, TagCreate)
	return t
}

// TagNames returns the names of all tags in sorted order.
func (db *DB) TagNames() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.tags))
	for n := range db.tags {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (db *DB) tagLocked(t *Tag) (*tagData, error) {
	td, ok := db.tags[t.name]
	if !ok {
		return nil, fmt.Errorf("%w: tag %q", ErrNotFound, t.name)
	}
	return td, nil
}

// SetTagData stores a copy of data on h. h may be Root.
func (db *DB) SetTagData(t *Tag, h Handle, data []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	td, err := db.tagLocked(t)
	if err != nil {
		return err
	}
	if h != Root {
		if _, err := db.getLocked(h, 0); err != nil {
			return err
		}
	}
	td.values[h] = bytes.Clone(data)
	return nil
}

// TagData returns a copy of the value of t on h.
func (db *DB) TagData(t *Tag, h Handle) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	td, err := db.tagLocked(t)
	if err != nil {
		return nil, err
	}
	v, ok := td.values[h]
	if !ok {
		return nil, fmt.Errorf("%w: tag %q on entity %d", ErrNotFound, t.name, h)
	}
	return bytes.Clone(v), nil
}

// DeleteTagData removes the value of t on h, if any.
func (db *DB) DeleteTagData(t *Tag, h Handle) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	td, err := db.tagLocked(t)
	if err != nil {
		return err
	}
	delete(td.values, h)
	return nil
}

// TaggedEntities returns every entity (excluding Root) carrying a value for t,
// in ascending handle order.
func (db *DB) TaggedEntities(t *Tag) ([]Handle, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	td, err := db.tagLocked(t)
	if err != nil {
		return nil, err
	}
	out := make([]Handle, 0, len(td.values))
	for h := range td.values {
		if h != Root {
			out = append(out, h)
		}
	}
	slices.Sort(out)
	return out, nil
}

// EntitiesWithValue returns the sets whose value for t equals value exactly.
func (db *DB) EntitiesWithValue(t *Tag, value []byte) ([]Handle, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	td, err := db.tagLocked(t)
	if err != nil {
		return nil, err
	}
	var out []Handle
	for h, v := range td.values {
		if h != Root && bytes.Equal(v, value) {
			out = append(out, h)
		}
	}
	slices.Sort(out)
	return out, nil
}

// SetInt stores v on h as a little-endian int64.
func (db *DB) SetInt(t *Tag, h Handle, v int64) error {
	return db.SetTagData(t, h, binary.LittleEndian.AppendUint64(nil, uint64(v)))
}

// Int reads an int64 written by SetInt.
func (db *DB) Int(t *Tag, h Handle) (int64, error) {
	b, err := db.TagData(t, h)
	if err != nil {
		return 0, err
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: tag %q holds %d bytes, want 8", ErrWrongType, t.name, len(b))
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// SetFloat64 stores v on h as little-endian IEEE 754 bits.
func (db *DB) SetFloat64(t *Tag, h Handle, v float64) error {
	return db.SetTagData(t, h, binary.LittleEndian.AppendUint64(nil, math.Float64bits(v)))
}

// Float64 reads a float64 written by SetFloat64.
func (db *DB) Float64(t *Tag, h Handle) (float64, error) {
	b, err := db.TagData(t, h)
	if err != nil {
		return 0, err
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: tag %q holds %d bytes, want 8", ErrWrongType, t.name, len(b))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// SetString stores s on h.
func (db *DB) SetString(t *Tag, h Handle, s string) error {
	return db.SetTagData(t, h, []byte(s))
}

// String reads a string tag. Trailing NUL padding from fixed-width
// writers is stripped.
func (db *DB) String(t *Tag, h Handle) (string, error) {
	b, err := db.TagData(t, h)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}

// SetHandles stores a list of handles on h and marks t as handle-valued.
func (db *DB) SetHandles(t *Tag, h Handle, hs ...Handle) error {
	buf := make([]byte, 0, 8*len(hs))
	for _, v := range hs {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v))
	}
	if err := db.SetTagData(t, h, buf); err != nil {
		return err
	}
	db.mu.Lock()
	if td, ok := db.tags[t.name]; ok {
		td.handles = true
	}
	db.mu.Unlock()
	return nil
}

// Handles reads a list written by SetHandles.
func (db *DB) Handles(t *Tag, h Handle) ([]Handle, error) {
	b, err := db.TagData(t, h)
	if err != nil {
		return nil, err
	}
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("%w: tag %q holds %d bytes, want a multiple of 8", ErrWrongType, t.name, len(b))
	}
	out := make([]Handle, len(b)/8)
	for i := range out {
		out[i] = Handle(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out, nil
}
