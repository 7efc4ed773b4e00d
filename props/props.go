// Package props derives per-entity properties from metadata group names.
//
// A group named "mat:steel/rho:7.8" carries the properties mat=steel and
// rho=7.8 under the delimiter set ":/". Parsing a model appends each value
// to every entity set the group contains. Values for one (entity, keyword)
// pair form an ordered, append-only sequence.
package props

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/brepq/mesh"
	"github.com/hupe1980/brepq/topo"
)

// DefaultDelimiters separates keywords from values in group names.
const DefaultDelimiters = ":/"

// ErrNotFound is returned for unknown keywords, nameless groups, and
// entities without a value.
var ErrNotFound = errors.New("props: not found")

// CanonicalKeywords merges synonyms (user word -> canonical keyword) with
// keywords, each of which maps to itself.
func CanonicalKeywords(keywords []string, synonyms map[string]string) map[string]string {
	out := make(map[string]string, len(keywords)+2*len(synonyms))
	for syn, canon := range synonyms {
		out[syn] = canon
		out[canon] = canon
	}
	for _, kw := range keywords {
		out[kw] = kw
	}
	return out
}

func tokenize(s, delimiters string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(delimiters, r)
	})
}

// ParseGroupName splits name into keyword/value pairs. Tokens are maximal
// runs of non-delimiter characters; even tokens are keywords and the token
// after each keyword is its value, or "" when there is none. A keyword that
// repeats keeps its last value.
func ParseGroupName(name, delimiters string) map[string]string {
	tokens := tokenize(name, delimiters)
	out := make(map[string]string, (len(tokens)+1)/2)
	for i := 0; i < len(tokens); i += 2 {
		var v string
		if i+1 < len(tokens) {
			v = tokens[i+1]
		}
		out[tokens[i]] = v
	}
	return out
}

type property struct {
	values   map[mesh.Handle][]string
	entities *roaring64.Bitmap
	byValue  map[string]*roaring64.Bitmap
}

func newProperty() *property {
	return &property{
		values:   make(map[mesh.Handle][]string),
		entities: roaring64.New(),
		byValue:  make(map[string]*roaring64.Bitmap),
	}
}

// Store holds the parsed properties of one model.
type Store struct {
	tool *topo.Tool

	mu    sync.RWMutex
	props map[string]*property
}

// New creates an empty Store over tool.
func New(tool *topo.Tool) *Store {
	return &Store{
		tool:  tool,
		props: make(map[string]*property),
	}
}

// Register creates the property slot for each keyword that does not have one.
func (s *Store) Register(keywords ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kw := range keywords {
		if _, ok := s.props[kw]; !ok {
			s.props[kw] = newProperty()
		}
	}
}

// Keywords returns the registered canonical keywords in sorted order.
func (s *Store) Keywords() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.props))
}

// GroupName returns the NAME of group.
func (s *Store) GroupName(group mesh.Handle) (string, error) {
	name, err := s.tool.DB().String(s.tool.NameTag(), group)
	if err != nil {
		if errors.Is(err, mesh.ErrNotFound) {
			return "", fmt.Errorf("%w: group %d has no name", ErrNotFound, group)
		}
		return "", err
	}
	return name, nil
}

// ParseGroup parses the name of group.
func (s *Store) ParseGroup(group mesh.Handle, delimiters string) (map[string]string, error) {
	name, err := s.GroupName(group)
	if err != nil {
		return nil, err
	}
	return ParseGroupName(name, delimiters), nil
}

// ParseAll registers the canonical keywords and appends the value of every
// recognised keyword of every named group to each entity set in that group.
// Synonyms are stored under their canonical keyword.
func (s *Store) ParseAll(groups []mesh.Handle, keywords []string, synonyms map[string]string, delimiters string) error {
	master := CanonicalKeywords(keywords, synonyms)
	s.Register(slices.Collect(maps.Values(master))...)

	for _, g := range groups {
		parsed, err := s.ParseGroup(g, delimiters)
		if errors.Is(err, ErrNotFound) {
			continue
		} else if err != nil {
			return err
		}
		sets, err := s.tool.DB().MembersOfType(g, mesh.TypeSet)
		if err != nil {
			return err
		}
		if len(sets) == 0 {
			continue
		}
		for _, key := range slices.Sorted(maps.Keys(parsed)) {
			canon, ok := master[key]
			if !ok {
				continue
			}
			for _, h := range sets {
				if err := s.Append(h, canon, parsed[key]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// DetectKeywords returns every keyword used by any named group, sorted.
func (s *Store) DetectKeywords(groups []mesh.Handle, delimiters string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, g := range groups {
		parsed, err := s.ParseGroup(g, delimiters)
		if errors.Is(err, ErrNotFound) {
			continue
		} else if err != nil {
			return nil, err
		}
		for k := range parsed {
			seen[k] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

func (s *Store) property(kw string) (*property, error) {
	p, ok := s.props[kw]
	if !ok {
		return nil, fmt.Errorf("%w: keyword %q", ErrNotFound, kw)
	}
	return p, nil
}

// Append adds value to the end of the values of kw on h.
func (s *Store) Append(h mesh.Handle, kw, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.property(kw)
	if err != nil {
		return err
	}
	p.values[h] = append(p.values[h], value)
	p.entities.Add(uint64(h))
	bm, ok := p.byValue[value]
	if !ok {
		bm = roaring64.New()
		p.byValue[value] = bm
	}
	bm.Add(uint64(h))
	return nil
}

// Value returns the first value of kw on h.
func (s *Store) Value(h mesh.Handle, kw string) (string, error) {
	vs, err := s.Values(h, kw)
	if err != nil {
		return "", err
	}
	return vs[0], nil
}

// Values returns every value of kw on h in append order.
func (s *Store) Values(h mesh.Handle, kw string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.property(kw)
	if err != nil {
		return nil, err
	}
	vs, ok := p.values[h]
	if !ok {
		return nil, fmt.Errorf("%w: entity %d has no %q", ErrNotFound, h, kw)
	}
	return slices.Clone(vs), nil
}

// Has reports whether h carries kw.
func (s *Store) Has(h mesh.Handle, kw string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.props[kw]
	return ok && p.entities.Contains(uint64(h))
}

// AllValues returns the distinct values of kw over all entities, sorted.
func (s *Store) AllValues(kw string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.property(kw)
	if err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(p.byValue)), nil
}

type entityOptions struct {
	dim      topo.Dimension
	hasDim   bool
	hasValue bool
	value    string
}

// EntityOption filters Entities.
type EntityOption func(*entityOptions)

// WithDimension keeps entities of dimension d.
func WithDimension(d topo.Dimension) EntityOption {
	return func(o *entityOptions) {
		o.hasDim = true
		o.dim = d
	}
}

// WithValue keeps entities whose values of the keyword include v.
func WithValue(v string) EntityOption {
	return func(o *entityOptions) {
		o.hasValue = true
		o.value = v
	}
}

// Entities returns the entities carrying kw, in ascending handle order.
func (s *Store) Entities(kw string, optFns ...EntityOption) ([]mesh.Handle, error) {
	var opts entityOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	s.mu.RLock()
	p, err := s.property(kw)
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	bm := p.entities
	if opts.hasValue {
		bm = p.byValue[opts.value]
	}
	var ids []uint64
	if bm != nil {
		ids = bm.ToArray()
	}
	s.mu.RUnlock()

	out := make([]mesh.Handle, 0, len(ids))
	for _, id := range ids {
		h := mesh.Handle(id)
		if opts.hasDim {
			d, err := s.tool.Dimension(h)
			if err != nil || d != opts.dim {
				continue
			}
		}
		out = append(out, h)
	}
	return out, nil
}
