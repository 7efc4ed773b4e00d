package mesh

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/hupe1980/brepq/codec"
)

const (
	fileMagic   = "BRPQ"
	fileVersion = uint16(1)

	// FileExtension is the conventional extension of geometry files.
	FileExtension = ".bgm"
)

type entityRecord struct {
	Handle   Handle     `json:"h"`
	Type     EntityType `json:"t"`
	Coords   *Vec3      `json:"x,omitempty"`
	Conn     []Handle   `json:"c,omitempty"`
	Members  []Handle   `json:"m,omitempty"`
	Children []Handle   `json:"k,omitempty"`
}

type tagValueRecord struct {
	Handle Handle `json:"h"`
	Data   []byte `json:"d"`
}

type tagRecord struct {
	Name    string           `json:"n"`
	Handles bool             `json:"hs,omitempty"`
	Values  []tagValueRecord `json:"v"`
}

type snapshot struct {
	Entities []entityRecord `json:"entities"`
	Tags     []tagRecord    `json:"tags"`
}

type encodeOptions struct {
	compression Compression
	codec       codec.Codec
}

// EncodeOption configures Encode.
type EncodeOption func(*encodeOptions)

// WithCompression selects the payload compression. Defaults to CompressionZSTD.
func WithCompression(c Compression) EncodeOption {
	return func(o *encodeOptions) {
		o.compression = c
	}
}

// WithCodec selects the snapshot codec. If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) EncodeOption {
	return func(o *encodeOptions) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

func (db *DB) snapshot() snapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var snap snapshot
	for _, h := range db.sortedHandlesLocked() {
		e := db.ents[h]
		rec := entityRecord{Handle: h, Type: e.typ}
		switch e.typ {
		case TypeVertex:
			c := e.coords
			rec.Coords = &c
		case TypeTriangle:
			rec.Conn = e.conn[:]
		case TypeSet:
			rec.Members = slices.Clone(e.members)
			rec.Children = slices.Clone(e.children)
		}
		snap.Entities = append(snap.Entities, rec)
	}

	names := make([]string, 0, len(db.tags))
	for n := range db.tags {
		names = append(names, n)
	}
	slices.Sort(names)
	for _, n := range names {
		td := db.tags[n]
		tr := tagRecord{Name: n, Handles: td.handles}
		hs := make([]Handle, 0, len(td.values))
		for h := range td.values {
			hs = append(hs, h)
		}
		slices.Sort(hs)
		for _, h := range hs {
			tr.Values = append(tr.Values, tagValueRecord{Handle: h, Data: td.values[h]})
		}
		snap.Tags = append(snap.Tags, tr)
	}
	return snap
}

// Encode writes the whole DB to w in the .bgm format.
func (db *DB) Encode(w io.Writer, optFns ...EncodeOption) error {
	opts := encodeOptions{
		compression: CompressionZSTD,
		codec:       codec.Default,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	raw, err := opts.codec.Marshal(db.snapshot())
	if err != nil {
		return fmt.Errorf("mesh: encode snapshot: %w", err)
	}
	payload, used, err := compress(raw, opts.compression)
	if err != nil {
		return fmt.Errorf("mesh: compress: %w", err)
	}

	name := opts.codec.Name()
	if len(name) > 255 {
		return fmt.Errorf("%w: codec name too long", ErrUnsupported)
	}

	var hdr bytes.Buffer
	hdr.WriteString(fileMagic)
	_ = binary.Write(&hdr, binary.LittleEndian, fileVersion)
	hdr.WriteByte(byte(used))
	hdr.WriteByte(byte(len(name)))
	hdr.WriteString(name)
	_ = binary.Write(&hdr, binary.LittleEndian, uint64(len(raw)))
	_ = binary.Write(&hdr, binary.LittleEndian, uint64(len(payload)))

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, xxhash.Sum64(payload))
}

// Decode reads a .bgm stream and appends its contents to the DB.
// Entities receive fresh handles; handle-valued tags are remapped.
// It returns the mapping from file handles to DB handles.
func (db *DB) Decode(r io.Reader) (map[Handle]Handle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw, name, err := parseFile(data)
	if err != nil {
		return nil, err
	}
	c, ok := codec.ByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: codec %q", ErrUnsupported, name)
	}
	var snap snapshot
	if err := c.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return db.restore(snap)
}

func parseFile(data []byte) (raw []byte, codecName string, err error) {
	const fixed = 4 + 2 + 1 + 1
	if len(data) < fixed || string(data[:4]) != fileMagic {
		return nil, "", fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != fileVersion {
		return nil, "", fmt.Errorf("%w: version %d", ErrUnsupported, v)
	}
	comp := Compression(data[6])
	nameLen := int(data[7])
	off := fixed
	if len(data) < off+nameLen+16 {
		return nil, "", fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	codecName = string(data[off : off+nameLen])
	off += nameLen
	rawLen := binary.LittleEndian.Uint64(data[off:])
	payloadLen := binary.LittleEndian.Uint64(data[off+8:])
	off += 16
	rest := uint64(len(data) - off)
	if payloadLen > rest || rest-payloadLen < 8 {
		return nil, "", fmt.Errorf("%w: truncated payload", ErrCorrupt)
	}
	end := off + int(payloadLen)
	payload := data[off:end]
	sum := binary.LittleEndian.Uint64(data[end:])
	if xxhash.Sum64(payload) != sum {
		return nil, "", fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if err := checkRawLen(comp, rawLen, payloadLen); err != nil {
		return nil, "", err
	}
	raw, err = decompress(payload, comp, rawLen)
	if err != nil {
		return nil, "", err
	}
	return raw, codecName, nil
}

func (db *DB) restore(snap snapshot) (map[Handle]Handle, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	remap := make(map[Handle]Handle, len(snap.Entities)+1)
	remap[Root] = Root

	// Entities are written in ascending handle order, so allocating in
	// record order preserves relative handle order. db.next only moves
	// once the whole snapshot has been checked.
	next := db.next
	for _, rec := range snap.Entities {
		if _, dup := remap[rec.Handle]; dup {
			return nil, fmt.Errorf("%w: duplicate handle %d", ErrCorrupt, rec.Handle)
		}
		remap[rec.Handle] = next
		next++
	}
	lookup := func(h Handle) (Handle, error) {
		n, ok := remap[h]
		if !ok {
			return 0, fmt.Errorf("%w: dangling handle %d", ErrCorrupt, h)
		}
		return n, nil
	}
	mapAll := func(hs []Handle) ([]Handle, error) {
		out := make([]Handle, len(hs))
		for i, h := range hs {
			n, err := lookup(h)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}

	staged := make(map[Handle]*entity, len(snap.Entities))
	for _, rec := range snap.Entities {
		e := &entity{typ: rec.Type}
		switch rec.Type {
		case TypeVertex:
			if rec.Coords == nil {
				return nil, fmt.Errorf("%w: vertex %d without coordinates", ErrCorrupt, rec.Handle)
			}
			e.coords = *rec.Coords
		case TypeTriangle:
			if len(rec.Conn) != 3 {
				return nil, fmt.Errorf("%w: triangle %d has %d vertices", ErrCorrupt, rec.Handle, len(rec.Conn))
			}
			conn, err := mapAll(rec.Conn)
			if err != nil {
				return nil, err
			}
			copy(e.conn[:], conn)
		case TypeSet:
			var err error
			if e.members, err = mapAll(rec.Members); err != nil {
				return nil, err
			}
			if e.children, err = mapAll(rec.Children); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: entity %d has type %d", ErrCorrupt, rec.Handle, rec.Type)
		}
		staged[remap[rec.Handle]] = e
	}
	for h, e := range staged {
		for _, c := range e.children {
			child, ok := staged[c]
			if !ok || child.typ != TypeSet {
				return nil, fmt.Errorf("%w: child %d is not a set", ErrCorrupt, c)
			}
			child.parents = append(child.parents, h)
		}
	}

	type stagedTag struct {
		name    string
		handles bool
		values  map[Handle][]byte
	}
	tags := make([]stagedTag, 0, len(snap.Tags))
	for _, tr := range snap.Tags {
		st := stagedTag{name: tr.Name, handles: tr.Handles, values: make(map[Handle][]byte, len(tr.Values))}
		for _, v := range tr.Values {
			h, err := lookup(v.Handle)
			if err != nil {
				return nil, err
			}
			data := v.Data
			if tr.Handles {
				if data, err = remapHandleBytes(data, lookup); err != nil {
					return nil, err
				}
			}
			st.values[h] = data
		}
		tags = append(tags, st)
	}

	for h, e := range staged {
		db.ents[h] = e
	}
	for _, st := range tags {
		td, ok := db.tags[st.name]
		if !ok {
			td = &tagData{values: make(map[Handle][]byte, len(st.values))}
			db.tags[st.name] = td
		}
		td.handles = td.handles || st.handles
		maps.Copy(td.values, st.values)
	}
	db.next = next
	return remap, nil
}

func remapHandleBytes(data []byte, lookup func(Handle) (Handle, error)) ([]byte, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("%w: handle tag of %d bytes", ErrCorrupt, len(data))
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += 8 {
		h := Handle(binary.LittleEndian.Uint64(data[i:]))
		n, err := lookup(h)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint64(out[i:], uint64(n))
	}
	return out, nil
}
