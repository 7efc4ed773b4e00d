// Package mesh is the in-memory mesh database consumed by the geometry layers.
//
// A DB stores three kinds of entities, all addressed by an opaque Handle:
//
//   - vertices with coordinates
//   - triangles with vertex connectivity
//   - entity sets, which hold member handles and parent/child links
//
// Arbitrary data is attached to entities through sparse, variable-length
// byte tags. Handle 0 is never assigned to an entity; it addresses the
// database root, which may carry tags of its own (e.g. a model-wide
// faceting tolerance).
//
// # Persistence
//
// Encode and Decode read and write the self-describing .bgm format:
//
//	magic "BRPQ" | version u16 | compression u8 | codec-len u8 | codec |
//	raw-len u64 | payload-len u64 | payload | xxhash64(payload) u64
//
// Decoding into a non-empty DB appends the file contents under fresh handles.
//
// All DB methods are safe for concurrent use.
package mesh
