// Package query is the read side of the symbol index.
//
// The engine answers the structural questions the index exists for: which
// declarations cover an offset (innermost first), which references target a
// symbol (optionally scoped to a project or module), which references fall
// inside a span, and which symbols match a name exactly, by hierarchical
// path prefix, or fuzzily by trigram similarity.
//
// All query semantics operate on byte offsets. The LineCache converts
// results to and from line/column positions on demand, rebuilding its
// per-file indexes whenever the underlying content hash changes.
package query
