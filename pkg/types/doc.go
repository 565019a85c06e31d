// Package types provides shared type definitions for the askl symbol index.
//
// It defines the location model (Span, Position, LineIndex), the fact types
// an extractor feeds into the ingestion engine, and the domain error types
// shared across components.
//
// # Location model
//
// A Span is a half-open interval [start, end) of byte offsets within one
// file's content:
//
//	span := types.NewSpan(10, 42)
//	span.Contains(10) // true
//	span.Contains(42) // false
//
// LineIndex converts losslessly between offsets and 1-based line/column
// pairs by scanning the file's newline positions once:
//
//	ix := types.NewLineIndex(content)
//	pos, _ := ix.PositionFor(120)
//	off, _ := ix.OffsetFor(pos) // off == 120
//
// All query semantics are defined over offsets; the line/column form is a
// derived representation.
package types
