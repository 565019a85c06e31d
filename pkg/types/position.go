package types

import (
	"bytes"
	"fmt"
)

// Position is a 1-based line/column location in a file. Column counts bytes
// from the start of the line.
type Position struct {
	Line   int
	Column int
}

// Range is the line/column representation of a Span.
type Range struct {
	Start Position
	End   Position
}

// LineIndex converts between byte offsets and line/column positions for one
// file's content. The conversion is lossless in both directions: it is built
// once by scanning the newline positions of the content and every query is a
// binary search over them.
type LineIndex struct {
	// starts[i] is the byte offset at which line i+1 begins.
	starts []int64
	size   int64
}

// NewLineIndex builds a line index for the given file content.
func NewLineIndex(content []byte) *LineIndex {
	starts := []int64{0}
	for off := 0; off < len(content); {
		nl := bytes.IndexByte(content[off:], '\n')
		if nl < 0 {
			break
		}
		off += nl + 1
		starts = append(starts, int64(off))
	}
	return &LineIndex{starts: starts, size: int64(len(content))}
}

// Size returns the length of the indexed content in bytes.
func (ix *LineIndex) Size() int64 {
	return ix.size
}

// PositionFor converts a byte offset into a 1-based line/column pair.
// Offsets at or past the end of content map onto the final line.
func (ix *LineIndex) PositionFor(offset int64) (Position, error) {
	if offset < 0 {
		return Position{}, fmt.Errorf("offset %d out of range", offset)
	}
	// Binary search for the last line start <= offset.
	lo, hi := 0, len(ix.starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if ix.starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return Position{Line: lo + 1, Column: int(offset-ix.starts[lo]) + 1}, nil
}

// OffsetFor converts a 1-based line/column pair back into a byte offset.
func (ix *LineIndex) OffsetFor(pos Position) (int64, error) {
	if pos.Line < 1 || pos.Line > len(ix.starts) {
		return 0, fmt.Errorf("line %d out of range", pos.Line)
	}
	if pos.Column < 1 {
		return 0, fmt.Errorf("column %d out of range", pos.Column)
	}
	return ix.starts[pos.Line-1] + int64(pos.Column) - 1, nil
}

// RangeFor converts a span into its line/column representation.
func (ix *LineIndex) RangeFor(span Span) (Range, error) {
	start, err := ix.PositionFor(span.Start)
	if err != nil {
		return Range{}, err
	}
	end, err := ix.PositionFor(span.End)
	if err != nil {
		return Range{}, err
	}
	return Range{Start: start, End: end}, nil
}

// SpanFor converts a line/column range back into an offset span.
func (ix *LineIndex) SpanFor(r Range) (Span, error) {
	start, err := ix.OffsetFor(r.Start)
	if err != nil {
		return Span{}, err
	}
	end, err := ix.OffsetFor(r.End)
	if err != nil {
		return Span{}, err
	}
	return Span{Start: start, End: end}, nil
}
