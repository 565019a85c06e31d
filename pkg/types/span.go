package types

import "fmt"

// Span is a half-open interval [Start, End) of byte offsets within one
// file's content. A zero-width span (Start == End) is a valid degenerate
// anchor.
type Span struct {
	Start int64
	End   int64
}

// NewSpan creates a span from start and end offsets.
func NewSpan(start, end int64) Span {
	return Span{Start: start, End: end}
}

// Valid reports whether the span satisfies 0 <= Start <= End.
func (s Span) Valid() bool {
	return s.Start >= 0 && s.Start <= s.End
}

// Len returns the width of the span.
func (s Span) Len() int64 {
	return s.End - s.Start
}

// Overlaps reports whether two half-open intervals intersect:
// [s1,e1) and [s2,e2) overlap iff s1 < e2 && s2 < e1. The predicate is
// symmetric. A zero-width span overlaps another span iff its point falls
// strictly inside it.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Contains reports whether the span contains the given offset, defined as
// overlap against the degenerate span [offset, offset+1).
func (s Span) Contains(offset int64) bool {
	return s.Overlaps(Span{Start: offset, End: offset + 1})
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End)
}
