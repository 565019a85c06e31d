package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineIndexRoundTrip(t *testing.T) {
	content := []byte("package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n")
	ix := NewLineIndex(content)

	for off := int64(0); off < int64(len(content)); off++ {
		pos, err := ix.PositionFor(off)
		require.NoError(t, err)
		back, err := ix.OffsetFor(pos)
		require.NoError(t, err)
		assert.Equal(t, off, back, "offset %d", off)
	}
}

func TestLineIndexPositions(t *testing.T) {
	ix := NewLineIndex([]byte("abc\ndef\n"))

	pos, err := ix.PositionFor(0)
	require.NoError(t, err)
	assert.Equal(t, Position{Line: 1, Column: 1}, pos)

	pos, err = ix.PositionFor(4)
	require.NoError(t, err)
	assert.Equal(t, Position{Line: 2, Column: 1}, pos)

	pos, err = ix.PositionFor(6)
	require.NoError(t, err)
	assert.Equal(t, Position{Line: 2, Column: 3}, pos)
}

func TestLineIndexEmptyContent(t *testing.T) {
	ix := NewLineIndex(nil)
	pos, err := ix.PositionFor(0)
	require.NoError(t, err)
	assert.Equal(t, Position{Line: 1, Column: 1}, pos)
	assert.Equal(t, int64(0), ix.Size())
}

func TestLineIndexNoTrailingNewline(t *testing.T) {
	ix := NewLineIndex([]byte("one\ntwo"))
	pos, err := ix.PositionFor(6)
	require.NoError(t, err)
	assert.Equal(t, Position{Line: 2, Column: 3}, pos)
}

func TestLineIndexErrors(t *testing.T) {
	ix := NewLineIndex([]byte("abc\n"))

	_, err := ix.PositionFor(-1)
	assert.Error(t, err)

	_, err = ix.OffsetFor(Position{Line: 0, Column: 1})
	assert.Error(t, err)
	_, err = ix.OffsetFor(Position{Line: 99, Column: 1})
	assert.Error(t, err)
	_, err = ix.OffsetFor(Position{Line: 1, Column: 0})
	assert.Error(t, err)
}

func TestLineIndexRangeFor(t *testing.T) {
	ix := NewLineIndex([]byte("abc\ndef\nghi\n"))
	r, err := ix.RangeFor(NewSpan(4, 11))
	require.NoError(t, err)
	assert.Equal(t, Position{Line: 2, Column: 1}, r.Start)
	assert.Equal(t, Position{Line: 3, Column: 4}, r.End)

	span, err := ix.SpanFor(r)
	require.NoError(t, err)
	assert.Equal(t, NewSpan(4, 11), span)
}

func TestDeclarationFactValidate(t *testing.T) {
	ok := DeclarationFact{Name: "main", Kind: KindDefinition, Span: NewSpan(0, 10), Scope: ScopeGlobal}
	assert.NoError(t, ok.Validate())

	noName := ok
	noName.Name = ""
	assert.Error(t, noName.Validate())

	badSpan := ok
	badSpan.Span = NewSpan(10, 0)
	var verr *ValidationError
	assert.ErrorAs(t, badSpan.Validate(), &verr)
}

func TestReferenceFactValidate(t *testing.T) {
	byName := ReferenceFact{TargetName: "main", Span: NewSpan(0, 4)}
	assert.NoError(t, byName.Validate())

	byID := ReferenceFact{TargetSymbol: 7, Span: NewSpan(0, 4)}
	assert.NoError(t, byID.Validate())

	noTarget := ReferenceFact{Span: NewSpan(0, 4)}
	assert.Error(t, noTarget.Validate())
}
