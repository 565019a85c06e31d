package query

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codevyr/askl/internal/storage"
	"github.com/codevyr/askl/pkg/types"
)

// defaultLineCacheSize bounds how many files keep a resident line index.
const defaultLineCacheSize = 256

// lineEntry pins a line index to the content hash it was built from, so a
// re-ingested file never serves stale positions.
type lineEntry struct {
	hash  [32]byte
	index *types.LineIndex
}

// LineCache builds and caches per-file line indexes over stored content.
// Offsets are the source of truth in the index; the cache makes the derived
// line/column form cheap to produce for query results.
type LineCache struct {
	storage storage.Storage
	cache   *lru.Cache[int64, *lineEntry]
}

// NewLineCache creates a line cache over the given storage. size <= 0 uses
// the default capacity.
func NewLineCache(store storage.Storage, size int) (*LineCache, error) {
	if size <= 0 {
		size = defaultLineCacheSize
	}
	cache, err := lru.New[int64, *lineEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create line cache: %w", err)
	}
	return &LineCache{storage: store, cache: cache}, nil
}

// IndexFor returns the line index for a file, building it from stored
// content on a miss or when the file's content changed since it was cached.
func (c *LineCache) IndexFor(ctx context.Context, fileID int64) (*types.LineIndex, error) {
	file, err := c.storage.GetFileByID(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if entry, ok := c.cache.Get(fileID); ok && entry.hash == file.ContentHash {
		return entry.index, nil
	}

	content, err := c.storage.GetFileContent(ctx, fileID)
	if err != nil {
		return nil, err
	}
	index := types.NewLineIndex(content)
	c.cache.Add(fileID, &lineEntry{hash: file.ContentHash, index: index})
	return index, nil
}

// PositionFor converts a byte offset within a file into a line/column pair.
func (c *LineCache) PositionFor(ctx context.Context, fileID int64, offset int64) (types.Position, error) {
	index, err := c.IndexFor(ctx, fileID)
	if err != nil {
		return types.Position{}, err
	}
	return index.PositionFor(offset)
}

// OffsetFor converts a line/column pair within a file back into an offset.
func (c *LineCache) OffsetFor(ctx context.Context, fileID int64, pos types.Position) (int64, error) {
	index, err := c.IndexFor(ctx, fileID)
	if err != nil {
		return 0, err
	}
	return index.OffsetFor(pos)
}

// RangeFor converts an offset span within a file into its line/column form.
func (c *LineCache) RangeFor(ctx context.Context, fileID int64, span types.Span) (types.Range, error) {
	index, err := c.IndexFor(ctx, fileID)
	if err != nil {
		return types.Range{}, err
	}
	return index.RangeFor(span)
}
