package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codevyr/askl/internal/storage"
	"github.com/codevyr/askl/pkg/types"
)

func TestRecomputePaths(t *testing.T) {
	withEachBackend(t, func(t *testing.T, s storage.Storage, e *Engine) {
		ctx := context.Background()

		result, err := e.IngestFile(ctx, simpleUpdate())
		require.NoError(t, err)
		require.False(t, result.Skipped)

		project, err := s.GetProject(ctx, "demo")
		require.NoError(t, err)
		module, err := s.GetModule(ctx, project.ID, "app")
		require.NoError(t, err)
		run, err := s.FindSymbol(ctx, module.ID, "app.Run")
		require.NoError(t, err)

		// Simulate drift in the derived path cache.
		require.NoError(t, s.UpdateSymbolPath(ctx, run.ID, "stale.path"))

		m := NewMaintainer(s, nil)
		updated, err := m.RecomputePaths(ctx, project.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, updated)

		fixed, err := s.GetSymbolByID(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, "app.Run", fixed.Path)

		// A second pass finds nothing to do.
		updated, err = m.RecomputePaths(ctx, project.ID)
		require.NoError(t, err)
		assert.Zero(t, updated)
	})
}

func TestVerifyCleanProject(t *testing.T) {
	withEachBackend(t, func(t *testing.T, s storage.Storage, e *Engine) {
		ctx := context.Background()

		_, err := e.IngestFile(ctx, simpleUpdate())
		require.NoError(t, err)

		project, err := s.GetProject(ctx, "demo")
		require.NoError(t, err)

		m := NewMaintainer(s, nil)
		violations, err := m.Verify(ctx, project.ID)
		require.NoError(t, err)
		assert.Empty(t, violations)
	})
}

func TestVerifyReportsViolations(t *testing.T) {
	withEachBackend(t, func(t *testing.T, s storage.Storage, e *Engine) {
		ctx := context.Background()

		_, err := e.IngestFile(ctx, simpleUpdate())
		require.NoError(t, err)

		project, err := s.GetProject(ctx, "demo")
		require.NoError(t, err)
		module, err := s.GetModule(ctx, project.ID, "app")
		require.NoError(t, err)
		run, err := s.FindSymbol(ctx, module.ID, "app.Run")
		require.NoError(t, err)

		// Stale derived path.
		require.NoError(t, s.UpdateSymbolPath(ctx, run.ID, "stale.path"))

		// A declaration bridging two projects, inserted behind the
		// engine's back.
		other := &storage.Project{Name: "other"}
		require.NoError(t, s.UpsertProject(ctx, other))
		foreignFile := &storage.File{
			ProjectID:      other.ID,
			ModulePath:     "x.go",
			FilesystemPath: "x.go",
		}
		require.NoError(t, s.UpsertFile(ctx, foreignFile))
		require.NoError(t, s.InsertDeclaration(ctx, &storage.Declaration{
			SymbolID: run.ID,
			FileID:   foreignFile.ID,
			Kind:     types.KindDeclaration,
			Span:     types.NewSpan(0, 5),
		}))

		m := NewMaintainer(s, nil)
		violations, err := m.Verify(ctx, project.ID)
		require.NoError(t, err)
		require.Len(t, violations, 2)
		for _, v := range violations {
			var cerr *types.ConsistencyError
			assert.ErrorAs(t, v, &cerr)
		}

		// Verify never repairs; the stale path is still there.
		still, err := s.GetSymbolByID(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, "stale.path", still.Path)
	})
}
