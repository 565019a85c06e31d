package ingest

import (
	"context"
	"crypto/sha256"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codevyr/askl/internal/storage"
	"github.com/codevyr/askl/pkg/types"
)

// withEachBackend runs the test body against an engine over each backend.
func withEachBackend(t *testing.T, fn func(t *testing.T, s storage.Storage, e *Engine)) {
	t.Run("sqlite", func(t *testing.T) {
		s, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "index.db"))
		require.NoError(t, err)
		defer func() { _ = s.Close() }()
		fn(t, s, New(s, nil))
	})
	t.Run("badger", func(t *testing.T) {
		s, err := storage.NewBadgerStorage("")
		require.NoError(t, err)
		defer func() { _ = s.Close() }()
		fn(t, s, New(s, nil))
	})
}

func simpleUpdate() *FileUpdate {
	content := []byte("func Run() {}\nfunc main() { Run() }\n")
	return &FileUpdate{
		Project:        "demo",
		Module:         "app",
		FilesystemPath: "cmd/app/main.go",
		Filetype:       "go",
		Content:        content,
		Declarations: []types.DeclarationFact{
			{Name: "app.Run", Kind: types.KindDefinition, Span: types.NewSpan(0, 13), Scope: types.ScopeGlobal},
			{Name: "app.main", Kind: types.KindDefinition, Span: types.NewSpan(14, 36), Scope: types.ScopeGlobal},
		},
		References: []types.ReferenceFact{
			{TargetName: "app.Run", Span: types.NewSpan(27, 30)},
		},
	}
}

func TestIngestFile(t *testing.T) {
	withEachBackend(t, func(t *testing.T, s storage.Storage, e *Engine) {
		ctx := context.Background()

		result, err := e.IngestFile(ctx, simpleUpdate())
		require.NoError(t, err)
		assert.False(t, result.Skipped)
		assert.Equal(t, 2, result.Declarations)
		assert.Equal(t, 1, result.References)
		assert.Zero(t, result.Rejected)
		assert.Zero(t, result.Unresolved)
		assert.Empty(t, result.Errors)

		project, err := s.GetProject(ctx, "demo")
		require.NoError(t, err)
		module, err := s.GetModule(ctx, project.ID, "app")
		require.NoError(t, err)

		// Symbols carry derived paths.
		run, err := s.FindSymbol(ctx, module.ID, "app.Run")
		require.NoError(t, err)
		assert.Equal(t, "app.Run", run.Path)

		decls, err := s.DeclarationsByFile(ctx, result.FileID)
		require.NoError(t, err)
		assert.Len(t, decls, 2)

		refs, err := s.RefsTo(ctx, run.ID, nil)
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, types.NewSpan(27, 30), refs[0].Span)

		// The directory chain exists.
		dirs, err := s.ListDirectories(ctx, project.ID)
		require.NoError(t, err)
		assert.Len(t, dirs, 2) // cmd, cmd/app

		// Content round-trips.
		content, err := s.GetFileContent(ctx, result.FileID)
		require.NoError(t, err)
		assert.Equal(t, simpleUpdate().Content, content)
	})
}

func TestIngestUnchangedContentIsSkipped(t *testing.T) {
	withEachBackend(t, func(t *testing.T, s storage.Storage, e *Engine) {
		ctx := context.Background()

		first, err := e.IngestFile(ctx, simpleUpdate())
		require.NoError(t, err)
		require.False(t, first.Skipped)

		second, err := e.IngestFile(ctx, simpleUpdate())
		require.NoError(t, err)
		assert.True(t, second.Skipped)
		assert.Equal(t, first.FileID, second.FileID)
		assert.Zero(t, second.Declarations)

		// Stored facts are untouched.
		decls, err := s.DeclarationsByFile(ctx, first.FileID)
		require.NoError(t, err)
		assert.Len(t, decls, 2)
	})
}

func TestIngestChangedContentReplacesFacts(t *testing.T) {
	withEachBackend(t, func(t *testing.T, s storage.Storage, e *Engine) {
		ctx := context.Background()

		first, err := e.IngestFile(ctx, simpleUpdate())
		require.NoError(t, err)

		project, err := s.GetProject(ctx, "demo")
		require.NoError(t, err)
		module, err := s.GetModule(ctx, project.ID, "app")
		require.NoError(t, err)
		run, err := s.FindSymbol(ctx, module.ID, "app.Run")
		require.NoError(t, err)

		update := simpleUpdate()
		update.Content = []byte("func Stop() {}\n")
		update.Declarations = []types.DeclarationFact{
			{Name: "app.Stop", Kind: types.KindDefinition, Span: types.NewSpan(0, 14), Scope: types.ScopeGlobal},
		}
		update.References = nil

		second, err := e.IngestFile(ctx, update)
		require.NoError(t, err)
		assert.False(t, second.Skipped)
		assert.Equal(t, first.FileID, second.FileID)
		assert.Equal(t, 1, second.Declarations)

		decls, err := s.DeclarationsByFile(ctx, first.FileID)
		require.NoError(t, err)
		require.Len(t, decls, 1)

		// The old reference was retracted with the old facts.
		refs, err := s.RefsTo(ctx, run.ID, nil)
		require.NoError(t, err)
		assert.Empty(t, refs)
	})
}

func TestIngestSamePathDistinctPerModule(t *testing.T) {
	withEachBackend(t, func(t *testing.T, s storage.Storage, e *Engine) {
		ctx := context.Background()

		// Two modules of one project each claim the same generated path.
		inApp, err := e.IngestFile(ctx, &FileUpdate{
			Project:        "demo",
			Module:         "app",
			FilesystemPath: "gen/bindings.go",
			Content:        []byte("func appGen() {}\n"),
			Declarations: []types.DeclarationFact{
				{Name: "app.appGen", Kind: types.KindDefinition, Span: types.NewSpan(0, 16), Scope: types.ScopeGlobal},
			},
		})
		require.NoError(t, err)

		inLib, err := e.IngestFile(ctx, &FileUpdate{
			Project:        "demo",
			Module:         "lib",
			FilesystemPath: "gen/bindings.go",
			Content:        []byte("func libGen() {}\n"),
			Declarations: []types.DeclarationFact{
				{Name: "lib.libGen", Kind: types.KindDefinition, Span: types.NewSpan(0, 16), Scope: types.ScopeGlobal},
			},
		})
		require.NoError(t, err)
		assert.NotEqual(t, inApp.FileID, inLib.FileID)

		// The second module's ingest did not retract the first module's facts.
		decls, err := s.DeclarationsByFile(ctx, inApp.FileID)
		require.NoError(t, err)
		assert.Len(t, decls, 1)
		decls, err = s.DeclarationsByFile(ctx, inLib.FileID)
		require.NoError(t, err)
		assert.Len(t, decls, 1)
	})
}

func TestIngestSuppliedHashWithoutContent(t *testing.T) {
	withEachBackend(t, func(t *testing.T, s storage.Storage, e *Engine) {
		ctx := context.Background()

		update := simpleUpdate()
		update.ContentHash = sha256.Sum256(update.Content)
		update.Content = nil

		result, err := e.IngestFile(ctx, update)
		require.NoError(t, err)
		assert.False(t, result.Skipped)
		assert.Equal(t, 2, result.Declarations)

		// No content was supplied, so none is retained.
		_, err = s.GetFileContent(ctx, result.FileID)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		// The supplied hash still drives change detection.
		again, err := e.IngestFile(ctx, update)
		require.NoError(t, err)
		assert.True(t, again.Skipped)

		update.ContentHash = sha256.Sum256([]byte("changed"))
		third, err := e.IngestFile(ctx, update)
		require.NoError(t, err)
		assert.False(t, third.Skipped)
	})
}

func TestIngestRejectsBadFacts(t *testing.T) {
	withEachBackend(t, func(t *testing.T, s storage.Storage, e *Engine) {
		ctx := context.Background()

		update := simpleUpdate()
		update.Declarations = append(update.Declarations,
			types.DeclarationFact{Name: "", Kind: types.KindDefinition, Span: types.NewSpan(0, 1)},
			types.DeclarationFact{Name: "bad.span", Kind: types.KindDefinition, Span: types.NewSpan(10, 5)},
			types.DeclarationFact{Name: "bad.kind", Kind: "export", Span: types.NewSpan(0, 1)},
			types.DeclarationFact{Name: "bad.scope", Kind: types.KindDefinition, Span: types.NewSpan(0, 1), Scope: "package"},
			// Exact duplicate of an earlier fact.
			types.DeclarationFact{Name: "app.Run", Kind: types.KindDefinition, Span: types.NewSpan(0, 13), Scope: types.ScopeGlobal},
		)
		update.References = append(update.References,
			types.ReferenceFact{Span: types.NewSpan(1, 2)}, // no target
		)

		result, err := e.IngestFile(ctx, update)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Declarations)
		assert.Equal(t, 1, result.References)
		assert.Equal(t, 6, result.Rejected)
		assert.Len(t, result.Errors, 6)

		// The good facts landed despite the bad ones.
		decls, err := s.DeclarationsByFile(ctx, result.FileID)
		require.NoError(t, err)
		assert.Len(t, decls, 2)
	})
}

func TestIngestUnresolvedReferenceDropped(t *testing.T) {
	withEachBackend(t, func(t *testing.T, s storage.Storage, e *Engine) {
		ctx := context.Background()

		update := simpleUpdate()
		update.References = append(update.References,
			types.ReferenceFact{TargetName: "no.such.symbol", Span: types.NewSpan(1, 2)},
			types.ReferenceFact{TargetSymbol: 99999, Span: types.NewSpan(3, 4)},
		)

		result, err := e.IngestFile(ctx, update)
		require.NoError(t, err)
		assert.Equal(t, 1, result.References)
		assert.Equal(t, 2, result.Unresolved)
		assert.Zero(t, result.Rejected)
	})
}

func TestIngestCrossModuleResolution(t *testing.T) {
	withEachBackend(t, func(t *testing.T, s storage.Storage, e *Engine) {
		ctx := context.Background()

		lib := &FileUpdate{
			Project:        "demo",
			Module:         "lib",
			FilesystemPath: "lib/lib.go",
			Content:        []byte("func Exported() {}\n"),
			Declarations: []types.DeclarationFact{
				{Name: "lib.Exported", Kind: types.KindDefinition, Span: types.NewSpan(0, 18), Scope: types.ScopeGlobal},
			},
		}
		_, err := e.IngestFile(ctx, lib)
		require.NoError(t, err)

		// A file in another module resolves the name globally because it is
		// unambiguous.
		app := &FileUpdate{
			Project:        "demo",
			Module:         "app",
			FilesystemPath: "app/main.go",
			Content:        []byte("func main() { lib.Exported() }\n"),
			Declarations: []types.DeclarationFact{
				{Name: "app.main", Kind: types.KindDefinition, Span: types.NewSpan(0, 30), Scope: types.ScopeGlobal},
			},
			References: []types.ReferenceFact{
				{TargetName: "lib.Exported", Span: types.NewSpan(14, 26)},
			},
		}
		result, err := e.IngestFile(ctx, app)
		require.NoError(t, err)
		assert.Equal(t, 1, result.References)
		assert.Zero(t, result.Unresolved)

		project, err := s.GetProject(ctx, "demo")
		require.NoError(t, err)
		libMod, err := s.GetModule(ctx, project.ID, "lib")
		require.NoError(t, err)
		exported, err := s.FindSymbol(ctx, libMod.ID, "lib.Exported")
		require.NoError(t, err)

		refs, err := s.RefsTo(ctx, exported.ID, nil)
		require.NoError(t, err)
		assert.Len(t, refs, 1)
	})
}

func TestIngestModuleLessFileRejectsDeclarations(t *testing.T) {
	withEachBackend(t, func(t *testing.T, s storage.Storage, e *Engine) {
		ctx := context.Background()

		update := simpleUpdate()
		update.Module = ""
		update.References = nil

		result, err := e.IngestFile(ctx, update)
		require.NoError(t, err)
		assert.Zero(t, result.Declarations)
		assert.Equal(t, 2, result.Rejected)

		var cerr *types.ConsistencyError
		require.NotEmpty(t, result.Errors)
		assert.ErrorAs(t, result.Errors[0], &cerr)
	})
}

func TestIngestBatch(t *testing.T) {
	withEachBackend(t, func(t *testing.T, s storage.Storage, e *Engine) {
		ctx := context.Background()

		updates := []*FileUpdate{
			simpleUpdate(),
			{
				Project:        "demo",
				Module:         "lib",
				FilesystemPath: "lib/a.go",
				Content:        []byte("func A() {}\n"),
				Declarations: []types.DeclarationFact{
					{Name: "lib.A", Kind: types.KindDefinition, Span: types.NewSpan(0, 11), Scope: types.ScopeGlobal},
				},
			},
			{FilesystemPath: "broken.go"}, // no project: fails in isolation
		}

		batch, err := e.IngestBatch(ctx, updates)
		require.NoError(t, err)
		require.NotNil(t, batch.Results[0])
		require.NotNil(t, batch.Results[1])
		assert.Nil(t, batch.Results[2])
		assert.Len(t, batch.Failed, 1)
		assert.Contains(t, batch.Failed, "broken.go")

		// Both healthy files landed.
		project, err := s.GetProject(ctx, "demo")
		require.NoError(t, err)
		files, err := s.ListFiles(ctx, project.ID)
		require.NoError(t, err)
		assert.Len(t, files, 2)
	})
}

func TestIngestLock(t *testing.T) {
	var lock IngestLock
	require.True(t, lock.TryAcquire())
	assert.False(t, lock.TryAcquire())
	lock.Release()
	assert.True(t, lock.TryAcquire())
}
