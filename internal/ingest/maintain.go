package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codevyr/askl/internal/storage"
	"github.com/codevyr/askl/internal/sympath"
	"github.com/codevyr/askl/pkg/types"
)

// Maintainer runs consistency jobs over an existing index: recomputing the
// derived symbol paths and verifying the data-model invariants. It never
// repairs a violation silently; Verify reports, RecomputePaths only touches
// the derived path cache.
type Maintainer struct {
	storage storage.Storage
	logger  *slog.Logger
}

// NewMaintainer creates a Maintainer over the given storage
func NewMaintainer(store storage.Storage, logger *slog.Logger) *Maintainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintainer{storage: store, logger: logger}
}

// RecomputePaths re-derives the hierarchical path of every symbol in the
// project from its name and rewrites the cached value where it drifted.
// It returns the number of symbols updated.
func (m *Maintainer) RecomputePaths(ctx context.Context, projectID int64) (int, error) {
	modules, err := m.storage.ListModules(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to list modules: %w", err)
	}

	updated := 0
	for _, module := range modules {
		symbols, err := m.storage.ListSymbolsByModule(ctx, module.ID)
		if err != nil {
			return updated, fmt.Errorf("failed to list symbols for module %s: %w", module.Name, err)
		}
		for _, symbol := range symbols {
			want := sympath.Normalize(symbol.Name)
			if symbol.Path == want {
				continue
			}
			if err := m.storage.UpdateSymbolPath(ctx, symbol.ID, want); err != nil {
				return updated, fmt.Errorf("failed to update path of symbol %s: %w", symbol.Name, err)
			}
			updated++
		}
	}

	if updated > 0 {
		m.logger.Info("recomputed symbol paths", "project", projectID, "updated", updated)
	}
	return updated, nil
}

// Verify checks the structural invariants of a project and returns one
// error per violation found. An empty result means the project is
// consistent.
func (m *Maintainer) Verify(ctx context.Context, projectID int64) ([]error, error) {
	var violations []error

	modules, err := m.storage.ListModules(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}

	files := make(map[int64]*storage.File)
	fileFor := func(fileID int64) (*storage.File, error) {
		if file, ok := files[fileID]; ok {
			return file, nil
		}
		file, err := m.storage.GetFileByID(ctx, fileID)
		if err != nil {
			return nil, err
		}
		files[fileID] = file
		return file, nil
	}

	for _, module := range modules {
		symbols, err := m.storage.ListSymbolsByModule(ctx, module.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list symbols: %w", err)
		}
		for _, symbol := range symbols {
			if want := sympath.Normalize(symbol.Name); symbol.Path != want {
				violations = append(violations, types.Consistencyf(
					"symbol %s has stale path %q, derived %q", symbol.Name, symbol.Path, want))
			}

			decls, err := m.storage.DeclarationsBySymbol(ctx, symbol.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to list declarations: %w", err)
			}
			for _, decl := range decls {
				if !decl.Span.Valid() {
					violations = append(violations, types.Consistencyf(
						"declaration %d of %s has invalid span %s", decl.ID, symbol.Name, decl.Span))
				}
				file, err := fileFor(decl.FileID)
				if err == storage.ErrNotFound {
					violations = append(violations, types.Consistencyf(
						"declaration %d of %s points at missing file %d", decl.ID, symbol.Name, decl.FileID))
					continue
				}
				if err != nil {
					return nil, err
				}
				// A declaration may not bridge projects: the file it lives
				// in and the module owning the symbol must agree.
				if file.ProjectID != module.ProjectID {
					violations = append(violations, types.Consistencyf(
						"declaration %d of %s: file %s belongs to project %d, symbol module to project %d",
						decl.ID, symbol.Name, file.FilesystemPath, file.ProjectID, module.ProjectID))
				}
			}
		}
	}

	return violations, nil
}
