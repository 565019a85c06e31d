package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/codevyr/askl/internal/storage"
	"github.com/codevyr/askl/internal/sympath"
	"github.com/codevyr/askl/pkg/types"
)

// MatchMode selects how FindSymbols interprets the query string.
type MatchMode string

const (
	// MatchExact matches the symbol name verbatim.
	MatchExact MatchMode = "exact"
	// MatchPrefix matches symbols whose derived path sits at or below the
	// normalized query path.
	MatchPrefix MatchMode = "prefix"
	// MatchFuzzy ranks symbols by string similarity to the query.
	MatchFuzzy MatchMode = "fuzzy"
)

// fuzzyThreshold drops fuzzy candidates with effectively no overlap.
const fuzzyThreshold = 0.05

// Scope optionally narrows a query to one project or one module within it.
// The zero value means the whole index.
type Scope struct {
	Project string
	Module  string // requires Project
}

// FindRequest describes a symbol search.
type FindRequest struct {
	Query string
	Mode  MatchMode
	Scope Scope
	Limit int // 0 means no limit
}

// SymbolMatch is one search hit with its ranking score in [0, 1].
type SymbolMatch struct {
	Symbol *storage.Symbol
	Score  float64
}

// Engine answers read-side questions about the index. It never writes;
// every method is safe to call concurrently with ingestion.
type Engine struct {
	storage storage.Storage
	lines   *LineCache
}

// New creates a query engine over the given storage
func New(store storage.Storage) (*Engine, error) {
	lines, err := NewLineCache(store, 0)
	if err != nil {
		return nil, err
	}
	return &Engine{storage: store, lines: lines}, nil
}

// Lines exposes the engine's line cache for position conversions.
func (e *Engine) Lines() *LineCache {
	return e.lines
}

// DeclarationsAt returns the declarations whose span contains the given
// offset, innermost first: narrower spans precede wider ones, ties break on
// start offset.
func (e *Engine) DeclarationsAt(ctx context.Context, fileID int64, offset int64) ([]*storage.Declaration, error) {
	decls, err := e.storage.DeclarationsAt(ctx, fileID, offset)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(decls, func(i, j int) bool {
		if li, lj := decls[i].Span.Len(), decls[j].Span.Len(); li != lj {
			return li < lj
		}
		return decls[i].Span.Start < decls[j].Span.Start
	})
	return decls, nil
}

// ResolveScope returns the visibility scope of a symbol.
// storage.ErrNotFound is returned for an unknown id.
func (e *Engine) ResolveScope(ctx context.Context, symbolID int64) (types.SymbolScope, error) {
	symbol, err := e.storage.GetSymbolByID(ctx, symbolID)
	if err != nil {
		return "", err
	}
	return symbol.Scope, nil
}

// ReferencesTo returns every reference targeting the symbol, optionally
// narrowed to references originating within a scope.
func (e *Engine) ReferencesTo(ctx context.Context, symbolID int64, scope Scope) ([]*storage.SymbolRef, error) {
	filter, err := e.resolveScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	return e.storage.RefsTo(ctx, symbolID, filter)
}

// ReferencesInRange returns the references overlapping a span of a file,
// in start order.
func (e *Engine) ReferencesInRange(ctx context.Context, fileID int64, span types.Span) ([]*storage.SymbolRef, error) {
	if !span.Valid() {
		return nil, fmt.Errorf("invalid span %s", span)
	}
	return e.storage.RefsInRange(ctx, fileID, span)
}

// FindSymbols searches for symbols by name. Results are ranked by score
// descending, ties broken by name ascending.
func (e *Engine) FindSymbols(ctx context.Context, req FindRequest) ([]SymbolMatch, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("empty query")
	}

	var matches []SymbolMatch
	var err error
	switch req.Mode {
	case MatchExact, "":
		matches, err = e.findExact(ctx, req)
	case MatchPrefix:
		matches, err = e.findPrefix(ctx, req)
	case MatchFuzzy:
		matches, err = e.findFuzzy(ctx, req)
	default:
		return nil, fmt.Errorf("unknown match mode %q", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Symbol.Name < matches[j].Symbol.Name
	})
	if req.Limit > 0 && len(matches) > req.Limit {
		matches = matches[:req.Limit]
	}
	return matches, nil
}

func (e *Engine) findExact(ctx context.Context, req FindRequest) ([]SymbolMatch, error) {
	if req.Scope.Module != "" {
		module, err := e.moduleFor(ctx, req.Scope)
		if err != nil {
			return nil, err
		}
		symbol, err := e.storage.FindSymbol(ctx, module.ID, req.Query)
		if err == storage.ErrNotFound {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []SymbolMatch{{Symbol: symbol, Score: 1}}, nil
	}

	symbols, err := e.storage.SymbolsByName(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	symbols, err = e.filterScope(ctx, symbols, req.Scope)
	if err != nil {
		return nil, err
	}
	matches := make([]SymbolMatch, 0, len(symbols))
	for _, symbol := range symbols {
		matches = append(matches, SymbolMatch{Symbol: symbol, Score: 1})
	}
	return matches, nil
}

func (e *Engine) findPrefix(ctx context.Context, req FindRequest) ([]SymbolMatch, error) {
	prefix := sympath.Normalize(req.Query)
	symbols, err := e.storage.SymbolsByPathPrefix(ctx, prefix, 0)
	if err != nil {
		return nil, err
	}
	symbols, err = e.filterScope(ctx, symbols, req.Scope)
	if err != nil {
		return nil, err
	}
	matches := make([]SymbolMatch, 0, len(symbols))
	for _, symbol := range symbols {
		matches = append(matches, SymbolMatch{Symbol: symbol, Score: 1})
	}
	return matches, nil
}

func (e *Engine) findFuzzy(ctx context.Context, req FindRequest) ([]SymbolMatch, error) {
	candidates, err := e.scopedSymbols(ctx, req.Scope)
	if err != nil {
		return nil, err
	}
	var matches []SymbolMatch
	for _, symbol := range candidates {
		score := sympath.Similarity(req.Query, symbol.Name)
		if score < fuzzyThreshold {
			continue
		}
		matches = append(matches, SymbolMatch{Symbol: symbol, Score: score})
	}
	return matches, nil
}

// moduleFor resolves a fully specified scope to its module.
func (e *Engine) moduleFor(ctx context.Context, scope Scope) (*storage.Module, error) {
	if scope.Project == "" {
		return nil, fmt.Errorf("module scope %q requires a project", scope.Module)
	}
	project, err := e.storage.GetProject(ctx, scope.Project)
	if err != nil {
		return nil, fmt.Errorf("unknown project %q: %w", scope.Project, err)
	}
	module, err := e.storage.GetModule(ctx, project.ID, scope.Module)
	if err != nil {
		return nil, fmt.Errorf("unknown module %q: %w", scope.Module, err)
	}
	return module, nil
}

// resolveScope turns a symbolic scope into a storage filter.
func (e *Engine) resolveScope(ctx context.Context, scope Scope) (*storage.RefFilter, error) {
	if scope.Project == "" {
		if scope.Module != "" {
			return nil, fmt.Errorf("module scope %q requires a project", scope.Module)
		}
		return nil, nil
	}
	project, err := e.storage.GetProject(ctx, scope.Project)
	if err != nil {
		return nil, fmt.Errorf("unknown project %q: %w", scope.Project, err)
	}
	filter := &storage.RefFilter{ProjectID: &project.ID}
	if scope.Module != "" {
		module, err := e.storage.GetModule(ctx, project.ID, scope.Module)
		if err != nil {
			return nil, fmt.Errorf("unknown module %q: %w", scope.Module, err)
		}
		filter.ModuleID = &module.ID
	}
	return filter, nil
}

// scopedSymbols enumerates the symbols a scope covers.
func (e *Engine) scopedSymbols(ctx context.Context, scope Scope) ([]*storage.Symbol, error) {
	if scope.Module != "" {
		module, err := e.moduleFor(ctx, scope)
		if err != nil {
			return nil, err
		}
		return e.storage.ListSymbolsByModule(ctx, module.ID)
	}

	var projects []*storage.Project
	if scope.Project != "" {
		project, err := e.storage.GetProject(ctx, scope.Project)
		if err != nil {
			return nil, fmt.Errorf("unknown project %q: %w", scope.Project, err)
		}
		projects = []*storage.Project{project}
	} else {
		var err error
		projects, err = e.storage.ListProjects(ctx)
		if err != nil {
			return nil, err
		}
	}

	var symbols []*storage.Symbol
	for _, project := range projects {
		modules, err := e.storage.ListModules(ctx, project.ID)
		if err != nil {
			return nil, err
		}
		for _, module := range modules {
			more, err := e.storage.ListSymbolsByModule(ctx, module.ID)
			if err != nil {
				return nil, err
			}
			symbols = append(symbols, more...)
		}
	}
	return symbols, nil
}

// filterScope keeps the symbols whose module falls inside the scope.
func (e *Engine) filterScope(ctx context.Context, symbols []*storage.Symbol, scope Scope) ([]*storage.Symbol, error) {
	if scope.Project == "" && scope.Module == "" {
		return symbols, nil
	}

	project, err := e.storage.GetProject(ctx, scope.Project)
	if err != nil {
		return nil, fmt.Errorf("unknown project %q: %w", scope.Project, err)
	}
	var moduleID int64
	if scope.Module != "" {
		module, err := e.storage.GetModule(ctx, project.ID, scope.Module)
		if err != nil {
			return nil, fmt.Errorf("unknown module %q: %w", scope.Module, err)
		}
		moduleID = module.ID
	}

	modules := make(map[int64]bool)
	var kept []*storage.Symbol
	for _, symbol := range symbols {
		if moduleID != 0 {
			if symbol.ModuleID == moduleID {
				kept = append(kept, symbol)
			}
			continue
		}
		inProject, seen := modules[symbol.ModuleID]
		if !seen {
			module, err := e.storage.GetModuleByID(ctx, symbol.ModuleID)
			if err != nil {
				return nil, err
			}
			inProject = module.ProjectID == project.ID
			modules[symbol.ModuleID] = inProject
		}
		if inProject {
			kept = append(kept, symbol)
		}
	}
	return kept, nil
}
