package ingest

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/codevyr/askl/internal/storage"
	"github.com/codevyr/askl/internal/sympath"
	"github.com/codevyr/askl/pkg/types"
)

// ErrIngestInProgress is returned when a batch is started while another
// batch already holds the engine.
var ErrIngestInProgress = errors.New("ingestion already in progress")

// Engine applies extractor output to storage. It owns the write path of the
// index: fact validation, symbol creation, change detection and the
// retract-then-assert update of a file's declarations and references.
type Engine struct {
	storage storage.Storage
	logger  *slog.Logger
	workers int

	batchLock IngestLock
	fileLocks lockTable
}

// Config contains configuration for the ingestion engine
type Config struct {
	Workers int          // Number of concurrent workers (default: runtime.NumCPU())
	Logger  *slog.Logger // Defaults to slog.Default()
}

// FileUpdate is the full extractor output for one file: where it lives and
// every declaration and reference found in it. Ingesting an update replaces
// whatever the index previously held for that file.
//
// ContentHash drives change detection; when the extractor leaves it zero it
// is computed from Content. Content itself is optional: an update may carry
// only the hash, in which case no content is stored and position queries
// for the file will miss.
type FileUpdate struct {
	Project        string
	Module         string
	ModulePath     string
	FilesystemPath string
	Filetype       string
	ContentHash    [32]byte
	Content        []byte

	Declarations []types.DeclarationFact
	References   []types.ReferenceFact
}

// FileResult reports what one update did.
type FileResult struct {
	FileID       int64
	Skipped      bool // content hash unchanged, nothing re-ingested
	Declarations int
	References   int
	Unresolved   int // references whose target could not be resolved, dropped
	Rejected     int // facts that failed validation or consistency checks
	Errors       []error
}

// BatchResult aggregates per-file results of a batch. Failed holds one
// entry per update whose transaction could not be applied at all; a failed
// file never affects the others.
type BatchResult struct {
	Results []*FileResult
	Failed  map[string]error
}

// New creates a new ingestion engine
func New(store storage.Storage, config *Config) *Engine {
	e := &Engine{
		storage: store,
		logger:  slog.Default(),
		workers: runtime.NumCPU(),
	}
	if config != nil {
		if config.Workers > 0 {
			e.workers = config.Workers
		}
		if config.Logger != nil {
			e.logger = config.Logger
		}
	}
	return e
}

// IngestFile applies a single file update in its own transaction.
func (e *Engine) IngestFile(ctx context.Context, update *FileUpdate) (*FileResult, error) {
	unlock := e.fileLocks.acquire(fileKey(update))
	defer unlock()
	return e.ingestFile(ctx, update)
}

// IngestBatch applies a set of file updates concurrently, one transaction
// per file. Only one batch may run at a time. A file whose transaction
// fails is recorded in BatchResult.Failed and does not disturb the rest.
func (e *Engine) IngestBatch(ctx context.Context, updates []*FileUpdate) (*BatchResult, error) {
	if !e.batchLock.TryAcquire() {
		return nil, ErrIngestInProgress
	}
	defer e.batchLock.Release()

	batch := &BatchResult{
		Results: make([]*FileResult, len(updates)),
		Failed:  make(map[string]error),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	results := batch.Results
	failures := make([]error, len(updates))

	for i, update := range updates {
		i, update := i, update
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			unlock := e.fileLocks.acquire(fileKey(update))
			defer unlock()

			result, err := e.ingestFile(gctx, update)
			if err != nil {
				e.logger.Warn("file ingestion failed",
					"project", update.Project,
					"path", update.FilesystemPath,
					"error", err)
				failures[i] = err
				return nil // isolate the failure
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, err := range failures {
		if err != nil {
			batch.Failed[updates[i].FilesystemPath] = err
		}
	}
	return batch, nil
}

func fileKey(update *FileUpdate) string {
	return update.Project + "\x00" + update.FilesystemPath
}

// maxCommitRetries bounds retries of transactions that lose an optimistic
// concurrency race on the Badger backend.
const maxCommitRetries = 5

// ingestFile applies one update, retrying when the backend reports a
// transaction conflict. Conflicted transactions had no effect.
func (e *Engine) ingestFile(ctx context.Context, update *FileUpdate) (*FileResult, error) {
	var result *FileResult
	var err error
	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		result, err = e.ingestFileOnce(ctx, update)
		if !errors.Is(err, storage.ErrTxConflict) {
			return result, err
		}
	}
	return result, err
}

// ingestFileOnce runs the whole update inside one transaction: either the
// file's new facts land completely or the old state stays untouched.
func (e *Engine) ingestFileOnce(ctx context.Context, update *FileUpdate) (*FileResult, error) {
	if update.Project == "" {
		return nil, fmt.Errorf("file update has no project")
	}
	if update.FilesystemPath == "" {
		return nil, fmt.Errorf("file update has no filesystem path")
	}

	tx, err := e.storage.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	project := &storage.Project{Name: update.Project}
	if err := tx.UpsertProject(ctx, project); err != nil {
		return nil, err
	}

	var module *storage.Module
	if update.Module != "" {
		module = &storage.Module{ProjectID: project.ID, Name: update.Module}
		if err := tx.UpsertModule(ctx, module); err != nil {
			return nil, err
		}
	}

	directoryID, err := upsertDirectoryChain(ctx, tx, project.ID, update.FilesystemPath)
	if err != nil {
		return nil, err
	}

	hash := update.ContentHash
	if hash == ([32]byte{}) {
		hash = sha256.Sum256(update.Content)
	}

	var moduleID *int64
	if module != nil {
		moduleID = &module.ID
	}

	// Unchanged content is a no-op: the stored facts already describe it.
	existing, err := tx.GetFile(ctx, project.ID, moduleID, update.FilesystemPath)
	if err != nil && err != storage.ErrNotFound {
		return nil, err
	}
	if existing != nil && existing.ContentHash == hash {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return &FileResult{FileID: existing.ID, Skipped: true}, nil
	}

	file := &storage.File{
		ProjectID:      project.ID,
		ModuleID:       moduleID,
		DirectoryID:    directoryID,
		ModulePath:     update.ModulePath,
		FilesystemPath: update.FilesystemPath,
		Filetype:       update.Filetype,
		ContentHash:    hash,
	}
	if file.ModulePath == "" {
		file.ModulePath = update.FilesystemPath
	}
	if err := tx.UpsertFile(ctx, file); err != nil {
		return nil, err
	}

	// Retract the file's previous facts before asserting the new ones.
	if err := tx.DeleteDeclarationsByFile(ctx, file.ID); err != nil {
		return nil, err
	}
	if err := tx.DeleteRefsByFile(ctx, file.ID); err != nil {
		return nil, err
	}

	result := &FileResult{FileID: file.ID}

	for _, fact := range update.Declarations {
		if err := e.applyDeclaration(ctx, tx, module, file, fact, result); err != nil {
			return nil, err
		}
	}
	for _, fact := range update.References {
		if err := e.applyReference(ctx, tx, module, file, fact, result); err != nil {
			return nil, err
		}
	}

	if update.Content != nil {
		if err := tx.PutFileContent(ctx, file.ID, update.Content); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	e.logger.Debug("file ingested",
		"project", update.Project,
		"path", update.FilesystemPath,
		"declarations", result.Declarations,
		"references", result.References,
		"unresolved", result.Unresolved,
		"rejected", result.Rejected)

	return result, nil
}

// applyDeclaration validates one declaration fact and asserts it. Bad facts
// are counted and recorded, never fatal for the rest of the file.
func (e *Engine) applyDeclaration(ctx context.Context, tx storage.Tx, module *storage.Module,
	file *storage.File, fact types.DeclarationFact, result *FileResult) error {

	if err := fact.Validate(); err != nil {
		result.Rejected++
		result.Errors = append(result.Errors, err)
		return nil
	}
	if fact.Kind != types.KindDefinition && fact.Kind != types.KindDeclaration {
		result.Rejected++
		result.Errors = append(result.Errors, &types.ValidationError{
			Reason: fmt.Sprintf("unknown declaration kind %q for %s", fact.Kind, fact.Name),
		})
		return nil
	}
	if module == nil {
		// A declaration binds a symbol to its module; without one there is
		// no owner for the symbol.
		result.Rejected++
		result.Errors = append(result.Errors, types.Consistencyf(
			"declaration of %s in module-less file %s", fact.Name, file.FilesystemPath))
		return nil
	}

	scope := fact.Scope
	if scope == "" {
		scope = types.ScopeGlobal
	}
	if !types.ValidScope(scope) {
		result.Rejected++
		result.Errors = append(result.Errors, &types.ValidationError{
			Reason: fmt.Sprintf("unknown scope %q for %s", fact.Scope, fact.Name),
		})
		return nil
	}

	symbol := &storage.Symbol{
		ModuleID: module.ID,
		Name:     fact.Name,
		Path:     sympath.Normalize(fact.Name),
		Scope:    scope,
	}
	if err := tx.UpsertSymbol(ctx, symbol); err != nil {
		return err
	}

	decl := &storage.Declaration{
		SymbolID: symbol.ID,
		FileID:   file.ID,
		Kind:     fact.Kind,
		Span:     fact.Span,
	}
	err := tx.InsertDeclaration(ctx, decl)
	if err == storage.ErrAlreadyExists {
		result.Rejected++
		result.Errors = append(result.Errors, &types.ValidationError{
			Reason: fmt.Sprintf("duplicate declaration of %s at %s", fact.Name, fact.Span),
		})
		return nil
	}
	if err != nil {
		return err
	}
	result.Declarations++
	return nil
}

// applyReference validates and resolves one reference fact. Targets are
// resolved by name in the file's own module first, then globally when the
// name is unambiguous; anything else is dropped and counted.
func (e *Engine) applyReference(ctx context.Context, tx storage.Tx, module *storage.Module,
	file *storage.File, fact types.ReferenceFact, result *FileResult) error {

	if err := fact.Validate(); err != nil {
		result.Rejected++
		result.Errors = append(result.Errors, err)
		return nil
	}

	target, err := e.resolveTarget(ctx, tx, module, fact)
	if err != nil {
		return err
	}
	if target == nil {
		result.Unresolved++
		return nil
	}

	ref := &storage.SymbolRef{
		ToSymbol: target.ID,
		FromFile: file.ID,
		Span:     fact.Span,
	}
	created, err := tx.InsertRef(ctx, ref)
	if err != nil {
		return err
	}
	if created {
		result.References++
	}
	return nil
}

func (e *Engine) resolveTarget(ctx context.Context, tx storage.Tx, module *storage.Module,
	fact types.ReferenceFact) (*storage.Symbol, error) {

	if fact.TargetSymbol != 0 {
		symbol, err := tx.GetSymbolByID(ctx, fact.TargetSymbol)
		if err == storage.ErrNotFound {
			return nil, nil
		}
		return symbol, err
	}

	if module != nil {
		symbol, err := tx.FindSymbol(ctx, module.ID, fact.TargetName)
		if err == nil {
			return symbol, nil
		}
		if err != storage.ErrNotFound {
			return nil, err
		}
	}

	candidates, err := tx.SymbolsByName(ctx, fact.TargetName)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	// Zero candidates or an ambiguous cross-module name: unresolved.
	return nil, nil
}

// upsertDirectoryChain materializes the directory tree above a file path
// and returns the id of the innermost directory, or nil for root files.
func upsertDirectoryChain(ctx context.Context, tx storage.Tx, projectID int64, filePath string) (*int64, error) {
	dir := path.Dir(filePath)
	if dir == "." || dir == "/" || dir == "" {
		return nil, nil
	}

	var parentID *int64
	for _, name := range strings.Split(dir, "/") {
		if name == "" {
			continue
		}
		d := &storage.Directory{ProjectID: projectID, ParentID: parentID, Name: name}
		if err := tx.UpsertDirectory(ctx, d); err != nil {
			return nil, err
		}
		id := d.ID
		parentID = &id
	}
	return parentID, nil
}
