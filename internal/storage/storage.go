package storage

import (
	"context"
	"errors"
	"time"

	"github.com/codevyr/askl/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrTxConflict is returned by Tx.Commit when an optimistic transaction
	// lost a race with a concurrent writer. The transaction had no effect
	// and may be retried.
	ErrTxConflict = errors.New("transaction conflict")
)

// Storage defines the interface for persisting and querying the symbol index.
// Two implementations exist: SQLiteStorage and BadgerStorage. Both satisfy the
// same semantics; the conformance tests run against each.
type Storage interface {
	// Project operations
	UpsertProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, name string) (*Project, error)
	GetProjectByID(ctx context.Context, projectID int64) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	// DeleteProject removes the project and everything hanging off it:
	// modules, directories, files, file contents, symbols, declarations,
	// references originating from its files and references targeting its
	// symbols.
	DeleteProject(ctx context.Context, projectID int64) error

	// Module operations
	UpsertModule(ctx context.Context, module *Module) error
	GetModule(ctx context.Context, projectID int64, name string) (*Module, error)
	GetModuleByID(ctx context.Context, moduleID int64) (*Module, error)
	ListModules(ctx context.Context, projectID int64) ([]*Module, error)

	// Directory operations
	UpsertDirectory(ctx context.Context, dir *Directory) error
	ListDirectories(ctx context.Context, projectID int64) ([]*Directory, error)

	// File operations
	UpsertFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, projectID int64, moduleID *int64, filesystemPath string) (*File, error)
	GetFileByID(ctx context.Context, fileID int64) (*File, error)
	ListFiles(ctx context.Context, projectID int64) ([]*File, error)
	DeleteFile(ctx context.Context, fileID int64) error

	// File content operations
	PutFileContent(ctx context.Context, fileID int64, content []byte) error
	GetFileContent(ctx context.Context, fileID int64) ([]byte, error)

	// Symbol operations
	UpsertSymbol(ctx context.Context, symbol *Symbol) error
	GetSymbolByID(ctx context.Context, symbolID int64) (*Symbol, error)
	FindSymbol(ctx context.Context, moduleID int64, name string) (*Symbol, error)
	SymbolsByName(ctx context.Context, name string) ([]*Symbol, error)
	SymbolsByPathPrefix(ctx context.Context, prefix string, limit int) ([]*Symbol, error)
	ListSymbolsByModule(ctx context.Context, moduleID int64) ([]*Symbol, error)
	UpdateSymbolPath(ctx context.Context, symbolID int64, path string) error

	// Declaration operations
	InsertDeclaration(ctx context.Context, decl *Declaration) error
	DeleteDeclarationsByFile(ctx context.Context, fileID int64) error
	DeclarationsByFile(ctx context.Context, fileID int64) ([]*Declaration, error)
	DeclarationsBySymbol(ctx context.Context, symbolID int64) ([]*Declaration, error)
	DeclarationsAt(ctx context.Context, fileID int64, offset int64) ([]*Declaration, error)

	// Reference operations
	InsertRef(ctx context.Context, ref *SymbolRef) (created bool, err error)
	DeleteRefsByFile(ctx context.Context, fileID int64) error
	RefsByFile(ctx context.Context, fileID int64) ([]*SymbolRef, error)
	RefsTo(ctx context.Context, symbolID int64, filter *RefFilter) ([]*SymbolRef, error)
	RefsInRange(ctx context.Context, fileID int64, span types.Span) ([]*SymbolRef, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a storage transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Project is the top level grouping of the index: one indexed codebase.
// Name is the natural key.
type Project struct {
	ID        int64
	Name      string
	RootPath  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Module is a named unit of code within a project, the resolution scope for
// symbol names. (project_id, name) is the natural key.
type Module struct {
	ID        int64
	ProjectID int64
	Name      string
}

// Directory mirrors the filesystem tree of a project. ParentID is nil for
// roots. (project_id, parent_id, name) is the natural key.
type Directory struct {
	ID        int64
	ProjectID int64
	ParentID  *int64
	Name      string
}

// File is one tracked source file. (project_id, module_id, filesystem_path)
// is the natural key, with a nil module treated as module 0 so module-less
// files are unique per (project_id, filesystem_path). ContentHash drives
// change detection on re-ingest.
type File struct {
	ID             int64
	ProjectID      int64
	ModuleID       *int64
	DirectoryID    *int64
	ModulePath     string // Path of the file within its module
	FilesystemPath string // Path of the file on disk, relative to the project root
	Filetype       string
	ContentHash    [32]byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Symbol is a named entity declared somewhere in a module.
// (module_id, name) is the natural key. Path is the derived hierarchical
// form of Name, cached for prefix queries and recomputable at any time.
type Symbol struct {
	ID       int64
	ModuleID int64
	Name     string
	Path     string
	Scope    types.SymbolScope
}

// Declaration records that a symbol is defined or declared at a span within
// a file. (symbol_id, file_id, span) is the natural key; a second
// declaration of the same symbol at the same location is a duplicate
// regardless of kind.
type Declaration struct {
	ID       int64
	SymbolID int64
	FileID   int64
	Kind     types.DeclKind
	Span     types.Span
}

// SymbolRef records one use of a symbol at a span within a file.
// (to_symbol, from_file, span) is the natural key; inserting the same row
// twice is a silent no-op.
type SymbolRef struct {
	ID       int64
	ToSymbol int64
	FromFile int64
	Span     types.Span
}

// RefFilter narrows reference queries by attributes of the originating file.
// Nil fields mean no constraint.
type RefFilter struct {
	ProjectID *int64
	ModuleID  *int64
}

func (f *RefFilter) matches(file *File) bool {
	if f == nil {
		return true
	}
	if f.ProjectID != nil && file.ProjectID != *f.ProjectID {
		return false
	}
	if f.ModuleID != nil {
		if file.ModuleID == nil || *file.ModuleID != *f.ModuleID {
			return false
		}
	}
	return true
}
