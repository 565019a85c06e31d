package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/codevyr/askl/pkg/types"
)

// SQLiteStorage implements the Storage interface using SQLite.
//
// SQLite has no native interval or hierarchy index, so span and path queries
// are emulated: span lookups scan the per-file offset index and filter in
// SQL, and path-prefix lookups use the fact that every descendant of path P
// sorts inside the key range [P+'.', P+'/') ('/' is the next byte after '.'
// and path tokens only contain [A-Za-z0-9_]).
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Project operations

func (s *SQLiteStorage) upsertProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	query := `
		INSERT INTO projects (name, root_path, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			root_path = excluded.root_path,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query, project.Name, project.RootPath, now, now).Scan(&project.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertProject(ctx context.Context, project *Project) error {
	return s.upsertProjectWithQuerier(ctx, s.querier(), project)
}

func scanProject(row *sql.Row) (*Project, error) {
	var project Project
	err := row.Scan(&project.ID, &project.Name, &project.RootPath,
		&project.CreatedAt, &project.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *SQLiteStorage) getProjectWithQuerier(ctx context.Context, q querier, name string) (*Project, error) {
	query := `
		SELECT id, name, root_path, created_at, updated_at
		FROM projects
		WHERE name = ?
	`
	return scanProject(q.QueryRowContext(ctx, query, name))
}

func (s *SQLiteStorage) GetProject(ctx context.Context, name string) (*Project, error) {
	return s.getProjectWithQuerier(ctx, s.querier(), name)
}

func (s *SQLiteStorage) getProjectByIDWithQuerier(ctx context.Context, q querier, projectID int64) (*Project, error) {
	query := `
		SELECT id, name, root_path, created_at, updated_at
		FROM projects
		WHERE id = ?
	`
	return scanProject(q.QueryRowContext(ctx, query, projectID))
}

func (s *SQLiteStorage) GetProjectByID(ctx context.Context, projectID int64) (*Project, error) {
	return s.getProjectByIDWithQuerier(ctx, s.querier(), projectID)
}

func (s *SQLiteStorage) listProjectsWithQuerier(ctx context.Context, q querier) ([]*Project, error) {
	query := `
		SELECT id, name, root_path, created_at, updated_at
		FROM projects
		ORDER BY name
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*Project
	for rows.Next() {
		var project Project
		if err := rows.Scan(&project.ID, &project.Name, &project.RootPath,
			&project.CreatedAt, &project.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, &project)
	}
	return projects, rows.Err()
}

func (s *SQLiteStorage) ListProjects(ctx context.Context) ([]*Project, error) {
	return s.listProjectsWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) deleteProjectWithQuerier(ctx context.Context, q querier, projectID int64) error {
	// All dependents cascade through foreign keys, including references
	// targeting this project's symbols from files in other projects.
	result, err := q.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", projectID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteProject(ctx context.Context, projectID int64) error {
	return s.deleteProjectWithQuerier(ctx, s.querier(), projectID)
}

// Module operations

func (s *SQLiteStorage) upsertModuleWithQuerier(ctx context.Context, q querier, module *Module) error {
	query := `
		INSERT INTO modules (project_id, name)
		VALUES (?, ?)
		ON CONFLICT(project_id, name) DO UPDATE SET name = excluded.name
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query, module.ProjectID, module.Name).Scan(&module.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert module: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertModule(ctx context.Context, module *Module) error {
	return s.upsertModuleWithQuerier(ctx, s.querier(), module)
}

func (s *SQLiteStorage) getModuleWithQuerier(ctx context.Context, q querier, projectID int64, name string) (*Module, error) {
	query := `SELECT id, project_id, name FROM modules WHERE project_id = ? AND name = ?`
	var module Module
	err := q.QueryRowContext(ctx, query, projectID, name).Scan(&module.ID, &module.ProjectID, &module.Name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &module, nil
}

func (s *SQLiteStorage) GetModule(ctx context.Context, projectID int64, name string) (*Module, error) {
	return s.getModuleWithQuerier(ctx, s.querier(), projectID, name)
}

func (s *SQLiteStorage) getModuleByIDWithQuerier(ctx context.Context, q querier, moduleID int64) (*Module, error) {
	query := `SELECT id, project_id, name FROM modules WHERE id = ?`
	var module Module
	err := q.QueryRowContext(ctx, query, moduleID).Scan(&module.ID, &module.ProjectID, &module.Name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &module, nil
}

func (s *SQLiteStorage) GetModuleByID(ctx context.Context, moduleID int64) (*Module, error) {
	return s.getModuleByIDWithQuerier(ctx, s.querier(), moduleID)
}

func (s *SQLiteStorage) listModulesWithQuerier(ctx context.Context, q querier, projectID int64) ([]*Module, error) {
	query := `SELECT id, project_id, name FROM modules WHERE project_id = ? ORDER BY name`
	rows, err := q.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var modules []*Module
	for rows.Next() {
		var module Module
		if err := rows.Scan(&module.ID, &module.ProjectID, &module.Name); err != nil {
			return nil, err
		}
		modules = append(modules, &module)
	}
	return modules, rows.Err()
}

func (s *SQLiteStorage) ListModules(ctx context.Context, projectID int64) ([]*Module, error) {
	return s.listModulesWithQuerier(ctx, s.querier(), projectID)
}

// Directory operations

func (s *SQLiteStorage) upsertDirectoryWithQuerier(ctx context.Context, q querier, dir *Directory) error {
	// The natural key includes a nullable parent, so the lookup goes through
	// COALESCE rather than an ON CONFLICT clause.
	query := `
		SELECT id FROM directories
		WHERE project_id = ? AND COALESCE(parent_id, 0) = COALESCE(?, 0) AND name = ?
	`
	err := q.QueryRowContext(ctx, query, dir.ProjectID, dir.ParentID, dir.Name).Scan(&dir.ID)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}

	insert := `INSERT INTO directories (project_id, parent_id, name) VALUES (?, ?, ?) RETURNING id`
	if err := q.QueryRowContext(ctx, insert, dir.ProjectID, dir.ParentID, dir.Name).Scan(&dir.ID); err != nil {
		return fmt.Errorf("failed to upsert directory: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertDirectory(ctx context.Context, dir *Directory) error {
	return s.upsertDirectoryWithQuerier(ctx, s.querier(), dir)
}

func (s *SQLiteStorage) listDirectoriesWithQuerier(ctx context.Context, q querier, projectID int64) ([]*Directory, error) {
	query := `SELECT id, project_id, parent_id, name FROM directories WHERE project_id = ? ORDER BY id`
	rows, err := q.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list directories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dirs []*Directory
	for rows.Next() {
		var dir Directory
		var parentID sql.NullInt64
		if err := rows.Scan(&dir.ID, &dir.ProjectID, &parentID, &dir.Name); err != nil {
			return nil, err
		}
		if parentID.Valid {
			dir.ParentID = &parentID.Int64
		}
		dirs = append(dirs, &dir)
	}
	return dirs, rows.Err()
}

func (s *SQLiteStorage) ListDirectories(ctx context.Context, projectID int64) ([]*Directory, error) {
	return s.listDirectoriesWithQuerier(ctx, s.querier(), projectID)
}

// File operations

func (s *SQLiteStorage) upsertFileWithQuerier(ctx context.Context, q querier, file *File) error {
	// The natural key includes a nullable module, so the lookup goes through
	// COALESCE rather than an ON CONFLICT clause, as for directories.
	existing, err := s.getFileWithQuerier(ctx, q, file.ProjectID, file.ModuleID, file.FilesystemPath)
	if err != nil && err != ErrNotFound {
		return err
	}
	now := time.Now()
	if existing != nil {
		update := `
			UPDATE files SET directory_id = ?, module_path = ?, filetype = ?, content_hash = ?, updated_at = ?
			WHERE id = ?
		`
		if _, err := q.ExecContext(ctx, update,
			file.DirectoryID, file.ModulePath, file.Filetype, file.ContentHash[:], now, existing.ID); err != nil {
			return fmt.Errorf("failed to update file: %w", err)
		}
		file.ID = existing.ID
		file.CreatedAt = existing.CreatedAt
		file.UpdatedAt = now
		return nil
	}

	insert := `
		INSERT INTO files (project_id, module_id, directory_id, module_path, filesystem_path, filetype, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err = q.QueryRowContext(ctx, insert,
		file.ProjectID, file.ModuleID, file.DirectoryID, file.ModulePath,
		file.FilesystemPath, file.Filetype, file.ContentHash[:], now, now).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}
	file.CreatedAt = now
	file.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertFile(ctx context.Context, file *File) error {
	return s.upsertFileWithQuerier(ctx, s.querier(), file)
}

func scanFileRow(scan func(dest ...interface{}) error) (*File, error) {
	var file File
	var moduleID, directoryID sql.NullInt64
	var hash []byte
	err := scan(&file.ID, &file.ProjectID, &moduleID, &directoryID,
		&file.ModulePath, &file.FilesystemPath, &file.Filetype, &hash,
		&file.CreatedAt, &file.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if moduleID.Valid {
		file.ModuleID = &moduleID.Int64
	}
	if directoryID.Valid {
		file.DirectoryID = &directoryID.Int64
	}
	copy(file.ContentHash[:], hash)
	return &file, nil
}

const fileColumns = `id, project_id, module_id, directory_id, module_path, filesystem_path, filetype, content_hash, created_at, updated_at`

func (s *SQLiteStorage) getFileWithQuerier(ctx context.Context, q querier, projectID int64, moduleID *int64, filesystemPath string) (*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE project_id = ? AND COALESCE(module_id, 0) = COALESCE(?, 0) AND filesystem_path = ?`
	row := q.QueryRowContext(ctx, query, projectID, moduleID, filesystemPath)
	return scanFileRow(row.Scan)
}

func (s *SQLiteStorage) GetFile(ctx context.Context, projectID int64, moduleID *int64, filesystemPath string) (*File, error) {
	return s.getFileWithQuerier(ctx, s.querier(), projectID, moduleID, filesystemPath)
}

func (s *SQLiteStorage) getFileByIDWithQuerier(ctx context.Context, q querier, fileID int64) (*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = ?`
	row := q.QueryRowContext(ctx, query, fileID)
	return scanFileRow(row.Scan)
}

func (s *SQLiteStorage) GetFileByID(ctx context.Context, fileID int64) (*File, error) {
	return s.getFileByIDWithQuerier(ctx, s.querier(), fileID)
}

func (s *SQLiteStorage) listFilesWithQuerier(ctx context.Context, q querier, projectID int64) ([]*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE project_id = ? ORDER BY filesystem_path`
	rows, err := q.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []*File
	for rows.Next() {
		file, err := scanFileRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *SQLiteStorage) ListFiles(ctx context.Context, projectID int64) ([]*File, error) {
	return s.listFilesWithQuerier(ctx, s.querier(), projectID)
}

func (s *SQLiteStorage) deleteFileWithQuerier(ctx context.Context, q querier, fileID int64) error {
	result, err := q.ExecContext(ctx, "DELETE FROM files WHERE id = ?", fileID)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteFile(ctx context.Context, fileID int64) error {
	return s.deleteFileWithQuerier(ctx, s.querier(), fileID)
}

// File content operations

func (s *SQLiteStorage) putFileContentWithQuerier(ctx context.Context, q querier, fileID int64, content []byte) error {
	query := `
		INSERT INTO file_contents (file_id, content)
		VALUES (?, ?)
		ON CONFLICT(file_id) DO UPDATE SET content = excluded.content
	`
	if _, err := q.ExecContext(ctx, query, fileID, content); err != nil {
		return fmt.Errorf("failed to store file content: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) PutFileContent(ctx context.Context, fileID int64, content []byte) error {
	return s.putFileContentWithQuerier(ctx, s.querier(), fileID, content)
}

func (s *SQLiteStorage) getFileContentWithQuerier(ctx context.Context, q querier, fileID int64) ([]byte, error) {
	var content []byte
	err := q.QueryRowContext(ctx, "SELECT content FROM file_contents WHERE file_id = ?", fileID).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (s *SQLiteStorage) GetFileContent(ctx context.Context, fileID int64) ([]byte, error) {
	return s.getFileContentWithQuerier(ctx, s.querier(), fileID)
}

// Symbol operations

func (s *SQLiteStorage) upsertSymbolWithQuerier(ctx context.Context, q querier, symbol *Symbol) error {
	query := `
		INSERT INTO symbols (module_id, name, path, scope)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(module_id, name) DO UPDATE SET
			path = excluded.path,
			scope = excluded.scope
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query, symbol.ModuleID, symbol.Name, symbol.Path, string(symbol.Scope)).Scan(&symbol.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert symbol: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertSymbol(ctx context.Context, symbol *Symbol) error {
	return s.upsertSymbolWithQuerier(ctx, s.querier(), symbol)
}

const symbolColumns = `id, module_id, name, path, scope`

func scanSymbols(rows *sql.Rows) ([]*Symbol, error) {
	defer func() { _ = rows.Close() }()
	var symbols []*Symbol
	for rows.Next() {
		var symbol Symbol
		var scope string
		if err := rows.Scan(&symbol.ID, &symbol.ModuleID, &symbol.Name, &symbol.Path, &scope); err != nil {
			return nil, err
		}
		symbol.Scope = types.SymbolScope(scope)
		symbols = append(symbols, &symbol)
	}
	return symbols, rows.Err()
}

func scanSymbolRow(row *sql.Row) (*Symbol, error) {
	var symbol Symbol
	var scope string
	err := row.Scan(&symbol.ID, &symbol.ModuleID, &symbol.Name, &symbol.Path, &scope)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	symbol.Scope = types.SymbolScope(scope)
	return &symbol, nil
}

func (s *SQLiteStorage) getSymbolByIDWithQuerier(ctx context.Context, q querier, symbolID int64) (*Symbol, error) {
	query := `SELECT ` + symbolColumns + ` FROM symbols WHERE id = ?`
	return scanSymbolRow(q.QueryRowContext(ctx, query, symbolID))
}

func (s *SQLiteStorage) GetSymbolByID(ctx context.Context, symbolID int64) (*Symbol, error) {
	return s.getSymbolByIDWithQuerier(ctx, s.querier(), symbolID)
}

func (s *SQLiteStorage) findSymbolWithQuerier(ctx context.Context, q querier, moduleID int64, name string) (*Symbol, error) {
	query := `SELECT ` + symbolColumns + ` FROM symbols WHERE module_id = ? AND name = ?`
	return scanSymbolRow(q.QueryRowContext(ctx, query, moduleID, name))
}

func (s *SQLiteStorage) FindSymbol(ctx context.Context, moduleID int64, name string) (*Symbol, error) {
	return s.findSymbolWithQuerier(ctx, s.querier(), moduleID, name)
}

func (s *SQLiteStorage) symbolsByNameWithQuerier(ctx context.Context, q querier, name string) ([]*Symbol, error) {
	query := `SELECT ` + symbolColumns + ` FROM symbols WHERE name = ? ORDER BY module_id, id`
	rows, err := q.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols by name: %w", err)
	}
	return scanSymbols(rows)
}

func (s *SQLiteStorage) SymbolsByName(ctx context.Context, name string) ([]*Symbol, error) {
	return s.symbolsByNameWithQuerier(ctx, s.querier(), name)
}

func (s *SQLiteStorage) symbolsByPathPrefixWithQuerier(ctx context.Context, q querier, prefix string, limit int) ([]*Symbol, error) {
	// Descendants of prefix P sort within [P+'.', P+'/'): '/' is the byte
	// after '.' and never appears in a normalized path.
	query := `
		SELECT ` + symbolColumns + `
		FROM symbols
		WHERE path = ? OR (path >= ? || '.' AND path < ? || '/')
		ORDER BY path, id
		LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.QueryContext(ctx, query, prefix, prefix, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols by path prefix: %w", err)
	}
	return scanSymbols(rows)
}

func (s *SQLiteStorage) SymbolsByPathPrefix(ctx context.Context, prefix string, limit int) ([]*Symbol, error) {
	return s.symbolsByPathPrefixWithQuerier(ctx, s.querier(), prefix, limit)
}

func (s *SQLiteStorage) listSymbolsByModuleWithQuerier(ctx context.Context, q querier, moduleID int64) ([]*Symbol, error) {
	query := `SELECT ` + symbolColumns + ` FROM symbols WHERE module_id = ? ORDER BY name`
	rows, err := q.QueryContext(ctx, query, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	return scanSymbols(rows)
}

func (s *SQLiteStorage) ListSymbolsByModule(ctx context.Context, moduleID int64) ([]*Symbol, error) {
	return s.listSymbolsByModuleWithQuerier(ctx, s.querier(), moduleID)
}

func (s *SQLiteStorage) updateSymbolPathWithQuerier(ctx context.Context, q querier, symbolID int64, path string) error {
	result, err := q.ExecContext(ctx, "UPDATE symbols SET path = ? WHERE id = ?", path, symbolID)
	if err != nil {
		return fmt.Errorf("failed to update symbol path: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) UpdateSymbolPath(ctx context.Context, symbolID int64, path string) error {
	return s.updateSymbolPathWithQuerier(ctx, s.querier(), symbolID, path)
}

// Declaration operations

func (s *SQLiteStorage) insertDeclarationWithQuerier(ctx context.Context, q querier, decl *Declaration) error {
	query := `
		INSERT INTO declarations (symbol_id, file_id, kind, start_offset, end_offset)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query,
		decl.SymbolID, decl.FileID, string(decl.Kind), decl.Span.Start, decl.Span.End).Scan(&decl.ID)
	if err == sql.ErrNoRows {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert declaration: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) InsertDeclaration(ctx context.Context, decl *Declaration) error {
	return s.insertDeclarationWithQuerier(ctx, s.querier(), decl)
}

func (s *SQLiteStorage) deleteDeclarationsByFileWithQuerier(ctx context.Context, q querier, fileID int64) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM declarations WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("failed to delete declarations: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteDeclarationsByFile(ctx context.Context, fileID int64) error {
	return s.deleteDeclarationsByFileWithQuerier(ctx, s.querier(), fileID)
}

const declColumns = `id, symbol_id, file_id, kind, start_offset, end_offset`

func scanDeclarations(rows *sql.Rows) ([]*Declaration, error) {
	defer func() { _ = rows.Close() }()
	var decls []*Declaration
	for rows.Next() {
		var decl Declaration
		var kind string
		if err := rows.Scan(&decl.ID, &decl.SymbolID, &decl.FileID, &kind,
			&decl.Span.Start, &decl.Span.End); err != nil {
			return nil, err
		}
		decl.Kind = types.DeclKind(kind)
		decls = append(decls, &decl)
	}
	return decls, rows.Err()
}

func (s *SQLiteStorage) declarationsByFileWithQuerier(ctx context.Context, q querier, fileID int64) ([]*Declaration, error) {
	query := `SELECT ` + declColumns + ` FROM declarations WHERE file_id = ? ORDER BY start_offset, end_offset, id`
	rows, err := q.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query declarations: %w", err)
	}
	return scanDeclarations(rows)
}

func (s *SQLiteStorage) DeclarationsByFile(ctx context.Context, fileID int64) ([]*Declaration, error) {
	return s.declarationsByFileWithQuerier(ctx, s.querier(), fileID)
}

func (s *SQLiteStorage) declarationsBySymbolWithQuerier(ctx context.Context, q querier, symbolID int64) ([]*Declaration, error) {
	query := `SELECT ` + declColumns + ` FROM declarations WHERE symbol_id = ? ORDER BY file_id, start_offset, id`
	rows, err := q.QueryContext(ctx, query, symbolID)
	if err != nil {
		return nil, fmt.Errorf("failed to query declarations: %w", err)
	}
	return scanDeclarations(rows)
}

func (s *SQLiteStorage) DeclarationsBySymbol(ctx context.Context, symbolID int64) ([]*Declaration, error) {
	return s.declarationsBySymbolWithQuerier(ctx, s.querier(), symbolID)
}

func (s *SQLiteStorage) declarationsAtWithQuerier(ctx context.Context, q querier, fileID int64, offset int64) ([]*Declaration, error) {
	// Containment over half-open spans: start <= offset < end.
	query := `
		SELECT ` + declColumns + `
		FROM declarations
		WHERE file_id = ? AND start_offset <= ? AND end_offset > ?
		ORDER BY start_offset, end_offset, id
	`
	rows, err := q.QueryContext(ctx, query, fileID, offset, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query declarations at offset: %w", err)
	}
	return scanDeclarations(rows)
}

func (s *SQLiteStorage) DeclarationsAt(ctx context.Context, fileID int64, offset int64) ([]*Declaration, error) {
	return s.declarationsAtWithQuerier(ctx, s.querier(), fileID, offset)
}

// Reference operations

func (s *SQLiteStorage) insertRefWithQuerier(ctx context.Context, q querier, ref *SymbolRef) (bool, error) {
	query := `
		INSERT INTO symbol_refs (to_symbol, from_file, start_offset, end_offset)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query,
		ref.ToSymbol, ref.FromFile, ref.Span.Start, ref.Span.End).Scan(&ref.ID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert reference: %w", err)
	}
	return true, nil
}

func (s *SQLiteStorage) InsertRef(ctx context.Context, ref *SymbolRef) (bool, error) {
	return s.insertRefWithQuerier(ctx, s.querier(), ref)
}

func (s *SQLiteStorage) deleteRefsByFileWithQuerier(ctx context.Context, q querier, fileID int64) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM symbol_refs WHERE from_file = ?", fileID); err != nil {
		return fmt.Errorf("failed to delete references: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteRefsByFile(ctx context.Context, fileID int64) error {
	return s.deleteRefsByFileWithQuerier(ctx, s.querier(), fileID)
}

func scanRefs(rows *sql.Rows) ([]*SymbolRef, error) {
	defer func() { _ = rows.Close() }()
	var refs []*SymbolRef
	for rows.Next() {
		var ref SymbolRef
		if err := rows.Scan(&ref.ID, &ref.ToSymbol, &ref.FromFile,
			&ref.Span.Start, &ref.Span.End); err != nil {
			return nil, err
		}
		refs = append(refs, &ref)
	}
	return refs, rows.Err()
}

func (s *SQLiteStorage) refsByFileWithQuerier(ctx context.Context, q querier, fileID int64) ([]*SymbolRef, error) {
	query := `
		SELECT id, to_symbol, from_file, start_offset, end_offset
		FROM symbol_refs
		WHERE from_file = ?
		ORDER BY start_offset, end_offset, id
	`
	rows, err := q.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query references by file: %w", err)
	}
	return scanRefs(rows)
}

func (s *SQLiteStorage) RefsByFile(ctx context.Context, fileID int64) ([]*SymbolRef, error) {
	return s.refsByFileWithQuerier(ctx, s.querier(), fileID)
}

func (s *SQLiteStorage) refsToWithQuerier(ctx context.Context, q querier, symbolID int64, filter *RefFilter) ([]*SymbolRef, error) {
	query := `
		SELECT r.id, r.to_symbol, r.from_file, r.start_offset, r.end_offset
		FROM symbol_refs r
		JOIN files f ON f.id = r.from_file
		WHERE r.to_symbol = ?
	`
	args := []interface{}{symbolID}
	if filter != nil && filter.ProjectID != nil {
		query += " AND f.project_id = ?"
		args = append(args, *filter.ProjectID)
	}
	if filter != nil && filter.ModuleID != nil {
		query += " AND f.module_id = ?"
		args = append(args, *filter.ModuleID)
	}
	query += " ORDER BY r.from_file, r.start_offset, r.end_offset, r.id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query references: %w", err)
	}
	return scanRefs(rows)
}

func (s *SQLiteStorage) RefsTo(ctx context.Context, symbolID int64, filter *RefFilter) ([]*SymbolRef, error) {
	return s.refsToWithQuerier(ctx, s.querier(), symbolID, filter)
}

func (s *SQLiteStorage) refsInRangeWithQuerier(ctx context.Context, q querier, fileID int64, span types.Span) ([]*SymbolRef, error) {
	// Overlap over half-open spans: start < span.End and end > span.Start.
	query := `
		SELECT id, to_symbol, from_file, start_offset, end_offset
		FROM symbol_refs
		WHERE from_file = ? AND start_offset < ? AND end_offset > ?
		ORDER BY start_offset, end_offset, id
	`
	rows, err := q.QueryContext(ctx, query, fileID, span.End, span.Start)
	if err != nil {
		return nil, fmt.Errorf("failed to query references in range: %w", err)
	}
	return scanRefs(rows)
}

func (s *SQLiteStorage) RefsInRange(ctx context.Context, fileID int64, span types.Span) ([]*SymbolRef, error) {
	return s.refsInRangeWithQuerier(ctx, s.querier(), fileID, span)
}

// Transaction method implementations. Each delegates to the shared querier
// implementation with the transaction as the querier.

func (t *sqliteTx) UpsertProject(ctx context.Context, project *Project) error {
	return t.storage.upsertProjectWithQuerier(ctx, t.tx, project)
}

func (t *sqliteTx) GetProject(ctx context.Context, name string) (*Project, error) {
	return t.storage.getProjectWithQuerier(ctx, t.tx, name)
}

func (t *sqliteTx) GetProjectByID(ctx context.Context, projectID int64) (*Project, error) {
	return t.storage.getProjectByIDWithQuerier(ctx, t.tx, projectID)
}

func (t *sqliteTx) ListProjects(ctx context.Context) ([]*Project, error) {
	return t.storage.listProjectsWithQuerier(ctx, t.tx)
}

func (t *sqliteTx) DeleteProject(ctx context.Context, projectID int64) error {
	return t.storage.deleteProjectWithQuerier(ctx, t.tx, projectID)
}

func (t *sqliteTx) UpsertModule(ctx context.Context, module *Module) error {
	return t.storage.upsertModuleWithQuerier(ctx, t.tx, module)
}

func (t *sqliteTx) GetModule(ctx context.Context, projectID int64, name string) (*Module, error) {
	return t.storage.getModuleWithQuerier(ctx, t.tx, projectID, name)
}

func (t *sqliteTx) GetModuleByID(ctx context.Context, moduleID int64) (*Module, error) {
	return t.storage.getModuleByIDWithQuerier(ctx, t.tx, moduleID)
}

func (t *sqliteTx) ListModules(ctx context.Context, projectID int64) ([]*Module, error) {
	return t.storage.listModulesWithQuerier(ctx, t.tx, projectID)
}

func (t *sqliteTx) UpsertDirectory(ctx context.Context, dir *Directory) error {
	return t.storage.upsertDirectoryWithQuerier(ctx, t.tx, dir)
}

func (t *sqliteTx) ListDirectories(ctx context.Context, projectID int64) ([]*Directory, error) {
	return t.storage.listDirectoriesWithQuerier(ctx, t.tx, projectID)
}

func (t *sqliteTx) UpsertFile(ctx context.Context, file *File) error {
	return t.storage.upsertFileWithQuerier(ctx, t.tx, file)
}

func (t *sqliteTx) GetFile(ctx context.Context, projectID int64, moduleID *int64, filesystemPath string) (*File, error) {
	return t.storage.getFileWithQuerier(ctx, t.tx, projectID, moduleID, filesystemPath)
}

func (t *sqliteTx) GetFileByID(ctx context.Context, fileID int64) (*File, error) {
	return t.storage.getFileByIDWithQuerier(ctx, t.tx, fileID)
}

func (t *sqliteTx) ListFiles(ctx context.Context, projectID int64) ([]*File, error) {
	return t.storage.listFilesWithQuerier(ctx, t.tx, projectID)
}

func (t *sqliteTx) DeleteFile(ctx context.Context, fileID int64) error {
	return t.storage.deleteFileWithQuerier(ctx, t.tx, fileID)
}

func (t *sqliteTx) PutFileContent(ctx context.Context, fileID int64, content []byte) error {
	return t.storage.putFileContentWithQuerier(ctx, t.tx, fileID, content)
}

func (t *sqliteTx) GetFileContent(ctx context.Context, fileID int64) ([]byte, error) {
	return t.storage.getFileContentWithQuerier(ctx, t.tx, fileID)
}

func (t *sqliteTx) UpsertSymbol(ctx context.Context, symbol *Symbol) error {
	return t.storage.upsertSymbolWithQuerier(ctx, t.tx, symbol)
}

func (t *sqliteTx) GetSymbolByID(ctx context.Context, symbolID int64) (*Symbol, error) {
	return t.storage.getSymbolByIDWithQuerier(ctx, t.tx, symbolID)
}

func (t *sqliteTx) FindSymbol(ctx context.Context, moduleID int64, name string) (*Symbol, error) {
	return t.storage.findSymbolWithQuerier(ctx, t.tx, moduleID, name)
}

func (t *sqliteTx) SymbolsByName(ctx context.Context, name string) ([]*Symbol, error) {
	return t.storage.symbolsByNameWithQuerier(ctx, t.tx, name)
}

func (t *sqliteTx) SymbolsByPathPrefix(ctx context.Context, prefix string, limit int) ([]*Symbol, error) {
	return t.storage.symbolsByPathPrefixWithQuerier(ctx, t.tx, prefix, limit)
}

func (t *sqliteTx) ListSymbolsByModule(ctx context.Context, moduleID int64) ([]*Symbol, error) {
	return t.storage.listSymbolsByModuleWithQuerier(ctx, t.tx, moduleID)
}

func (t *sqliteTx) UpdateSymbolPath(ctx context.Context, symbolID int64, path string) error {
	return t.storage.updateSymbolPathWithQuerier(ctx, t.tx, symbolID, path)
}

func (t *sqliteTx) InsertDeclaration(ctx context.Context, decl *Declaration) error {
	return t.storage.insertDeclarationWithQuerier(ctx, t.tx, decl)
}

func (t *sqliteTx) DeleteDeclarationsByFile(ctx context.Context, fileID int64) error {
	return t.storage.deleteDeclarationsByFileWithQuerier(ctx, t.tx, fileID)
}

func (t *sqliteTx) DeclarationsByFile(ctx context.Context, fileID int64) ([]*Declaration, error) {
	return t.storage.declarationsByFileWithQuerier(ctx, t.tx, fileID)
}

func (t *sqliteTx) DeclarationsBySymbol(ctx context.Context, symbolID int64) ([]*Declaration, error) {
	return t.storage.declarationsBySymbolWithQuerier(ctx, t.tx, symbolID)
}

func (t *sqliteTx) DeclarationsAt(ctx context.Context, fileID int64, offset int64) ([]*Declaration, error) {
	return t.storage.declarationsAtWithQuerier(ctx, t.tx, fileID, offset)
}

func (t *sqliteTx) InsertRef(ctx context.Context, ref *SymbolRef) (bool, error) {
	return t.storage.insertRefWithQuerier(ctx, t.tx, ref)
}

func (t *sqliteTx) DeleteRefsByFile(ctx context.Context, fileID int64) error {
	return t.storage.deleteRefsByFileWithQuerier(ctx, t.tx, fileID)
}

func (t *sqliteTx) RefsByFile(ctx context.Context, fileID int64) ([]*SymbolRef, error) {
	return t.storage.refsByFileWithQuerier(ctx, t.tx, fileID)
}

func (t *sqliteTx) RefsTo(ctx context.Context, symbolID int64, filter *RefFilter) ([]*SymbolRef, error) {
	return t.storage.refsToWithQuerier(ctx, t.tx, symbolID, filter)
}

func (t *sqliteTx) RefsInRange(ctx context.Context, fileID int64, span types.Span) ([]*SymbolRef, error) {
	return t.storage.refsInRangeWithQuerier(ctx, t.tx, fileID, span)
}

func (t *sqliteTx) Close() error {
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, fmt.Errorf("nested transactions are not supported")
}
