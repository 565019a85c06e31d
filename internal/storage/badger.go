package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/codevyr/askl/pkg/types"
)

// BadgerStorage implements the Storage interface over a Badger key-value
// store. Span and path queries that SQLite emulates with index scans are
// native here: the key layout in badger_keys.go sorts declarations and
// references by (file, start, end) and symbols by path, so containment,
// overlap and prefix lookups are seeks over contiguous key ranges.
type BadgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage opens a Badger-backed store rooted at dir. An empty dir
// opens an in-memory store, used by tests.
func NewBadgerStorage(dir string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStorage{db: db}, nil
}

// Close closes the underlying store
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *BadgerStorage) BeginTx(ctx context.Context) (Tx, error) {
	return &badgerTx{txn: s.db.NewTransaction(true)}, nil
}

// badgerTx wraps a Badger transaction
type badgerTx struct {
	txn *badger.Txn
}

func (t *badgerTx) Commit() error {
	err := t.txn.Commit()
	if err == badger.ErrConflict {
		return ErrTxConflict
	}
	return err
}

func (t *badgerTx) Rollback() error {
	t.txn.Discard()
	return nil
}

func (t *badgerTx) Close() error {
	return nil
}

func (t *badgerTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, fmt.Errorf("nested transactions are not supported")
}

// Transaction helpers

// errStop terminates a prefix iteration early without reporting an error.
var errStop = errors.New("stop iteration")

func txnGet(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func txnHas(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func txnGetJSON(txn *badger.Txn, key []byte, v interface{}) error {
	val, err := txnGet(txn, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(val, v)
}

func txnSetJSON(txn *badger.Txn, key []byte, v interface{}) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, val)
}

// iterPrefix walks every key under prefix in order. fn may return errStop
// to end the walk early. Keys passed to fn are copies and safe to retain.
func iterPrefix(txn *badger.Txn, prefix []byte, fn func(key []byte, item *badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		if err := fn(item.KeyCopy(nil), item); err != nil {
			if err == errStop {
				return nil
			}
			return err
		}
	}
	return nil
}

// nextID allocates the next surrogate id for an entity.
func nextID(txn *badger.Txn, entity string) (int64, error) {
	key := bkey(kSeq, []byte(entity))
	var id int64
	val, err := txnGet(txn, key)
	if err == nil {
		id = readU64(val)
	} else if err != ErrNotFound {
		return 0, err
	}
	id++
	if err := txn.Set(key, u64(id)); err != nil {
		return 0, err
	}
	return id, nil
}

// Project operations

func upsertProjectTxn(txn *badger.Txn, project *Project) error {
	now := time.Now()
	val, err := txnGet(txn, projNameKey(project.Name))
	switch {
	case err == nil:
		var existing Project
		if err := txnGetJSON(txn, projIDKey(readU64(val)), &existing); err != nil {
			return err
		}
		project.ID = existing.ID
		project.CreatedAt = existing.CreatedAt
	case err == ErrNotFound:
		id, err := nextID(txn, "project")
		if err != nil {
			return err
		}
		project.ID = id
		project.CreatedAt = now
		if err := txn.Set(projNameKey(project.Name), u64(id)); err != nil {
			return err
		}
	default:
		return err
	}
	project.UpdatedAt = now
	return txnSetJSON(txn, projIDKey(project.ID), project)
}

func getProjectTxn(txn *badger.Txn, name string) (*Project, error) {
	val, err := txnGet(txn, projNameKey(name))
	if err != nil {
		return nil, err
	}
	return getProjectByIDTxn(txn, readU64(val))
}

func getProjectByIDTxn(txn *badger.Txn, projectID int64) (*Project, error) {
	var project Project
	if err := txnGetJSON(txn, projIDKey(projectID), &project); err != nil {
		return nil, err
	}
	return &project, nil
}

func listProjectsTxn(txn *badger.Txn) ([]*Project, error) {
	var projects []*Project
	err := iterPrefix(txn, []byte(kProjID), func(_ []byte, item *badger.Item) error {
		var project Project
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &project)
		}); err != nil {
			return err
		}
		projects = append(projects, &project)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}

func deleteProjectTxn(txn *badger.Txn, projectID int64) error {
	project, err := getProjectByIDTxn(txn, projectID)
	if err != nil {
		return err
	}

	// Modules and their symbols. Deleting a symbol also removes every
	// reference targeting it, wherever that reference originates.
	moduleIDs, err := collectIndexIDs(txn, bkey(kModProj, u64(projectID)))
	if err != nil {
		return err
	}
	for _, moduleID := range moduleIDs {
		symbolIDs, err := collectIndexIDs(txn, bkey(kSymMod, u64(moduleID)))
		if err != nil {
			return err
		}
		for _, symbolID := range symbolIDs {
			symbol, err := getSymbolByIDTxn(txn, symbolID)
			if err != nil {
				return err
			}
			if err := deleteSymbolTxn(txn, symbol); err != nil {
				return err
			}
		}
		module, err := getModuleByIDTxn(txn, moduleID)
		if err != nil {
			return err
		}
		for _, key := range [][]byte{
			modIDKey(moduleID),
			modKeyKey(module.ProjectID, module.Name),
			modProjKey(module.ProjectID, moduleID),
		} {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
	}

	// Files, their contents, and any remaining declarations and outgoing
	// references.
	fileIDs, err := collectIndexIDs(txn, bkey(kFileProj, u64(projectID)))
	if err != nil {
		return err
	}
	for _, fileID := range fileIDs {
		file, err := getFileByIDTxn(txn, fileID)
		if err != nil {
			return err
		}
		if err := deleteFileTxn(txn, file); err != nil {
			return err
		}
	}

	// Directories.
	dirIDs, err := collectIndexIDs(txn, bkey(kDirProj, u64(projectID)))
	if err != nil {
		return err
	}
	for _, dirID := range dirIDs {
		var dir Directory
		if err := txnGetJSON(txn, dirIDKey(dirID), &dir); err != nil {
			return err
		}
		for _, key := range [][]byte{
			dirIDKey(dirID),
			dirKeyKey(dir.ProjectID, dir.ParentID, dir.Name),
			dirProjKey(dir.ProjectID, dirID),
		} {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
	}

	if err := txn.Delete(projNameKey(project.Name)); err != nil {
		return err
	}
	return txn.Delete(projIDKey(projectID))
}

// collectIndexIDs gathers the trailing id8 of every key under an index
// prefix. Collecting first keeps deletions out of live iterations.
func collectIndexIDs(txn *badger.Txn, prefix []byte) ([]int64, error) {
	var ids []int64
	err := iterPrefix(txn, prefix, func(key []byte, _ *badger.Item) error {
		ids = append(ids, readU64(key[len(key)-8:]))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Module operations

func upsertModuleTxn(txn *badger.Txn, module *Module) error {
	val, err := txnGet(txn, modKeyKey(module.ProjectID, module.Name))
	switch {
	case err == nil:
		module.ID = readU64(val)
		return nil
	case err != ErrNotFound:
		return err
	}

	id, err := nextID(txn, "module")
	if err != nil {
		return err
	}
	module.ID = id
	if err := txn.Set(modKeyKey(module.ProjectID, module.Name), u64(id)); err != nil {
		return err
	}
	if err := txn.Set(modProjKey(module.ProjectID, id), nil); err != nil {
		return err
	}
	return txnSetJSON(txn, modIDKey(id), module)
}

func getModuleTxn(txn *badger.Txn, projectID int64, name string) (*Module, error) {
	val, err := txnGet(txn, modKeyKey(projectID, name))
	if err != nil {
		return nil, err
	}
	return getModuleByIDTxn(txn, readU64(val))
}

func getModuleByIDTxn(txn *badger.Txn, moduleID int64) (*Module, error) {
	var module Module
	if err := txnGetJSON(txn, modIDKey(moduleID), &module); err != nil {
		return nil, err
	}
	return &module, nil
}

func listModulesTxn(txn *badger.Txn, projectID int64) ([]*Module, error) {
	ids, err := collectIndexIDs(txn, bkey(kModProj, u64(projectID)))
	if err != nil {
		return nil, err
	}
	modules := make([]*Module, 0, len(ids))
	for _, id := range ids {
		module, err := getModuleByIDTxn(txn, id)
		if err != nil {
			return nil, err
		}
		modules = append(modules, module)
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Name < modules[j].Name })
	return modules, nil
}

// Directory operations

func upsertDirectoryTxn(txn *badger.Txn, dir *Directory) error {
	val, err := txnGet(txn, dirKeyKey(dir.ProjectID, dir.ParentID, dir.Name))
	switch {
	case err == nil:
		dir.ID = readU64(val)
		return nil
	case err != ErrNotFound:
		return err
	}

	id, err := nextID(txn, "directory")
	if err != nil {
		return err
	}
	dir.ID = id
	if err := txn.Set(dirKeyKey(dir.ProjectID, dir.ParentID, dir.Name), u64(id)); err != nil {
		return err
	}
	if err := txn.Set(dirProjKey(dir.ProjectID, id), nil); err != nil {
		return err
	}
	return txnSetJSON(txn, dirIDKey(id), dir)
}

func listDirectoriesTxn(txn *badger.Txn, projectID int64) ([]*Directory, error) {
	ids, err := collectIndexIDs(txn, bkey(kDirProj, u64(projectID)))
	if err != nil {
		return nil, err
	}
	dirs := make([]*Directory, 0, len(ids))
	for _, id := range ids {
		var dir Directory
		if err := txnGetJSON(txn, dirIDKey(id), &dir); err != nil {
			return nil, err
		}
		dirs = append(dirs, &dir)
	}
	return dirs, nil
}

// File operations

func upsertFileTxn(txn *badger.Txn, file *File) error {
	now := time.Now()
	val, err := txnGet(txn, fileKeyKey(file.ProjectID, file.ModuleID, file.FilesystemPath))
	switch {
	case err == nil:
		var existing File
		if err := txnGetJSON(txn, fileIDKey(readU64(val)), &existing); err != nil {
			return err
		}
		file.ID = existing.ID
		file.CreatedAt = existing.CreatedAt
	case err == ErrNotFound:
		id, err := nextID(txn, "file")
		if err != nil {
			return err
		}
		file.ID = id
		file.CreatedAt = now
		if err := txn.Set(fileKeyKey(file.ProjectID, file.ModuleID, file.FilesystemPath), u64(id)); err != nil {
			return err
		}
		if err := txn.Set(fileProjKey(file.ProjectID, id), nil); err != nil {
			return err
		}
	default:
		return err
	}
	file.UpdatedAt = now
	return txnSetJSON(txn, fileIDKey(file.ID), file)
}

func getFileTxn(txn *badger.Txn, projectID int64, moduleID *int64, filesystemPath string) (*File, error) {
	val, err := txnGet(txn, fileKeyKey(projectID, moduleID, filesystemPath))
	if err != nil {
		return nil, err
	}
	return getFileByIDTxn(txn, readU64(val))
}

func getFileByIDTxn(txn *badger.Txn, fileID int64) (*File, error) {
	var file File
	if err := txnGetJSON(txn, fileIDKey(fileID), &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func listFilesTxn(txn *badger.Txn, projectID int64) ([]*File, error) {
	ids, err := collectIndexIDs(txn, bkey(kFileProj, u64(projectID)))
	if err != nil {
		return nil, err
	}
	files := make([]*File, 0, len(ids))
	for _, id := range ids {
		file, err := getFileByIDTxn(txn, id)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].FilesystemPath < files[j].FilesystemPath })
	return files, nil
}

func deleteFileTxn(txn *badger.Txn, file *File) error {
	decls, err := declarationsByFileTxn(txn, file.ID)
	if err != nil {
		return err
	}
	for _, decl := range decls {
		if err := deleteDeclTxn(txn, decl); err != nil {
			return err
		}
	}

	refs, err := refsByFileTxn(txn, file.ID)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if err := deleteRefTxn(txn, ref); err != nil {
			return err
		}
	}

	for _, key := range [][]byte{
		fileContentKey(file.ID),
		fileKeyKey(file.ProjectID, file.ModuleID, file.FilesystemPath),
		fileProjKey(file.ProjectID, file.ID),
		fileIDKey(file.ID),
	} {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func deleteFileByIDTxn(txn *badger.Txn, fileID int64) error {
	file, err := getFileByIDTxn(txn, fileID)
	if err != nil {
		return err
	}
	return deleteFileTxn(txn, file)
}

// File content operations

func putFileContentTxn(txn *badger.Txn, fileID int64, content []byte) error {
	return txn.Set(fileContentKey(fileID), content)
}

func getFileContentTxn(txn *badger.Txn, fileID int64) ([]byte, error) {
	return txnGet(txn, fileContentKey(fileID))
}

// Symbol operations

func upsertSymbolTxn(txn *badger.Txn, symbol *Symbol) error {
	val, err := txnGet(txn, symKeyKey(symbol.ModuleID, symbol.Name))
	switch {
	case err == nil:
		existing, err := getSymbolByIDTxn(txn, readU64(val))
		if err != nil {
			return err
		}
		symbol.ID = existing.ID
		if existing.Path != symbol.Path {
			if err := txn.Delete(symPathKey(existing.Path, existing.ID)); err != nil {
				return err
			}
			if err := txn.Set(symPathKey(symbol.Path, symbol.ID), nil); err != nil {
				return err
			}
		}
		return txnSetJSON(txn, symIDKey(symbol.ID), symbol)
	case err != ErrNotFound:
		return err
	}

	id, err := nextID(txn, "symbol")
	if err != nil {
		return err
	}
	symbol.ID = id
	if err := txn.Set(symKeyKey(symbol.ModuleID, symbol.Name), u64(id)); err != nil {
		return err
	}
	for _, key := range [][]byte{
		symModKey(symbol.ModuleID, id),
		symNameKey(symbol.Name, id),
		symPathKey(symbol.Path, id),
	} {
		if err := txn.Set(key, nil); err != nil {
			return err
		}
	}
	return txnSetJSON(txn, symIDKey(id), symbol)
}

func getSymbolByIDTxn(txn *badger.Txn, symbolID int64) (*Symbol, error) {
	var symbol Symbol
	if err := txnGetJSON(txn, symIDKey(symbolID), &symbol); err != nil {
		return nil, err
	}
	return &symbol, nil
}

func findSymbolTxn(txn *badger.Txn, moduleID int64, name string) (*Symbol, error) {
	val, err := txnGet(txn, symKeyKey(moduleID, name))
	if err != nil {
		return nil, err
	}
	return getSymbolByIDTxn(txn, readU64(val))
}

func symbolsByNameTxn(txn *badger.Txn, name string) ([]*Symbol, error) {
	prefix := bkey(kSymName, []byte(name), []byte{0})
	ids, err := collectIndexIDs(txn, prefix)
	if err != nil {
		return nil, err
	}
	symbols := make([]*Symbol, 0, len(ids))
	for _, id := range ids {
		symbol, err := getSymbolByIDTxn(txn, id)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, symbol)
	}
	sort.Slice(symbols, func(i, j int) bool {
		if symbols[i].ModuleID != symbols[j].ModuleID {
			return symbols[i].ModuleID < symbols[j].ModuleID
		}
		return symbols[i].ID < symbols[j].ID
	})
	return symbols, nil
}

func symbolsByPathPrefixTxn(txn *badger.Txn, prefix string, limit int) ([]*Symbol, error) {
	// The scan covers every path sharing the string prefix; token-boundary
	// filtering ("a.b" must not match "a.bc") happens on the decoded path.
	var ids []int64
	scan := bkey(kSymPath, []byte(prefix))
	err := iterPrefix(txn, scan, func(key []byte, _ *badger.Item) error {
		rest := key[len(kSymPath):]
		path := string(rest[:len(rest)-9]) // strip \x00 separator and id8
		if path != prefix && !isPathChild(prefix, path) {
			return nil
		}
		ids = append(ids, readU64(key[len(key)-8:]))
		if limit > 0 && len(ids) >= limit {
			return errStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	symbols := make([]*Symbol, 0, len(ids))
	for _, id := range ids {
		symbol, err := getSymbolByIDTxn(txn, id)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, symbol)
	}
	return symbols, nil
}

func isPathChild(prefix, path string) bool {
	return len(path) > len(prefix) && path[len(prefix)] == '.' && path[:len(prefix)] == prefix
}

func listSymbolsByModuleTxn(txn *badger.Txn, moduleID int64) ([]*Symbol, error) {
	ids, err := collectIndexIDs(txn, bkey(kSymMod, u64(moduleID)))
	if err != nil {
		return nil, err
	}
	symbols := make([]*Symbol, 0, len(ids))
	for _, id := range ids {
		symbol, err := getSymbolByIDTxn(txn, id)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, symbol)
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i].Name < symbols[j].Name })
	return symbols, nil
}

func updateSymbolPathTxn(txn *badger.Txn, symbolID int64, path string) error {
	symbol, err := getSymbolByIDTxn(txn, symbolID)
	if err != nil {
		return err
	}
	if symbol.Path == path {
		return nil
	}
	if err := txn.Delete(symPathKey(symbol.Path, symbolID)); err != nil {
		return err
	}
	if err := txn.Set(symPathKey(path, symbolID), nil); err != nil {
		return err
	}
	symbol.Path = path
	return txnSetJSON(txn, symIDKey(symbolID), symbol)
}

func deleteSymbolTxn(txn *badger.Txn, symbol *Symbol) error {
	declIDs, err := collectIndexIDs(txn, bkey(kDeclSym, u64(symbol.ID)))
	if err != nil {
		return err
	}
	for _, id := range declIDs {
		var decl Declaration
		if err := txnGetJSON(txn, declIDKey(id), &decl); err != nil {
			return err
		}
		if err := deleteDeclTxn(txn, &decl); err != nil {
			return err
		}
	}

	refIDs, err := collectIndexIDs(txn, bkey(kRefTo, u64(symbol.ID)))
	if err != nil {
		return err
	}
	for _, id := range refIDs {
		var ref SymbolRef
		if err := txnGetJSON(txn, refIDKey(id), &ref); err != nil {
			return err
		}
		if err := deleteRefTxn(txn, &ref); err != nil {
			return err
		}
	}

	for _, key := range [][]byte{
		symKeyKey(symbol.ModuleID, symbol.Name),
		symModKey(symbol.ModuleID, symbol.ID),
		symNameKey(symbol.Name, symbol.ID),
		symPathKey(symbol.Path, symbol.ID),
		symIDKey(symbol.ID),
	} {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// Declaration operations

func insertDeclarationTxn(txn *badger.Txn, decl *Declaration) error {
	exists, err := txnHas(txn, declKeyKey(decl))
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyExists
	}

	id, err := nextID(txn, "declaration")
	if err != nil {
		return err
	}
	decl.ID = id
	if err := txn.Set(declKeyKey(decl), u64(id)); err != nil {
		return err
	}
	if err := txn.Set(declFileKey(decl), nil); err != nil {
		return err
	}
	if err := txn.Set(declSymKey(decl.SymbolID, id), nil); err != nil {
		return err
	}
	return txnSetJSON(txn, declIDKey(id), decl)
}

func deleteDeclTxn(txn *badger.Txn, decl *Declaration) error {
	for _, key := range [][]byte{
		declKeyKey(decl),
		declFileKey(decl),
		declSymKey(decl.SymbolID, decl.ID),
		declIDKey(decl.ID),
	} {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func deleteDeclarationsByFileTxn(txn *badger.Txn, fileID int64) error {
	decls, err := declarationsByFileTxn(txn, fileID)
	if err != nil {
		return err
	}
	for _, decl := range decls {
		if err := deleteDeclTxn(txn, decl); err != nil {
			return err
		}
	}
	return nil
}

func declarationsByFileTxn(txn *badger.Txn, fileID int64) ([]*Declaration, error) {
	// decl/file keys sort by (start, end, id), the order callers expect.
	var ids []int64
	err := iterPrefix(txn, bkey(kDeclFile, u64(fileID)), func(key []byte, _ *badger.Item) error {
		ids = append(ids, readU64(key[len(key)-8:]))
		return nil
	})
	if err != nil {
		return nil, err
	}
	decls := make([]*Declaration, 0, len(ids))
	for _, id := range ids {
		var decl Declaration
		if err := txnGetJSON(txn, declIDKey(id), &decl); err != nil {
			return nil, err
		}
		decls = append(decls, &decl)
	}
	return decls, nil
}

func declarationsBySymbolTxn(txn *badger.Txn, symbolID int64) ([]*Declaration, error) {
	ids, err := collectIndexIDs(txn, bkey(kDeclSym, u64(symbolID)))
	if err != nil {
		return nil, err
	}
	decls := make([]*Declaration, 0, len(ids))
	for _, id := range ids {
		var decl Declaration
		if err := txnGetJSON(txn, declIDKey(id), &decl); err != nil {
			return nil, err
		}
		decls = append(decls, &decl)
	}
	sort.Slice(decls, func(i, j int) bool {
		if decls[i].FileID != decls[j].FileID {
			return decls[i].FileID < decls[j].FileID
		}
		if decls[i].Span.Start != decls[j].Span.Start {
			return decls[i].Span.Start < decls[j].Span.Start
		}
		return decls[i].ID < decls[j].ID
	})
	return decls, nil
}

func declarationsAtTxn(txn *badger.Txn, fileID int64, offset int64) ([]*Declaration, error) {
	// Keys iterate in start order, so the scan stops at the first
	// declaration beginning past the offset.
	prefix := bkey(kDeclFile, u64(fileID))
	base := len(prefix)
	var ids []int64
	err := iterPrefix(txn, prefix, func(key []byte, _ *badger.Item) error {
		start := readU64(key[base : base+8])
		if start > offset {
			return errStop
		}
		end := readU64(key[base+8 : base+16])
		if end > offset {
			ids = append(ids, readU64(key[base+16:base+24]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	decls := make([]*Declaration, 0, len(ids))
	for _, id := range ids {
		var decl Declaration
		if err := txnGetJSON(txn, declIDKey(id), &decl); err != nil {
			return nil, err
		}
		decls = append(decls, &decl)
	}
	sort.Slice(decls, func(i, j int) bool {
		if decls[i].Span.Start != decls[j].Span.Start {
			return decls[i].Span.Start < decls[j].Span.Start
		}
		if decls[i].Span.End != decls[j].Span.End {
			return decls[i].Span.End < decls[j].Span.End
		}
		return decls[i].ID < decls[j].ID
	})
	return decls, nil
}

// Reference operations

func insertRefTxn(txn *badger.Txn, ref *SymbolRef) (bool, error) {
	exists, err := txnHas(txn, refKeyKey(ref))
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	id, err := nextID(txn, "ref")
	if err != nil {
		return false, err
	}
	ref.ID = id
	if err := txn.Set(refKeyKey(ref), u64(id)); err != nil {
		return false, err
	}
	if err := txn.Set(refFileKey(ref), nil); err != nil {
		return false, err
	}
	if err := txn.Set(refToKey(ref.ToSymbol, id), nil); err != nil {
		return false, err
	}
	if err := txnSetJSON(txn, refIDKey(id), ref); err != nil {
		return false, err
	}
	return true, nil
}

func deleteRefTxn(txn *badger.Txn, ref *SymbolRef) error {
	for _, key := range [][]byte{
		refKeyKey(ref),
		refFileKey(ref),
		refToKey(ref.ToSymbol, ref.ID),
		refIDKey(ref.ID),
	} {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func refsByFileTxn(txn *badger.Txn, fileID int64) ([]*SymbolRef, error) {
	var ids []int64
	err := iterPrefix(txn, bkey(kRefFile, u64(fileID)), func(key []byte, _ *badger.Item) error {
		ids = append(ids, readU64(key[len(key)-8:]))
		return nil
	})
	if err != nil {
		return nil, err
	}
	refs := make([]*SymbolRef, 0, len(ids))
	for _, id := range ids {
		var ref SymbolRef
		if err := txnGetJSON(txn, refIDKey(id), &ref); err != nil {
			return nil, err
		}
		refs = append(refs, &ref)
	}
	return refs, nil
}

func deleteRefsByFileTxn(txn *badger.Txn, fileID int64) error {
	refs, err := refsByFileTxn(txn, fileID)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if err := deleteRefTxn(txn, ref); err != nil {
			return err
		}
	}
	return nil
}

func refsToTxn(txn *badger.Txn, symbolID int64, filter *RefFilter) ([]*SymbolRef, error) {
	ids, err := collectIndexIDs(txn, bkey(kRefTo, u64(symbolID)))
	if err != nil {
		return nil, err
	}
	files := make(map[int64]*File)
	var refs []*SymbolRef
	for _, id := range ids {
		var ref SymbolRef
		if err := txnGetJSON(txn, refIDKey(id), &ref); err != nil {
			return nil, err
		}
		if filter != nil {
			file, ok := files[ref.FromFile]
			if !ok {
				file, err = getFileByIDTxn(txn, ref.FromFile)
				if err != nil {
					return nil, err
				}
				files[ref.FromFile] = file
			}
			if !filter.matches(file) {
				continue
			}
		}
		refs = append(refs, &ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].FromFile != refs[j].FromFile {
			return refs[i].FromFile < refs[j].FromFile
		}
		if refs[i].Span.Start != refs[j].Span.Start {
			return refs[i].Span.Start < refs[j].Span.Start
		}
		if refs[i].Span.End != refs[j].Span.End {
			return refs[i].Span.End < refs[j].Span.End
		}
		return refs[i].ID < refs[j].ID
	})
	return refs, nil
}

func refsInRangeTxn(txn *badger.Txn, fileID int64, span types.Span) ([]*SymbolRef, error) {
	// Keys iterate in start order, so the scan stops at the first
	// reference beginning at or past the end of the window.
	prefix := bkey(kRefFile, u64(fileID))
	base := len(prefix)
	var ids []int64
	err := iterPrefix(txn, prefix, func(key []byte, _ *badger.Item) error {
		start := readU64(key[base : base+8])
		if start >= span.End {
			return errStop
		}
		end := readU64(key[base+8 : base+16])
		if end > span.Start {
			ids = append(ids, readU64(key[base+16:base+24]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	refs := make([]*SymbolRef, 0, len(ids))
	for _, id := range ids {
		var ref SymbolRef
		if err := txnGetJSON(txn, refIDKey(id), &ref); err != nil {
			return nil, err
		}
		refs = append(refs, &ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Span.Start != refs[j].Span.Start {
			return refs[i].Span.Start < refs[j].Span.Start
		}
		if refs[i].Span.End != refs[j].Span.End {
			return refs[i].Span.End < refs[j].Span.End
		}
		return refs[i].ID < refs[j].ID
	})
	return refs, nil
}
