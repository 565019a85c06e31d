package storage

import (
	"context"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/codevyr/askl/pkg/types"
)

// Storage method implementations for BadgerStorage and badgerTx. The
// standalone store wraps each call in its own managed transaction; the Tx
// form runs against the caller's transaction.

func (s *BadgerStorage) UpsertProject(ctx context.Context, project *Project) error {
	return s.db.Update(func(txn *badger.Txn) error { return upsertProjectTxn(txn, project) })
}

func (s *BadgerStorage) GetProject(ctx context.Context, name string) (project *Project, err error) {
	err = s.db.View(func(txn *badger.Txn) error { project, err = getProjectTxn(txn, name); return err })
	return project, err
}

func (s *BadgerStorage) GetProjectByID(ctx context.Context, projectID int64) (project *Project, err error) {
	err = s.db.View(func(txn *badger.Txn) error { project, err = getProjectByIDTxn(txn, projectID); return err })
	return project, err
}

func (s *BadgerStorage) ListProjects(ctx context.Context) (projects []*Project, err error) {
	err = s.db.View(func(txn *badger.Txn) error { projects, err = listProjectsTxn(txn); return err })
	return projects, err
}

func (s *BadgerStorage) DeleteProject(ctx context.Context, projectID int64) error {
	return s.db.Update(func(txn *badger.Txn) error { return deleteProjectTxn(txn, projectID) })
}

func (s *BadgerStorage) UpsertModule(ctx context.Context, module *Module) error {
	return s.db.Update(func(txn *badger.Txn) error { return upsertModuleTxn(txn, module) })
}

func (s *BadgerStorage) GetModule(ctx context.Context, projectID int64, name string) (module *Module, err error) {
	err = s.db.View(func(txn *badger.Txn) error { module, err = getModuleTxn(txn, projectID, name); return err })
	return module, err
}

func (s *BadgerStorage) GetModuleByID(ctx context.Context, moduleID int64) (module *Module, err error) {
	err = s.db.View(func(txn *badger.Txn) error { module, err = getModuleByIDTxn(txn, moduleID); return err })
	return module, err
}

func (s *BadgerStorage) ListModules(ctx context.Context, projectID int64) (modules []*Module, err error) {
	err = s.db.View(func(txn *badger.Txn) error { modules, err = listModulesTxn(txn, projectID); return err })
	return modules, err
}

func (s *BadgerStorage) UpsertDirectory(ctx context.Context, dir *Directory) error {
	return s.db.Update(func(txn *badger.Txn) error { return upsertDirectoryTxn(txn, dir) })
}

func (s *BadgerStorage) ListDirectories(ctx context.Context, projectID int64) (dirs []*Directory, err error) {
	err = s.db.View(func(txn *badger.Txn) error { dirs, err = listDirectoriesTxn(txn, projectID); return err })
	return dirs, err
}

func (s *BadgerStorage) UpsertFile(ctx context.Context, file *File) error {
	return s.db.Update(func(txn *badger.Txn) error { return upsertFileTxn(txn, file) })
}

func (s *BadgerStorage) GetFile(ctx context.Context, projectID int64, moduleID *int64, filesystemPath string) (file *File, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		file, err = getFileTxn(txn, projectID, moduleID, filesystemPath)
		return err
	})
	return file, err
}

func (s *BadgerStorage) GetFileByID(ctx context.Context, fileID int64) (file *File, err error) {
	err = s.db.View(func(txn *badger.Txn) error { file, err = getFileByIDTxn(txn, fileID); return err })
	return file, err
}

func (s *BadgerStorage) ListFiles(ctx context.Context, projectID int64) (files []*File, err error) {
	err = s.db.View(func(txn *badger.Txn) error { files, err = listFilesTxn(txn, projectID); return err })
	return files, err
}

func (s *BadgerStorage) DeleteFile(ctx context.Context, fileID int64) error {
	return s.db.Update(func(txn *badger.Txn) error { return deleteFileByIDTxn(txn, fileID) })
}

func (s *BadgerStorage) PutFileContent(ctx context.Context, fileID int64, content []byte) error {
	return s.db.Update(func(txn *badger.Txn) error { return putFileContentTxn(txn, fileID, content) })
}

func (s *BadgerStorage) GetFileContent(ctx context.Context, fileID int64) (content []byte, err error) {
	err = s.db.View(func(txn *badger.Txn) error { content, err = getFileContentTxn(txn, fileID); return err })
	return content, err
}

func (s *BadgerStorage) UpsertSymbol(ctx context.Context, symbol *Symbol) error {
	return s.db.Update(func(txn *badger.Txn) error { return upsertSymbolTxn(txn, symbol) })
}

func (s *BadgerStorage) GetSymbolByID(ctx context.Context, symbolID int64) (symbol *Symbol, err error) {
	err = s.db.View(func(txn *badger.Txn) error { symbol, err = getSymbolByIDTxn(txn, symbolID); return err })
	return symbol, err
}

func (s *BadgerStorage) FindSymbol(ctx context.Context, moduleID int64, name string) (symbol *Symbol, err error) {
	err = s.db.View(func(txn *badger.Txn) error { symbol, err = findSymbolTxn(txn, moduleID, name); return err })
	return symbol, err
}

func (s *BadgerStorage) SymbolsByName(ctx context.Context, name string) (symbols []*Symbol, err error) {
	err = s.db.View(func(txn *badger.Txn) error { symbols, err = symbolsByNameTxn(txn, name); return err })
	return symbols, err
}

func (s *BadgerStorage) SymbolsByPathPrefix(ctx context.Context, prefix string, limit int) (symbols []*Symbol, err error) {
	err = s.db.View(func(txn *badger.Txn) error { symbols, err = symbolsByPathPrefixTxn(txn, prefix, limit); return err })
	return symbols, err
}

func (s *BadgerStorage) ListSymbolsByModule(ctx context.Context, moduleID int64) (symbols []*Symbol, err error) {
	err = s.db.View(func(txn *badger.Txn) error { symbols, err = listSymbolsByModuleTxn(txn, moduleID); return err })
	return symbols, err
}

func (s *BadgerStorage) UpdateSymbolPath(ctx context.Context, symbolID int64, path string) error {
	return s.db.Update(func(txn *badger.Txn) error { return updateSymbolPathTxn(txn, symbolID, path) })
}

func (s *BadgerStorage) InsertDeclaration(ctx context.Context, decl *Declaration) error {
	return s.db.Update(func(txn *badger.Txn) error { return insertDeclarationTxn(txn, decl) })
}

func (s *BadgerStorage) DeleteDeclarationsByFile(ctx context.Context, fileID int64) error {
	return s.db.Update(func(txn *badger.Txn) error { return deleteDeclarationsByFileTxn(txn, fileID) })
}

func (s *BadgerStorage) DeclarationsByFile(ctx context.Context, fileID int64) (decls []*Declaration, err error) {
	err = s.db.View(func(txn *badger.Txn) error { decls, err = declarationsByFileTxn(txn, fileID); return err })
	return decls, err
}

func (s *BadgerStorage) DeclarationsBySymbol(ctx context.Context, symbolID int64) (decls []*Declaration, err error) {
	err = s.db.View(func(txn *badger.Txn) error { decls, err = declarationsBySymbolTxn(txn, symbolID); return err })
	return decls, err
}

func (s *BadgerStorage) DeclarationsAt(ctx context.Context, fileID int64, offset int64) (decls []*Declaration, err error) {
	err = s.db.View(func(txn *badger.Txn) error { decls, err = declarationsAtTxn(txn, fileID, offset); return err })
	return decls, err
}

func (s *BadgerStorage) InsertRef(ctx context.Context, ref *SymbolRef) (created bool, err error) {
	err = s.db.Update(func(txn *badger.Txn) error { created, err = insertRefTxn(txn, ref); return err })
	return created, err
}

func (s *BadgerStorage) DeleteRefsByFile(ctx context.Context, fileID int64) error {
	return s.db.Update(func(txn *badger.Txn) error { return deleteRefsByFileTxn(txn, fileID) })
}

func (s *BadgerStorage) RefsByFile(ctx context.Context, fileID int64) (refs []*SymbolRef, err error) {
	err = s.db.View(func(txn *badger.Txn) error { refs, err = refsByFileTxn(txn, fileID); return err })
	return refs, err
}

func (s *BadgerStorage) RefsTo(ctx context.Context, symbolID int64, filter *RefFilter) (refs []*SymbolRef, err error) {
	err = s.db.View(func(txn *badger.Txn) error { refs, err = refsToTxn(txn, symbolID, filter); return err })
	return refs, err
}

func (s *BadgerStorage) RefsInRange(ctx context.Context, fileID int64, span types.Span) (refs []*SymbolRef, err error) {
	err = s.db.View(func(txn *badger.Txn) error { refs, err = refsInRangeTxn(txn, fileID, span); return err })
	return refs, err
}

// Transaction method implementations

func (t *badgerTx) UpsertProject(ctx context.Context, project *Project) error {
	return upsertProjectTxn(t.txn, project)
}

func (t *badgerTx) GetProject(ctx context.Context, name string) (*Project, error) {
	return getProjectTxn(t.txn, name)
}

func (t *badgerTx) GetProjectByID(ctx context.Context, projectID int64) (*Project, error) {
	return getProjectByIDTxn(t.txn, projectID)
}

func (t *badgerTx) ListProjects(ctx context.Context) ([]*Project, error) {
	return listProjectsTxn(t.txn)
}

func (t *badgerTx) DeleteProject(ctx context.Context, projectID int64) error {
	return deleteProjectTxn(t.txn, projectID)
}

func (t *badgerTx) UpsertModule(ctx context.Context, module *Module) error {
	return upsertModuleTxn(t.txn, module)
}

func (t *badgerTx) GetModule(ctx context.Context, projectID int64, name string) (*Module, error) {
	return getModuleTxn(t.txn, projectID, name)
}

func (t *badgerTx) GetModuleByID(ctx context.Context, moduleID int64) (*Module, error) {
	return getModuleByIDTxn(t.txn, moduleID)
}

func (t *badgerTx) ListModules(ctx context.Context, projectID int64) ([]*Module, error) {
	return listModulesTxn(t.txn, projectID)
}

func (t *badgerTx) UpsertDirectory(ctx context.Context, dir *Directory) error {
	return upsertDirectoryTxn(t.txn, dir)
}

func (t *badgerTx) ListDirectories(ctx context.Context, projectID int64) ([]*Directory, error) {
	return listDirectoriesTxn(t.txn, projectID)
}

func (t *badgerTx) UpsertFile(ctx context.Context, file *File) error {
	return upsertFileTxn(t.txn, file)
}

func (t *badgerTx) GetFile(ctx context.Context, projectID int64, moduleID *int64, filesystemPath string) (*File, error) {
	return getFileTxn(t.txn, projectID, moduleID, filesystemPath)
}

func (t *badgerTx) GetFileByID(ctx context.Context, fileID int64) (*File, error) {
	return getFileByIDTxn(t.txn, fileID)
}

func (t *badgerTx) ListFiles(ctx context.Context, projectID int64) ([]*File, error) {
	return listFilesTxn(t.txn, projectID)
}

func (t *badgerTx) DeleteFile(ctx context.Context, fileID int64) error {
	return deleteFileByIDTxn(t.txn, fileID)
}

func (t *badgerTx) PutFileContent(ctx context.Context, fileID int64, content []byte) error {
	return putFileContentTxn(t.txn, fileID, content)
}

func (t *badgerTx) GetFileContent(ctx context.Context, fileID int64) ([]byte, error) {
	return getFileContentTxn(t.txn, fileID)
}

func (t *badgerTx) UpsertSymbol(ctx context.Context, symbol *Symbol) error {
	return upsertSymbolTxn(t.txn, symbol)
}

func (t *badgerTx) GetSymbolByID(ctx context.Context, symbolID int64) (*Symbol, error) {
	return getSymbolByIDTxn(t.txn, symbolID)
}

func (t *badgerTx) FindSymbol(ctx context.Context, moduleID int64, name string) (*Symbol, error) {
	return findSymbolTxn(t.txn, moduleID, name)
}

func (t *badgerTx) SymbolsByName(ctx context.Context, name string) ([]*Symbol, error) {
	return symbolsByNameTxn(t.txn, name)
}

func (t *badgerTx) SymbolsByPathPrefix(ctx context.Context, prefix string, limit int) ([]*Symbol, error) {
	return symbolsByPathPrefixTxn(t.txn, prefix, limit)
}

func (t *badgerTx) ListSymbolsByModule(ctx context.Context, moduleID int64) ([]*Symbol, error) {
	return listSymbolsByModuleTxn(t.txn, moduleID)
}

func (t *badgerTx) UpdateSymbolPath(ctx context.Context, symbolID int64, path string) error {
	return updateSymbolPathTxn(t.txn, symbolID, path)
}

func (t *badgerTx) InsertDeclaration(ctx context.Context, decl *Declaration) error {
	return insertDeclarationTxn(t.txn, decl)
}

func (t *badgerTx) DeleteDeclarationsByFile(ctx context.Context, fileID int64) error {
	return deleteDeclarationsByFileTxn(t.txn, fileID)
}

func (t *badgerTx) DeclarationsByFile(ctx context.Context, fileID int64) ([]*Declaration, error) {
	return declarationsByFileTxn(t.txn, fileID)
}

func (t *badgerTx) DeclarationsBySymbol(ctx context.Context, symbolID int64) ([]*Declaration, error) {
	return declarationsBySymbolTxn(t.txn, symbolID)
}

func (t *badgerTx) DeclarationsAt(ctx context.Context, fileID int64, offset int64) ([]*Declaration, error) {
	return declarationsAtTxn(t.txn, fileID, offset)
}

func (t *badgerTx) InsertRef(ctx context.Context, ref *SymbolRef) (bool, error) {
	return insertRefTxn(t.txn, ref)
}

func (t *badgerTx) DeleteRefsByFile(ctx context.Context, fileID int64) error {
	return deleteRefsByFileTxn(t.txn, fileID)
}

func (t *badgerTx) RefsByFile(ctx context.Context, fileID int64) ([]*SymbolRef, error) {
	return refsByFileTxn(t.txn, fileID)
}

func (t *badgerTx) RefsTo(ctx context.Context, symbolID int64, filter *RefFilter) ([]*SymbolRef, error) {
	return refsToTxn(t.txn, symbolID, filter)
}

func (t *badgerTx) RefsInRange(ctx context.Context, fileID int64, span types.Span) ([]*SymbolRef, error) {
	return refsInRangeTxn(t.txn, fileID, span)
}
