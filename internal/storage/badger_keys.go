package storage

import "encoding/binary"

// Key layout for the Badger backend. Every entity row lives under an
// <entity>/id/ key holding its JSON value; natural keys and query indexes
// are separate keys whose byte order makes the interesting scans
// contiguous:
//
//	proj/id/<id8>                                    project row
//	proj/name/<name>                                 natural key -> id8
//	mod/id/<id8>                                     module row
//	mod/key/<proj8><name>                            natural key -> id8
//	mod/proj/<proj8><id8>                            per-project listing
//	dir/id/<id8>                                     directory row
//	dir/key/<proj8><parent8><name>                   natural key -> id8
//	dir/proj/<proj8><id8>                            per-project listing
//	file/id/<id8>                                    file row
//	file/key/<proj8><mod8><path>                     natural key -> id8 (mod8 is 0 for module-less files)
//	file/proj/<proj8><id8>                           per-project listing
//	filec/<id8>                                      file content blob
//	sym/id/<id8>                                     symbol row
//	sym/key/<mod8><name>                             natural key -> id8
//	sym/mod/<mod8><id8>                              per-module listing
//	sym/name/<name>\x00<id8>                         name lookup
//	sym/path/<path>\x00<id8>                         path-prefix scans
//	decl/id/<id8>                                    declaration row
//	decl/key/<sym8><file8><start8><end8>             natural key -> id8
//	decl/file/<file8><start8><end8><id8>             span scans per file
//	decl/sym/<sym8><id8>                             per-symbol listing
//	ref/id/<id8>                                     reference row
//	ref/key/<to8><file8><start8><end8>               natural key -> id8
//	ref/file/<file8><start8><end8><id8>              span scans per file
//	ref/to/<to8><id8>                                per-target listing
//
// id8 and the span offsets are big-endian uint64, so lexicographic key
// order equals numeric order and a file's declarations iterate in
// (start, end, id) order without any post-sort.

const (
	kSeq = "meta/seq/"

	kProjID   = "proj/id/"
	kProjName = "proj/name/"

	kModID   = "mod/id/"
	kModKey  = "mod/key/"
	kModProj = "mod/proj/"

	kDirID   = "dir/id/"
	kDirKey  = "dir/key/"
	kDirProj = "dir/proj/"

	kFileID      = "file/id/"
	kFileKey     = "file/key/"
	kFileProj    = "file/proj/"
	kFileContent = "filec/"

	kSymID   = "sym/id/"
	kSymKey  = "sym/key/"
	kSymMod  = "sym/mod/"
	kSymName = "sym/name/"
	kSymPath = "sym/path/"

	kDeclID   = "decl/id/"
	kDeclKey  = "decl/key/"
	kDeclFile = "decl/file/"
	kDeclSym  = "decl/sym/"

	kRefID   = "ref/id/"
	kRefKey  = "ref/key/"
	kRefFile = "ref/file/"
	kRefTo   = "ref/to/"
)

// u64 encodes an id or offset as 8 big-endian bytes.
func u64(v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return b[:]
}

// readU64 decodes 8 big-endian bytes back into an int64.
func readU64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// bkey concatenates a string prefix with binary and string parts.
func bkey(prefix string, parts ...[]byte) []byte {
	n := len(prefix)
	for _, p := range parts {
		n += len(p)
	}
	key := make([]byte, 0, n)
	key = append(key, prefix...)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

func projIDKey(id int64) []byte      { return bkey(kProjID, u64(id)) }
func projNameKey(name string) []byte { return bkey(kProjName, []byte(name)) }

func modIDKey(id int64) []byte { return bkey(kModID, u64(id)) }
func modKeyKey(projectID int64, name string) []byte {
	return bkey(kModKey, u64(projectID), []byte(name))
}
func modProjKey(projectID, id int64) []byte { return bkey(kModProj, u64(projectID), u64(id)) }

func dirIDKey(id int64) []byte { return bkey(kDirID, u64(id)) }
func dirKeyKey(projectID int64, parentID *int64, name string) []byte {
	parent := int64(0)
	if parentID != nil {
		parent = *parentID
	}
	return bkey(kDirKey, u64(projectID), u64(parent), []byte(name))
}
func dirProjKey(projectID, id int64) []byte { return bkey(kDirProj, u64(projectID), u64(id)) }

func fileIDKey(id int64) []byte { return bkey(kFileID, u64(id)) }
func fileKeyKey(projectID int64, moduleID *int64, path string) []byte {
	module := int64(0)
	if moduleID != nil {
		module = *moduleID
	}
	return bkey(kFileKey, u64(projectID), u64(module), []byte(path))
}
func fileProjKey(projectID, id int64) []byte { return bkey(kFileProj, u64(projectID), u64(id)) }
func fileContentKey(id int64) []byte         { return bkey(kFileContent, u64(id)) }

func symIDKey(id int64) []byte { return bkey(kSymID, u64(id)) }
func symKeyKey(moduleID int64, name string) []byte {
	return bkey(kSymKey, u64(moduleID), []byte(name))
}
func symModKey(moduleID, id int64) []byte { return bkey(kSymMod, u64(moduleID), u64(id)) }
func symNameKey(name string, id int64) []byte {
	return bkey(kSymName, []byte(name), []byte{0}, u64(id))
}
func symPathKey(path string, id int64) []byte {
	return bkey(kSymPath, []byte(path), []byte{0}, u64(id))
}

func declIDKey(id int64) []byte { return bkey(kDeclID, u64(id)) }
func declKeyKey(d *Declaration) []byte {
	return bkey(kDeclKey, u64(d.SymbolID), u64(d.FileID), u64(d.Span.Start), u64(d.Span.End))
}
func declFileKey(d *Declaration) []byte {
	return bkey(kDeclFile, u64(d.FileID), u64(d.Span.Start), u64(d.Span.End), u64(d.ID))
}
func declSymKey(symbolID, id int64) []byte { return bkey(kDeclSym, u64(symbolID), u64(id)) }

func refIDKey(id int64) []byte { return bkey(kRefID, u64(id)) }
func refKeyKey(r *SymbolRef) []byte {
	return bkey(kRefKey, u64(r.ToSymbol), u64(r.FromFile), u64(r.Span.Start), u64(r.Span.End))
}
func refFileKey(r *SymbolRef) []byte {
	return bkey(kRefFile, u64(r.FromFile), u64(r.Span.Start), u64(r.Span.End), u64(r.ID))
}
func refToKey(toSymbol, id int64) []byte { return bkey(kRefTo, u64(toSymbol), u64(id)) }
