// Package storage persists the symbol index and answers its structural
// queries.
//
// Two backends implement the same Storage interface:
//
//   - SQLiteStorage: a relational layout with foreign-key cascades.
//     Span containment and path-prefix queries are emulated over ordinary
//     b-tree indexes, with any residual filtering done in SQL.
//
//   - BadgerStorage: a key-value layout over sorted keys. Spans and paths
//     are encoded into the keys themselves, so containment and prefix
//     queries become seeks over contiguous key ranges.
//
// Both backends expose transactions through BeginTx; the returned Tx embeds
// the full Storage interface so ingestion can run each file's update
// atomically against either backend.
//
// Entity identity follows natural keys (project name; module name within a
// project; filesystem path within a project; symbol name within a module),
// with surrogate int64 ids assigned by the backend. Upsert methods are
// insert-or-get: they fill in the id of an existing row instead of failing.
package storage
