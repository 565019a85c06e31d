// Package ingest owns the write path of the symbol index.
//
// An extractor hands the engine one FileUpdate per file: the file's
// location, its content, and the declaration and reference facts found in
// it. The engine applies each update in a single transaction using
// retract-then-assert semantics: the file's previous declarations and
// references are deleted, the new facts are validated and inserted, and the
// content and hash are stored. Re-ingesting unchanged content is detected
// by hash and skipped entirely.
//
// Fact-level problems never abort a file. A fact that fails validation or
// a consistency check is counted in FileResult.Rejected and recorded in
// FileResult.Errors; a reference whose target cannot be resolved is counted
// in FileResult.Unresolved and dropped. Only storage failures abort the
// transaction, leaving the file's previous state intact.
//
// IngestBatch runs many updates concurrently with one transaction per file,
// serializing updates that target the same file. A failed file is reported
// in BatchResult.Failed without affecting the rest of the batch.
//
// Maintainer hosts the offline jobs: RecomputePaths refreshes the derived
// symbol-path cache after a normalization change, and Verify reports any
// data-model invariant violations without repairing them.
package ingest
