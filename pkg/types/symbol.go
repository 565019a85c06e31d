package types

// DeclKind distinguishes how a location introduces a symbol.
type DeclKind string

const (
	KindDefinition  DeclKind = "definition"
	KindDeclaration DeclKind = "declaration"
)

// SymbolScope is a symbol's visibility class. The index core treats it as an
// opaque tag; it is stored and returned but never interpreted.
type SymbolScope string

const (
	ScopeLocal  SymbolScope = "local"
	ScopeGlobal SymbolScope = "global"
)

// ValidScope reports whether the scope is one of the known classes.
func ValidScope(s SymbolScope) bool {
	return s == ScopeLocal || s == ScopeGlobal
}

// DeclarationFact is one declaration supplied by an extractor for a file:
// a raw qualified name, the kind of declaration, its span within the file,
// and the symbol's visibility class.
type DeclarationFact struct {
	Name  string
	Kind  DeclKind
	Span  Span
	Scope SymbolScope
}

// Validate checks the fact-level invariants the ingestion engine enforces
// before touching storage.
func (f DeclarationFact) Validate() error {
	if f.Name == "" {
		return &ValidationError{Reason: "empty symbol name"}
	}
	if !f.Span.Valid() {
		return &ValidationError{Reason: "invalid span " + f.Span.String()}
	}
	return nil
}

// ReferenceFact is one use-site supplied by an extractor: the target symbol
// given either by raw name or by a previously resolved symbol id, and the
// span of the use within the originating file.
type ReferenceFact struct {
	// TargetName is the raw qualified name of the referenced symbol.
	// Ignored when TargetSymbol is set.
	TargetName string

	// TargetSymbol is the id of the referenced symbol, when the extractor
	// already resolved it. Zero means unresolved.
	TargetSymbol int64

	Span Span
}

// Validate checks the fact-level invariants for a reference.
func (f ReferenceFact) Validate() error {
	if f.TargetName == "" && f.TargetSymbol == 0 {
		return &ValidationError{Reason: "reference has no target"}
	}
	if !f.Span.Valid() {
		return &ValidationError{Reason: "invalid span " + f.Span.String()}
	}
	return nil
}
