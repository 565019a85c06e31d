package types

import "fmt"

// ValidationError marks a malformed fact. The ingestion engine rejects the
// fact and continues with the remainder of the file.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// ConsistencyError marks a fact that would break a data-model invariant,
// such as a declaration whose file and symbol module belong to different
// projects. It is fatal for that fact, never auto-repaired, always surfaced.
type ConsistencyError struct {
	Reason string
}

func (e *ConsistencyError) Error() string {
	return "consistency violation: " + e.Reason
}

// Consistencyf builds a ConsistencyError from a format string.
func Consistencyf(format string, args ...any) *ConsistencyError {
	return &ConsistencyError{Reason: fmt.Sprintf(format, args...)}
}
