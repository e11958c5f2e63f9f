package commune

import (
	"errors"
	"fmt"
)

// Kind classifies load failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindSourceUnavailable covers network and database fetch failures.
	KindSourceUnavailable
	// KindSchemaMismatch means an expected field is absent after renaming.
	KindSchemaMismatch
	// KindJoinAmbiguity means several coverage records share a code under the reject policy.
	KindJoinAmbiguity
)

func (k Kind) String() string {
	switch k {
	case KindSourceUnavailable:
		return "source_unavailable"
	case KindSchemaMismatch:
		return "schema_mismatch"
	case KindJoinAmbiguity:
		return "join_ambiguity"
	default:
		return "unknown"
	}
}

// SourceError is a classified load failure.
type SourceError struct {
	Kind   Kind
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Unavailable wraps err as a SourceUnavailable failure of source.
func Unavailable(source string, err error) *SourceError {
	return &SourceError{Kind: KindSourceUnavailable, Source: source, Err: err}
}

// SchemaMismatch wraps err as a SchemaMismatch failure of source.
func SchemaMismatch(source string, err error) *SourceError {
	return &SourceError{Kind: KindSchemaMismatch, Source: source, Err: err}
}

// KindOf returns the kind of the first SourceError in err's chain.
func KindOf(err error) Kind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}
