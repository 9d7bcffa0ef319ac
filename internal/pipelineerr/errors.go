// Package pipelineerr defines the error-kind taxonomy from spec.md §7.
// Every recoverable failure in the pipeline is wrapped in an *Error
// carrying one of these kinds, so callers can branch on errors.Is
// without string matching, and cmd/chatimport can compute the exit
// code the CLI contract in spec.md §6 requires.
package pipelineerr

import "fmt"

// Kind is one of the six error kinds spec.md §7 names.
type Kind string

const (
	ArchiveMalformed    Kind = "archive_malformed"
	NestedArchiveSkipped Kind = "nested_archive_skipped"
	ConversationParseError Kind = "conversation_parse_error"
	CitationUnresolved  Kind = "citation_unresolved"
	MediaIndexCollision Kind = "media_index_collision"
	OutputConflict      Kind = "output_conflict"
)

// Error is a taxonomy-tagged pipeline error.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is match any *Error target with the same Kind,
// regardless of Detail or the wrapped error; targets of other types
// never match.
func (e *Error) Is(target error) bool {
	if k, ok := target.(*Error); ok {
		return e.Kind == k.Kind
	}
	return false
}

// New builds a tagged error.
func New(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// Fatal reports whether an error kind is fatal to the whole run, per
// spec.md §7's propagation policy.
func Fatal(kind Kind) bool {
	switch kind {
	case ArchiveMalformed, OutputConflict:
		return true
	default:
		return false
	}
}
