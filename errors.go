package riftcql

import (
	"errors"
	"fmt"
)

// Kind classifies a riftcql error per the taxonomy in the core design: each
// Kind carries its own recovery story (surfaced to the caller, retried by the
// transport, or reclassified from a transport error).
type Kind int

const (
	// KindCompile covers ClassInfo compilation failures (C3). Statement
	// construction against the failing type is impossible.
	KindCompile Kind = iota
	// KindLower covers statement-lowering failures (C5). No partial
	// execution has happened when this is returned.
	KindLower
	// KindObjectValidation is raised by a composite recorder hook at
	// compose time; the composite is unusable afterwards.
	KindObjectValidation
	// KindObjectConversion marks a row that failed to decode into a record.
	KindObjectConversion
	// KindObjectMissing marks a row missing a field required to decode.
	KindObjectMissing
	// KindObjectNotFound is reclassified from a transport InvalidQuery
	// whose message matches "keyspace X does not exist".
	KindObjectNotFound
	// KindObjectExist marks a failed IF NOT EXISTS.
	KindObjectExist
	// KindUpdateNotApplied marks a failed conditional UPDATE.
	KindUpdateNotApplied
	// KindTooManyMatches marks a SELECT-one that matched more than one row.
	KindTooManyMatches
	// KindQueryExecution, KindNoHostAvailable and KindQueryValidation are
	// transport-originated failures, retried per the transport's policy
	// when the statement is idempotent.
	KindQueryExecution
	KindNoHostAvailable
	KindQueryValidation
)

func (k Kind) String() string {
	switch k {
	case KindCompile:
		return "CompileError"
	case KindLower:
		return "LowerError"
	case KindObjectValidation:
		return "ObjectValidation"
	case KindObjectConversion:
		return "ObjectConversion"
	case KindObjectMissing:
		return "ObjectMissing"
	case KindObjectNotFound:
		return "ObjectNotFound"
	case KindObjectExist:
		return "ObjectExist"
	case KindUpdateNotApplied:
		return "UpdateNotApplied"
	case KindTooManyMatches:
		return "TooManyMatchesFound"
	case KindQueryExecution:
		return "QueryExecution"
	case KindNoHostAvailable:
		return "NoHostAvailable"
	case KindQueryValidation:
		return "QueryValidation"
	default:
		return "UnknownKind"
	}
}

// Error is the concrete error value every riftcql component returns. Wrap an
// underlying cause with Err so errors.Is/errors.As keep working through the
// core's layers (e.g. a KindObjectNotFound wraps the transport's original
// InvalidQuery).
type Error struct {
	Kind    Kind
	Code    string // short machine-readable code, e.g. "MissingKeyspace"
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Code, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, riftcql.KindObjectNotFound) style comparisons work
// by comparing Kind when the target is itself an *Error with no Code set.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		if t.Code == "" {
			return e.Kind == t.Kind
		}
		return e.Kind == t.Kind && e.Code == t.Code
	}
	return false
}

// NewError builds an *Error of the given kind and code.
func NewError(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: cause}
}

// Compile-time error codes (C3, spec.md §4.1 "Failure conditions").
const (
	CodeMissingKeyspace         = "MissingKeyspace"
	CodeDuplicateColumn         = "DuplicateColumn"
	CodePrimaryKeyMissingBind   = "PrimaryKeyMissingBinding"
	CodeCodecUnavailable        = "CodecUnavailable"
	CodeKeyspaceKeyUnbound      = "KeyspaceKeyUnbound"
	CodeCounterMixedNonCounter  = "CounterMixedWithNonCounter"
	CodeKeyspaceConflict        = "KeyspaceReplicationConflict"
)

// Lowering error codes (C5, spec.md §4.2 "Errors").
const (
	CodeUnknownColumn                 = "UnknownColumn"
	CodeCounterOpOnNonCounter         = "CounterOperationOnNonCounter"
	CodeEmptyInList                   = "EmptyInList"
	CodePKInAssignmentWithoutPrevious = "PrimaryKeyInAssignmentWithoutPrevious"
	CodeAlterIncompatible             = "AlterIncompatible"
)

// CompileError constructs a KindCompile error with the given code.
func CompileError(code, message string) *Error {
	return NewError(KindCompile, code, message, nil)
}

// LowerError constructs a KindLower error with the given code.
func LowerError(code, message string) *Error {
	return NewError(KindLower, code, message, nil)
}

// IsKind reports whether err (or any error it wraps) is a riftcql *Error of
// the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
