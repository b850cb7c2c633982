// Package terr defines thunder's error taxonomy: a single Kind enumeration
// plus a wrapping Error type that carries context and an optional cause.
// Every error thunder returns is either one of these or wraps one, so
// callers can dispatch with errors.Is/errors.As regardless of which layer
// produced it.
package terr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a thunder error.
type Kind int

const (
	// I/O & OS
	KindFileOpen Kind = iota
	KindFileRead
	KindFileWrite
	KindFileSeek
	KindFileSync
	KindFileMetadata

	// Invariant/format
	KindCorrupted
	KindInvalidMetaPage
	KindBothMetaPagesInvalid
	KindWALRecordInvalid
	KindEntryReadFailed

	// Semantic
	KindKeyNotFound
	KindTxClosed
	KindTxCommitFailed
	KindGroupCommitFailed
	KindBucketNotFound
	KindBucketAlreadyExists
	KindInvalidBucketName
)

var kindNames = map[Kind]string{
	KindFileOpen:             "file open",
	KindFileRead:             "file read",
	KindFileWrite:            "file write",
	KindFileSeek:             "file seek",
	KindFileSync:             "file sync",
	KindFileMetadata:         "file metadata",
	KindCorrupted:            "corrupted",
	KindInvalidMetaPage:      "invalid meta page",
	KindBothMetaPagesInvalid: "both meta pages invalid",
	KindWALRecordInvalid:     "invalid wal record",
	KindEntryReadFailed:      "entry read failed",
	KindKeyNotFound:          "key not found",
	KindTxClosed:             "transaction closed",
	KindTxCommitFailed:       "transaction commit failed",
	KindGroupCommitFailed:    "group commit failed",
	KindBucketNotFound:       "bucket not found",
	KindBucketAlreadyExists:  "bucket already exists",
	KindInvalidBucketName:    "invalid bucket name",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown error kind"
}

// Error is thunder's wrapped error type: a Kind plus human context and an
// optional underlying cause.
type Error struct {
	Kind    Kind
	Context string
	Offset  int64 // byte offset, -1 if not applicable
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Context != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Context)
	}
	if e.Offset >= 0 {
		msg = fmt.Sprintf("%s (offset %d)", msg, e.Offset)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, terr.New(kind, "")) style comparisons against
// another *Error by Kind alone, ignoring context/cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// New constructs an *Error with no offset and no cause.
func New(kind Kind, context string) *Error {
	return &Error{Kind: kind, Context: context, Offset: -1}
}

// Wrap constructs an *Error that wraps cause.
func Wrap(kind Kind, context string, cause error) *Error {
	return &Error{Kind: kind, Context: context, Offset: -1, Cause: cause}
}

// WrapAt is Wrap plus a byte offset, used for positional corruption reports.
func WrapAt(kind Kind, context string, offset int64, cause error) *Error {
	return &Error{Kind: kind, Context: context, Offset: offset, Cause: cause}
}

// Sentinel errors for kinds that carry no useful context beyond their kind,
// so callers can write `errors.Is(err, terr.ErrKeyNotFound)` directly.
var (
	ErrKeyNotFound       = New(KindKeyNotFound, "")
	ErrTxClosed          = New(KindTxClosed, "")
	ErrBucketNotFound    = New(KindBucketNotFound, "")
	ErrBucketExists      = New(KindBucketAlreadyExists, "")
	ErrInvalidBucketName = New(KindInvalidBucketName, "")
)

// Is reports whether err is, or wraps, an *Error of kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
