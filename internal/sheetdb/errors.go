package sheetdb

import (
	"errors"
	"fmt"
)

// Kind classifies a Error by failure category.
type Kind int

const (
	KindSqlite Kind = iota
	KindIO
	KindSerde
	KindStructureChanged
	KindTableNotFound
	KindInvalidMetadata
	KindMigrationFailed
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindSqlite:
		return "sqlite"
	case KindIO:
		return "io"
	case KindSerde:
		return "serde_json"
	case KindStructureChanged:
		return "structure_changed"
	case KindTableNotFound:
		return "table_not_found"
	case KindInvalidMetadata:
		return "invalid_metadata"
	case KindMigrationFailed:
		return "migration_failed"
	default:
		return "other"
	}
}

// Error is the engine's single error type. Every failure surfaced by
// sheetdb carries a Kind so callers can branch on category without
// string matching.
type Error struct {
	Kind  Kind
	Msg   string
	Path  string
	Cause error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Cause != nil {
		if msg == "" {
			msg = e.Cause.Error()
		} else {
			msg = fmt.Sprintf("%s: %s", msg, e.Cause.Error())
		}
	}
	if e.Path != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Path, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same Kind, so callers
// can use errors.Is(err, &sheetdb.Error{Kind: sheetdb.KindTableNotFound}).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func Sqlite(cause error) error {
	return &Error{Kind: KindSqlite, Cause: cause}
}

func IOErr(cause error) error {
	return &Error{Kind: KindIO, Cause: cause}
}

func SerdeErr(path string, cause error) error {
	return &Error{Kind: KindSerde, Path: path, Cause: cause}
}

func StructureChanged(msg string, args ...any) error {
	return &Error{Kind: KindStructureChanged, Msg: fmt.Sprintf(msg, args...)}
}

func TableNotFound(name string) error {
	return &Error{Kind: KindTableNotFound, Msg: "table not found", Path: name}
}

func InvalidMetadata(msg string, args ...any) error {
	return &Error{Kind: KindInvalidMetadata, Msg: fmt.Sprintf(msg, args...)}
}

func MigrationFailed(msg string, args ...any) error {
	return &Error{Kind: KindMigrationFailed, Msg: fmt.Sprintf(msg, args...)}
}

func Other(msg string, args ...any) error {
	return &Error{Kind: KindOther, Msg: fmt.Sprintf(msg, args...)}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
