package database

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"dupe-go/internal/dupe"
)

// StorageError wraps an engine error with the ledger operation and database
// path it occurred on. Kind is one of the dupe storage sentinels, or nil when
// the engine error does not map to one.
type StorageError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *StorageError) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

// wrapErr returns nil for a nil err and never double wraps.
func wrapErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Path: path, Kind: classify(err), Err: err}
}

func classify(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return nil
	}
	switch sqliteErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return dupe.ErrLocked
	case sqlite3.ErrCantOpen:
		return dupe.ErrMissingFile
	case sqlite3.ErrPerm, sqlite3.ErrReadonly, sqlite3.ErrAuth:
		return dupe.ErrPermission
	case sqlite3.ErrConstraint:
		return dupe.ErrConstraint
	case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
		return dupe.ErrCorrupt
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
