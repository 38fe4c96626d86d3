package dupe

import (
	"errors"
	"fmt"
)

// Storage error kinds. Ledger implementations wrap engine errors so that
// errors.Is matches one of these.
var (
	ErrLocked      = errors.New("database is locked")
	ErrMissingFile = errors.New("database file is missing or cannot be opened")
	ErrPermission  = errors.New("permission denied")
	ErrConstraint  = errors.New("constraint violation")
	ErrCorrupt     = errors.New("database is corrupt")
)

// ErrUnknownSource is returned by LogMovedFile when the source path has no
// observation in the ledger.
var ErrUnknownSource = errors.New("source path is not in the ledger")

// ErrInvalidOption is returned when a resolve or scan option fails validation.
var ErrInvalidOption = errors.New("invalid option")

func invalidOption(what, value string) error {
	return fmt.Errorf("%w: unknown %s %q", ErrInvalidOption, what, value)
}

// ErrSnapshotNotFound is returned by a Vault when no snapshot has the
// requested name.
var ErrSnapshotNotFound = errors.New("snapshot not found")
