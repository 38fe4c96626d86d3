package dupe

import "io"

// Vault stores ledger snapshots away from the machine being deduplicated.
// All operations stream so large ledgers are never held in memory by callers.
type Vault interface {
	// PutSnapshot stores a named snapshot. size is the number of bytes that
	// will be read from r. version is stored alongside for freshness checks.
	PutSnapshot(name string, r io.Reader, size int64, version int64) error

	// GetSnapshot writes the named snapshot to w.
	GetSnapshot(name string, w io.Writer) error

	// GetSnapshotVersion returns the stored version, or 0 if there is none.
	GetSnapshotVersion(name string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
