package dupe

import (
	"database/sql"
	"time"

	"dupe-go/internal/filter"
)

// Ledger is the persistent record of hash observations and relocations.
// Implementations own the schema and derive duplicate groups from it.
type Ledger interface {
	// EnsureSchema creates tables, indexes and the DeduplicatedFile view if
	// they are absent. It is a no-op on an up-to-date database.
	EnsureSchema() error

	// EnsureAlgorithms seeds the algorithm registry. Names inserted
	// concurrently by another writer are not an error.
	EnsureAlgorithms() error

	// LogFileHash records an observation for filePath unless the path is
	// already in the ledger, in which case it silently does nothing.
	// An invalid hash records a failed attempt.
	LogFileHash(hash sql.NullString, algorithm, filePath string, fileSize int64, processedAt time.Time) error

	// LogMovedFile records a relocation of sourcePath and removes its
	// observation. An invalid destinationPath records a failed relocation.
	// Returns ErrUnknownSource if sourcePath has no observation row.
	LogMovedFile(hash, algorithm, sourcePath string, destinationPath sql.NullString, timestamp time.Time) error

	// CorrectFailedFileHash replaces the failed observations of filePath with
	// a successful one. It does nothing if the path already has a hash.
	CorrectFailedFileHash(hash, algorithm, filePath string, fileSize int64, processedAt time.Time) (bool, error)

	// GetFailedFilePaths returns, ordered by path, every path whose
	// observations all lack a hash.
	GetFailedFilePaths() ([]string, error)

	// GetFileHashes returns rows of the DeduplicatedFile view constrained by
	// group-scope filters. A limit of -1 returns every row.
	GetFileHashes(limit int, filters filter.Compiled) ([]*DuplicateGroup, error)

	// FileExistsInDatabase reports whether filePath has a live observation,
	// one not superseded by a MovedFile record.
	FileExistsInDatabase(filePath string) (bool, error)

	// HasObservation reports whether filePath has any observation row,
	// including one left behind by a relocation.
	HasObservation(filePath string) (bool, error)

	// FindDuplicateGroups enumerates the groups a resolve run will visit.
	FindDuplicateGroups(q DuplicateQuery) ([]*DuplicateGroup, error)

	// FindGroupMembers returns the members of one group in insertion order.
	FindGroupMembers(q MemberQuery) ([]*GroupMember, error)

	// GetMovedFiles returns the most recent relocation records, newest first.
	GetMovedFiles(limit int) ([]*MovedRecord, error)

	// BackupTo writes a consistent copy of the ledger to destPath.
	BackupTo(destPath string) error

	// Close releases the underlying connection.
	Close() error
}
