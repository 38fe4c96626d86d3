package dupe

import (
	"database/sql"
	"strings"
	"time"

	"dupe-go/internal/filter"
)

// HashObservation is one FileHash row: the outcome of hashing a path once.
// An invalid Hash records a failed attempt.
type HashObservation struct {
	ID          int64
	Hash        sql.NullString
	Algorithm   string
	FilePath    string
	FileSize    int64
	ProcessedAt time.Time
}

// MovedRecord is one MovedFile row. An invalid DestinationPath records a
// relocation that was attempted and failed.
type MovedRecord struct {
	ID              int64
	Hash            string
	Algorithm       string
	SourcePath      string
	DestinationPath sql.NullString
	Timestamp       time.Time
}

// DuplicateGroup is a set of live observations sharing (Hash, Algorithm).
// It is derived by the ledger and never stored.
//
// FilePaths is exact for GetFileHashes. Groups from FindDuplicateGroups split
// the newline-joined column, so a path containing a newline shows up as two
// entries there; the resolver reads members through FindGroupMembers instead.
type DuplicateGroup struct {
	Hash           string
	Algorithm      string
	FilePaths      []string
	FileCount      int
	MaxFileSize    int64
	MinProcessedAt time.Time
	MaxProcessedAt time.Time
	RecordCount    int
}

// GroupMember is one live path of a duplicate group as seen by the resolver.
type GroupMember struct {
	ID          int64
	FilePath    string
	FileSize    int64
	ProcessedAt time.Time
}

// OrderKey selects how duplicate groups are ordered during a resolve run.
type OrderKey string

const (
	OrderByFilePaths         OrderKey = "FilePaths"
	OrderByEarliestProcessed OrderKey = "EarliestProcessed"
	OrderByLatestProcessed   OrderKey = "LatestProcessed"
)

// ParseOrderKey validates an order key name (case-insensitive).
func ParseOrderKey(s string) (OrderKey, error) {
	for _, k := range []OrderKey{OrderByFilePaths, OrderByEarliestProcessed, OrderByLatestProcessed} {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", invalidOption("order key", s)
}

// DuplicateQuery describes the resolver's group enumeration.
type DuplicateQuery struct {
	Algorithm string
	// RowFilters apply to observations before grouping, GroupFilters to the
	// aggregated groups.
	RowFilters   filter.Compiled
	GroupFilters filter.Compiled
	OrderBy      OrderKey
	Descending   bool
	// Reprocess includes paths that already have MovedFile records and counts
	// every row rather than distinct unmoved paths.
	Reprocess bool
}

// MemberQuery describes the fetch of one group's members.
type MemberQuery struct {
	Hash      string
	Algorithm string
	Filters   filter.Compiled
	Reprocess bool
}
