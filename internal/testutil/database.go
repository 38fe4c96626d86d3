package testutil

import (
	"testing"

	"dupe-go/internal/database"
)

// NewTestLedger creates a new in-memory ledger with schema and algorithms applied.
// The ledger is automatically closed when the test completes.
func NewTestLedger(t *testing.T) *database.SQLiteLedger {
	t.Helper()

	l, err := database.NewSQLiteLedger(database.MemoryPath, nil, database.Options{})
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}

	t.Cleanup(func() {
		l.Close()
	})

	return l
}
