package testutil

import (
	"dupe-go/internal/dupe"
	"dupe-go/internal/vault"
)

// NewTestVault creates a new in-memory snapshot vault for testing.
func NewTestVault() dupe.Vault {
	return vault.NewMemoryVault("test-vault")
}
