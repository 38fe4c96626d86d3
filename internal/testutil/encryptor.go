package testutil

import (
	"dupe-go/internal/dupe"
	"dupe-go/internal/encryption"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() dupe.Encryptor {
	return encryption.NewTestEncryptor()
}
