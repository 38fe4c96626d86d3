package testutil

import (
	"bytes"

	"dupe-go/internal/hashing"
)

// HashHex returns the digest of data in the ledger's format (upper-case hex).
// It panics on an unsupported algorithm.
func HashHex(algorithm string, data []byte) string {
	sum, _, err := hashing.Sum(algorithm, bytes.NewReader(data))
	if err != nil {
		panic(err)
	}
	return sum
}
