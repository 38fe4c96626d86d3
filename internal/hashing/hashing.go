// Package hashing holds the registry of digest algorithms the ledger knows about.
package hashing

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required for ledgers written by older scanners
)

// Algorithm names as stored in the Algorithm table.
const (
	SHA1         = "SHA1"
	SHA256       = "SHA256"
	SHA384       = "SHA384"
	SHA512       = "SHA512"
	MD5          = "MD5"
	RIPEMD160    = "RIPEMD160"
	MACTripleDES = "MACTripleDES"
)

// ErrUnsupportedAlgorithm is returned for names outside the registry.
var ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

// ErrNotComputable is returned for registered algorithms the producer cannot compute.
// MACTripleDES is keyed, so digests from different runs are not comparable.
var ErrNotComputable = errors.New("hash algorithm cannot be computed")

var constructors = map[string]func() hash.Hash{
	SHA1:         sha1.New,
	SHA256:       sha256.New,
	SHA384:       sha512.New384,
	SHA512:       sha512.New,
	MD5:          md5.New,
	RIPEMD160:    ripemd160.New,
	MACTripleDES: nil,
}

// Names returns the supported algorithm names in seeding order.
func Names() []string {
	return []string{SHA1, SHA256, SHA384, SHA512, MD5, RIPEMD160, MACTripleDES}
}

// Canonical returns the registered spelling of name, matching case-insensitively.
func Canonical(name string) (string, error) {
	for _, n := range Names() {
		if strings.EqualFold(n, name) {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
}

// IsSupported reports whether name is a registered algorithm (exact match).
func IsSupported(name string) bool {
	_, ok := constructors[name]
	return ok
}

// New returns a fresh digest for the named algorithm.
func New(name string) (hash.Hash, error) {
	canonical, err := Canonical(name)
	if err != nil {
		return nil, err
	}
	ctor := constructors[canonical]
	if ctor == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotComputable, canonical)
	}
	return ctor(), nil
}

// Sum reads r to EOF and returns the upper-case hex digest and the number of bytes read.
func Sum(name string, r io.Reader) (string, int64, error) {
	h, err := New(name)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("reading content: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil))), n, nil
}
