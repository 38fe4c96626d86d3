//go:build !unix

package fs

import (
	"errors"
	"os"
)

// isCrossDevice treats every link error as a possible volume mismatch; the
// copy fallback reports the real cause if it was something else.
func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	return errors.As(err, &linkErr)
}
