//go:build windows

package materialize

import (
	"os"
)

// createExclusive creates a new file for writing.
// On Windows, O_NOFOLLOW is not available; O_EXCL still refuses an existing
// path, symlink or not.
func createExclusive(path string, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
}
