//go:build !windows

package materialize

import (
	stderrors "errors"
	"fmt"
	"os"
	"syscall"

	"github.com/hpungsan/gphotosync/internal/errors"
)

// createExclusive creates a new file for writing with O_EXCL|O_NOFOLLOW so a
// planted symlink at the temp name cannot redirect the write. O_CLOEXEC
// prevents FD leaks across exec.
func createExclusive(path string, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, syscall.O_WRONLY|syscall.O_CREAT|syscall.O_EXCL|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	if err != nil {
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, errors.NewInternal(fmt.Errorf("cannot write to symlink %s", path))
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}
