//go:build !windows

package journal

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/hpungsan/momentum/internal/errors"
)

// openNoFollow refuses a symlink as the last element of path; ValidatePath
// has already checked the parents.
func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	switch {
	case err == nil:
		return os.NewFile(uintptr(fd), path), nil
	case stderrors.Is(err, syscall.ELOOP):
		return nil, errors.NewInvalidRequest("refusing to follow symlink at " + path)
	case stderrors.Is(err, syscall.ENOENT):
		return nil, errors.NewNotFound("file", path)
	default:
		return nil, err
	}
}
