//go:build windows

package journal

import (
	"os"

	"github.com/hpungsan/momentum/internal/errors"
)

// openNoFollow is a plain open here; symlink rejection relies on ValidatePath.
func openNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	f, err := os.OpenFile(path, flag, perm)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFound("file", path)
	}
	return f, err
}
