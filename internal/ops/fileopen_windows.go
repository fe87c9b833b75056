//go:build windows

package ops

import (
	"os"

	"github.com/hpungsan/mediasync/internal/errors"
)

// openSnapshot opens a snapshot for reading. Windows has no O_NOFOLLOW;
// ValidatePath has already refused symlinks.
func openSnapshot(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, errors.NewInternal(err)
	}
	return f, nil
}
