package render

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// backupChanged preserves the previous version of path as path.bak when the
// content about to be written differs from it. The first render of a file
// makes no backup. One backup is kept; a later change overwrites it.
func backupChanged(fs afero.Fs, path string, next []byte) (bool, error) {
	prev, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s for backup: %w", path, err)
	}
	if bytes.Equal(prev, next) {
		return false, nil
	}
	if err := afero.WriteFile(fs, path+".bak", prev, 0o644); err != nil {
		return false, fmt.Errorf("back up %s: %w", path, err)
	}
	return true, nil
}
