package render

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestBackupChanged(t *testing.T) {
	fs := afero.NewMemMapFs()
	const path = "/etc/containerd/config.toml"

	// No existing file: nothing to back up.
	made, err := backupChanged(fs, path, []byte("v1"))
	require.NoError(t, err)
	require.False(t, made)

	require.NoError(t, afero.WriteFile(fs, path, []byte("v1"), 0o644))

	// Identical content: still nothing.
	made, err = backupChanged(fs, path, []byte("v1"))
	require.NoError(t, err)
	require.False(t, made)
	exists, err := afero.Exists(fs, path+".bak")
	require.NoError(t, err)
	require.False(t, exists)

	// Changed content preserves the old version.
	made, err = backupChanged(fs, path, []byte("v2"))
	require.NoError(t, err)
	require.True(t, made)
	data, err := afero.ReadFile(fs, path+".bak")
	require.NoError(t, err)
	require.Equal(t, "v1", string(data))
}
