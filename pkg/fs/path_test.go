package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandConfigDir(t *testing.T) {
	home, err := GetUserPath()
	require.NoError(t, err)

	got, err := ExpandConfigDir("~")
	require.NoError(t, err)
	assert.Equal(t, home, got)

	got, err = ExpandConfigDir("~/.nodepack")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".nodepack"), got)

	got, err = ExpandConfigDir("")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	got, err = ExpandConfigDir("relative/dir")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir, 0700))
	require.NoError(t, EnsureDir(dir, 0755))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm()&0700)

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0600))
	assert.Error(t, EnsureDir(file, 0700))
}

func TestEnsureParentDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "log", "nodepack.log")
	require.NoError(t, EnsureParentDir(file, 0700))

	info, err := os.Stat(filepath.Dir(file))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	_, err = os.Stat(file)
	assert.True(t, os.IsNotExist(err))
}
