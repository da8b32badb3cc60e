package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// CopyFile copies a file from source to destination, creating the destination directory if needed.
func CopyFile(t *testing.T, src, dst string) {
	t.Helper()

	data, err := os.ReadFile(src)
	require.NoError(t, err, "Setup: could not read %s", src)
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0750), "Setup: could not create destination directory")
	require.NoError(t, os.WriteFile(dst, data, 0600), "Setup: could not write %s", dst)
}

// ReplaceFile atomically replaces dst with the given content, so that watchers see a single change.
func ReplaceFile(t *testing.T, dst string, data []byte) {
	t.Helper()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "replace-*.tmp")
	require.NoError(t, err, "Setup: could not create temporary file")
	_, err = tmp.Write(data)
	require.NoError(t, err, "Setup: could not write temporary file")
	require.NoError(t, tmp.Close(), "Setup: could not close temporary file")
	require.NoError(t, os.Rename(tmp.Name(), dst), "Setup: could not replace %s", dst)
}
