package peerstream

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "table", "a.db"), []byte("aaaa"))
	writeFile(t, filepath.Join(root, "table", "nested", "b.db"), []byte("bb"))
	writeFile(t, filepath.Join(root, "single.log"), []byte("x"))

	files, err := CollectFiles([]string{filepath.Join(root, "table"), filepath.Join(root, "single.log")})
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"single.log", "table/a.db", "table/nested/b.db"}, names)
	assert.Equal(t, int64(7), TotalSize(files))
}

func TestCollectFiles_Errors(t *testing.T) {
	root := t.TempDir()
	_, err := CollectFiles([]string{filepath.Join(root, "missing")})
	require.Error(t, err)

	writeFile(t, filepath.Join(root, "x", "dup.db"), nil)
	writeFile(t, filepath.Join(root, "y", "dup.db"), nil)
	_, err = CollectFiles([]string{filepath.Join(root, "x", "dup.db"), filepath.Join(root, "y", "dup.db")})
	require.Error(t, err)
}

func TestLocalPath(t *testing.T) {
	dir := t.TempDir()

	p, err := localPath(dir, "ks/table/data.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ks", "table", "data.db"), p)

	for _, bad := range []string{"", "../escape", "/etc/passwd", "a/../../b"} {
		_, err := localPath(dir, bad)
		assert.Error(t, err, bad)
	}
	_, err = os.Stat(dir)
	require.NoError(t, err)
}
