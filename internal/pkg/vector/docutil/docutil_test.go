package docutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFiles(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(rel, content string) {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	mustWrite("a.md", "# A")
	mustWrite("nested/b.TXT", "b")
	mustWrite("nested/c.go", "package c")
	mustWrite(".git/d.md", "hidden")

	files, err := FindFiles(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.md"),
		filepath.Join(dir, "nested", "b.TXT"),
	}, files)

	files, err = FindFiles(dir, []string{"go"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "nested", "c.go")}, files)
}

func TestFindFilesMissingDir(t *testing.T) {
	_, err := FindFiles(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}

func TestReadFileContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("内容"), 0o644))

	content, err := ReadFileContent(path)
	require.NoError(t, err)
	assert.Equal(t, "内容", content)

	_, err = ReadFileContent(path + ".missing")
	assert.Error(t, err)
}
