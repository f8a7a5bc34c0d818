package filemanager

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/daimoniac/scancapture/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read %s", path)
	return string(data)
}

func TestWriteContent_AppendsAndCreatesParents(t *testing.T) {
	m := New()
	path := filepath.Join(t.TempDir(), "a", "b", "build.txt")

	require.NoError(t, m.WriteContent(path, "PR_NUMBER=1\n"))
	require.NoError(t, m.WriteContent(path, "PR_NUMBER=1\n"))

	assert.Equal(t, "PR_NUMBER=1\nPR_NUMBER=1\n", readFile(t, path))
}

func TestCopyDirectory(t *testing.T) {
	m := New()
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")

	writeFile(t, filepath.Join(src, "3.16", "previous", "abc", "scan.scan"), "scan")
	writeFile(t, filepath.Join(src, "top.txt"), "top")
	writeFile(t, filepath.Join(dst, "existing.txt"), "keep")
	writeFile(t, filepath.Join(dst, "top.txt"), "stale")

	require.NoError(t, m.CopyDirectory(src, dst))

	assert.Equal(t, "scan", readFile(t, filepath.Join(dst, "3.16", "previous", "abc", "scan.scan")))
	assert.Equal(t, "top", readFile(t, filepath.Join(dst, "top.txt")), "existing files are overwritten")
	assert.Equal(t, "keep", readFile(t, filepath.Join(dst, "existing.txt")), "unrelated files are kept")
	assert.Equal(t, "top", readFile(t, filepath.Join(src, "top.txt")), "source must be untouched")
}

func TestCopyDirectory_KeepsSymlinks(t *testing.T) {
	m := New()
	root := t.TempDir()
	src := filepath.Join(root, "src")
	writeFile(t, filepath.Join(src, "target.txt"), "t")
	require.NoError(t, os.Symlink("target.txt", filepath.Join(src, "link.txt")))

	dst := filepath.Join(root, "dst")
	require.NoError(t, m.CopyDirectory(src, dst))

	link, err := os.Readlink(filepath.Join(dst, "link.txt"))
	require.NoError(t, err)
	assert.Equal(t, "target.txt", link)
}

func TestCopyDirectory_Errors(t *testing.T) {
	m := New()
	root := t.TempDir()

	err := m.CopyDirectory(filepath.Join(root, "missing"), filepath.Join(root, "dst"))
	assert.True(t, stderrors.Is(err, errors.ErrNotFound), "missing source: %v", err)

	writeFile(t, filepath.Join(root, "file.txt"), "x")
	assert.Error(t, m.CopyDirectory(filepath.Join(root, "file.txt"), filepath.Join(root, "dst")), "source is a file")

	src := filepath.Join(root, "src")
	writeFile(t, filepath.Join(src, "a.txt"), "a")
	assert.Error(t, m.CopyDirectory(src, filepath.Join(src, "nested")), "destination inside the source")
}

func TestCopyFile(t *testing.T) {
	m := New()
	root := t.TempDir()
	src := filepath.Join(root, "metadata", "run.txt")
	dst := filepath.Join(root, "copy", "metadata", "scan.txt")

	writeFile(t, src, "PR_NUMBER=7\n")
	writeFile(t, dst, "stale content that is longer\n")

	require.NoError(t, m.CopyFile(src, dst))
	assert.Equal(t, "PR_NUMBER=7\n", readFile(t, dst))

	fresh := filepath.Join(root, "new", "parents", "scan.txt")
	require.NoError(t, m.CopyFile(src, fresh))
	assert.Equal(t, "PR_NUMBER=7\n", readFile(t, fresh))
}

func TestCopyFile_Errors(t *testing.T) {
	m := New()
	root := t.TempDir()

	err := m.CopyFile(filepath.Join(root, "nope.txt"), filepath.Join(root, "dst.txt"))
	assert.True(t, errors.IsTransient(err), "missing source: %v", err)
	assert.True(t, stderrors.Is(err, errors.ErrNotFound), "missing source: %v", err)

	assert.Error(t, m.CopyFile(root, filepath.Join(root, "dst.txt")), "source is a directory")
}

func TestDeleteDirectory(t *testing.T) {
	m := New()
	dir := filepath.Join(t.TempDir(), "build-scan-data")
	writeFile(t, filepath.Join(dir, "x", "y.txt"), "y")

	require.NoError(t, m.DeleteDirectory(dir))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "directory should be removed, stat err = %v", err)

	assert.NoError(t, m.DeleteDirectory(dir), "deleting a missing directory should succeed")
}

func TestFindFirst(t *testing.T) {
	m := New()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "other.txt"), "")
	writeFile(t, filepath.Join(root, "b", "c", "d", "scan.scan"), "")
	writeFile(t, filepath.Join(root, "e", "scan.scan"), "")

	visited := 0
	path, ok, err := m.FindFirst(root, func(path string, d fs.DirEntry) bool {
		visited++
		return IsRegularFile(d) && strings.HasSuffix(path, "scan.scan")
	})
	require.NoError(t, err)
	require.True(t, ok)
	// WalkDir visits in lexical order, so b/ is reached before e/
	assert.Equal(t, filepath.Join(root, "b", "c", "d", "scan.scan"), path)

	total := 0
	_, _, _ = m.FindFirst(root, func(string, fs.DirEntry) bool {
		total++
		return false
	})
	assert.Less(t, visited, total, "walk should stop at the first match")
}

func TestFindFirst_NoMatch(t *testing.T) {
	m := New()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "")

	path, ok, err := m.FindFirst(root, func(string, fs.DirEntry) bool { return false })
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, path)

	_, _, err = m.FindFirst(filepath.Join(root, "missing"), func(string, fs.DirEntry) bool { return true })
	assert.True(t, stderrors.Is(err, errors.ErrNotFound), "missing root: %v", err)
}
