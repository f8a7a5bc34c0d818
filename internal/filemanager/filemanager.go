// Package filemanager abstracts the filesystem operations used during capture so
// the orchestration can be exercised without touching disk.
package filemanager

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/daimoniac/scancapture/internal/errors"
	"github.com/otiai10/copy"
)

// MatchFunc selects a walked entry. path uses the host separator.
type MatchFunc func(path string, d fs.DirEntry) bool

// FileManager defines the filesystem operations used by the capture listener
type FileManager interface {
	// WriteContent appends content to path, creating the file and its parents if absent
	WriteContent(path, content string) error

	// CopyDirectory copies the tree under src into dst, merging with existing content
	CopyDirectory(src, dst string) error

	// CopyFile copies src to dst, creating parents and overwriting dst
	CopyFile(src, dst string) error

	// DeleteDirectory removes the tree rooted at path; a missing path is not an error
	DeleteDirectory(path string) error

	// FindFirst walks root at unbounded depth and returns the first entry accepted by match
	FindFirst(root string, match MatchFunc) (string, bool, error)
}

// OS implements FileManager on the local filesystem
type OS struct{}

// New creates a FileManager backed by the local filesystem
func New() *OS {
	return &OS{}
}

func (m *OS) WriteContent(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WrapFS("create parent directories", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.WrapFS("open", path, err)
	}

	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return errors.WrapFS("write", path, err)
	}

	return errors.WrapFS("close", path, f.Close())
}

func (m *OS) CopyDirectory(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return errors.WrapFS("copy directory", src, err)
	}
	if !srcInfo.IsDir() {
		return errors.NewTransientf("copy directory %s: source is not a directory", src)
	}

	if within(src, dst) {
		return errors.NewTransientf("copy directory %s: destination %s is inside the source", src, dst)
	}

	err = copy.Copy(src, dst, copy.Options{
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Shallow
		},
		OnDirExists: func(string, string) copy.DirExistsAction {
			return copy.Merge
		},
	})

	return errors.WrapFS("copy directory", src, err)
}

func (m *OS) CopyFile(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return errors.WrapFS("copy file", src, err)
	}
	if srcInfo.IsDir() {
		return errors.NewTransientf("copy file %s: source is a directory", src)
	}

	err = copy.Copy(src, dst, copy.Options{
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Deep
		},
	})

	return errors.WrapFS("copy file", src, err)
}

func (m *OS) DeleteDirectory(path string) error {
	return errors.WrapFS("delete directory", path, os.RemoveAll(path))
}

func (m *OS) FindFirst(root string, match MatchFunc) (string, bool, error) {
	var found string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if match(path, d) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", false, errors.WrapFS("find", root, err)
	}

	return found, found != "", nil
}

func within(parent, child string) bool {
	p, err := filepath.Abs(parent)
	if err != nil {
		return false
	}
	c, err := filepath.Abs(child)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(p, c)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// IsRegularFile is a MatchFunc helper for callers that only want plain files
func IsRegularFile(d fs.DirEntry) bool {
	return d != nil && d.Type().IsRegular()
}
