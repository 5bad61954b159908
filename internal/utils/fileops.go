package utils

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// RunIDFormat is the layout of run directory names, e.g. 20200331051410
const RunIDFormat = "20060102150405"

// EnsureDir ensures a directory exists, creating it if necessary
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// WriteFileAtomic streams r into path through a temporary file in the same
// directory, renaming it into place once fully written. The number of bytes
// written is returned.
func WriteFileAtomic(path string, r io.Reader, perm os.FileMode) (int64, error) {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".part-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return n, err
	}

	// Sync to disk before the rename makes the file visible
	if err := tmp.Sync(); err != nil {
		cleanup()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return n, err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return n, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return n, err
	}
	return n, nil
}

// FileSize returns the size of the file at path, or 0 if it does not exist
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

// LocalPath maps an index Filename such as "./debs/foo.deb" to a path
// under root. Filenames that would resolve outside root are rejected.
func LocalPath(root, filename string) (string, error) {
	rel := path.Clean(strings.TrimPrefix(filename, "./"))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return "", fmt.Errorf("unsafe filename %q", filename)
	}
	return filepath.Join(root, filepath.FromSlash(rel)), nil
}

// RemoteURL joins a repository base URL and an index Filename
func RemoteURL(baseURL, filename string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(strings.TrimPrefix(filename, "./"), "/")
}

// RunID formats t as a run directory name in loc
func RunID(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(RunIDFormat)
}
