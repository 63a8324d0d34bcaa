// Package artifacts manages the flat on-disk directory of cached Opus files.
// Artifacts are created by the fetch worker, read by the streaming handlers,
// and deleted only by the eviction sweep. Names are opaque basenames; every
// entry point revalidates that a name cannot escape the directory.
package artifacts

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"trackcache/internal/domain"
)

type Dir struct {
	root string
}

// New cleans and absolutizes the configured path and creates the directory
// if it does not exist yet.
func New(path string) (*Dir, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("artifact dir is required")
	}
	cleaned := filepath.Clean(trimmed)
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Dir{root: abs}, nil
}

func (d *Dir) Root() string {
	return d.root
}

// Resolve maps an artifact name to its absolute path. The name must be a
// pure basename and the joined path must stay inside the directory;
// violations return domain.ErrUnsafeName.
func (d *Dir) Resolve(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", domain.ErrUnsafeName
	}
	joined := filepath.Clean(filepath.Join(d.root, name))
	if joined == d.root || !strings.HasPrefix(joined, d.root+string(filepath.Separator)) {
		return "", domain.ErrUnsafeName
	}
	return joined, nil
}

// Exists reports whether the named artifact is present as a regular file.
// Unsafe names count as absent.
func (d *Dir) Exists(name string) bool {
	path, err := d.Resolve(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (d *Dir) Size(name string) (int64, error) {
	path, err := d.Resolve(name)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}

func (d *Dir) Remove(name string) error {
	path, err := d.Resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

// Rename moves a file produced elsewhere (the extractor's reported output)
// to its final artifact name and returns the resolved destination.
func (d *Dir) Rename(srcPath, name string) (string, error) {
	dst, err := d.Resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.Rename(srcPath, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// TempBase returns an absolute path stem inside the directory for extractor
// output templates. The stem goes through the same name validation as
// artifacts.
func (d *Dir) TempBase(stem string) (string, error) {
	return d.Resolve(stem)
}

// TotalSize sums the sizes of the regular files directly in the directory.
// The directory is flat; anything else in it is ignored.
func (d *Dir) TotalSize() (int64, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
