package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	entrySuffix = ".img"
	tempPrefix  = "put-"
)

// diskCache stores raw network responses, one file per URI.
type diskCache struct {
	dir string
}

func newDiskCache(dir string) (*diskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: failed to create disk cache dir: %w", err)
	}
	return &diskCache{dir: dir}, nil
}

func (c *diskCache) path(uri string) string {
	return filepath.Join(c.dir, strconv.FormatUint(xxhash.Sum64String(uri), 16)+entrySuffix)
}

func (c *diskCache) Get(uri string) ([]byte, bool) {
	data, err := os.ReadFile(c.path(uri))
	if err != nil {
		return nil, false
	}
	return data, true
}

// ownedName reports whether name is an entry or temp file written by Put.
func ownedName(name string) bool {
	return strings.HasSuffix(name, entrySuffix) || strings.HasPrefix(name, tempPrefix)
}

// Put writes through a temp file so readers never see a partial entry.
func (c *diskCache) Put(uri string, data []byte) error {
	tmp, err := os.CreateTemp(c.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("engine: failed to write disk cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("engine: failed to write disk cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("engine: failed to write disk cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(uri)); err != nil {
		return fmt.Errorf("engine: failed to write disk cache: %w", err)
	}
	return nil
}

// Clear removes the entries and leftover temp files the cache wrote. Other
// files in the directory are left alone.
func (c *diskCache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("engine: failed to list disk cache: %w", err)
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() || !ownedName(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("engine: failed to clear disk cache: %w", err)
	}
	return nil
}
