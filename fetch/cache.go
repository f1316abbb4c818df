package fetch

import (
	"io/fs"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/wippyai/engine-bridge/errors"
)

// Cache holds the downloaded asset for the lifetime of a bootstrap context.
// It is filled at most once in the common case; concurrent stores are
// tolerated and the last writer wins, since the content is immutable for a
// given build.
type Cache struct {
	name  string
	entry atomic.Pointer[cacheEntry]
}

type cacheEntry struct {
	data []byte

	once sync.Once
	fsys fs.FS
	err  error
}

// NewCache creates an empty cache. name is the file name under which the
// asset appears in the derived file system.
func NewCache(name string) *Cache {
	return &Cache{name: name}
}

// Name returns the canonical asset file name.
func (c *Cache) Name() string {
	return c.name
}

// Loaded reports whether the cache holds an asset.
func (c *Cache) Loaded() bool {
	return c.entry.Load() != nil
}

// Bytes returns the cached asset, or nil when empty. Callers must not
// modify the returned slice.
func (c *Cache) Bytes() []byte {
	if e := c.entry.Load(); e != nil {
		return e.data
	}
	return nil
}

// Store records data as the cached asset.
func (c *Cache) Store(data []byte) {
	c.entry.Store(&cacheEntry{data: data})
}

// Handle returns a read-only file system containing the asset under
// Name(). The file system is built on first use and reused afterwards.
func (c *Cache) Handle() (fs.FS, error) {
	e := c.entry.Load()
	if e == nil {
		return nil, errors.NotFound(errors.PhaseFetch, "cached asset", c.name)
	}

	e.once.Do(func() {
		mem := afero.NewMemMapFs()
		if err := afero.WriteFile(mem, c.name, e.data, 0o444); err != nil {
			e.err = errors.Wrap(errors.PhaseFetch, errors.KindInvalidData, err, "build asset handle")
			return
		}
		e.fsys = afero.NewIOFS(mem)
	})
	return e.fsys, e.err
}
