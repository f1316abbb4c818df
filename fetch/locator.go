package fetch

import (
	"io/fs"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// MemoryScheme prefixes locations served from the Cache.
const MemoryScheme = "mem:"

// Location is where a requested engine file can be read from. FS is set
// when the file is served from memory; the file is then FS's Name entry.
type Location struct {
	URL  string
	FS   fs.FS
	Name string
}

// Cached reports whether the location is backed by the in-memory cache.
func (l Location) Cached() bool {
	return l.FS != nil
}

// Locator maps file names requested by the engine to locations. Every name
// matching Pattern refers to the single canonical asset so all variants
// share one cached copy.
type Locator struct {
	Pattern   *regexp.Regexp
	Canonical string
	// CDNURL is the direct asset URL; empty when no CDN is configured.
	CDNURL string
	Cache  *Cache
}

// Locate resolves name relative to engineDir, which must end in a slash.
func (l *Locator) Locate(name, engineDir string) Location {
	return l.locate(name, engineDir, true)
}

// Remote resolves name like Locate but never answers from the cache. It is
// used for consumers in another process, which cannot share memory.
func (l *Locator) Remote(name, engineDir string) Location {
	return l.locate(name, engineDir, false)
}

// IsAsset reports whether name refers to the data asset.
func (l *Locator) IsAsset(name string) bool {
	return l.Pattern != nil && l.Pattern.MatchString(name)
}

func (l *Locator) locate(name, engineDir string, useCache bool) Location {
	if !l.IsAsset(name) {
		return Location{URL: engineDir + name, Name: name}
	}

	if useCache && l.Cache != nil && l.Cache.Loaded() {
		fsys, err := l.Cache.Handle()
		if err == nil {
			Logger().Debug("serving asset from memory",
				zap.String("requested", name),
				zap.Int("size", len(l.Cache.Bytes())),
			)
			return Location{URL: MemoryScheme + l.Cache.Name(), FS: fsys, Name: l.Cache.Name()}
		}
		Logger().Warn("asset handle unavailable", zap.Error(err))
	}

	if l.CDNURL != "" {
		return Location{URL: l.CDNURL, Name: l.Canonical}
	}
	return Location{URL: engineDir + l.Canonical, Name: l.Canonical}
}

// DirOf returns the directory part of url including the trailing slash.
func DirOf(url string) string {
	return url[:strings.LastIndex(url, "/")+1]
}
