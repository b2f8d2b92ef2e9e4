// Package spotlight keeps a locally persisted map of repository package
// metadata and derives the "recently updated" and category views from it.
package spotlight

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/blackwell-systems/voidstore/internal/xbps"
)

const (
	// CacheVersion is the on-disk format version. Files with any other
	// version are discarded.
	CacheVersion = 1
	// MaxEntries bounds the number of cached packages.
	MaxEntries = 4096
	// FileName is the cache file name inside the cache directory.
	FileName = "spotlight.json"
)

// Cache is the spotlight metadata map. A zero GeneratedAt means the cache
// has never been refreshed.
type Cache struct {
	GeneratedAt time.Time
	Packages    map[string]xbps.PackageRecord
}

// NewCache returns an empty cache.
func NewCache() Cache {
	return Cache{Packages: make(map[string]xbps.PackageRecord)}
}

// Clone returns a deep copy. Records are values, so copying the map is
// enough.
func (c Cache) Clone() Cache {
	out := Cache{GeneratedAt: c.GeneratedAt, Packages: make(map[string]xbps.PackageRecord, len(c.Packages))}
	for k, v := range c.Packages {
		out.Packages[k] = v
	}
	return out
}

// Len returns the number of cached packages.
func (c Cache) Len() int { return len(c.Packages) }

// Empty reports whether the cache holds no packages.
func (c Cache) Empty() bool { return len(c.Packages) == 0 }

// recencyLess orders records by build date, then first-seen time, both
// newest first, then by name. Unknown dates sort last.
func recencyLess(a, b *xbps.PackageRecord) bool {
	if !a.BuildDate.Equal(b.BuildDate) {
		return a.BuildDate.After(b.BuildDate)
	}
	if !a.FirstSeen.Equal(b.FirstSeen) {
		return a.FirstSeen.After(b.FirstSeen)
	}
	return a.Name < b.Name
}

func sortByRecency(records []xbps.PackageRecord) {
	sort.Slice(records, func(i, j int) bool {
		return recencyLess(&records[i], &records[j])
	})
}

// Prune evicts entries beyond capacity, keeping the most recent by build
// date, then first-seen time, then name. It returns the evicted names.
func Prune(c *Cache, capacity int) []string {
	if len(c.Packages) <= capacity {
		return nil
	}

	entries := make([]xbps.PackageRecord, 0, len(c.Packages))
	for _, rec := range c.Packages {
		entries = append(entries, rec)
	}
	sortByRecency(entries)

	evicted := make([]string, 0, len(entries)-capacity)
	for _, rec := range entries[capacity:] {
		delete(c.Packages, rec.Name)
		evicted = append(evicted, rec.Name)
	}
	return evicted
}

type cacheFile struct {
	Version     uint32      `json:"version"`
	GeneratedAt *string     `json:"generated_at"`
	Packages    []cacheItem `json:"packages"`
}

type cacheItem struct {
	Name        string  `json:"name"`
	Version     string  `json:"version"`
	Description string  `json:"description"`
	Repository  *string `json:"repository"`
	BuildDate   *string `json:"build_date"`
	FirstSeen   *string `json:"first_seen"`
}

// Path returns the cache file path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads the cache at path. A missing, unreadable or malformed file,
// or one written with a different CacheVersion, yields an empty cache.
// Entries without a name are skipped and the result is pruned to
// MaxEntries.
func Load(path string) Cache {
	cache := NewCache()

	data, err := os.ReadFile(path)
	if err != nil {
		return cache
	}

	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return cache
	}
	if file.Version != CacheVersion {
		return cache
	}

	cache.GeneratedAt = parseTime(file.GeneratedAt)
	for _, item := range file.Packages {
		if item.Name == "" {
			continue
		}
		rec := xbps.NewPackageRecord(item.Name, item.Version, item.Description)
		if item.Repository != nil {
			rec.Repository = *item.Repository
		}
		rec.BuildDate = parseTime(item.BuildDate)
		rec.FirstSeen = parseTime(item.FirstSeen)
		cache.Packages[rec.Name] = rec
	}

	Prune(&cache, MaxEntries)
	return cache
}

// Save writes the cache to path as indented JSON, creating the parent
// directory if needed. Packages are written in name order.
func Save(path string, c Cache) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	names := make([]string, 0, len(c.Packages))
	for name := range c.Packages {
		names = append(names, name)
	}
	sort.Strings(names)

	file := cacheFile{
		Version:     CacheVersion,
		GeneratedAt: formatTime(c.GeneratedAt),
		Packages:    make([]cacheItem, 0, len(names)),
	}
	for _, name := range names {
		rec := c.Packages[name]
		item := cacheItem{
			Name:        rec.Name,
			Version:     rec.Version,
			Description: rec.Description,
			BuildDate:   formatTime(rec.BuildDate),
			FirstSeen:   formatTime(rec.FirstSeen),
		}
		if rec.Repository != "" {
			repo := rec.Repository
			item.Repository = &repo
		}
		file.Packages = append(file.Packages, item)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize spotlight cache: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write spotlight cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write spotlight cache: %w", err)
	}
	return nil
}

func parseTime(value *string) time.Time {
	if value == nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func formatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}
