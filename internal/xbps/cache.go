package xbps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultPackageCache is where xbps keeps downloaded package files.
const DefaultPackageCache = "/var/cache/xbps"

// DefaultCacheKeep is how many versions of each package CleanCache keeps.
const DefaultCacheKeep = 2

// maxRemoveArgs bounds the number of files handed to one rm invocation.
const maxRemoveArgs = 100

// ErrCacheLocked is returned by CleanCache while another xbps process may
// be using the cache.
var ErrCacheLocked = errors.New("package cache is in use by another xbps process, try again later")

// CachedPackage is one package file in the xbps cache.
type CachedPackage struct {
	Path    string
	Name    string
	ModTime time.Time
	Size    int64
}

// CachedPackageName extracts the package name from a cache file name such
// as "gtk4-devel-1.2.3_1.x86_64.xbps". The version starts at the last
// hyphen followed by a digit.
func CachedPackageName(filename string) (string, bool) {
	base, ok := strings.CutSuffix(filename, ".xbps")
	if !ok {
		return "", false
	}
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	for i := len(base) - 1; i >= 2; i-- {
		if base[i-1] == '-' && base[i] >= '0' && base[i] <= '9' {
			return base[:i-1], true
		}
	}
	return "", false
}

// ListCachedPackages returns the package files in dir. A missing directory
// holds no packages.
func ListCachedPackages(dir string) ([]CachedPackage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read package cache: %w", err)
	}

	var files []CachedPackage
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := CachedPackageName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, CachedPackage{
			Path:    filepath.Join(dir, entry.Name()),
			Name:    name,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	return files, nil
}

// SelectObsolete returns the files to delete so that at most keep files,
// the newest by modification time, remain for each package. keep below 1
// is treated as 1.
func SelectObsolete(files []CachedPackage, keep int) []CachedPackage {
	if keep < 1 {
		keep = 1
	}
	byName := make(map[string][]CachedPackage)
	for _, f := range files {
		byName[f.Name] = append(byName[f.Name], f)
	}

	var obsolete []CachedPackage
	for _, versions := range byName {
		if len(versions) <= keep {
			continue
		}
		sort.Slice(versions, func(i, j int) bool {
			return versions[i].ModTime.After(versions[j].ModTime)
		})
		obsolete = append(obsolete, versions[keep:]...)
	}
	sort.Slice(obsolete, func(i, j int) bool { return obsolete[i].Path < obsolete[j].Path })
	return obsolete
}

// CacheLocked reports whether an xbps process that may touch the cache is
// running. A pgrep that cannot run counts as unlocked.
func (c *Client) CacheLocked(ctx context.Context) bool {
	result, err := c.runner.Output(ctx, nil, "pgrep", "-x", "xbps-install|xbps-remove|xbps-pkgdb")
	return err == nil && result.Success() && strings.TrimSpace(result.Stdout) != ""
}

// CleanCache deletes cached package files, keeping the newest versions of
// each package. Files are removed through the privilege wrapper.
func (c *Client) CleanCache(ctx context.Context) (CommandResult, error) {
	if c.CacheLocked(ctx) {
		return CommandResult{}, ErrCacheLocked
	}
	dir := c.tools.PackageCache
	if dir == "" {
		dir = DefaultPackageCache
	}
	keep := c.tools.CacheKeep
	if keep <= 0 {
		keep = DefaultCacheKeep
	}

	files, err := ListCachedPackages(dir)
	if err != nil {
		return CommandResult{}, err
	}
	obsolete := SelectObsolete(files, keep)
	if len(obsolete) == 0 {
		return CommandResult{Stdout: "No obsolete packages in the cache.\n"}, nil
	}

	paths := make([]string, len(obsolete))
	var freed uint64
	for i, f := range obsolete {
		paths[i] = f.Path
		freed += uint64(f.Size)
	}

	var out CommandResult
	for start := 0; start < len(paths); start += maxRemoveArgs {
		end := min(start+maxRemoveArgs, len(paths))
		res, err := c.privileged(ctx, "rm", append([]string{"-f"}, paths[start:end]...)...)
		out.Stdout += res.Stdout
		out.Stderr += res.Stderr
		if err != nil {
			return out, err
		}
		if !res.Success() {
			out.ExitCode = res.ExitCode
			return out, nil
		}
	}

	noun := "files"
	if len(obsolete) == 1 {
		noun = "file"
	}
	out.Stdout += fmt.Sprintf("Removed %d cached package %s, freed %s.\n", len(obsolete), noun, FormatSize(freed))
	return out, nil
}
