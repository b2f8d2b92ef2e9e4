package spotlight

import (
	"context"
	"time"

	"github.com/blackwell-systems/voidstore/internal/logger"
	"github.com/blackwell-systems/voidstore/internal/xbps"
)

const (
	// WindowDays is the width of the recency window.
	WindowDays = 7
	// RecentLimit caps the recency view.
	RecentLimit = 25
	// RefreshInterval is how old a cache may get before a refresh is due.
	RefreshInterval = 24 * time.Hour
)

// Outcome is the result of a successful refresh.
type Outcome struct {
	Cache       Cache
	Recent      []xbps.PackageRecord
	Categories  map[Category][]xbps.PackageRecord
	RefreshedAt time.Time
	// PersistErr is set when the refreshed cache could not be saved. The
	// refresh itself still counts as successful.
	PersistErr error
}

// Merge folds remote metadata into c. A changed version moves the old one
// into PreviousVersion; FirstSeen is only set once; a known build date is
// only replaced by a newer report that carries one.
func Merge(c *Cache, remote []RemoteMetadata, now time.Time) {
	if c.Packages == nil {
		c.Packages = make(map[string]xbps.PackageRecord, len(remote))
	}
	for _, r := range remote {
		if r.Name == "" {
			continue
		}

		rec, ok := c.Packages[r.Name]
		if !ok {
			rec = xbps.NewPackageRecord(r.Name, r.Version, r.Description)
			rec.FirstSeen = now
		} else if rec.Version != r.Version {
			rec.PreviousVersion = rec.Version
		}

		rec.SetVersion(r.Version)
		rec.SetDescription(r.Description)
		rec.Repository = r.Repository
		if !r.BuildDate.IsZero() {
			rec.BuildDate = r.BuildDate
		}
		if rec.FirstSeen.IsZero() {
			rec.FirstSeen = now
		}
		c.Packages[r.Name] = rec
	}
}

// RecentSection returns up to RecentLimit packages built within the last
// WindowDays days, newest first. When none qualify it falls back to the
// newest packages of the whole cache.
func RecentSection(c Cache, now time.Time) []xbps.PackageRecord {
	windowStart := now.Add(-WindowDays * 24 * time.Hour)

	var recent []xbps.PackageRecord
	for _, rec := range c.Packages {
		if !rec.BuildDate.IsZero() && !rec.BuildDate.Before(windowStart) {
			recent = append(recent, rec)
		}
	}
	if len(recent) == 0 {
		recent = make([]xbps.PackageRecord, 0, len(c.Packages))
		for _, rec := range c.Packages {
			recent = append(recent, rec)
		}
	}

	sortByRecency(recent)
	if len(recent) > RecentLimit {
		recent = recent[:RecentLimit]
	}
	return recent
}

// CategoryResults returns, for every category, the cached packages on its
// allow-list in allow-list order.
func CategoryResults(c Cache) map[Category][]xbps.PackageRecord {
	results := make(map[Category][]xbps.PackageRecord, len(categories))
	for _, cat := range AllCategories() {
		var packages []xbps.PackageRecord
		for _, name := range categories[cat].allowlist {
			if rec, ok := c.Packages[name]; ok {
				packages = append(packages, rec)
			}
		}
		results[cat] = packages
	}
	return results
}

// Refresh fetches fresh repository metadata, merges it into a copy of
// cache, prunes it and derives the views. cache itself is not modified.
func Refresh(ctx context.Context, f Fetcher, cache Cache, now time.Time) (Outcome, error) {
	remote, err := FetchRemote(ctx, f)
	if err != nil {
		return Outcome{}, err
	}

	next := cache.Clone()
	Merge(&next, remote, now)
	Prune(&next, MaxEntries)
	next.GeneratedAt = now

	logger.Debug("spotlight: refreshed %d packages from %d remote entries", next.Len(), len(remote))

	return Outcome{
		Cache:       next,
		Recent:      RecentSection(next, now),
		Categories:  CategoryResults(next),
		RefreshedAt: now,
	}, nil
}

// RefreshAndSave runs Refresh and writes the result to path. A failed
// save is logged and recorded in the outcome but does not fail the
// refresh. An empty path skips persistence.
func RefreshAndSave(ctx context.Context, f Fetcher, cache Cache, path string, now time.Time) (Outcome, error) {
	outcome, err := Refresh(ctx, f, cache, now)
	if err != nil {
		return outcome, err
	}
	if path == "" {
		return outcome, nil
	}
	if err := Save(path, outcome.Cache); err != nil {
		logger.Warn("spotlight: %v", err)
		outcome.PersistErr = err
	}
	return outcome, nil
}
