package spotlight

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/voidstore/internal/xbps"
)

// Fetcher runs the two repository listings a refresh needs.
// *xbps.Client satisfies it.
type Fetcher interface {
	SearchListing(ctx context.Context) (string, error)
	BuildDateListing(ctx context.Context) (string, error)
}

// RemoteMetadata is what the repositories currently report for one
// package.
type RemoteMetadata struct {
	Name        string
	Version     string
	Description string
	Repository  string
	BuildDate   time.Time
}

// FetchRemote runs both listings concurrently and merges them.
func FetchRemote(ctx context.Context, f Fetcher) ([]RemoteMetadata, error) {
	var listing, buildDates string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := f.SearchListing(gctx)
		if err != nil {
			return fmt.Errorf("failed to list repository packages: %w", err)
		}
		listing = out
		return nil
	})
	g.Go(func() error {
		out, err := f.BuildDateListing(gctx)
		if err != nil {
			return fmt.Errorf("failed to list build dates: %w", err)
		}
		buildDates = out
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return MergeListings(listing, buildDates), nil
}

// MergeListings combines the search listing (name, version, description)
// with the build-date listing (version, build date, repository). The last
// version reported wins; a description, repository or build date already
// known is not cleared by a later line lacking it. The result is sorted by
// name.
func MergeListings(listing, buildDates string) []RemoteMetadata {
	records := make(map[string]*RemoteMetadata)
	entry := func(name string) *RemoteMetadata {
		r, ok := records[name]
		if !ok {
			r = &RemoteMetadata{Name: name}
			records[name] = r
		}
		return r
	}

	for _, line := range strings.Split(listing, "\n") {
		name, version, description, ok := xbps.ParseSearchListingLine(line)
		if !ok || name == "" {
			continue
		}
		r := entry(name)
		r.Version = version
		if r.Description == "" {
			r.Description = description
		}
	}

	for _, line := range strings.Split(buildDates, "\n") {
		item, ok := xbps.ParseBuildDateListingLine(line)
		if !ok || item.Name == "" {
			continue
		}
		r := entry(item.Name)
		r.Version = item.Version
		if r.Repository == "" {
			r.Repository = item.Repository
		}
		if !item.BuildDate.IsZero() {
			r.BuildDate = item.BuildDate
		}
	}

	out := make([]RemoteMetadata, 0, len(records))
	for _, r := range records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
