package xbps

import (
	"strings"
	"time"
	"unicode"
)

// ParseSearchListingLine parses one line of `xbps-query -R --regex -s .`
// output. The three-character state marker is skipped.
func ParseSearchListingLine(line string) (name, version, description string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "[") || len(trimmed) < 3 {
		return "", "", "", false
	}
	payload := strings.TrimLeftFunc(trimmed[3:], unicode.IsSpace)
	idx := strings.IndexFunc(payload, unicode.IsSpace)
	if idx <= 0 {
		return "", "", "", false
	}
	name, version = SplitPackageIdentifier(payload[:idx])
	return name, version, strings.TrimSpace(payload[idx:]), true
}

// BuildDateListing is one parsed line of the build-date listing.
type BuildDateListing struct {
	Name       string
	Version    string
	BuildDate  time.Time
	Repository string
}

// ParseBuildDateListingLine parses one line of
// `xbps-query -R --regex -p build-date -s .` output, e.g.
//
//	firefox-121.0_1: 2024-01-02 10:30 UTC (https://repo-default.voidlinux.org/current)
func ParseBuildDateListingLine(line string) (BuildDateListing, bool) {
	trimmed := strings.TrimSpace(line)
	identifier, rest, found := strings.Cut(trimmed, ":")
	identifier = strings.TrimSpace(identifier)
	if !found || identifier == "" {
		return BuildDateListing{}, false
	}

	var entry BuildDateListing
	remainder := strings.TrimSpace(rest)
	if open := strings.LastIndexByte(remainder, '('); open >= 0 && strings.HasSuffix(remainder, ")") {
		entry.Repository = strings.TrimSpace(remainder[open+1 : len(remainder)-1])
		remainder = strings.TrimSpace(remainder[:open])
	}
	entry.BuildDate, _ = ParseBuildDate(remainder)
	entry.Name, entry.Version = SplitPackageIdentifier(identifier)
	return entry, true
}
