package xbps

import (
	"strings"
	"time"
)

// zoneOffsets maps the timezone abbreviations xbps-src stamps into
// build-date properties to their offsets from UTC, in seconds.
var zoneOffsets = map[string]int{
	"UTC":  0,
	"GMT":  0,
	"CET":  1 * 3600,
	"CEST": 2 * 3600,
	"EET":  2 * 3600,
	"EEST": 3 * 3600,
	"PST":  -8 * 3600,
	"PDT":  -7 * 3600,
	"MST":  -7 * 3600,
	"MDT":  -6 * 3600,
	"CST":  -6 * 3600,
	"CDT":  -5 * 3600,
	"EST":  -5 * 3600,
	"EDT":  -4 * 3600,
	"BST":  1 * 3600,
	"IST":  5*3600 + 1800,
	"JST":  9 * 3600,
}

var naiveLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseBuildDate parses a build-date value. Accepted forms are RFC3339,
// "YYYY-MM-DD HH:MM[:SS]" followed by a zone abbreviation, and the same
// without a zone, which is read as UTC. The result is always in UTC.
func ParseBuildDate(value string) (time.Time, bool) {
	trimmed := strings.Trim(strings.TrimSpace(value), `"'`)
	if trimmed == "" {
		return time.Time{}, false
	}

	if idx := strings.LastIndexByte(trimmed, ' '); idx >= 0 {
		datePart, zone := strings.TrimSpace(trimmed[:idx]), trimmed[idx+1:]
		if isAlpha(zone) {
			if offset, ok := zoneOffsets[zone]; ok {
				loc := time.FixedZone(zone, offset)
				for _, layout := range naiveLayouts {
					if t, err := time.ParseInLocation(layout, datePart, loc); err == nil {
						return t.UTC(), true
					}
				}
			}
		}
	}

	iso := strings.ReplaceAll(trimmed, " UTC", "Z")
	if !strings.Contains(iso, "T") {
		iso = strings.ReplaceAll(iso, " ", "T")
	}
	if t, err := time.Parse(time.RFC3339, iso); err == nil {
		return t.UTC(), true
	}

	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, trimmed, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isASCIILetter(s[i]) {
			return false
		}
	}
	return true
}
