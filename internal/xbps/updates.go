package xbps

import (
	"sort"
	"strings"
)

// ParseUpdatesOutput parses the "what would be updated" report of
// `xbps-install -Sun`. Three line shapes are recognized, since xbps has
// printed each of them at some point:
//
//	foo-1.0_1 -> 1.1_1
//	foo-1.1_1 update available (installed: 1.0_1)
//	foo-1.0_1 update (1.1_1)
//
// Records come back sorted by name with Version set to the new version
// and PreviousVersion to the installed one.
func ParseUpdatesOutput(text string) []PackageRecord {
	var updates []PackageRecord
	add := func(name, version, previous string) {
		if name == "" {
			return
		}
		rec := NewPackageRecord(name, version, "Update available")
		rec.Installed = true
		rec.PreviousVersion = previous
		updates = append(updates, rec)
	}

	for _, raw := range strings.Split(text, "\n") {
		line := cleanUpdateLine(raw)
		if line == "" {
			continue
		}

		if left, right, ok := strings.Cut(line, "->"); ok {
			left, right = strings.TrimSpace(left), strings.TrimSpace(right)
			if left == "" || right == "" {
				continue
			}
			name, prev := SplitPackageIdentifier(left)
			var token string
			for _, f := range strings.Fields(right) {
				if strings.ContainsAny(f, "0123456789") {
					token = f
					break
				}
			}
			add(name, versionFromToken(token), prev)
			continue
		}

		if identifier, rest, ok := strings.Cut(line, " update available"); ok {
			identifier = strings.TrimSpace(identifier)
			if identifier == "" {
				continue
			}
			name, version := SplitPackageIdentifier(identifier)
			prev := ""
			if _, after, found := strings.Cut(rest, "(installed:"); found {
				prev, _, _ = strings.Cut(after, ")")
				prev = strings.TrimSpace(prev)
			}
			add(name, version, prev)
			continue
		}

		if left, right, ok := strings.Cut(line, " update"); ok {
			left = strings.TrimSpace(left)
			if left == "" {
				continue
			}
			name, prev := SplitPackageIdentifier(left)
			var token string
			parts := strings.FieldsFunc(right, func(r rune) bool {
				return r == ')' || r == ' ' || r == ',' || r == ':'
			})
			for _, p := range parts {
				if strings.ContainsAny(p, "-0123456789") {
					token = strings.TrimSpace(strings.TrimLeft(p, "("))
					break
				}
			}
			add(name, versionFromToken(token), prev)
		}
	}

	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].Name < updates[j].Name
	})
	return updates
}

// cleanUpdateLine strips the tool prefix, list bullets and any leading
// bracketed tags from a report line.
func cleanUpdateLine(raw string) string {
	line := strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(line, "xbps-install:"); ok {
		line = strings.TrimSpace(rest)
	}
	line = strings.TrimSpace(strings.TrimLeft(line, "*->"))
	for strings.HasPrefix(line, "[") {
		end := strings.IndexByte(line, ']')
		if end < 0 {
			break
		}
		line = strings.TrimSpace(line[end+1:])
	}
	return line
}

// versionFromToken returns the version part of a token that may be either
// a bare version or a full package identifier.
func versionFromToken(token string) string {
	if strings.Contains(token, "-") {
		_, v := SplitPackageIdentifier(token)
		return v
	}
	return token
}

// LooksLikeVersion reports whether s starts like a version string: a digit,
// or 'v'/'r' followed by a digit.
func LooksLikeVersion(s string) bool {
	if s == "" {
		return false
	}
	if s[0] >= '0' && s[0] <= '9' {
		return true
	}
	if (s[0] == 'v' || s[0] == 'r') && len(s) > 1 {
		return s[1] >= '0' && s[1] <= '9'
	}
	return false
}
