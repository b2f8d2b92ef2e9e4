package xbps

import (
	"sort"
	"strings"
)

// SplitPackageIdentifier splits an xbps package identifier such as
// "foo-bar-1.2_1" into name and version. The last hyphen wins, so names
// containing hyphens keep them.
func SplitPackageIdentifier(identifier string) (name, version string) {
	pos := strings.LastIndexByte(identifier, '-')
	if pos < 0 {
		return identifier, ""
	}
	return identifier[:pos], identifier[pos+1:]
}

// ParseQueryOutput parses search and listing output of the form
//
//	[*] firefox-121.0_1  Mozilla Firefox web browser
//	[-] falkon-3.2.0_2   Qt web browser
//
// The leading marker is optional. Blank lines are skipped.
func ParseQueryOutput(output string) []PackageRecord {
	var records []PackageRecord
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		installed := false
		first := fields[0]
		if strings.HasPrefix(first, "[") && strings.HasSuffix(first, "]") {
			installed = strings.ContainsAny(first, "*xX")
			fields = fields[1:]
			if len(fields) == 0 {
				continue
			}
		}

		name, version := SplitPackageIdentifier(fields[0])
		description := strings.Join(fields[1:], " ")
		rec := NewPackageRecord(name, version, description)
		rec.Installed = installed
		records = append(records, rec)
	}
	return records
}

// ParseInstalledOutput parses `xbps-query -l` output:
//
//	ii firefox-121.0_1  Mozilla Firefox web browser
//
// The first column is the package state and is ignored.
func ParseInstalledOutput(output string) []PackageRecord {
	var records []PackageRecord
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		fields := strings.Fields(trimmed)
		if len(fields) < 2 {
			continue
		}
		identifier := fields[1]
		name, version := SplitPackageIdentifier(identifier)

		description := ""
		if idx := strings.Index(trimmed, identifier); idx >= 0 {
			description = strings.TrimSpace(trimmed[idx+len(identifier):])
		}

		rec := NewPackageRecord(name, version, description)
		rec.Installed = true
		records = append(records, rec)
	}
	return records
}

// ParseRequiredBy parses `xbps-query -X` output, one package identifier per
// line, into a sorted list of unique package names.
func ParseRequiredBy(output string) []string {
	var names []string
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if name, _ := SplitPackageIdentifier(trimmed); name != "" {
			names = append(names, name)
		}
	}
	return sortedUnique(names)
}

// ParseRunDependencies extracts the run_depends entries from
// `xbps-query --show` output. The value may start on the key line and
// continue on indented lines until a blank line or the next key.
func ParseRunDependencies(output string) []DependencyInfo {
	var names []string
	inRunDepends := false

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(trimmed, "run_depends:"); ok {
			inRunDepends = true
			if name := dependencyName(rest); name != "" {
				names = append(names, name)
			}
			continue
		}
		if !inRunDepends {
			continue
		}
		if trimmed == "" || !startsWithSpace(line) || strings.Contains(trimmed, ":") {
			inRunDepends = false
			continue
		}
		if name := dependencyName(trimmed); name != "" {
			names = append(names, name)
		}
	}

	unique := sortedUnique(names)
	deps := make([]DependencyInfo, 0, len(unique))
	for _, name := range unique {
		deps = append(deps, DependencyInfo{Name: name})
	}
	return deps
}

// dependencyName reduces a dependency pattern such as "glibc>=2.36_1" or
// "'libfoo?'" to the bare package name.
func dependencyName(dep string) string {
	dep = strings.Trim(strings.TrimSpace(dep), `'"`)
	if dep == "" {
		return ""
	}
	if idx := strings.IndexAny(dep, "<>= "); idx >= 0 {
		dep = dep[:idx]
	}
	return strings.TrimRight(strings.TrimSpace(dep), "?")
}

// ParseProperties collects the requested keys from key:value output.
// A value continues onto following lines until a blank line or another
// key:value line. The first occurrence of a key wins and surrounding
// quotes are stripped. Keys with no value are omitted.
func ParseProperties(output string, keys ...string) map[string]string {
	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}

	result := make(map[string]string)
	var (
		current string
		value   strings.Builder
	)
	flush := func() {
		if current == "" {
			return
		}
		if _, seen := result[current]; !seen {
			if v := normalizePropertyText(value.String()); v != "" {
				result[current] = v
			}
		}
		current = ""
		value.Reset()
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if candidate, remainder, ok := strings.Cut(line, ":"); ok {
			key := strings.TrimSpace(candidate)
			if wanted[key] {
				flush()
				current = key
				value.WriteString(strings.TrimSpace(remainder))
				continue
			}
			if current != "" && !startsWithSpace(line) {
				flush()
				continue
			}
		}
		if current == "" {
			continue
		}
		part := strings.TrimSpace(line)
		if part == "" {
			flush()
			continue
		}
		if value.Len() > 0 {
			value.WriteByte('\n')
		}
		value.WriteString(part)
	}
	flush()
	return result
}

func normalizePropertyText(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) >= 2 {
		first, last := trimmed[0], trimmed[len(trimmed)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return strings.TrimSpace(trimmed[1 : len(trimmed)-1])
		}
	}
	return trimmed
}

// CleanProperty trims quotes and whitespace and maps "" and "-" to "".
func CleanProperty(raw string) string {
	cleaned := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"'`))
	if cleaned == "-" {
		return ""
	}
	return cleaned
}

// ParseLongDescription joins the non-empty trimmed lines of a long_desc value.
func ParseLongDescription(raw string) string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n")
}

// ParseRepoPackageInfo parses `xbps-query -R <name>` output into a record.
// The download size comes from pkgsize, falling back to filename-size.
func ParseRepoPackageInfo(name, output string) PackageRecord {
	var (
		pkgver, description string
		sizeBytes           uint64
		sizeLiteral         string
		changelog           string
		captureChangelog    bool
	)

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "pkgver:"):
			pkgver = strings.TrimSpace(strings.TrimPrefix(line, "pkgver:"))
		case strings.HasPrefix(line, "short_desc:"):
			description = strings.TrimSpace(strings.TrimPrefix(line, "short_desc:"))
		case strings.HasPrefix(line, "pkgsize:"), strings.HasPrefix(line, "filename-size:"):
			_, raw, _ := strings.Cut(line, ":")
			raw = strings.TrimSpace(raw)
			if sizeBytes == 0 {
				if n, ok := ParseBytesFromField(raw); ok {
					sizeBytes = n
				} else if n, ok := ParseBytes(raw); ok {
					sizeBytes = n
				}
			}
			if sizeLiteral == "" {
				sizeLiteral = raw
			}
		case strings.HasPrefix(line, "changelog:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "changelog:"))
			if v == "" {
				captureChangelog = true
			} else {
				changelog = v
			}
		case captureChangelog:
			if startsWithSpace(line) && changelog == "" {
				changelog = strings.TrimSpace(line)
			}
			captureChangelog = false
		}
	}

	if description == "" {
		description = "Update available"
	}
	version := ""
	if pkgver != "" {
		_, version = SplitPackageIdentifier(pkgver)
	}

	rec := NewPackageRecord(name, version, description)
	rec.Installed = true
	rec.Changelog = changelog
	rec.DownloadBytes = sizeBytes
	if sizeBytes > 0 {
		rec.DownloadSize = FormatSize(sizeBytes)
	} else {
		rec.DownloadSize = sizeLiteral
	}
	return rec
}

// ParseSizeProperty reads the first parseable size from `xbps-query -p`
// output for the given property.
func ParseSizeProperty(output, property string) (uint64, bool) {
	for _, line := range strings.Split(output, "\n") {
		value := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(value, property+":"); ok {
			value = strings.TrimSpace(rest)
		}
		if n, ok := ParseBytesFromField(value); ok {
			return n, true
		}
	}
	return 0, false
}

// ParseInstalledVersion reads the version from `xbps-query -p pkgver` output.
func ParseInstalledVersion(output string) string {
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(trimmed, "pkgver:"); ok {
			trimmed = strings.TrimSpace(rest)
		}
		if _, version := SplitPackageIdentifier(trimmed); version != "" {
			return version
		}
	}
	return ""
}

// SanitizeContact rewrites "Name <mail@host>" as "Name (mail@host)" for
// display in places where angle brackets are treated as markup.
func SanitizeContact(value string) string {
	open := strings.IndexByte(value, '<')
	end := strings.LastIndexByte(value, '>')
	if open < 0 || end < open {
		return value
	}
	name := strings.TrimSpace(value[:open])
	email := strings.TrimSpace(value[open+1 : end])
	switch {
	case name == "":
		return email
	case email == "":
		return name
	}
	return name + " (" + email + ")"
}

// SummarizeOutputLine returns the first non-empty line of text, truncated
// to 96 characters.
func SummarizeOutputLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return truncateRunes(trimmed, 96)
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func startsWithSpace(line string) bool {
	return line != "" && (line[0] == ' ' || line[0] == '\t')
}

func sortedUnique(values []string) []string {
	sort.Strings(values)
	out := values[:0]
	for i, v := range values {
		if i > 0 && v == values[i-1] {
			continue
		}
		out = append(out, v)
	}
	return out
}
