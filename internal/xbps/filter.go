package xbps

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// MatchesFilter reports whether rec matches needle, which must already be
// lowercase. Name, version and description are searched.
func MatchesFilter(rec *PackageRecord, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(rec.NameLower(), needle) ||
		strings.Contains(rec.VersionLower(), needle) ||
		strings.Contains(rec.DescriptionLower(), needle)
}

// FilterRecords returns the records matching query, case-insensitively.
func FilterRecords(records []PackageRecord, query string) []PackageRecord {
	needle := strings.ToLower(strings.TrimSpace(query))
	var out []PackageRecord
	for i := range records {
		if MatchesFilter(&records[i], needle) {
			out = append(out, records[i])
		}
	}
	return out
}

// recordNames adapts a record slice to fuzzy.Source over lowercase names.
type recordNames []PackageRecord

func (r recordNames) String(i int) string { return r[i].NameLower() }
func (r recordNames) Len() int            { return len(r) }

// RankFuzzy orders records for a local search. Substring matches come first
// in their original order, followed by fuzzy name matches by score.
// Records matching neither are dropped.
func RankFuzzy(records []PackageRecord, query string) []PackageRecord {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return append([]PackageRecord(nil), records...)
	}

	taken := make([]bool, len(records))
	var out []PackageRecord
	for i := range records {
		if MatchesFilter(&records[i], needle) {
			taken[i] = true
			out = append(out, records[i])
		}
	}
	for _, m := range fuzzy.FindFrom(needle, recordNames(records)) {
		if !taken[m.Index] {
			taken[m.Index] = true
			out = append(out, records[m.Index])
		}
	}
	return out
}
