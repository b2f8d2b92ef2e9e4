package status

import (
	"sort"
	"strings"

	"github.com/blackwell-systems/voidstore/internal/xbps"
)

// keywordRules are checked in order; the first rule with a matching
// keyword decides the stage.
var keywordRules = []struct {
	status   UpdateStatus
	keywords []string
}{
	{Failed, []string{"failed", "error:", "transaction aborted"}},
	{Downloading, []string{"downloading", "fetching"}},
	{Installing, []string{"installing", "updating", "unpacking"}},
	{Verifying, []string{"verifying", "checking integrity"}},
	{Completed, []string{"installed successfully", "update completed", "updated successfully", "transaction completed", "upgraded successfully"}},
	{Preparing, []string{"preparing", "transaction started"}},
}

// batchFatal are the phrases that fail the whole batch when a line names
// no enrolled package.
var batchFatal = []string{
	"transaction aborted",
	"failed to download",
	"failed to install",
	"failed to update",
}

const tokenPunct = "()[]{}:,;.`'\""

// Classify maps a lowercase line to a stage. ok is false when no keyword
// matches.
func Classify(lowerLine string) (UpdateStatus, bool) {
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowerLine, kw) {
				return rule.status, true
			}
		}
	}
	return Queued, false
}

// Tracker holds the status of every package enrolled in the running update
// batch. It is owned by a single goroutine and is not safe for concurrent
// use.
type Tracker struct {
	statuses map[string]UpdateStatus
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{statuses: make(map[string]UpdateStatus)}
}

// Enroll marks names as Queued, replacing any previous status (including
// Failed from an earlier attempt).
func (t *Tracker) Enroll(names []string) {
	for _, name := range names {
		t.statuses[name] = Queued
	}
}

// Set applies status to names, honoring the no-regression rule. It returns
// the names whose status changed. Names not yet tracked are added.
func (t *Tracker) Set(names []string, status UpdateStatus) []string {
	var changed []string
	for _, name := range names {
		if current, ok := t.statuses[name]; ok && (!status.ShouldReplace(current) || current == status) {
			continue
		}
		t.statuses[name] = status
		changed = append(changed, name)
	}
	return changed
}

// Clear forgets names and returns those that were tracked.
func (t *Tracker) Clear(names []string) []string {
	var removed []string
	for _, name := range names {
		if _, ok := t.statuses[name]; ok {
			delete(t.statuses, name)
			removed = append(removed, name)
		}
	}
	return removed
}

// Get returns the status of name.
func (t *Tracker) Get(name string) (UpdateStatus, bool) {
	s, ok := t.statuses[name]
	return s, ok
}

// Len returns the number of tracked packages.
func (t *Tracker) Len() int {
	return len(t.statuses)
}

// Names returns the tracked names, sorted.
func (t *Tracker) Names() []string {
	names := make([]string, 0, len(t.statuses))
	for name := range t.statuses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the status table.
func (t *Tracker) Snapshot() map[string]UpdateStatus {
	out := make(map[string]UpdateStatus, len(t.statuses))
	for k, v := range t.statuses {
		out[k] = v
	}
	return out
}

// Active reports whether any tracked package has not reached a terminal
// stage.
func (t *Tracker) Active() bool {
	for _, s := range t.statuses {
		if !s.Terminal() {
			return true
		}
	}
	return false
}

// Counts returns how many packages are at each stage.
func (t *Tracker) Counts() map[UpdateStatus]int {
	out := make(map[UpdateStatus]int)
	for _, s := range t.statuses {
		out[s]++
	}
	return out
}

// OnLogLine classifies one streamed output line and updates the status of
// every enrolled package it mentions. It returns the names whose status
// changed.
func (t *Tracker) OnLogLine(line string) []string {
	if len(t.statuses) == 0 {
		return nil
	}
	lower := strings.ToLower(strings.TrimRight(line, "\r"))
	matched := DetectPackages(line, t.Names())

	if len(matched) == 0 {
		for _, phrase := range batchFatal {
			if strings.Contains(lower, phrase) {
				return t.Set(t.Names(), Failed)
			}
		}
		return nil
	}

	if stage, ok := Classify(lower); ok {
		return t.Set(matched, stage)
	}

	// Any mention at all moves a queued package along.
	var changed []string
	for _, name := range matched {
		if t.statuses[name] == Queued {
			changed = append(changed, t.Set([]string{name}, Preparing)...)
		}
	}
	return changed
}

// DetectPackages returns the candidates mentioned in line. A name matches
// when it appears bounded by a space, hyphen, colon, underscore or
// backticks, or as a whitespace-separated token once surrounding
// punctuation is stripped, either exactly or as the name part of a package
// identifier.
func DetectPackages(line string, candidates []string) []string {
	lower := strings.ToLower(line)
	seen := make(map[string]bool, len(candidates))
	var matches []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			matches = append(matches, name)
		}
	}

	for _, name := range candidates {
		ln := strings.ToLower(name)
		if strings.Contains(lower, " "+ln+"-") ||
			strings.Contains(lower, " "+ln+" ") ||
			strings.Contains(lower, " "+ln+":") ||
			strings.Contains(lower, " "+ln+"_") ||
			strings.HasPrefix(lower, ln+"-") ||
			strings.HasPrefix(lower, ln+":") ||
			strings.Contains(lower, "`"+ln+"`") {
			add(name)
		}
	}
	if len(matches) == len(candidates) {
		return matches
	}

	lowerIndex := make(map[string]string, len(candidates))
	for _, name := range candidates {
		lowerIndex[strings.ToLower(name)] = name
	}
	for _, token := range strings.Fields(line) {
		trimmed := strings.Trim(token, tokenPunct)
		if trimmed == "" {
			continue
		}
		if name, ok := lowerIndex[strings.ToLower(trimmed)]; ok {
			add(name)
		}
		if ident, _ := xbps.SplitPackageIdentifier(trimmed); ident != "" {
			if name, ok := lowerIndex[strings.ToLower(ident)]; ok {
				add(name)
			}
		}
	}
	return matches
}
