package spotlight

import (
	"fmt"
	"time"

	"github.com/blackwell-systems/voidstore/internal/xbps"
)

// State is the refresh state of a Manager.
type State int

const (
	Idle State = iota
	Refreshing
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Refreshing:
		return "refreshing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Idle, Refreshing, Failed} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown refresh state %q", b)
}

// Manager holds the authoritative cache and its derived views. Refreshes
// are serialized by the state flag alone, so a Manager must only be used
// from the goroutine that owns it.
type Manager struct {
	state       State
	cache       Cache
	recent      []xbps.PackageRecord
	categories  map[Category][]xbps.PackageRecord
	lastErr     error
	refreshedAt time.Time
	interval    time.Duration
	installed   map[string]bool
}

// NewManager wraps a loaded cache and derives its views.
func NewManager(cache Cache, now time.Time) *Manager {
	if cache.Packages == nil {
		cache.Packages = make(map[string]xbps.PackageRecord)
	}
	m := &Manager{
		cache:    cache,
		interval: RefreshInterval,
	}
	m.rebuild(now)
	return m
}

// SetInterval changes how old the cache may get before ShouldRefresh
// reports a refresh is due.
func (m *Manager) SetInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

func (m *Manager) rebuild(now time.Time) {
	if m.cache.Empty() {
		m.recent = nil
		m.categories = make(map[Category][]xbps.PackageRecord)
		return
	}
	m.recent = RecentSection(m.cache, now)
	m.categories = CategoryResults(m.cache)
}

// ShouldRefresh reports whether a refresh should start. It never does
// while one is running. Otherwise it does when forced, when no data is
// cached, or when the cache is older than the refresh interval.
func (m *Manager) ShouldRefresh(force bool, now time.Time) bool {
	if m.state == Refreshing {
		return false
	}
	if force || m.cache.Empty() || m.cache.GeneratedAt.IsZero() {
		return true
	}
	return now.Sub(m.cache.GeneratedAt) >= m.interval
}

// Begin moves to Refreshing and returns a copy of the cache for the
// worker to merge into. It returns false if a refresh is already running.
func (m *Manager) Begin() (Cache, bool) {
	if m.state == Refreshing {
		return Cache{}, false
	}
	m.state = Refreshing
	return m.cache.Clone(), true
}

// Finish installs a successful refresh outcome and returns to Idle.
func (m *Manager) Finish(o Outcome) {
	m.cache = o.Cache
	if m.cache.Packages == nil {
		m.cache.Packages = make(map[string]xbps.PackageRecord)
	}
	m.recent = o.Recent
	m.categories = o.Categories
	if m.categories == nil {
		m.categories = CategoryResults(m.cache)
	}
	m.refreshedAt = o.RefreshedAt
	m.lastErr = nil
	m.state = Idle
}

// Fail records a failed refresh. The previous snapshot stays
// authoritative; the next trigger may start a new refresh.
func (m *Manager) Fail(err error) {
	m.lastErr = err
	m.state = Failed
}

// State returns the current refresh state.
func (m *Manager) State() State { return m.state }

// LastError returns the error of the last failed refresh, if the manager
// is in the Failed state.
func (m *Manager) LastError() error { return m.lastErr }

// RefreshedAt returns when the last refresh in this process finished.
func (m *Manager) RefreshedAt() time.Time { return m.refreshedAt }

// GeneratedAt returns when the current cache was generated.
func (m *Manager) GeneratedAt() time.Time { return m.cache.GeneratedAt }

// Len returns the number of cached packages.
func (m *Manager) Len() int { return m.cache.Len() }

// Cache returns a copy of the current cache.
func (m *Manager) Cache() Cache { return m.cache.Clone() }

// MarkInstalled sets the installed set used to flag records in the views.
func (m *Manager) MarkInstalled(installed map[string]bool) {
	m.installed = make(map[string]bool, len(installed))
	for name, ok := range installed {
		if ok {
			m.installed[name] = true
		}
	}
}

func (m *Manager) flagged(records []xbps.PackageRecord) []xbps.PackageRecord {
	out := make([]xbps.PackageRecord, len(records))
	for i, rec := range records {
		rec.Installed = m.installed[rec.Name]
		out[i] = rec
	}
	return out
}

// Recent returns the recency view.
func (m *Manager) Recent() []xbps.PackageRecord {
	return m.flagged(m.recent)
}

// Category returns the view for c.
func (m *Manager) Category(c Category) []xbps.PackageRecord {
	return m.flagged(m.categories[c])
}

// Categories returns every category view.
func (m *Manager) Categories() map[Category][]xbps.PackageRecord {
	out := make(map[Category][]xbps.PackageRecord, len(m.categories))
	for c, records := range m.categories {
		out[c] = m.flagged(records)
	}
	return out
}
