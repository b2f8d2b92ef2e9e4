package agent

import (
	"fmt"
	"time"

	"github.com/blackwell-systems/voidstore/internal/config"
	"github.com/blackwell-systems/voidstore/internal/operations"
	"github.com/blackwell-systems/voidstore/internal/spotlight"
	"github.com/blackwell-systems/voidstore/internal/status"
	"github.com/blackwell-systems/voidstore/internal/xbps"
)

// MaintenanceTask names a system maintenance command.
type MaintenanceTask string

const (
	TaskRemoveOrphans MaintenanceTask = "orphans"
	TaskPkgdbCheck    MaintenanceTask = "pkgdb"
	TaskReconfigure   MaintenanceTask = "reconfigure"
	TaskAlternatives  MaintenanceTask = "alternatives"
	TaskCacheClean    MaintenanceTask = "cache"
)

// ParseMaintenanceTask validates a task name.
func ParseMaintenanceTask(s string) (MaintenanceTask, error) {
	switch t := MaintenanceTask(s); t {
	case TaskRemoveOrphans, TaskPkgdbCheck, TaskReconfigure, TaskAlternatives, TaskCacheClean:
		return t, nil
	}
	return "", fmt.Errorf("unknown maintenance task %q (want orphans, pkgdb, reconfigure, alternatives or cache)", s)
}

// MaintenanceResult is the last outcome of a maintenance task.
type MaintenanceResult struct {
	Running  bool               `json:"running"`
	Result   xbps.CommandResult `json:"result"`
	Error    string             `json:"error,omitempty"`
	Finished time.Time          `json:"finished"`
}

// MirrorState tracks the repository mirror selection.
type MirrorState struct {
	// Detected are the known mirrors found in the system repository
	// configuration by the last detection.
	Detected  []string `json:"detected"`
	Detecting bool     `json:"detecting"`
	Applying  bool     `json:"applying"`
	Error     string   `json:"error,omitempty"`
}

// maxUpdateLog bounds the retained output of the running update batch.
const maxUpdateLog = 2000

// State is everything the agent knows. It is owned by the goroutine that
// drives the agent and must only be touched there.
type State struct {
	SearchQuery   string
	SearchResults []xbps.PackageRecord
	SearchError   string
	Searching     bool

	Installed        []xbps.PackageRecord
	InstalledSet     map[string]bool
	InstalledError   string
	InstalledLoading bool

	Updates          []xbps.PackageRecord
	UpdatesError     string
	UpdatesChecking  bool
	UpdatesCheckedAt time.Time

	UpdateRunning bool
	UpdateAll     bool
	UpdateBatch   []string
	UpdateStatus  *status.Tracker
	UpdateLog     []string
	UpdateError   string

	// Pending maps a package to the kind of install or remove running for
	// it.
	Pending map[string]operations.Kind
	History *operations.History

	Spotlight *spotlight.Manager

	Selected        string
	SelectedRemote  bool
	DetailLoading   bool
	InstalledDetail *xbps.InstalledDetail
	DiscoverDetail  *xbps.DiscoverDetail
	DetailError     string

	Maintenance map[MaintenanceTask]MaintenanceResult

	Mirrors MirrorState

	Settings config.Settings
}

func newState(historyMax int, cache spotlight.Cache, settings config.Settings, now time.Time) *State {
	return &State{
		InstalledSet: make(map[string]bool),
		UpdateStatus: status.NewTracker(),
		Pending:      make(map[string]operations.Kind),
		History:      operations.NewHistory(historyMax),
		Spotlight:    spotlight.NewManager(cache, now),
		Maintenance:  make(map[MaintenanceTask]MaintenanceResult),
		Settings:     settings,
	}
}

func (s *State) appendLog(line string) {
	s.UpdateLog = append(s.UpdateLog, line)
	if over := len(s.UpdateLog) - maxUpdateLog; over > 0 {
		s.UpdateLog = append(s.UpdateLog[:0:0], s.UpdateLog[over:]...)
	}
}

// flagInstalled refreshes the Installed flag on the search results and
// spotlight views from InstalledSet.
func (s *State) flagInstalled() {
	for i := range s.SearchResults {
		s.SearchResults[i].Installed = s.InstalledSet[s.SearchResults[i].Name]
	}
	s.Spotlight.MarkInstalled(s.InstalledSet)
}

func (s *State) setInstalled(records []xbps.PackageRecord) {
	s.Installed = records
	s.InstalledSet = make(map[string]bool, len(records))
	for _, rec := range records {
		s.InstalledSet[rec.Name] = true
	}
	s.flagInstalled()
}

func (s *State) markRemoved(names ...string) {
	gone := make(map[string]bool, len(names))
	for _, name := range names {
		gone[name] = true
		delete(s.InstalledSet, name)
	}
	kept := s.Installed[:0:0]
	for _, rec := range s.Installed {
		if !gone[rec.Name] {
			kept = append(kept, rec)
		}
	}
	s.Installed = kept
	s.flagInstalled()
}

func (s *State) dropUpdates(names []string) {
	done := make(map[string]bool, len(names))
	for _, name := range names {
		done[name] = true
	}
	kept := s.Updates[:0:0]
	for _, rec := range s.Updates {
		if !done[rec.Name] {
			kept = append(kept, rec)
		}
	}
	s.Updates = kept
}

func (s *State) findUpdate(name string) (xbps.PackageRecord, bool) {
	for _, rec := range s.Updates {
		if rec.Name == name {
			return rec, true
		}
	}
	return xbps.PackageRecord{}, false
}

// Snapshot is a copy of the state that is safe to hand to other
// goroutines.
type Snapshot struct {
	SearchQuery      string                                      `json:"search_query"`
	SearchResults    []xbps.PackageRecord                        `json:"search_results"`
	SearchError      string                                      `json:"search_error,omitempty"`
	Searching        bool                                        `json:"searching"`
	Installed        []xbps.PackageRecord                        `json:"installed"`
	InstalledError   string                                      `json:"installed_error,omitempty"`
	Updates          []xbps.PackageRecord                        `json:"updates"`
	UpdatesError     string                                      `json:"updates_error,omitempty"`
	UpdatesCheckedAt time.Time                                   `json:"updates_checked_at"`
	UpdateRunning    bool                                        `json:"update_running"`
	UpdateStatus     map[string]status.UpdateStatus              `json:"update_status"`
	UpdateLog        []string                                    `json:"update_log"`
	UpdateError      string                                      `json:"update_error,omitempty"`
	Pending          map[string]operations.Kind                  `json:"pending"`
	Operations       []operations.PackageOperation               `json:"operations"`
	SpotlightState   spotlight.State                             `json:"spotlight_state"`
	SpotlightError   string                                      `json:"spotlight_error,omitempty"`
	SpotlightRecent  []xbps.PackageRecord                        `json:"spotlight_recent"`
	Categories       map[spotlight.Category][]xbps.PackageRecord `json:"categories"`
	Selected         string                                      `json:"selected,omitempty"`
	DetailLoading    bool                                        `json:"detail_loading"`
	InstalledDetail  *xbps.InstalledDetail                       `json:"installed_detail,omitempty"`
	DiscoverDetail   *xbps.DiscoverDetail                        `json:"discover_detail,omitempty"`
	DetailError      string                                      `json:"detail_error,omitempty"`
	Maintenance      map[MaintenanceTask]MaintenanceResult       `json:"maintenance"`
	Mirrors          MirrorState                                 `json:"mirrors"`
	Settings         config.Settings                             `json:"settings"`
}

// Snapshot copies the state.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		SearchQuery:      s.SearchQuery,
		SearchResults:    append([]xbps.PackageRecord(nil), s.SearchResults...),
		SearchError:      s.SearchError,
		Searching:        s.Searching,
		Installed:        append([]xbps.PackageRecord(nil), s.Installed...),
		InstalledError:   s.InstalledError,
		Updates:          append([]xbps.PackageRecord(nil), s.Updates...),
		UpdatesError:     s.UpdatesError,
		UpdatesCheckedAt: s.UpdatesCheckedAt,
		UpdateRunning:    s.UpdateRunning,
		UpdateStatus:     s.UpdateStatus.Snapshot(),
		UpdateLog:        append([]string(nil), s.UpdateLog...),
		UpdateError:      s.UpdateError,
		Pending:          make(map[string]operations.Kind, len(s.Pending)),
		Operations:       s.History.All(),
		SpotlightState:   s.Spotlight.State(),
		SpotlightRecent:  s.Spotlight.Recent(),
		Categories:       s.Spotlight.Categories(),
		Selected:         s.Selected,
		DetailLoading:    s.DetailLoading,
		DetailError:      s.DetailError,
		Maintenance:      make(map[MaintenanceTask]MaintenanceResult, len(s.Maintenance)),
		Mirrors:          s.Mirrors,
		Settings:         s.Settings,
	}
	snap.Mirrors.Detected = append([]string(nil), s.Mirrors.Detected...)
	snap.Settings.MirrorSelection = append([]string{}, s.Settings.MirrorSelection...)
	if err := s.Spotlight.LastError(); err != nil {
		snap.SpotlightError = err.Error()
	}
	for k, v := range s.Pending {
		snap.Pending[k] = v
	}
	for k, v := range s.Maintenance {
		snap.Maintenance[k] = v
	}
	if s.InstalledDetail != nil {
		d := *s.InstalledDetail
		d.RequiredBy = append([]string(nil), d.RequiredBy...)
		snap.InstalledDetail = &d
	}
	if s.DiscoverDetail != nil {
		d := *s.DiscoverDetail
		d.Dependencies = append([]xbps.DependencyInfo(nil), d.Dependencies...)
		snap.DiscoverDetail = &d
	}
	return snap
}
