package agent

import (
	"fmt"
	"strings"

	"github.com/blackwell-systems/voidstore/internal/dispatch"
	"github.com/blackwell-systems/voidstore/internal/operations"
	"github.com/blackwell-systems/voidstore/internal/spotlight"
	"github.com/blackwell-systems/voidstore/internal/xbps"
)

// SubmitSearch starts a repository search. Results of earlier searches
// that arrive afterwards are dropped. An empty query clears the results.
func (a *Agent) SubmitSearch(query string) {
	query = strings.TrimSpace(query)
	a.searchSeq++
	seq := a.searchSeq
	s := a.state
	s.SearchQuery = query
	s.SearchError = ""
	if query == "" {
		s.SearchResults = nil
		s.Searching = false
		return
	}
	s.Searching = true
	ctx := a.ctx
	a.disp.Submit("search", func() Message {
		results, err := a.client.Search(ctx, query)
		return SearchFinished{Query: query, Seq: seq, Results: results, Err: err}
	})
}

// SearchLocal ranks the spotlight cache and the installed list against
// query without running any command.
func (a *Agent) SearchLocal(query string) []xbps.PackageRecord {
	cache := a.state.Spotlight.Cache()
	seen := make(map[string]bool, cache.Len()+len(a.state.Installed))
	pool := make([]xbps.PackageRecord, 0, cache.Len()+len(a.state.Installed))
	for _, rec := range a.state.Installed {
		seen[rec.Name] = true
		rec.Installed = true
		pool = append(pool, rec)
	}
	for name, rec := range cache.Packages {
		if seen[name] {
			continue
		}
		pool = append(pool, rec)
	}
	return xbps.RankFuzzy(pool, query)
}

// FilterInstalled returns the installed packages matching query.
func (a *Agent) FilterInstalled(query string) []xbps.PackageRecord {
	return xbps.FilterRecords(a.state.Installed, query)
}

// RefreshInstalled reloads the installed package list.
func (a *Agent) RefreshInstalled() {
	a.state.InstalledLoading = true
	ctx := a.ctx
	a.disp.Submit("installed", func() Message {
		pkgs, err := a.client.ListInstalled(ctx)
		return InstalledFinished{Packages: pkgs, Err: err}
	})
}

// SubmitInstall installs one package.
func (a *Agent) SubmitInstall(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNothingToDo
	}
	if _, busy := a.state.Pending[name]; busy {
		return ErrBusy
	}
	program, args := a.client.InstallArgs(name)
	a.state.Pending[name] = operations.KindInstall
	a.state.History.Start(name, operations.Install(), a.client.CommandLine(program, args...))
	a.emit("install", name, "installing")

	ctx := a.ctx
	a.disp.Submit("install", func() Message {
		result, err := a.client.Install(ctx, name)
		return InstallFinished{Package: name, Result: result, Err: err}
	})
	return nil
}

// SubmitRemove removes packages. Several names run as one transaction and
// share its outcome.
func (a *Agent) SubmitRemove(names ...string) error {
	names = cleanNames(names)
	if len(names) == 0 {
		return ErrNothingToDo
	}
	for _, name := range names {
		if _, busy := a.state.Pending[name]; busy {
			return ErrBusy
		}
	}
	program, args := a.client.RemoveArgs(names...)
	command := a.client.CommandLine(program, args...)
	for _, name := range names {
		a.state.Pending[name] = operations.KindRemove
		a.state.History.Start(name, operations.Remove(), command)
		a.emit("remove", name, "removing")
	}

	ctx := a.ctx
	if len(names) == 1 {
		name := names[0]
		a.disp.Submit("remove", func() Message {
			result, err := a.client.Remove(ctx, name)
			return RemoveFinished{Package: name, Result: result, Err: err}
		})
		return nil
	}
	a.disp.Submit("remove", func() Message {
		result, err := a.client.Remove(ctx, names...)
		return RemoveBatchFinished{Packages: names, Result: result, Err: err}
	})
	return nil
}

// SubmitUpdate updates the named packages as one streamed batch.
func (a *Agent) SubmitUpdate(names ...string) error {
	names = cleanNames(names)
	if len(names) == 0 {
		return ErrNothingToDo
	}
	return a.startUpdate(false, names)
}

// SubmitUpdateAll updates the whole system. Every package in the current
// update list is tracked, so an update check must have found something
// first.
func (a *Agent) SubmitUpdateAll() error {
	if a.state.UpdateRunning {
		return ErrBusy
	}
	if len(a.state.Updates) == 0 {
		if a.state.UpdatesCheckedAt.IsZero() {
			return fmt.Errorf("%w: check for updates first", ErrNothingToDo)
		}
		return fmt.Errorf("%w: system is up to date", ErrNothingToDo)
	}
	names := make([]string, 0, len(a.state.Updates))
	for _, rec := range a.state.Updates {
		names = append(names, rec.Name)
	}
	return a.startUpdate(true, names)
}

func (a *Agent) startUpdate(all bool, names []string) error {
	s := a.state
	if s.UpdateRunning {
		return ErrBusy
	}
	s.UpdateRunning = true
	s.UpdateAll = all
	s.UpdateError = ""
	s.UpdateLog = nil
	s.UpdateStatus.Enroll(names)

	program, args := a.client.UpdateArgs(all, names)
	command := a.client.CommandLine(program, args...)
	for _, name := range names {
		var from, to string
		if rec, ok := s.findUpdate(name); ok {
			from, to = rec.PreviousVersion, rec.Version
		}
		s.History.Start(name, operations.Update(from, to), command)
	}
	a.emit("update", "", "update started: "+command)

	cmd := a.client.UpdateCommand(a.ctx, all, names)
	batch := append([]string(nil), names...)
	s.UpdateBatch = batch
	a.disp.SubmitStream("update", cmd,
		func(line dispatch.StreamLine) Message {
			return UpdateLogLine{Line: line.Text, Stderr: line.Stderr}
		},
		func(result xbps.CommandResult, err error) Message {
			return UpdateFinished{Packages: batch, All: all, Result: result, Err: err}
		})
	return nil
}

// CheckUpdates asks the repositories for pending updates.
func (a *Agent) CheckUpdates() error {
	if a.state.UpdatesChecking {
		return ErrBusy
	}
	a.state.UpdatesChecking = true
	ctx := a.ctx
	a.disp.Submit("updates", func() Message {
		updates, err := a.client.CheckUpdates(ctx)
		return UpdatesRefreshed{Updates: updates, Err: err}
	})
	return nil
}

// RequestDetail selects a package and loads its detail view. remote
// selects the repository view instead of the installed one.
func (a *Agent) RequestDetail(name string, remote bool) {
	s := a.state
	s.Selected = name
	s.SelectedRemote = remote
	s.InstalledDetail = nil
	s.DiscoverDetail = nil
	s.DetailError = ""
	s.DetailLoading = true

	ctx := a.ctx
	a.disp.Submit("detail", func() Message {
		if remote {
			d, err := a.client.DiscoverDetail(ctx, name)
			if err != nil {
				return DetailLoaded{Name: name, Remote: true, Err: err}
			}
			return DetailLoaded{Name: name, Remote: true, Discover: &d}
		}
		d := a.client.InstalledDetail(ctx, name)
		return DetailLoaded{Name: name, Installed: &d}
	})
}

// TriggerSpotlightRefresh starts a spotlight refresh if one is due or
// forced. It reports whether a refresh was started.
func (a *Agent) TriggerSpotlightRefresh(force bool) bool {
	mgr := a.state.Spotlight
	now := a.now()
	if !mgr.ShouldRefresh(force, now) {
		return false
	}
	cache, ok := mgr.Begin()
	if !ok {
		return false
	}
	a.emit("spotlight", "", "spotlight refresh started")

	ctx, path := a.ctx, a.cachePath
	a.disp.Submit("spotlight", func() Message {
		var (
			outcome spotlight.Outcome
			err     error
		)
		if path == "" {
			outcome, err = spotlight.Refresh(ctx, a.client, cache, now)
		} else {
			outcome, err = spotlight.RefreshAndSave(ctx, a.client, cache, path, now)
		}
		if err != nil {
			return SpotlightFailed{Err: err}
		}
		return SpotlightLoaded{Outcome: outcome}
	})
	return true
}

// RunMaintenance runs a maintenance task. Each task runs at most once at
// a time.
func (a *Agent) RunMaintenance(task MaintenanceTask) error {
	if _, err := ParseMaintenanceTask(string(task)); err != nil {
		return err
	}
	if a.state.Maintenance[task].Running {
		return ErrBusy
	}
	a.state.Maintenance[task] = MaintenanceResult{Running: true}
	a.emit("maintenance", "", string(task)+" started")

	ctx := a.ctx
	a.disp.Submit("maintenance", func() Message {
		var (
			result xbps.CommandResult
			err    error
		)
		switch task {
		case TaskRemoveOrphans:
			result, err = a.client.RemoveOrphans(ctx)
		case TaskPkgdbCheck:
			result, err = a.client.PkgdbCheck(ctx)
		case TaskReconfigure:
			result, err = a.client.ReconfigureAll(ctx)
		case TaskAlternatives:
			result, err = a.client.AlternativesList(ctx)
		case TaskCacheClean:
			result, err = a.client.CleanCache(ctx)
		}
		return MaintenanceFinished{Task: task, Result: result, Err: err}
	})
	return nil
}

// DetectMirrors reads the active repository configuration. When it names
// known mirrors that differ from the selection, the selection follows the
// system and is saved.
func (a *Agent) DetectMirrors() error {
	if a.state.Mirrors.Detecting {
		return ErrBusy
	}
	a.state.Mirrors.Detecting = true
	ctx := a.ctx
	a.disp.Submit("mirrors", func() Message {
		urls, err := a.client.ActiveRepositories(ctx)
		if err != nil {
			return MirrorsDetected{Err: err}
		}
		return MirrorsDetected{IDs: xbps.MirrorIDsForURLs(urls)}
	})
	return nil
}

// SetMirrors selects mirrors by id, saves the selection and rewrites the
// system repository configuration. Unknown ids are ignored; a selection
// with no known mirror is rejected.
func (a *Agent) SetMirrors(ids ...string) error {
	known := xbps.KnownMirrorIDs(ids)
	if len(known) == 0 {
		return xbps.ErrNoMirror
	}
	s := a.state
	if s.Mirrors.Applying {
		return ErrBusy
	}
	s.Settings.MirrorSelection = known
	a.applyMirrors()
	a.saveSettings()
	s.Mirrors.Applying = true
	a.emit("mirrors", "", "switching to "+strings.Join(known, ", "))

	ctx := a.ctx
	a.disp.Submit("mirrors_apply", func() Message {
		result, err := a.client.WriteRepositoryConfig(ctx, known)
		return MirrorsWritten{IDs: known, Result: result, Err: err}
	})
	return nil
}

func cleanNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
