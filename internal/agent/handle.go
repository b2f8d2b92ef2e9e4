package agent

import (
	"fmt"
	"slices"
	"strings"

	"github.com/blackwell-systems/voidstore/internal/logger"
	"github.com/blackwell-systems/voidstore/internal/operations"
	"github.com/blackwell-systems/voidstore/internal/status"
	"github.com/blackwell-systems/voidstore/internal/xbps"
)

// handle applies one message to the state.
func (a *Agent) handle(msg Message) {
	if a.stopped() {
		logger.Debug("agent: stopped, dropping %s result", msg.kind())
		return
	}
	a.recorder.MessageHandled(msg.kind())

	switch m := msg.(type) {
	case SearchFinished:
		a.onSearchFinished(m)
	case InstalledFinished:
		a.onInstalledFinished(m)
	case InstallFinished:
		a.finishSingle(m.Package, operations.KindInstall, m.Result, m.Err)
	case RemoveFinished:
		a.finishSingle(m.Package, operations.KindRemove, m.Result, m.Err)
	case RemoveBatchFinished:
		a.onRemoveBatchFinished(m)
	case DetailLoaded:
		a.onDetailLoaded(m)
	case UpdatesRefreshed:
		a.onUpdatesRefreshed(m)
	case UpdateLogLine:
		a.onUpdateLogLine(m)
	case UpdateFinished:
		a.onUpdateFinished(m)
	case SpotlightLoaded:
		a.onSpotlightLoaded(m)
	case SpotlightFailed:
		a.onSpotlightFailed(m.Err)
	case MaintenanceFinished:
		a.onMaintenanceFinished(m)
	case MirrorsDetected:
		a.onMirrorsDetected(m)
	case MirrorsWritten:
		a.onMirrorsWritten(m)
	case WorkerPanicked:
		a.onWorkerPanicked(m)
	default:
		logger.Error("agent: unhandled message %T", msg)
	}
}

func (a *Agent) onSearchFinished(m SearchFinished) {
	s := a.state
	if m.Seq != a.searchSeq {
		logger.Debug("agent: dropping stale results for %q", m.Query)
		return
	}
	s.Searching = false
	if m.Err != nil {
		s.SearchResults = nil
		s.SearchError = m.Err.Error()
		a.emit("search", "", "search failed: "+s.SearchError)
		return
	}
	s.SearchError = ""
	s.SearchResults = m.Results
	s.flagInstalled()
}

func (a *Agent) onInstalledFinished(m InstalledFinished) {
	s := a.state
	s.InstalledLoading = false
	if m.Err != nil {
		s.InstalledError = m.Err.Error()
		a.emit("installed", "", "failed to list installed packages: "+s.InstalledError)
		return
	}
	s.InstalledError = ""
	s.setInstalled(m.Packages)
}

// complete finalizes the history entry of pkg and persists it. When no
// entry is in progress the status is derived from the result alone.
func (a *Agent) complete(pkg string, result xbps.CommandResult, err error) (operations.Status, string) {
	op, ok := a.state.History.Complete(pkg, result, err)
	if !ok {
		return operations.Outcome(result, err)
	}
	a.persist(op)
	return op.Status, op.Error
}

func (a *Agent) finishSingle(pkg string, kind operations.Kind, result xbps.CommandResult, err error) {
	s := a.state
	delete(s.Pending, pkg)
	st, errText := a.complete(pkg, result, err)
	a.emitOutcome(string(kind), pkg, st, errText)
	if st == operations.StatusFailed {
		return
	}
	switch kind {
	case operations.KindInstall:
		s.InstalledSet[pkg] = true
		s.flagInstalled()
		a.RefreshInstalled()
	case operations.KindRemove:
		s.markRemoved(pkg)
	}
}

func (a *Agent) onRemoveBatchFinished(m RemoveBatchFinished) {
	s := a.state
	failed := false
	for _, pkg := range m.Packages {
		delete(s.Pending, pkg)
		st, errText := a.complete(pkg, m.Result, m.Err)
		a.emitOutcome("remove", pkg, st, errText)
		failed = failed || st == operations.StatusFailed
	}
	if !failed {
		s.markRemoved(m.Packages...)
	}
}

func (a *Agent) emitOutcome(kind, pkg string, st operations.Status, errText string) {
	switch st {
	case operations.StatusFailed:
		a.emit(kind, pkg, fmt.Sprintf("%s failed: %s", kind, errText))
	case operations.StatusWarning:
		a.emit(kind, pkg, kind+" finished with warnings")
	default:
		a.emit(kind, pkg, kind+" finished")
	}
}

func (a *Agent) onDetailLoaded(m DetailLoaded) {
	s := a.state
	if m.Name != s.Selected || m.Remote != s.SelectedRemote {
		logger.Debug("agent: dropping detail for %s, no longer selected", m.Name)
		return
	}
	s.DetailLoading = false
	if m.Err != nil {
		s.DetailError = m.Err.Error()
		return
	}
	s.DetailError = ""
	s.InstalledDetail = m.Installed
	s.DiscoverDetail = m.Discover
}

func (a *Agent) onUpdatesRefreshed(m UpdatesRefreshed) {
	s := a.state
	s.UpdatesChecking = false
	if m.Err != nil {
		s.UpdatesError = m.Err.Error()
		a.emit("updates", "", "update check failed: "+s.UpdatesError)
		return
	}
	s.UpdatesError = ""
	s.Updates = m.Updates
	s.UpdatesCheckedAt = a.now()
	a.emit("updates", "", fmt.Sprintf("%d updates available", len(m.Updates)))
}

func (a *Agent) onUpdateLogLine(m UpdateLogLine) {
	s := a.state
	s.appendLog(m.Line)
	for _, name := range s.UpdateStatus.OnLogLine(m.Line) {
		st, _ := s.UpdateStatus.Get(name)
		a.emit("update_status", name, st.Label())
	}
}

func (a *Agent) onUpdateFinished(m UpdateFinished) {
	s := a.state
	s.UpdateRunning = false
	s.UpdateBatch = nil

	st, errText := operations.Outcome(m.Result, m.Err)
	if st == operations.StatusFailed {
		s.UpdateStatus.Set(m.Packages, status.Failed)
		s.UpdateError = errText
	} else {
		s.UpdateStatus.Set(m.Packages, status.Completed)
		s.UpdateStatus.Clear(m.Packages)
		s.UpdateError = ""
		s.dropUpdates(m.Packages)
	}
	for _, pkg := range m.Packages {
		a.complete(pkg, m.Result, m.Err)
	}
	a.emitOutcome("update", "", st, errText)
	a.RefreshInstalled()
}

func (a *Agent) onSpotlightLoaded(m SpotlightLoaded) {
	mgr := a.state.Spotlight
	mgr.Finish(m.Outcome)
	mgr.MarkInstalled(a.state.InstalledSet)
	a.recorder.SpotlightRefreshed("success", mgr.Len())
	if m.Outcome.PersistErr != nil {
		a.emit("spotlight", "", "spotlight refreshed but not saved: "+m.Outcome.PersistErr.Error())
		return
	}
	a.emit("spotlight", "", fmt.Sprintf("spotlight refreshed, %d packages cached", mgr.Len()))
}

func (a *Agent) onSpotlightFailed(err error) {
	mgr := a.state.Spotlight
	mgr.Fail(err)
	a.recorder.SpotlightRefreshed("failure", mgr.Len())
	a.emit("spotlight", "", "spotlight refresh failed: "+err.Error())
}

func (a *Agent) onMaintenanceFinished(m MaintenanceFinished) {
	st, errText := operations.Outcome(m.Result, m.Err)
	res := MaintenanceResult{Result: m.Result, Finished: a.now()}
	if st == operations.StatusFailed {
		res.Error = errText
	}
	a.state.Maintenance[m.Task] = res
	a.emitOutcome(string(m.Task), "", st, errText)
	if m.Task == TaskRemoveOrphans && st != operations.StatusFailed {
		a.RefreshInstalled()
	}
}

func (a *Agent) onMirrorsDetected(m MirrorsDetected) {
	s := a.state
	s.Mirrors.Detecting = false
	if m.Err != nil {
		s.Mirrors.Error = m.Err.Error()
		a.emit("mirrors", "", "mirror detection failed: "+s.Mirrors.Error)
		return
	}
	s.Mirrors.Error = ""
	s.Mirrors.Detected = m.IDs
	if len(m.IDs) == 0 || slices.Equal(m.IDs, s.Settings.MirrorSelection) {
		return
	}
	s.Settings.MirrorSelection = append([]string{}, m.IDs...)
	a.applyMirrors()
	a.saveSettings()
	a.emit("mirrors", "", "using configured mirrors: "+strings.Join(m.IDs, ", "))
}

func (a *Agent) onMirrorsWritten(m MirrorsWritten) {
	s := a.state
	s.Mirrors.Applying = false
	st, errText := operations.Outcome(m.Result, m.Err)
	if st == operations.StatusFailed {
		s.Mirrors.Error = errText
		a.emit("mirrors", "", "failed to write repository configuration: "+errText)
		return
	}
	s.Mirrors.Error = ""
	s.Mirrors.Detected = m.IDs
	a.emit("mirrors", "", "repository configuration written")
}

// onWorkerPanicked unwinds whatever the panicked task kind left pending.
// Install and remove panics fail every in-progress operation of that kind
// since the message does not say which package it was for.
func (a *Agent) onWorkerPanicked(m WorkerPanicked) {
	s := a.state
	err := fmt.Errorf("%s task panicked: %s", m.Kind, m.Value)
	logger.Error("agent: %v", err)

	switch m.Kind {
	case "search":
		s.Searching = false
		s.SearchError = err.Error()
	case "installed":
		s.InstalledLoading = false
		s.InstalledError = err.Error()
	case "install", "remove":
		kind := operations.Kind(m.Kind)
		for _, op := range s.History.InProgress() {
			if op.Type.Kind != kind {
				continue
			}
			delete(s.Pending, op.Package)
			a.complete(op.Package, xbps.CommandResult{}, err)
		}
	case "detail":
		s.DetailLoading = false
		s.DetailError = err.Error()
	case "updates":
		s.UpdatesChecking = false
		s.UpdatesError = err.Error()
	case "update":
		a.onUpdateFinished(UpdateFinished{Packages: s.UpdateBatch, All: s.UpdateAll, Err: err})
	case "spotlight":
		a.onSpotlightFailed(err)
		return
	case "mirrors":
		s.Mirrors.Detecting = false
		s.Mirrors.Error = err.Error()
	case "mirrors_apply":
		s.Mirrors.Applying = false
		s.Mirrors.Error = err.Error()
	case "maintenance":
		for task, res := range s.Maintenance {
			if res.Running {
				s.Maintenance[task] = MaintenanceResult{Error: err.Error(), Finished: a.now()}
			}
		}
	}
	a.emit("panic", "", err.Error())
}
