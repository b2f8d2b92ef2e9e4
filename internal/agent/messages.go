package agent

import (
	"github.com/blackwell-systems/voidstore/internal/spotlight"
	"github.com/blackwell-systems/voidstore/internal/xbps"
)

// Message is the outcome of a background task, delivered to the owner
// goroutine. The set of variants is closed: every type implementing
// Message is declared in this file and handled in Agent.handle.
type Message interface {
	isMessage()
	kind() string
}

// SearchFinished carries the results of a repository search. Seq
// identifies the request so results of superseded searches are dropped.
type SearchFinished struct {
	Query   string
	Seq     uint64
	Results []xbps.PackageRecord
	Err     error
}

// InstalledFinished carries the installed package list.
type InstalledFinished struct {
	Packages []xbps.PackageRecord
	Err      error
}

// InstallFinished reports the end of a single-package install.
type InstallFinished struct {
	Package string
	Result  xbps.CommandResult
	Err     error
}

// RemoveFinished reports the end of a single-package removal.
type RemoveFinished struct {
	Package string
	Result  xbps.CommandResult
	Err     error
}

// RemoveBatchFinished reports the end of a multi-package removal run as one
// transaction.
type RemoveBatchFinished struct {
	Packages []string
	Result   xbps.CommandResult
	Err      error
}

// DetailLoaded carries a detail lookup. Exactly one of Installed and
// Discover is set unless Err is non-nil.
type DetailLoaded struct {
	Name      string
	Remote    bool
	Installed *xbps.InstalledDetail
	Discover  *xbps.DiscoverDetail
	Err       error
}

// UpdatesRefreshed carries the result of an update check.
type UpdatesRefreshed struct {
	Updates []xbps.PackageRecord
	Err     error
}

// UpdateLogLine is one line streamed from a running update batch.
type UpdateLogLine struct {
	Line   string
	Stderr bool
}

// UpdateFinished reports the end of an update batch with the accumulated
// output.
type UpdateFinished struct {
	Packages []string
	All      bool
	Result   xbps.CommandResult
	Err      error
}

// SpotlightLoaded carries a successful spotlight refresh.
type SpotlightLoaded struct {
	Outcome spotlight.Outcome
}

// SpotlightFailed reports a failed spotlight refresh.
type SpotlightFailed struct {
	Err error
}

// MaintenanceFinished reports the end of a maintenance task.
type MaintenanceFinished struct {
	Task   MaintenanceTask
	Result xbps.CommandResult
	Err    error
}

// MirrorsDetected carries the mirrors found in the active repository
// configuration.
type MirrorsDetected struct {
	IDs []string
	Err error
}

// MirrorsWritten reports the end of a repository configuration write.
type MirrorsWritten struct {
	IDs    []string
	Result xbps.CommandResult
	Err    error
}

// WorkerPanicked reports a background task that panicked instead of
// returning a message.
type WorkerPanicked struct {
	Kind  string
	Value string
}

func (SearchFinished) isMessage()      {}
func (InstalledFinished) isMessage()   {}
func (InstallFinished) isMessage()     {}
func (RemoveFinished) isMessage()      {}
func (RemoveBatchFinished) isMessage() {}
func (DetailLoaded) isMessage()        {}
func (UpdatesRefreshed) isMessage()    {}
func (UpdateLogLine) isMessage()       {}
func (UpdateFinished) isMessage()      {}
func (SpotlightLoaded) isMessage()     {}
func (SpotlightFailed) isMessage()     {}
func (MaintenanceFinished) isMessage() {}
func (MirrorsDetected) isMessage()     {}
func (MirrorsWritten) isMessage()      {}
func (WorkerPanicked) isMessage()      {}

func (SearchFinished) kind() string      { return "search" }
func (InstalledFinished) kind() string   { return "installed" }
func (InstallFinished) kind() string     { return "install" }
func (RemoveFinished) kind() string      { return "remove" }
func (RemoveBatchFinished) kind() string { return "remove_batch" }
func (DetailLoaded) kind() string        { return "detail" }
func (UpdatesRefreshed) kind() string    { return "updates" }
func (UpdateLogLine) kind() string       { return "update_log" }
func (UpdateFinished) kind() string      { return "update" }
func (SpotlightLoaded) kind() string     { return "spotlight_loaded" }
func (SpotlightFailed) kind() string     { return "spotlight_failed" }
func (MaintenanceFinished) kind() string { return "maintenance" }
func (MirrorsDetected) kind() string     { return "mirrors" }
func (MirrorsWritten) kind() string      { return "mirrors_apply" }
func (WorkerPanicked) kind() string      { return "panic" }
