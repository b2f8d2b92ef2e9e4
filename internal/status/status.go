// Package status tracks per-package progress while an update batch runs,
// driven by the lines xbps-install prints.
package status

import "fmt"

// UpdateStatus is the progress stage of one package in an update batch.
type UpdateStatus int

const (
	Queued UpdateStatus = iota
	Preparing
	Downloading
	Installing
	Verifying
	Completed
	Failed
)

var statusNames = [...]string{
	Queued:      "queued",
	Preparing:   "preparing",
	Downloading: "downloading",
	Installing:  "installing",
	Verifying:   "verifying",
	Completed:   "completed",
	Failed:      "failed",
}

var statusLabels = [...]string{
	Queued:      "Queued",
	Preparing:   "Preparing…",
	Downloading: "Downloading…",
	Installing:  "Installing…",
	Verifying:   "Verifying…",
	Completed:   "Updated",
	Failed:      "Failed",
}

func (s UpdateStatus) String() string {
	if s < Queued || s > Failed {
		return "unknown"
	}
	return statusNames[s]
}

// Label is the short human-readable form shown next to a package.
func (s UpdateStatus) Label() string {
	if s < Queued || s > Failed {
		return ""
	}
	return statusLabels[s]
}

// MarshalText encodes the status by name.
func (s UpdateStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *UpdateStatus) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if name == string(b) {
			*s = UpdateStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown update status %q", b)
}

// Terminal reports whether no further transitions are expected.
func (s UpdateStatus) Terminal() bool {
	return s == Completed || s == Failed
}

// ShouldReplace reports whether s may overwrite current. Progress never
// moves backwards; Failed always wins.
func (s UpdateStatus) ShouldReplace(current UpdateStatus) bool {
	return s == Failed || s >= current
}
