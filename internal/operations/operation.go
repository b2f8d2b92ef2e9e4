// Package operations records install, remove and update attempts and
// their captured outcomes.
package operations

import (
	"fmt"
	"strings"
	"time"

	"github.com/blackwell-systems/voidstore/internal/xbps"
)

// Kind is the kind of package operation.
type Kind string

const (
	KindInstall Kind = "install"
	KindRemove  Kind = "remove"
	KindUpdate  Kind = "update"
)

// Status is the lifecycle state of an operation.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusWarning    Status = "warning"
	StatusFailed     Status = "failed"
)

// Type describes what an operation does. FromVersion and ToVersion are
// only meaningful for updates.
type Type struct {
	Kind        Kind   `json:"kind"`
	FromVersion string `json:"from_version,omitempty"`
	ToVersion   string `json:"to_version,omitempty"`
}

// Install returns the install operation type.
func Install() Type { return Type{Kind: KindInstall} }

// Remove returns the remove operation type.
func Remove() Type { return Type{Kind: KindRemove} }

// Update returns an update operation type between two versions.
func Update(from, to string) Type {
	return Type{Kind: KindUpdate, FromVersion: from, ToVersion: to}
}

func (t Type) String() string {
	if t.Kind == KindUpdate && (t.FromVersion != "" || t.ToVersion != "") {
		return fmt.Sprintf("update %s -> %s", t.FromVersion, t.ToVersion)
	}
	return string(t.Kind)
}

// PackageOperation is one attempt to change a package. It is immutable
// once finalized.
type PackageOperation struct {
	ID          int64      `json:"id"`
	Package     string     `json:"package"`
	Type        Type       `json:"type"`
	Status      Status     `json:"status"`
	Command     string     `json:"command"`
	Stdout      string     `json:"stdout,omitempty"`
	Stderr      string     `json:"stderr,omitempty"`
	ExitCode    int        `json:"exit_code"`
	HasExitCode bool       `json:"has_exit_code"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Finalized reports whether the operation has completed.
func (op PackageOperation) Finalized() bool {
	return op.CompletedAt != nil
}

// Duration returns how long the operation ran, or zero while it is still
// in progress.
func (op PackageOperation) Duration() time.Duration {
	if op.CompletedAt == nil {
		return 0
	}
	return op.CompletedAt.Sub(op.StartedAt)
}

// Outcome derives the final status and error text for a command result.
// A launch error fails the operation with the error text. A non-zero exit
// fails it with stderr, else stdout, else the exit code. A clean exit that
// printed a warning on stderr is a warning.
func Outcome(result xbps.CommandResult, err error) (Status, string) {
	if err != nil {
		return StatusFailed, err.Error()
	}
	if !result.Success() {
		if s := strings.TrimSpace(result.Stderr); s != "" {
			return StatusFailed, s
		}
		if s := strings.TrimSpace(result.Stdout); s != "" {
			return StatusFailed, s
		}
		return StatusFailed, fmt.Sprintf("Exit code: %d", result.ExitCode)
	}
	if strings.Contains(strings.ToLower(result.Stderr), "warning") {
		return StatusWarning, ""
	}
	return StatusSuccess, ""
}
