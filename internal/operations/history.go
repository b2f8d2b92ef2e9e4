package operations

import (
	"time"

	"github.com/blackwell-systems/voidstore/internal/xbps"
)

// DefaultMaxHistory bounds the history when no limit is configured.
const DefaultMaxHistory = 50

// History is a bounded, append-only log of operations, oldest first. It is
// owned by a single goroutine.
type History struct {
	limit  int
	nextID int64
	ops    []PackageOperation
	now    func() time.Time
}

// NewHistory creates a history keeping at most limit operations. A limit
// of zero or less uses DefaultMaxHistory.
func NewHistory(limit int) *History {
	h := &History{now: time.Now}
	h.SetLimit(limit)
	return h
}

// SetLimit changes the bound, trimming the oldest entries if needed.
func (h *History) SetLimit(limit int) {
	if limit <= 0 {
		limit = DefaultMaxHistory
	}
	h.limit = limit
	h.trim()
}

// Start records a new in-progress operation and returns a copy of it.
func (h *History) Start(pkg string, typ Type, command string) PackageOperation {
	h.nextID++
	op := PackageOperation{
		ID:        h.nextID,
		Package:   pkg,
		Type:      typ,
		Status:    StatusInProgress,
		Command:   command,
		StartedAt: h.now().UTC(),
	}
	h.ops = append(h.ops, op)
	h.trim()
	return op
}

// trim drops the oldest finalized operations until the history fits its
// bound. In-progress operations are never dropped, so the history may
// exceed the bound while more than limit of them are outstanding.
func (h *History) trim() {
	over := len(h.ops) - h.limit
	if over <= 0 {
		return
	}
	kept := make([]PackageOperation, 0, len(h.ops)-over)
	for _, op := range h.ops {
		if over > 0 && op.Status != StatusInProgress {
			over--
			continue
		}
		kept = append(kept, op)
	}
	h.ops = kept
}

// Complete finalizes the most recent in-progress operation for pkg. It
// returns false when there is none, so an operation is never finalized
// twice.
func (h *History) Complete(pkg string, result xbps.CommandResult, err error) (PackageOperation, bool) {
	defer h.trim()
	for i := len(h.ops) - 1; i >= 0; i-- {
		op := &h.ops[i]
		if op.Package != pkg || op.Status != StatusInProgress {
			continue
		}

		completed := h.now().UTC()
		op.CompletedAt = &completed
		op.Status, op.Error = Outcome(result, err)
		if err != nil {
			op.Stderr = err.Error()
		} else {
			op.Stdout = result.Stdout
			op.Stderr = result.Stderr
			op.ExitCode = result.ExitCode
			op.HasExitCode = true
		}
		return *op, true
	}
	return PackageOperation{}, false
}

// Recent returns the latest operation for pkg in any state.
func (h *History) Recent(pkg string) (PackageOperation, bool) {
	for i := len(h.ops) - 1; i >= 0; i-- {
		if h.ops[i].Package == pkg {
			return h.ops[i], true
		}
	}
	return PackageOperation{}, false
}

// RecentlyCompleted returns the latest operation for pkg if it finished
// within window of now.
func (h *History) RecentlyCompleted(pkg string, window time.Duration) (PackageOperation, bool) {
	op, ok := h.Recent(pkg)
	if !ok || op.CompletedAt == nil || h.now().Sub(*op.CompletedAt) > window {
		return PackageOperation{}, false
	}
	return op, true
}

// All returns every recorded operation, newest first.
func (h *History) All() []PackageOperation {
	out := make([]PackageOperation, len(h.ops))
	for i, op := range h.ops {
		out[len(h.ops)-1-i] = op
	}
	return out
}

// InProgress returns the operations that have not been finalized.
func (h *History) InProgress() []PackageOperation {
	var out []PackageOperation
	for _, op := range h.ops {
		if op.Status == StatusInProgress {
			out = append(out, op)
		}
	}
	return out
}

// Len returns the number of recorded operations.
func (h *History) Len() int { return len(h.ops) }

// Clear drops every recorded operation.
func (h *History) Clear() {
	h.ops = nil
}
