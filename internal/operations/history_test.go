package operations

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/blackwell-systems/voidstore/internal/xbps"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name       string
		result     xbps.CommandResult
		err        error
		wantStatus Status
		wantError  string
	}{
		{"success", xbps.CommandResult{Stdout: "ok"}, nil, StatusSuccess, ""},
		{"warning on clean exit", xbps.CommandResult{Stderr: "WARNING: foo is held"}, nil, StatusWarning, ""},
		{"stderr preferred", xbps.CommandResult{ExitCode: 1, Stdout: "out", Stderr: "  bad thing \n"}, nil, StatusFailed, "bad thing"},
		{"stdout fallback", xbps.CommandResult{ExitCode: 1, Stdout: "only stdout\n"}, nil, StatusFailed, "only stdout"},
		{"exit code fallback", xbps.CommandResult{ExitCode: 19}, nil, StatusFailed, "Exit code: 19"},
		{"launch error", xbps.CommandResult{}, errors.New("failed to launch pkexec: not found"), StatusFailed, "failed to launch pkexec: not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := Outcome(tt.result, tt.err)
			if status != tt.wantStatus || msg != tt.wantError {
				t.Errorf("Outcome() = (%s, %q), want (%s, %q)", status, msg, tt.wantStatus, tt.wantError)
			}
		})
	}
}

func TestCompleteFinalizesOnce(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	h := NewHistory(0)
	h.now = fixedClock(start)

	h.Start("foo", Install(), "pkexec xbps-install -y foo")
	h.now = fixedClock(start.Add(3 * time.Second))

	op, ok := h.Complete("foo", xbps.CommandResult{Stdout: "done"}, nil)
	if !ok {
		t.Fatal("Complete() found no in-progress operation")
	}
	if op.Status != StatusSuccess || !op.HasExitCode || op.Stdout != "done" {
		t.Errorf("finalized op = %+v", op)
	}
	if op.Duration() != 3*time.Second {
		t.Errorf("Duration() = %v, want 3s", op.Duration())
	}

	if _, ok := h.Complete("foo", xbps.CommandResult{ExitCode: 1}, nil); ok {
		t.Error("second Complete() should not find an in-progress operation")
	}
	recent, _ := h.Recent("foo")
	if recent.Status != StatusSuccess {
		t.Errorf("finalized operation was mutated: %+v", recent)
	}
}

func TestCompletePicksMostRecentInProgress(t *testing.T) {
	h := NewHistory(10)
	first := h.Start("foo", Install(), "install foo")
	second := h.Start("foo", Remove(), "remove foo")

	op, ok := h.Complete("foo", xbps.CommandResult{ExitCode: 2, Stderr: "denied"}, nil)
	if !ok || op.ID != second.ID {
		t.Fatalf("Complete() = %+v, want operation %d", op, second.ID)
	}
	if op.Error != "denied" || op.ExitCode != 2 {
		t.Errorf("failed op = %+v", op)
	}

	op, ok = h.Complete("foo", xbps.CommandResult{}, errors.New("spawn failed"))
	if !ok || op.ID != first.ID {
		t.Fatalf("Complete() = %+v, want operation %d", op, first.ID)
	}
	if op.HasExitCode || op.Stderr != "spawn failed" {
		t.Errorf("launch failure op = %+v", op)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("pkg%d", i)
		h.Start(name, Install(), "")
		h.Complete(name, xbps.CommandResult{}, nil)
	}
	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}

	all := h.All()
	want := []string{"pkg4", "pkg3", "pkg2"}
	for i, op := range all {
		if op.Package != want[i] {
			t.Errorf("All()[%d] = %s, want %s", i, op.Package, want[i])
		}
	}

	h.SetLimit(1)
	if h.Len() != 1 || h.All()[0].Package != "pkg4" {
		t.Errorf("after SetLimit(1): %+v", h.All())
	}

	h.Clear()
	if h.Len() != 0 {
		t.Error("Clear() left entries behind")
	}
}

func TestTrimKeepsInProgressOperations(t *testing.T) {
	h := NewHistory(2)
	h.Start("done", Install(), "")
	h.Complete("done", xbps.CommandResult{}, nil)
	for i := 0; i < 3; i++ {
		h.Start(fmt.Sprintf("pending%d", i), Remove(), "")
	}

	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 in-progress operations kept", h.Len())
	}
	if _, ok := h.Recent("done"); ok {
		t.Error("finalized operation should be trimmed first")
	}
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("pending%d", i)
		if _, ok := h.Complete(name, xbps.CommandResult{}, nil); !ok {
			t.Errorf("Complete(%s) found nothing to finalize", name)
		}
	}
	if h.Len() != 2 {
		t.Errorf("Len() after completing = %d, want 2", h.Len())
	}
	if all := h.All(); all[0].Package != "pending2" || all[1].Package != "pending1" {
		t.Errorf("kept %s, %s; want the newest two", all[0].Package, all[1].Package)
	}
}

func TestRecentlyCompleted(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	h := NewHistory(0)
	h.now = fixedClock(base)
	h.Start("foo", Update("1.0_1", "1.1_1"), "")

	if _, ok := h.RecentlyCompleted("foo", 5*time.Minute); ok {
		t.Error("in-progress operation should not count as recently completed")
	}
	h.Complete("foo", xbps.CommandResult{}, nil)

	h.now = fixedClock(base.Add(time.Minute))
	if _, ok := h.RecentlyCompleted("foo", 5*time.Minute); !ok {
		t.Error("operation finished a minute ago should be recent")
	}
	h.now = fixedClock(base.Add(10 * time.Minute))
	if _, ok := h.RecentlyCompleted("foo", 5*time.Minute); ok {
		t.Error("operation finished ten minutes ago should not be recent")
	}
}

func TestTypeString(t *testing.T) {
	if got := Update("1.0_1", "1.1_1").String(); got != "update 1.0_1 -> 1.1_1" {
		t.Errorf("String() = %q", got)
	}
	if got := Remove().String(); got != "remove" {
		t.Errorf("String() = %q", got)
	}
}
