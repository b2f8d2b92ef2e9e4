package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/blackwell-systems/voidstore/internal/operations"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.CreateSchema(); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	return s
}

func finishedOp(pkg string, status operations.Status, started time.Time) operations.PackageOperation {
	completed := started.Add(2 * time.Second)
	return operations.PackageOperation{
		Package:     pkg,
		Type:        operations.Update("1.0_1", "1.1_1"),
		Status:      status,
		Command:     "pkexec xbps-install -Su " + pkg,
		Stdout:      "ok",
		ExitCode:    0,
		HasExitCode: true,
		StartedAt:   started,
		CompletedAt: &completed,
	}
}

func TestListOperations_NoSchema_ReturnsErrNotInitialized(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	// Do NOT call CreateSchema; simulate an uninitialized database.
	_, err = s.ListOperations(10)
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ListOperations() error = %v; want ErrNotInitialized", err)
	}

	_, err = s.InsertOperation(finishedOp("foo", operations.StatusSuccess, time.Now()))
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("InsertOperation() error = %v; want ErrNotInitialized", err)
	}
}

func TestCreateSchemaIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateSchema(); err != nil {
		t.Errorf("second CreateSchema() failed: %v", err)
	}
}

func TestInsertAndGetOperation(t *testing.T) {
	s := newTestStore(t)
	started := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	op := finishedOp("firefox", operations.StatusFailed, started)
	op.Stderr = "ERROR: transaction aborted"
	op.Error = "ERROR: transaction aborted"
	op.ExitCode = 1

	id, err := s.InsertOperation(op)
	if err != nil {
		t.Fatalf("InsertOperation() failed: %v", err)
	}

	got, err := s.GetOperation(id)
	if err != nil {
		t.Fatalf("GetOperation() failed: %v", err)
	}
	if got.Package != "firefox" || got.Status != operations.StatusFailed {
		t.Errorf("got %+v", got)
	}
	if got.Type != operations.Update("1.0_1", "1.1_1") {
		t.Errorf("Type = %+v", got.Type)
	}
	if !got.HasExitCode || got.ExitCode != 1 || got.Error != op.Error {
		t.Errorf("exit code/error not persisted: %+v", got)
	}
	if !got.StartedAt.Equal(started) || got.CompletedAt == nil || got.Duration() != 2*time.Second {
		t.Errorf("timestamps = %v / %v", got.StartedAt, got.CompletedAt)
	}
}

func TestInsertOperationWithoutExitCode(t *testing.T) {
	s := newTestStore(t)
	op := operations.PackageOperation{
		Package:   "foo",
		Type:      operations.Install(),
		Status:    operations.StatusFailed,
		Error:     "failed to launch pkexec",
		StartedAt: time.Now(),
	}
	id, err := s.InsertOperation(op)
	if err != nil {
		t.Fatalf("InsertOperation() failed: %v", err)
	}
	got, err := s.GetOperation(id)
	if err != nil {
		t.Fatalf("GetOperation() failed: %v", err)
	}
	if got.HasExitCode || got.CompletedAt != nil {
		t.Errorf("got %+v, want no exit code and no completion time", got)
	}
}

func TestGetOperationNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetOperation(42); err == nil {
		t.Error("GetOperation() should fail for a missing id")
	}
}

func TestListAndPruneOperations(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, pkg := range []string{"a", "b", "c", "d"} {
		if _, err := s.InsertOperation(finishedOp(pkg, operations.StatusSuccess, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("InsertOperation(%s) failed: %v", pkg, err)
		}
	}

	ops, err := s.ListOperations(2)
	if err != nil {
		t.Fatalf("ListOperations() failed: %v", err)
	}
	if len(ops) != 2 || ops[0].Package != "d" || ops[1].Package != "c" {
		t.Errorf("ListOperations(2) = %v", packages(ops))
	}

	removed, err := s.PruneOperations(3)
	if err != nil {
		t.Fatalf("PruneOperations() failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("PruneOperations() removed %d rows, want 1", removed)
	}

	ops, _ = s.ListOperations(0)
	if len(ops) != 3 || ops[2].Package != "b" {
		t.Errorf("after prune = %v", packages(ops))
	}

	perPkg, err := s.ListPackageOperations("c")
	if err != nil || len(perPkg) != 1 {
		t.Errorf("ListPackageOperations(c) = %v, %v", packages(perPkg), err)
	}

	if err := s.DeleteOperations(); err != nil {
		t.Fatalf("DeleteOperations() failed: %v", err)
	}
	ops, _ = s.ListOperations(0)
	if len(ops) != 0 {
		t.Errorf("DeleteOperations() left %d rows", len(ops))
	}
}

func TestCountOperations(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	s.InsertOperation(finishedOp("a", operations.StatusSuccess, now))
	s.InsertOperation(finishedOp("b", operations.StatusSuccess, now))
	s.InsertOperation(finishedOp("c", operations.StatusWarning, now))

	counts, err := s.CountOperations()
	if err != nil {
		t.Fatalf("CountOperations() failed: %v", err)
	}
	if counts[operations.StatusSuccess] != 2 || counts[operations.StatusWarning] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestOpenCreatesSchemaOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operations.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.InsertOperation(finishedOp("foo", operations.StatusSuccess, time.Now())); err != nil {
		t.Fatalf("InsertOperation() failed: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	ops, err := s.ListOperations(0)
	if err != nil || len(ops) != 1 {
		t.Errorf("ListOperations() after reopen = %d, %v", len(ops), err)
	}
}

func packages(ops []operations.PackageOperation) []string {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Package
	}
	return names
}
