package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/blackwell-systems/voidstore/internal/operations"
)

// timeLayout has fixed-width fractional seconds so stored timestamps sort
// lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// InsertOperation records a finalized operation and returns its row id.
// The in-memory ID of op is not stored.
func (s *Store) InsertOperation(op operations.PackageOperation) (int64, error) {
	query := `
		INSERT INTO operations
		(package, kind, from_version, to_version, status, command, stdout, stderr, exit_code, error_message, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var exitCode sql.NullInt64
	if op.HasExitCode {
		exitCode = sql.NullInt64{Int64: int64(op.ExitCode), Valid: true}
	}
	var completedAt sql.NullString
	if op.CompletedAt != nil {
		completedAt = sql.NullString{String: op.CompletedAt.UTC().Format(timeLayout), Valid: true}
	}

	result, err := s.db.Exec(query,
		op.Package,
		string(op.Type.Kind),
		op.Type.FromVersion,
		op.Type.ToVersion,
		string(op.Status),
		op.Command,
		op.Stdout,
		op.Stderr,
		exitCode,
		op.Error,
		op.StartedAt.UTC().Format(timeLayout),
		completedAt,
	)
	if err != nil {
		return 0, wrapErr(fmt.Sprintf("failed to insert operation for %s", op.Package), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get operation id: %w", err)
	}
	return id, nil
}

const operationColumns = `id, package, kind, from_version, to_version, status, command, stdout, stderr, exit_code, error_message, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (operations.PackageOperation, error) {
	var op operations.PackageOperation
	var kind, status, startedAt string
	var fromVersion, toVersion, command, stdout, stderr, errMsg, completedAt sql.NullString
	var exitCode sql.NullInt64

	err := row.Scan(
		&op.ID,
		&op.Package,
		&kind,
		&fromVersion,
		&toVersion,
		&status,
		&command,
		&stdout,
		&stderr,
		&exitCode,
		&errMsg,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return op, err
	}

	op.Type = operations.Type{
		Kind:        operations.Kind(kind),
		FromVersion: fromVersion.String,
		ToVersion:   toVersion.String,
	}
	op.Status = operations.Status(status)
	op.Command = command.String
	op.Stdout = stdout.String
	op.Stderr = stderr.String
	op.Error = errMsg.String
	if exitCode.Valid {
		op.ExitCode = int(exitCode.Int64)
		op.HasExitCode = true
	}

	op.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return op, fmt.Errorf("failed to parse started_at for %s: %w", op.Package, err)
	}
	if completedAt.Valid && completedAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return op, fmt.Errorf("failed to parse completed_at for %s: %w", op.Package, err)
		}
		op.CompletedAt = &t
	}
	return op, nil
}

// ListOperations returns up to limit operations, newest first. A limit of
// zero or less returns every row.
func (s *Store) ListOperations(limit int) ([]operations.PackageOperation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrapErr("failed to list operations", err)
	}
	defer rows.Close()

	var ops []operations.PackageOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation row: %w", err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return ops, nil
}

// ListPackageOperations returns the operations recorded for pkg, newest
// first.
func (s *Store) ListPackageOperations(pkg string) ([]operations.PackageOperation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE package = ? ORDER BY started_at DESC, id DESC`

	rows, err := s.db.Query(query, pkg)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("failed to list operations for %s", pkg), err)
	}
	defer rows.Close()

	var ops []operations.PackageOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation row: %w", err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return ops, nil
}

// GetOperation retrieves an operation by id.
func (s *Store) GetOperation(id int64) (operations.PackageOperation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE id = ?`

	op, err := scanOperation(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return op, fmt.Errorf("operation %d not found", id)
	}
	if err != nil {
		return op, wrapErr(fmt.Sprintf("failed to get operation %d", id), err)
	}
	return op, nil
}

// PruneOperations deletes all but the newest keep operations and returns
// the number of rows removed.
func (s *Store) PruneOperations(keep int) (int64, error) {
	query := `
		DELETE FROM operations
		WHERE id NOT IN (
			SELECT id FROM operations ORDER BY started_at DESC, id DESC LIMIT ?
		)
	`

	result, err := s.db.Exec(query, keep)
	if err != nil {
		return 0, wrapErr("failed to prune operations", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// DeleteOperations removes every recorded operation.
func (s *Store) DeleteOperations() error {
	if _, err := s.db.Exec(`DELETE FROM operations`); err != nil {
		return wrapErr("failed to delete operations", err)
	}
	return nil
}

// CountOperations returns the number of rows per status.
func (s *Store) CountOperations() (map[operations.Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM operations GROUP BY status`)
	if err != nil {
		return nil, wrapErr("failed to count operations", err)
	}
	defer rows.Close()

	counts := make(map[operations.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[operations.Status(status)] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}
	return counts, nil
}
