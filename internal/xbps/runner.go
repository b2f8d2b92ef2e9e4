package xbps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner executes external programs. ExecRunner is the real implementation;
// tests substitute a fake.
type Runner interface {
	// Output runs the program to completion and captures its output.
	// A program that cannot be started yields an error; a non-zero exit
	// does not.
	Output(ctx context.Context, env []string, name string, args ...string) (CommandResult, error)

	// Command prepares the program for streaming execution.
	Command(ctx context.Context, env []string, name string, args ...string) *exec.Cmd
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

// Output implements Runner.
func (ExecRunner) Output(ctx context.Context, env []string, name string, args ...string) (CommandResult, error) {
	cmd := ExecRunner{}.Command(ctx, env, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("failed to launch %s: %w", name, err)
	}
	return result, nil
}

// Command implements Runner. Standard input is not connected.
func (ExecRunner) Command(ctx context.Context, env []string, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	return cmd
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Program string
	Code    int
	Detail  string
}

func (e *ExitError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("%s exited with code %d", e.Program, e.Code)
}

// CheckResult turns a non-zero exit into an *ExitError carrying the
// trimmed stderr, falling back to stdout.
func CheckResult(program string, result CommandResult) error {
	if result.Success() {
		return nil
	}
	detail := strings.TrimSpace(StripANSI(result.Stderr))
	if detail == "" {
		detail = strings.TrimSpace(StripANSI(result.Stdout))
	}
	return &ExitError{Program: program, Code: result.ExitCode, Detail: detail}
}
