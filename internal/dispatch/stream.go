package dispatch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/blackwell-systems/voidstore/internal/xbps"
)

// maxLineBytes bounds a single streamed line. Longer lines are dropped and
// the rest of that stream is discarded so the child never blocks on a full
// pipe.
const maxLineBytes = 1 << 20

// StreamLine is one non-empty line of process output.
type StreamLine struct {
	Text   string
	Stderr bool
}

// StartError reports a process that could not be launched at all.
type StartError struct {
	Program string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Program, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// RunStream starts cmd, forwards each output line to emit as soon as it is
// read and blocks until the process exits. stdout and stderr are read on
// their own goroutines; line order is preserved within each stream but not
// across them. Trailing carriage returns are trimmed and empty lines are
// skipped. The returned result holds the forwarded lines of each stream
// joined by newlines. A non-zero exit is reported in the result, not as an
// error.
func RunStream(cmd *exec.Cmd, emit func(StreamLine)) (xbps.CommandResult, error) {
	cmd.Stdin = nil
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return xbps.CommandResult{}, &StartError{Program: cmd.Path, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return xbps.CommandResult{}, &StartError{Program: cmd.Path, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return xbps.CommandResult{}, &StartError{Program: cmd.Path, Err: err}
	}

	events := make(chan StreamLine)
	var readers sync.WaitGroup
	readers.Add(2)
	go readLines(stdout, false, events, &readers)
	go readLines(stderr, true, events, &readers)
	go func() {
		readers.Wait()
		close(events)
	}()

	var outAcc, errAcc []string
	for ev := range events {
		if ev.Stderr {
			errAcc = append(errAcc, ev.Text)
		} else {
			outAcc = append(outAcc, ev.Text)
		}
		emit(ev)
	}

	result := xbps.CommandResult{
		Stdout: strings.Join(outAcc, "\n"),
		Stderr: strings.Join(errAcc, "\n"),
	}
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("failed to wait for %s: %w", cmd.Path, err)
	}
	return result, nil
}

func readLines(r io.Reader, isStderr bool, out chan<- StreamLine, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" {
			continue
		}
		out <- StreamLine{Text: text, Stderr: isStderr}
	}
	if sc.Err() != nil {
		_, _ = io.Copy(io.Discard, r)
	}
}

// SubmitStream runs cmd in streaming mode on a detached worker. Every
// output line becomes a message built by onLine; once the process exits
// onDone builds the final message. When the process cannot be started, a
// single line carrying the launch error is sent before the final message.
func (d *Dispatcher[M]) SubmitStream(kind string, cmd *exec.Cmd, onLine func(StreamLine) M, onDone func(xbps.CommandResult, error) M) {
	d.submit(kind, func(send func(M)) {
		result, err := RunStream(cmd, func(line StreamLine) {
			send(onLine(line))
		})
		var startErr *StartError
		if errors.As(err, &startErr) {
			send(onLine(StreamLine{Text: startErr.Error(), Stderr: true}))
		}
		send(onDone(result, err))
	})
}
