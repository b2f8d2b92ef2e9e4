package dispatch

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blackwell-systems/voidstore/internal/xbps"
)

type testMsg struct {
	kind   string
	text   string
	stderr bool
	result xbps.CommandResult
	err    error
}

// recvN reads n messages or fails the test after a timeout.
func recvN(t *testing.T, d *Dispatcher[testMsg], n int) []testMsg {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out []testMsg
	for len(out) < n {
		m, err := d.Next(ctx)
		if err != nil {
			t.Fatalf("received %d of %d messages: %v", len(out), n, err)
		}
		out = append(out, m)
	}
	return out
}

func TestSubmitDeliversMessage(t *testing.T) {
	d := New[testMsg]()
	d.Submit("search", func() testMsg {
		return testMsg{kind: "search", text: "done"}
	})

	msgs := recvN(t, d, 1)
	if msgs[0].kind != "search" || msgs[0].text != "done" {
		t.Errorf("got %+v", msgs[0])
	}
}

func TestSubmitErrorTravelsInMessage(t *testing.T) {
	d := New[testMsg]()
	d.Submit("install", func() testMsg {
		return testMsg{kind: "install", err: errors.New("failed to launch pkexec")}
	})

	msgs := recvN(t, d, 1)
	if msgs[0].err == nil {
		t.Error("error should be delivered inside the message")
	}
}

func TestPanicIsConvertedToMessage(t *testing.T) {
	d := New[testMsg](WithRecover(func(kind string, v any) testMsg {
		return testMsg{kind: kind, text: "panic"}
	}))
	d.Submit("detail", func() testMsg {
		panic("boom")
	})

	msgs := recvN(t, d, 1)
	if msgs[0].kind != "detail" || msgs[0].text != "panic" {
		t.Errorf("got %+v, want recovered detail message", msgs[0])
	}
}

func TestMaxWorkersBoundsConcurrency(t *testing.T) {
	d := New[testMsg](WithMaxWorkers[testMsg](2))

	var running, peak atomic.Int64
	release := make(chan struct{})
	for i := 0; i < 6; i++ {
		d.Submit("task", func() testMsg {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
			return testMsg{kind: "task"}
		})
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	recvN(t, d, 6)

	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
	if d.Inflight() != 0 {
		// Inflight drops after the send; give the last goroutine a moment.
		time.Sleep(20 * time.Millisecond)
		if d.Inflight() != 0 {
			t.Errorf("Inflight() = %d after all messages received", d.Inflight())
		}
	}
}

func TestTryRecvAndDrain(t *testing.T) {
	d := New[testMsg]()
	if _, ok := d.TryRecv(); ok {
		t.Fatal("TryRecv on empty dispatcher should return false")
	}

	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		d.Submit("task", func() testMsg {
			defer wg.Done()
			return testMsg{kind: "task"}
		})
	}
	wg.Wait()

	// wg.Done runs before the send completes; poll until all three land.
	deadline := time.Now().Add(5 * time.Second)
	var got []testMsg
	for len(got) < 3 && time.Now().Before(deadline) {
		got = append(got, d.Drain(0)...)
		time.Sleep(time.Millisecond)
	}
	if len(got) != 3 {
		t.Fatalf("Drain collected %d messages, want 3", len(got))
	}
}

func TestDrainLimit(t *testing.T) {
	d := New[testMsg]()
	for i := 0; i < 5; i++ {
		d.messages <- testMsg{kind: "queued"}
	}
	if got := d.Drain(2); len(got) != 2 {
		t.Errorf("Drain(2) returned %d messages", len(got))
	}
	if got := d.Drain(0); len(got) != 3 {
		t.Errorf("Drain(0) returned %d messages, want remaining 3", len(got))
	}
}

type countingObserver struct {
	mu       sync.Mutex
	started  map[string]int
	finished map[string]int
}

func (c *countingObserver) TaskStarted(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started[kind]++
}

func (c *countingObserver) TaskFinished(kind string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished[kind]++
}

func TestObserverSeesLifecycle(t *testing.T) {
	obs := &countingObserver{started: map[string]int{}, finished: map[string]int{}}
	d := New[testMsg](WithObserver[testMsg](obs))

	d.Submit("search", func() testMsg { return testMsg{} })
	d.Submit("search", func() testMsg { return testMsg{} })
	recvN(t, d, 2)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		obs.mu.Lock()
		done := obs.finished["search"] == 2
		obs.mu.Unlock()
		if done {
			break
		}
		time.Sleep(time.Millisecond)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.started["search"] != 2 || obs.finished["search"] != 2 {
		t.Errorf("observer counts = %v / %v", obs.started, obs.finished)
	}
}

func TestSubmitStreamForwardsLinesThenFinishes(t *testing.T) {
	d := New[testMsg]()
	script := `echo one; echo err-one >&2; printf 'two\r\n\n'; echo three; exit 3`
	cmd := exec.Command("/bin/sh", "-c", script)

	d.SubmitStream("update", cmd,
		func(l StreamLine) testMsg { return testMsg{kind: "line", text: l.Text, stderr: l.Stderr} },
		func(res xbps.CommandResult, err error) testMsg {
			return testMsg{kind: "done", result: res, err: err}
		})

	msgs := recvN(t, d, 5)
	last := msgs[len(msgs)-1]
	if last.kind != "done" {
		t.Fatalf("last message kind = %q, want done", last.kind)
	}
	if last.err != nil {
		t.Fatalf("unexpected error: %v", last.err)
	}
	if last.result.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", last.result.ExitCode)
	}
	if last.result.Stdout != "one\ntwo\nthree" {
		t.Errorf("accumulated stdout = %q", last.result.Stdout)
	}
	if last.result.Stderr != "err-one" {
		t.Errorf("accumulated stderr = %q", last.result.Stderr)
	}

	// stdout lines keep their relative order.
	var stdoutLines []string
	for _, m := range msgs[:4] {
		if m.kind != "line" {
			t.Fatalf("unexpected message before done: %+v", m)
		}
		if !m.stderr {
			stdoutLines = append(stdoutLines, m.text)
		}
	}
	want := []string{"one", "two", "three"}
	for i := range want {
		if i >= len(stdoutLines) || stdoutLines[i] != want[i] {
			t.Fatalf("stdout lines = %v, want %v", stdoutLines, want)
		}
	}
}

func TestSubmitStreamSpawnFailure(t *testing.T) {
	d := New[testMsg]()
	cmd := exec.Command("/nonexistent/voidstore-test-binary")

	d.SubmitStream("update", cmd,
		func(l StreamLine) testMsg { return testMsg{kind: "line", text: l.Text} },
		func(res xbps.CommandResult, err error) testMsg {
			return testMsg{kind: "done", err: err}
		})

	msgs := recvN(t, d, 2)
	if msgs[0].kind != "line" || msgs[0].text == "" {
		t.Errorf("first message = %+v, want launch error line", msgs[0])
	}
	var startErr *StartError
	if msgs[1].kind != "done" || !errors.As(msgs[1].err, &startErr) {
		t.Errorf("final message = %+v, want StartError", msgs[1])
	}
}

func TestRunStreamSuccess(t *testing.T) {
	var lines []StreamLine
	res, err := RunStream(exec.Command("/bin/sh", "-c", "echo hello"), func(l StreamLine) {
		lines = append(lines, l)
	})
	if err != nil {
		t.Fatalf("RunStream() error: %v", err)
	}
	if !res.Success() || res.Stdout != "hello" {
		t.Errorf("result = %+v", res)
	}
	if len(lines) != 1 || lines[0].Text != "hello" || lines[0].Stderr {
		t.Errorf("lines = %+v", lines)
	}
}
