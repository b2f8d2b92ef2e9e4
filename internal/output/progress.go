package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/voidstore/internal/status"
)

// writerIsTTY reports whether w is a terminal. Writers without an Fd
// method, such as buffers, never are.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

// UpdateProgress draws a bar for an update batch, counting packages that
// reached a terminal stage.
// Example: [==========>         ] 2/4 firefox: Downloading…
type UpdateProgress struct {
	mu     sync.Mutex
	writer io.Writer
	width  int
	total  int
	done   int
	failed int
	last   string
	tty    bool
}

// NewUpdateProgress creates a bar for total packages writing to stdout.
func NewUpdateProgress(total int) *UpdateProgress {
	p := &UpdateProgress{writer: os.Stdout, width: 30, total: total}
	p.tty = writerIsTTY(p.writer)
	return p
}

// SetWriter redirects output, e.g. for tests.
func (p *UpdateProgress) SetWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writer = w
	p.tty = writerIsTTY(w)
}

// Update recounts from a tracker snapshot. changed names the package that
// moved last, if any.
func (p *UpdateProgress) Update(statuses map[string]status.UpdateStatus, changed string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done, p.failed = 0, 0
	for _, st := range statuses {
		if st.Terminal() {
			p.done++
		}
		if st == status.Failed {
			p.failed++
		}
	}
	if p.total < len(statuses) {
		p.total = len(statuses)
	}
	if changed != "" {
		p.last = fmt.Sprintf("%s: %s", changed, statuses[changed].Label())
	}
	p.render()
}

// Finish marks every package done and ends the line.
func (p *UpdateProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = p.total
	if p.tty {
		p.render()
		fmt.Fprintln(p.writer)
		return
	}
	summary := fmt.Sprintf("%d/%d packages processed", p.total, p.total)
	if p.failed > 0 {
		summary += fmt.Sprintf(", %d failed", p.failed)
	}
	fmt.Fprintln(p.writer, summary)
}

// render draws the bar. Non-TTY writers get one line per stage change
// instead of a redrawn bar. Must be called with the lock held.
func (p *UpdateProgress) render() {
	if !p.tty {
		if p.last != "" {
			fmt.Fprintln(p.writer, p.last)
		}
		return
	}

	filled := 0
	if p.total > 0 {
		filled = p.done * p.width / p.total
	}
	var bar strings.Builder
	bar.WriteByte('[')
	for i := 0; i < p.width; i++ {
		switch {
		case i < filled-1:
			bar.WriteByte('=')
		case i == filled-1:
			bar.WriteByte('>')
		default:
			bar.WriteByte(' ')
		}
	}
	bar.WriteByte(']')
	fmt.Fprintf(p.writer, "\r\033[K%s %d/%d %s", bar.String(), p.done, p.total, truncate(p.last, 40))
}

// Spinner shows that a background task is still running.
// Example: |  Searching repositories... (3s elapsed)
type Spinner struct {
	mu      sync.Mutex
	message string
	writer  io.Writer
	frames  []string
	running bool
	started time.Time
	ticker  *time.Ticker
	done    chan struct{}
}

// NewSpinner creates a stopped spinner writing to stdout.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		writer:  os.Stdout,
		frames:  []string{"|", "/", "-", "\\"},
		done:    make(chan struct{}),
	}
}

// SetWriter redirects output, e.g. for tests.
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
}

// Start begins animating. On a non-TTY writer the message is printed once
// and nothing animates.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.started = time.Now()

	if !writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "%s...\n", s.message)
		return
	}

	s.ticker = time.NewTicker(100 * time.Millisecond)
	go s.animate()
}

func (s *Spinner) animate() {
	frame := 0
	for {
		select {
		case <-s.ticker.C:
			s.mu.Lock()
			if !s.running {
				s.mu.Unlock()
				return
			}
			elapsed := int(time.Since(s.started).Seconds())
			fmt.Fprintf(s.writer, "\r%s  %s... (%ds elapsed)", s.frames[frame], s.message, elapsed)
			frame = (frame + 1) % len(s.frames)
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}

// UpdateMessage changes the message while running.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.done)
	if writerIsTTY(s.writer) {
		fmt.Fprint(s.writer, "\r\033[K")
	}
}

// StopWithMessage stops the spinner and prints message on its own line.
func (s *Spinner) StopWithMessage(message string) {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.writer, message)
}
