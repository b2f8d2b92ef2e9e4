// Package agent owns all package-manager state and the single goroutine
// that mutates it. Blocking work runs on dispatcher workers; their outcomes
// come back as Messages and are applied here, one at a time.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blackwell-systems/voidstore/internal/config"
	"github.com/blackwell-systems/voidstore/internal/dispatch"
	"github.com/blackwell-systems/voidstore/internal/logger"
	"github.com/blackwell-systems/voidstore/internal/operations"
	"github.com/blackwell-systems/voidstore/internal/spotlight"
	"github.com/blackwell-systems/voidstore/internal/xbps"
)

var (
	// ErrBusy is returned when the requested work is already running.
	ErrBusy = errors.New("operation already in progress")
	// ErrStopped is returned by Do once the owner loop has exited.
	ErrStopped = errors.New("agent stopped")
	// ErrNothingToDo is returned when a request has nothing to act on.
	ErrNothingToDo = errors.New("no packages given")
)

// OperationStore persists finalized operations.
type OperationStore interface {
	InsertOperation(op operations.PackageOperation) (int64, error)
}

// Recorder receives agent-level measurements.
type Recorder interface {
	MessageHandled(kind string)
	SpotlightRefreshed(result string, entries int)
	OperationFinished(kind operations.Kind, status operations.Status)
}

type nopRecorder struct{}

func (nopRecorder) MessageHandled(string)                                {}
func (nopRecorder) SpotlightRefreshed(string, int)                       {}
func (nopRecorder) OperationFinished(operations.Kind, operations.Status) {}

// Options configures an Agent. Client is required.
type Options struct {
	Client *xbps.Client
	// Store, when set, receives every finalized operation.
	Store OperationStore
	// CachePath is where the spotlight cache is read and written. Empty
	// disables persistence.
	CachePath  string
	MaxWorkers int
	HistoryMax int
	// SpotlightInterval overrides how old the cache may get before a
	// non-forced refresh runs.
	SpotlightInterval time.Duration
	Settings          *config.Settings
	// SettingsPath is where settings changed by the agent itself, such as
	// the mirror selection, are saved. Empty keeps them in memory.
	SettingsPath string
	Observer     dispatch.Observer
	Recorder     Recorder
	// OnEvent is called on the owner goroutine for every new event.
	OnEvent func(Event)
	Now     func() time.Time
}

// Agent is the single owner of State.
type Agent struct {
	client       *xbps.Client
	disp         *dispatch.Dispatcher[Message]
	store        OperationStore
	recorder     Recorder
	cachePath    string
	settingsPath string
	now          func() time.Time
	onEvent      func(Event)

	// ctx is handed to every worker. It is never cancelled: a spawned
	// command always runs to completion.
	ctx context.Context

	state     *State
	searchSeq uint64
	events    eventLog

	calls    chan func()
	done     chan struct{}
	doneOnce sync.Once
}

// New creates an agent and loads the spotlight cache from disk.
func New(opts Options) (*Agent, error) {
	if opts.Client == nil {
		return nil, errors.New("agent: client is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	settings := config.DefaultSettings()
	if opts.Settings != nil {
		settings = *opts.Settings
	}
	cache := spotlight.NewCache()
	if opts.CachePath != "" {
		cache = spotlight.Load(opts.CachePath)
	}

	a := &Agent{
		client:       opts.Client,
		store:        opts.Store,
		recorder:     opts.Recorder,
		cachePath:    opts.CachePath,
		settingsPath: opts.SettingsPath,
		now:          now,
		onEvent:      opts.OnEvent,
		state:        newState(opts.HistoryMax, cache, settings, now()),
		calls:        make(chan func()),
		done:         make(chan struct{}),
	}
	if a.recorder == nil {
		a.recorder = nopRecorder{}
	}
	if opts.SpotlightInterval > 0 {
		a.state.Spotlight.SetInterval(opts.SpotlightInterval)
	}
	a.ctx = context.Background()
	a.applyMirrors()

	dopts := []dispatch.Option[Message]{
		dispatch.WithMaxWorkers[Message](opts.MaxWorkers),
		dispatch.WithRecover(func(kind string, v any) Message {
			return WorkerPanicked{Kind: kind, Value: fmt.Sprint(v)}
		}),
	}
	if opts.Observer != nil {
		dopts = append(dopts, dispatch.WithObserver[Message](opts.Observer))
	}
	a.disp = dispatch.New(dopts...)

	logger.Debug("agent: loaded spotlight cache with %d entries", cache.Len())
	return a, nil
}

// State returns the owned state. Only the owner goroutine may use it.
func (a *Agent) State() *State {
	return a.state
}

// Inflight reports how many background tasks are still running.
func (a *Agent) Inflight() int {
	return a.disp.Inflight()
}

// Close marks the agent stopped. Commands that are already running are
// left to finish; their results are dropped.
func (a *Agent) Close() {
	a.doneOnce.Do(func() { close(a.done) })
}

func (a *Agent) stopped() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Tick applies every message and call that is already waiting without
// blocking. It returns the number of items handled.
func (a *Agent) Tick() int {
	n := 0
	for {
		select {
		case msg := <-a.disp.Messages():
			a.handle(msg)
		case fn := <-a.calls:
			fn()
		default:
			return n
		}
		n++
	}
}

// Pump blocks until at least one message or call arrives, handles it and
// then drains whatever else is already queued.
func (a *Agent) Pump(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case msg := <-a.disp.Messages():
		a.handle(msg)
	case fn := <-a.calls:
		fn()
	}
	a.Tick()
	return nil
}

// RunUntil pumps until pred reports true for the current state.
func (a *Agent) RunUntil(ctx context.Context, pred func(*State) bool) error {
	a.Tick()
	for !pred(a.state) {
		if err := a.Pump(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run pumps until ctx is done. Afterwards Do fails with ErrStopped.
func (a *Agent) Run(ctx context.Context) error {
	defer a.doneOnce.Do(func() { close(a.done) })
	for {
		if err := a.Pump(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// Do runs fn on the owner goroutine and waits for it to finish. It must
// not be called from the owner goroutine itself.
func (a *Agent) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	call := func() {
		defer close(finished)
		fn()
	}
	select {
	case a.calls <- call:
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplySettings installs new user settings.
func (a *Agent) ApplySettings(s config.Settings) {
	a.state.Settings = s
	a.applyMirrors()
	a.emit("settings", "", "settings changed")
}

// applyMirrors points update commands at the selected mirrors. With no
// selection the system repository configuration is used.
func (a *Agent) applyMirrors() {
	a.client.SetRepositories(xbps.RepositoryURLs(a.state.Settings.MirrorSelection))
}

func (a *Agent) saveSettings() {
	if a.settingsPath == "" {
		return
	}
	if err := config.SaveSettings(a.settingsPath, a.state.Settings); err != nil {
		logger.Warn("agent: %v", err)
		a.emit("settings", "", err.Error())
	}
}

func (a *Agent) persist(op operations.PackageOperation) {
	a.recorder.OperationFinished(op.Type.Kind, op.Status)
	if a.store == nil {
		return
	}
	if _, err := a.store.InsertOperation(op); err != nil {
		logger.Warn("agent: failed to persist %s of %s: %v", op.Type.Kind, op.Package, err)
	}
}
