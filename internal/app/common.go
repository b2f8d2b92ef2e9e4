package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/blackwell-systems/voidstore/internal/agent"
	"github.com/blackwell-systems/voidstore/internal/config"
	"github.com/blackwell-systems/voidstore/internal/dispatch"
	"github.com/blackwell-systems/voidstore/internal/logger"
	"github.com/blackwell-systems/voidstore/internal/output"
	"github.com/blackwell-systems/voidstore/internal/spotlight"
	"github.com/blackwell-systems/voidstore/internal/store"
	"github.com/blackwell-systems/voidstore/internal/xbps"
)

// session bundles everything a command needs to drive the agent.
type session struct {
	settings config.Settings
	client   *xbps.Client
	store    *store.Store
	agent    *agent.Agent
}

// toolsFromConfig maps the xbps section of the configuration onto the
// client's binaries.
func toolsFromConfig(c *config.Config) xbps.Tools {
	return xbps.Tools{
		Query:            c.XBPS.Query,
		Install:          c.XBPS.Install,
		Remove:           c.XBPS.Remove,
		Pkgdb:            c.XBPS.Pkgdb,
		Reconfigure:      c.XBPS.Reconfigure,
		Alternatives:     c.XBPS.Alternatives,
		Privilege:        c.Privilege.Wrapper,
		PackageCache:     c.XBPS.PackageCache,
		CacheKeep:        c.XBPS.CacheKeep,
		RepositoryConfig: c.XBPS.RepositoryConfig,
	}
}

// openStore opens the operation history database, creating its directory
// if needed.
func openStore(path string) (*store.Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return store.Open(path)
}

// openSession builds an agent from the loaded configuration. A history
// database that cannot be opened only costs persistence.
func openSession(observer dispatch.Observer, recorder agent.Recorder) (*session, error) {
	settings := config.LoadSettings(cfg.SettingsPath())
	client := xbps.NewClient(toolsFromConfig(cfg), nil)

	opts := agent.Options{
		Client:            client,
		CachePath:         spotlight.Path(cfg.Cache.Dir),
		MaxWorkers:        cfg.Dispatch.MaxWorkers,
		HistoryMax:        cfg.History.Max,
		SpotlightInterval: time.Duration(cfg.Spotlight.RefreshHours) * time.Hour,
		Settings:          &settings,
		SettingsPath:      cfg.SettingsPath(),
		Observer:          observer,
		Recorder:          recorder,
	}

	st, err := openStore(cfg.DB.Path)
	if err != nil {
		logger.Warn("operation history disabled: %v", err)
		st = nil
	} else {
		opts.Store = st
	}

	a, err := agent.New(opts)
	if err != nil {
		if st != nil {
			st.Close()
		}
		return nil, err
	}
	return &session{settings: settings, client: client, store: st, agent: a}, nil
}

// Close stops the agent's workers and closes the database.
func (s *session) Close() {
	s.agent.Close()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			logger.Warn("failed to close history database: %v", err)
		}
	}
}

// wait pumps agent messages until pred holds. The spinner, when given,
// runs for the duration.
func (s *session) wait(ctx context.Context, spinner *output.Spinner, pred func(*agent.State) bool) error {
	if spinner != nil {
		spinner.Start()
		defer spinner.Stop()
	}
	return s.agent.RunUntil(ctx, pred)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// confirm prints prompt and reads a y/N answer from in.
func confirm(in io.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(in)
	response, err := reader.ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// stdin is swapped out by tests.
var stdin io.Reader = os.Stdin
