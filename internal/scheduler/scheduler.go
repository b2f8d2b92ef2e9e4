// Package scheduler runs the periodic update check and spotlight refresh.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/blackwell-systems/voidstore/internal/config"
	"github.com/blackwell-systems/voidstore/internal/logger"
)

const (
	JobUpdateCheck = "update-check"
	JobSpotlight   = "spotlight"
)

// DefaultSpotlightEvery is how often the spotlight job asks for a refresh.
// The agent only refreshes when its cache is stale.
const DefaultSpotlightEvery = time.Hour

// callTimeout bounds how long a job waits for the owner loop.
const callTimeout = 30 * time.Second

// Agent is the part of agent.Agent the jobs drive.
type Agent interface {
	Do(ctx context.Context, fn func()) error
	CheckUpdates() error
	TriggerSpotlightRefresh(force bool) bool
}

// Scheduler wraps a gocron scheduler in singleton mode.
type Scheduler struct {
	agent          Agent
	sched          *gocron.Scheduler
	spotlightEvery time.Duration

	mu sync.Mutex
}

// New creates a scheduler for agent. Jobs are registered by Start.
func New(agent Agent) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{agent: agent, sched: s, spotlightEvery: DefaultSpotlightEvery}
}

// SetSpotlightEvery changes the spotlight job interval. It takes effect on
// the next Start.
func (s *Scheduler) SetSpotlightEvery(d time.Duration) {
	if d > 0 {
		s.spotlightEvery = d
	}
}

// Start registers the jobs for settings and starts running them in the
// background. Every job runs once right away.
func (s *Scheduler) Start(settings config.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger.Info("scheduler: spotlight refresh every %s", s.spotlightEvery)
	if _, err := s.sched.Every(s.spotlightEvery).Tag(JobSpotlight).Do(s.runSpotlight); err != nil {
		return err
	}
	if err := s.scheduleUpdateCheck(settings); err != nil {
		return err
	}
	s.sched.StartAsync()
	return nil
}

// Reschedule replaces the update-check job to match settings.
func (s *Scheduler) Reschedule(settings config.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sched.RemoveByTag(JobUpdateCheck); err != nil && !errors.Is(err, gocron.ErrJobNotFoundWithTag) {
		return err
	}
	return s.scheduleUpdateCheck(settings)
}

func (s *Scheduler) scheduleUpdateCheck(settings config.Settings) error {
	if !settings.AutoCheckEnabled {
		logger.Info("scheduler: automatic update checks are disabled")
		return nil
	}
	every := settings.AutoCheckFrequency.Interval()
	logger.Info("scheduler: checking for updates every %s", every)
	_, err := s.sched.Every(every).Tag(JobUpdateCheck).Do(s.runUpdateCheck)
	return err
}

// Stop halts the scheduler.
func (s *Scheduler) Stop() {
	s.sched.Stop()
}

// Jobs returns the tags of the registered jobs, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tags []string
	for _, job := range s.sched.Jobs() {
		tags = append(tags, job.Tags()...)
	}
	sort.Strings(tags)
	return tags
}

func (s *Scheduler) runUpdateCheck() {
	s.call(JobUpdateCheck, func() {
		if err := s.agent.CheckUpdates(); err != nil {
			logger.Debug("scheduler: update check skipped: %v", err)
		}
	})
}

func (s *Scheduler) runSpotlight() {
	s.call(JobSpotlight, func() {
		if s.agent.TriggerSpotlightRefresh(false) {
			logger.Debug("scheduler: spotlight refresh started")
		}
	})
}

func (s *Scheduler) call(job string, fn func()) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := s.agent.Do(ctx, fn); err != nil {
		logger.Warn("scheduler: job %s could not run: %v", job, err)
	}
}
