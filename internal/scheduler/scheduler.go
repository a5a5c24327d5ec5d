// Package scheduler runs recurring crawl-and-test jobs on cron schedules
// defined in configuration. It is a thin consumer of the app facade.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/analyzers"
	"github.com/sitewarden/sitewarden/internal/app"
	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/notify"
)

// jobEntry is one registered recurring job.
type jobEntry struct {
	project   string
	schedule  string
	analyzers []string
	cronID    cron.EntryID
	lastRun   *time.Time
	lastError string
	running   bool
}

// Service owns the cron runner. One job executes at a time; a schedule that
// fires while its project is still being processed is skipped.
type Service struct {
	app    *app.App
	notify *notify.Manager
	cron   *cron.Cron
	logger arbor.ILogger

	mu      sync.Mutex
	jobs    map[string]*jobEntry
	running bool
}

// NewService creates a scheduler over the application.
func NewService(application *app.App, notifier *notify.Manager, logger arbor.ILogger) *Service {
	return &Service{
		app:    application,
		notify: notifier,
		cron:   cron.New(),
		logger: logger,
		jobs:   make(map[string]*jobEntry),
	}
}

// Start registers the configured jobs and starts the cron loop.
func (s *Service) Start(cfg common.SchedulerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	for _, job := range cfg.Jobs {
		entry := &jobEntry{
			project:   job.Project,
			schedule:  job.Schedule,
			analyzers: job.Analyzers,
		}
		id, err := s.cron.AddFunc(job.Schedule, s.runFunc(entry))
		if err != nil {
			return fmt.Errorf("invalid schedule %q for project %s: %w", job.Schedule, job.Project, err)
		}
		entry.cronID = id
		s.jobs[job.Project] = entry
		s.logger.Info().
			Str("project", job.Project).
			Str("schedule", job.Schedule).
			Msg("Scheduled recurring crawl and test run")
	}

	s.cron.Start()
	s.running = true
	return nil
}

// Stop halts the cron loop, waiting for a running job to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// runFunc builds the handler executed on each cron fire.
func (s *Service) runFunc(entry *jobEntry) func() {
	return func() {
		s.mu.Lock()
		if entry.running {
			s.mu.Unlock()
			s.logger.Warn().Str("project", entry.project).Msg("Previous scheduled run still active, skipping")
			return
		}
		entry.running = true
		s.mu.Unlock()

		defer func() {
			now := time.Now().UTC()
			s.mu.Lock()
			entry.running = false
			entry.lastRun = &now
			s.mu.Unlock()
		}()

		if err := s.runOnce(context.Background(), entry); err != nil {
			s.mu.Lock()
			entry.lastError = err.Error()
			s.mu.Unlock()
			s.logger.Error().Err(err).Str("project", entry.project).Msg("Scheduled run failed")
		}
	}
}

// runOnce crawls the project and runs the configured analyzers over the new
// snapshot, then fans the summary out to the notifiers.
func (s *Service) runOnce(ctx context.Context, entry *jobEntry) error {
	s.logger.Info().Str("project", entry.project).Msg("Scheduled run starting")

	snapshot, err := s.app.Crawl(ctx, entry.project, s.app.CrawlOptions())
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	report, err := s.app.RunTests(ctx, analyzers.RunRequest{
		Project:    entry.project,
		SnapshotID: snapshot.ID,
		Plugins:    entry.analyzers,
	})
	if err != nil {
		return fmt.Errorf("test run failed: %w", err)
	}

	if s.notify != nil && report.Promotion != nil {
		s.notify.NotifyRun(ctx, entry.project, report.Results, report.Promotion.Opened, report.Promotion.Resolved)
	}
	return nil
}
