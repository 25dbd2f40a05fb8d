package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"engagely/internal/config"
)

// Entry pairs a job with its cron spec.
type Entry struct {
	Spec string
	Job  Job
}

// Scheduler is responsible for running background jobs
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	entries []Entry

	mu        sync.Mutex
	isRunning bool
	running   map[string]bool
}

// NewScheduler registers entries on a cron running in the configured
// timezone. Every spec is validated up front.
func NewScheduler(cfg *config.Config, logger *slog.Logger, entries ...Entry) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(cfg.Location())),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]bool),
	}

	for _, e := range entries {
		job := e.Job
		if _, err := s.cron.AddFunc(e.Spec, func() { s.executeJobSafely(job) }); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid schedule %q for job %s: %w", e.Spec, job.Name(), err)
		}
		s.entries = append(s.entries, e)
	}
	return s, nil
}

// executeJobSafely runs a job unless its previous run is still executing
func (s *Scheduler) executeJobSafely(job Job) {
	name := job.Name()

	s.mu.Lock()
	if s.running[name] {
		s.logger.Debug("Skipping job execution - previous run still executing", slog.String("job", name))
		s.mu.Unlock()
		return
	}
	s.running[name] = true
	s.mu.Unlock()

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", name),
				slog.Any("panic", r))
		}

		s.mu.Lock()
		s.running[name] = false
		s.mu.Unlock()
	}()

	if err := job.Run(s.ctx); err != nil {
		s.logger.Error("Error executing job", slog.String("job", name), slog.Any("error", err))
		return
	}
	s.logger.Debug("Job finished", slog.String("job", name), slog.Duration("duration", time.Since(started)))
}

// Start begins all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.cron.Start()
	s.isRunning = true

	for _, e := range s.entries {
		s.logger.Info("Scheduled background job",
			slog.String("job", e.Job.Name()),
			slog.String("schedule", e.Spec))
	}
	return nil
}

// Stop halts all background jobs and waits for running ones to return.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.cancel()
	<-s.cron.Stop().Done()

	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// RunNow executes the named job synchronously, honoring the overlap guard.
func (s *Scheduler) RunNow(name string) bool {
	for _, e := range s.entries {
		if e.Job.Name() == name {
			s.executeJobSafely(e.Job)
			return true
		}
	}
	return false
}

// Entries returns the registered jobs.
func (s *Scheduler) Entries() []Entry {
	return s.entries
}
