package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is a unit of background work run on a fixed interval.
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// Scheduler is responsible for running background jobs
type Scheduler struct {
	logger *slog.Logger
	jobs   []Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stateMutex sync.Mutex
	isRunning  bool

	// Names of the jobs currently executing; each job is single-flight with itself
	processingMutex sync.Mutex
	processing      map[string]bool
}

func NewScheduler(logger *slog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		logger:     logger,
		jobs:       jobs,
		processing: make(map[string]bool, len(jobs)),
	}
}

// executeJobSafely runs a job unless a previous run of the same job is still
// executing. Other jobs never block it. It reports whether the job ran.
func (s *Scheduler) executeJobSafely(ctx context.Context, job Job) bool {
	name := job.Name()
	s.processingMutex.Lock()
	if s.processing[name] {
		s.logger.Debug("Skipping job execution - previous run still in progress", slog.String("job", name))
		s.processingMutex.Unlock()
		return false
	}
	s.processing[name] = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", name),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		delete(s.processing, name)
		s.processingMutex.Unlock()
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("Error executing job", slog.String("job", name), slog.Any("error", err))
		return true
	}
	s.logger.Debug("Job finished", slog.String("job", name), slog.Duration("took", time.Since(start)))
	return true
}

// Start runs every job once and then on its interval until Stop.
func (s *Scheduler) Start() error {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...", slog.Int("jobs", len(s.jobs)))
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.isRunning = true

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(s.ctx, job)
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	interval := job.Interval()
	s.logger.Info("Starting job", slog.String("job", job.Name()), slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.executeJobSafely(ctx, job)
	for {
		select {
		case <-ticker.C:
			s.executeJobSafely(ctx, job)
		case <-ctx.Done():
			s.logger.Info("Job stopped", slog.String("job", job.Name()))
			return
		}
	}
}

// Stop cancels running jobs and waits for their loops to exit.
func (s *Scheduler) Stop() {
	s.stateMutex.Lock()
	if !s.isRunning {
		s.stateMutex.Unlock()
		return
	}
	s.logger.Info("Stopping background jobs...")
	s.cancel()
	s.isRunning = false
	s.stateMutex.Unlock()

	s.wg.Wait()
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	return s.isRunning
}

// RunNow executes the named job immediately, outside its schedule. It reports
// false when the job is unknown or a run of it is already executing.
func (s *Scheduler) RunNow(ctx context.Context, name string) bool {
	for _, job := range s.jobs {
		if job.Name() == name {
			return s.executeJobSafely(ctx, job)
		}
	}
	return false
}
