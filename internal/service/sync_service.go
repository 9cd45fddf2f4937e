package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"secsync/internal/config"
	"secsync/internal/etl"
	"secsync/internal/storage"
)

// Hard ceiling per job so a wedged vendor API cannot pin a cron slot.
const jobTimeout = 30 * time.Minute

// SyncService runs configured sync jobs: one-shot batches from the CLI
// and triggered runs in serve mode. Jobs share no mutable state and
// write to distinct tables, so the only coordination is the worker
// limit and the per-job running guard.
type SyncService struct {
	cfg     *config.Config
	engine  *etl.Engine
	runLogs *storage.RunLogStore
	logger  *slog.Logger
	running runningJobsGuard

	watchers *watcherSet
}

// NewSyncService creates a SyncService ready for use. runLogs may be nil
// in tests.
func NewSyncService(cfg *config.Config, engine *etl.Engine, runLogs *storage.RunLogStore, logger *slog.Logger) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncService{cfg: cfg, engine: engine, runLogs: runLogs, logger: logger}
}

// RunAll executes the named jobs (all enabled jobs when names is empty)
// with a bounded worker pool. One failing report type does not block the
// others; the returned error summarizes how many failed.
func (s *SyncService) RunAll(ctx context.Context, names []string) error {
	jobs, err := s.selectJobs(names)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no jobs to run")
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.App.Workers)

	failures := make(chan string, len(jobs))
	for _, job := range jobs {
		g.Go(func() error {
			if _, err := s.RunJob(gCtx, job); err != nil {
				// Degrade per source: log, record, move on.
				s.logger.Error("sync failed",
					slog.String("job", job.Name),
					slog.String("error", err.Error()))
				failures <- job.Name
			}
			return nil
		})
	}

	_ = g.Wait()
	close(failures)

	var failed []string
	for name := range failures {
		failed = append(failed, name)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d jobs failed: %v", len(failed), len(jobs), failed)
	}
	return nil
}

// RunJob executes a single sync job synchronously and records the run.
func (s *SyncService) RunJob(ctx context.Context, job *etl.SyncJob) (*etl.SyncResult, error) {
	if !s.running.TryLock(job.Name) {
		return nil, fmt.Errorf("job %s is already running", job.Name)
	}
	defer s.running.Unlock(job.Name)

	if err := config.ResolveSourceSecrets(job.SourceCfg); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	result, runErr := s.engine.RunSync(runCtx, job)

	if s.runLogs != nil {
		runLog := &etl.RunLog{
			Job:         job.Name,
			StartedAt:   start,
			FinishedAt:  time.Now(),
			Status:      result.Status,
			RowsRead:    result.RowsRead,
			RowsWritten: result.RowsWritten,
		}
		if runErr != nil {
			runLog.Error = runErr.Error()
		}
		if err := s.runLogs.Create(runLog); err != nil {
			s.logger.Warn("run log write failed", slog.String("error", err.Error()))
		}
	}

	return result, runErr
}

// WaitRunning blocks until in-flight jobs finish or ctx expires.
func (s *SyncService) WaitRunning(ctx context.Context) {
	s.running.WaitAll(ctx)
}

func (s *SyncService) selectJobs(names []string) ([]*etl.SyncJob, error) {
	if len(names) == 0 {
		var jobs []*etl.SyncJob
		for i := range s.cfg.Jobs {
			if s.cfg.Jobs[i].Enabled {
				jobs = append(jobs, &s.cfg.Jobs[i])
			}
		}
		return jobs, nil
	}

	jobs := make([]*etl.SyncJob, 0, len(names))
	for _, name := range names {
		job, err := s.cfg.Job(name)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
