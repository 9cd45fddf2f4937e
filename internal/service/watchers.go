package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"secsync/internal/etl"
)

// ── Triggers (cron + file watch) ───────────────────────────
// Serve mode replaces the crontab entries the scripts used to live in.
// Scheduled jobs run on their cron expression; drop-folder jobs run when
// a file lands in (or changes under) the watched directory, debounced so
// a slow upload triggers once.

const watchDebounce = 2 * time.Second

type watcherSet struct {
	cronSched *cron.Cron
	watcher   *fsnotify.Watcher
	cancel    context.CancelFunc
}

// StartWatchers builds triggers for every enabled job carrying a
// schedule or watch path and blocks until ctx is cancelled.
func (s *SyncService) StartWatchers(ctx context.Context) error {
	ws := &watcherSet{}
	s.watchers = ws

	// ── Cron jobs ──
	scheduled := 0
	c := cron.New()
	for i := range s.cfg.Jobs {
		job := &s.cfg.Jobs[i]
		if !job.Enabled || job.Schedule == "" {
			continue
		}
		_, err := c.AddFunc(job.Schedule, func() {
			s.logger.Info("cron trigger", slog.String("job", job.Name))
			if _, err := s.RunJob(ctx, job); err != nil {
				s.logger.Error("cron run failed",
					slog.String("job", job.Name), slog.String("error", err.Error()))
			}
		})
		if err != nil {
			s.logger.Error("invalid cron expression",
				slog.String("job", job.Name), slog.String("expr", job.Schedule),
				slog.String("error", err.Error()))
			continue
		}
		scheduled++
	}
	if scheduled > 0 {
		c.Start()
		ws.cronSched = c
		s.logger.Info("cron triggers active", slog.Int("jobs", scheduled))
	}

	// ── File watchers ──
	dirToJobs := map[string][]*etl.SyncJob{}
	for i := range s.cfg.Jobs {
		job := &s.cfg.Jobs[i]
		if !job.Enabled || job.WatchPath == "" {
			continue
		}
		dir, err := filepath.Abs(job.WatchPath)
		if err != nil {
			s.logger.Error("bad watch path",
				slog.String("job", job.Name), slog.String("path", job.WatchPath))
			continue
		}
		dirToJobs[dir] = append(dirToJobs[dir], job)
	}

	if len(dirToJobs) > 0 {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		ws.watcher = watcher

		for dir := range dirToJobs {
			if err := watcher.Add(dir); err != nil {
				s.logger.Error("watch failed",
					slog.String("dir", dir), slog.String("error", err.Error()))
			}
		}

		watchCtx, cancel := context.WithCancel(ctx)
		ws.cancel = cancel
		go s.watchLoop(watchCtx, watcher, dirToJobs)
		s.logger.Info("file triggers active", slog.Int("dirs", len(dirToJobs)))
	}

	<-ctx.Done()
	s.stopWatchers()
	return nil
}

func (s *SyncService) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, dirToJobs map[string][]*etl.SyncJob) {
	timers := map[string]*time.Timer{}
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			dir := filepath.Dir(event.Name)
			jobs, ok := dirToJobs[dir]
			if !ok {
				continue
			}

			// Debounce per directory.
			if t, ok := timers[dir]; ok {
				t.Stop()
			}
			timers[dir] = time.AfterFunc(watchDebounce, func() {
				for _, job := range jobs {
					s.logger.Info("file trigger",
						slog.String("job", job.Name), slog.String("path", event.Name))
					if _, err := s.RunJob(ctx, job); err != nil {
						s.logger.Error("file-triggered run failed",
							slog.String("job", job.Name), slog.String("error", err.Error()))
					}
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (s *SyncService) stopWatchers() {
	ws := s.watchers
	if ws == nil {
		return
	}
	if ws.cronSched != nil {
		ctx := ws.cronSched.Stop()
		<-ctx.Done()
	}
	if ws.cancel != nil {
		ws.cancel()
	}
	if ws.watcher != nil {
		ws.watcher.Close()
	}
	s.watchers = nil
}
