package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"secsync/internal/config"
	"secsync/internal/etl"
	"secsync/internal/service"
)

// ─────────────────────────────────────────────────────────────
// RunningJobsGuard tests
// ─────────────────────────────────────────────────────────────

func TestRunningGuard_TryLock(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("job-1") {
		t.Fatal("expected first TryLock to succeed")
	}
	if g.TryLock("job-1") {
		t.Fatal("expected second TryLock for same job to fail")
	}
	if !g.TryLock("job-2") {
		t.Fatal("expected TryLock for different job to succeed")
	}
	g.Unlock("job-1")
	g.Unlock("job-2")

	if !g.TryLock("job-1") {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	g.Unlock("job-1")
}

func TestRunningGuard_WaitAll(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("job-a") {
		t.Fatal("expected lock to succeed")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("job-a")
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}

// ─────────────────────────────────────────────────────────────
// SyncService tests
// ─────────────────────────────────────────────────────────────

// flakySource fails for one configured table name and succeeds otherwise.
type flakySource struct{}

func (s *flakySource) Spec() etl.SourceSpec {
	return etl.SourceSpec{Type: "svc_test", Label: "service test source"}
}

func (s *flakySource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	return &etl.Schema{Fields: []etl.Field{{Name: "id", Type: "text"}}}, nil
}

func (s *flakySource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 1)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		if cfg.String("fail", "") == "true" {
			errCh <- errors.New("vendor api down")
			return
		}
		out <- etl.Record{Data: map[string]any{"id": "1"}}
	}()
	return out, errCh
}

type countingDest struct {
	tables []string
}

func (d *countingDest) Write(ctx context.Context, req etl.WriteRequest) (int, error) {
	d.tables = append(d.tables, req.Table)
	return len(req.Records), nil
}

func testService(dest etl.Destination, jobs []etl.SyncJob) *service.SyncService {
	cfg := config.NewDefaultConfig()
	cfg.App.Workers = 1 // serialize so countingDest needs no locking
	cfg.Jobs = jobs
	engine := &etl.Engine{Dest: dest}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return service.NewSyncService(cfg, engine, nil, logger)
}

func TestRunAll_FailingJobDoesNotBlockOthers(t *testing.T) {
	etl.RegisterSource(&flakySource{})

	dest := &countingDest{}
	svc := testService(dest, []etl.SyncJob{
		{Name: "good", Source: "svc_test", Table: "good_t", KeyField: "id", Mode: etl.SyncUpsert, Enabled: true},
		{Name: "bad", Source: "svc_test", Table: "bad_t", KeyField: "id", Mode: etl.SyncUpsert, Enabled: true,
			SourceCfg: etl.SourceConfig{"fail": "true"}},
		{Name: "also_good", Source: "svc_test", Table: "also_t", KeyField: "id", Mode: etl.SyncUpsert, Enabled: true},
	})

	err := svc.RunAll(context.Background(), nil)
	if err == nil {
		t.Fatal("expected the summary error to report the failed job")
	}
	if len(dest.tables) != 2 {
		t.Fatalf("expected the two healthy jobs to still load, got %v", dest.tables)
	}
}

func TestRunAll_UnknownJobName(t *testing.T) {
	svc := testService(&countingDest{}, nil)
	if err := svc.RunAll(context.Background(), []string{"missing"}); err == nil {
		t.Fatal("expected an unknown job error")
	}
}

func TestRunAll_NoJobs(t *testing.T) {
	svc := testService(&countingDest{}, []etl.SyncJob{
		{Name: "off", Source: "svc_test", Table: "t", KeyField: "id", Mode: etl.SyncUpsert, Enabled: false},
	})
	if err := svc.RunAll(context.Background(), nil); err == nil {
		t.Fatal("expected an error when nothing is enabled")
	}
}

func TestRunJob_RejectsConcurrentSameJob(t *testing.T) {
	etl.RegisterSource(&flakySource{})

	started := make(chan struct{})
	release := make(chan struct{})
	dest := blockingDest{started: started, release: release}
	svc := testService(dest, nil)

	job := &etl.SyncJob{Name: "solo", Source: "svc_test", Table: "t", KeyField: "id", Mode: etl.SyncUpsert, Enabled: true}

	go svc.RunJob(context.Background(), job)
	<-started

	if _, err := svc.RunJob(context.Background(), job); err == nil {
		t.Fatal("expected the second run of a busy job to be rejected")
	}
	close(release)

	drain, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	svc.WaitRunning(drain)
}

type blockingDest struct {
	started chan struct{}
	release chan struct{}
}

func (d blockingDest) Write(ctx context.Context, req etl.WriteRequest) (int, error) {
	close(d.started)
	<-d.release
	return len(req.Records), nil
}
