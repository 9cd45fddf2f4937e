package etl

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ── SyncJob ────────────────────────────────────────────────
// Orchestrates: source.Read → transform chain → destination.Write,
// bracketed by the watermark read/write that bounds the next run.

// StopAtKey is the SourceConfig key the engine injects with the stored
// watermark before reading. Paginated sources halt when they meet it.
const StopAtKey = "stop_at_id"

// SyncJob holds the configuration for a single sync.
type SyncJob struct {
	Name        string            `yaml:"name"`
	Source      string            `yaml:"source"`
	SourceCfg   SourceConfig      `yaml:"config"`
	Transforms  []TransformConfig `yaml:"transforms,omitempty"`
	Table       string            `yaml:"table"`
	KeyField    string            `yaml:"key_field"`
	GuardField  string            `yaml:"guard_field,omitempty"` // stale-update guard column, e.g. updated_date
	Mode        SyncMode          `yaml:"mode"`
	Incremental bool              `yaml:"incremental"`
	Schedule    string            `yaml:"schedule,omitempty"`   // cron expression for serve mode
	WatchPath   string            `yaml:"watch_path,omitempty"` // drop-folder trigger for serve mode
	Enabled     bool              `yaml:"enabled"`
}

// Defaults fills the fields most job definitions omit.
func (j *SyncJob) Defaults() {
	if j.KeyField == "" {
		j.KeyField = "id"
	}
	if j.Mode == "" {
		j.Mode = SyncUpsert
	}
}

// SyncResult is the outcome of running a sync job.
type SyncResult struct {
	Job         string        `json:"job"`
	Status      string        `json:"status"` // "success" | "error"
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	Watermark   string        `json:"watermark,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// RunLog is a historical record of a sync run, persisted to the local
// state database.
type RunLog struct {
	ID          string    `json:"id"`
	Job         string    `json:"job"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Status      string    `json:"status"`
	RowsRead    int       `json:"rowsRead"`
	RowsWritten int       `json:"rowsWritten"`
	Error       string    `json:"error,omitempty"`
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs sync jobs using the registered sources and a destination.
// Marks may be nil, in which case incremental jobs run unbounded.
type Engine struct {
	Dest   Destination
	Marks  WatermarkStore
	Logger *slog.Logger
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// RunSync executes a sync job end-to-end.
func (e *Engine) RunSync(ctx context.Context, job *SyncJob) (*SyncResult, error) {
	start := time.Now()
	job.Defaults()
	result := &SyncResult{Job: job.Name}

	fail := func(err error) (*SyncResult, error) {
		result.Status = "error"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}

	source, err := GetSource(job.Source)
	if err != nil {
		return fail(err)
	}
	if err := source.Spec().Validate(job.SourceCfg); err != nil {
		return fail(err)
	}

	// Bound the fetch with the stored watermark. The config is copied so
	// a scheduled job never carries a stale pointer into its next run.
	cfg := make(SourceConfig, len(job.SourceCfg)+1)
	for k, v := range job.SourceCfg {
		cfg[k] = v
	}
	if job.Incremental && e.Marks != nil {
		last, err := e.Marks.LastSeenID(ctx, job.Name)
		if err != nil {
			return fail(fmt.Errorf("read watermark: %w", err))
		}
		if last != "" {
			cfg[StopAtKey] = last
		}
	}

	schema, err := source.Discover(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("discover: %w", err))
	}

	recCh, errCh := source.Read(ctx, cfg)

	transformers := BuildTransformers(job.Transforms, job.KeyField)

	// Sources emit newest-first, so the first kept record carries the id
	// the next run stops at.
	var records []Record
	var newest string
	for rec := range recCh {
		result.RowsRead++
		transformed, keep := ApplyTransformers(rec, transformers)
		if !keep {
			continue
		}
		transformed = NormalizeRecord(transformed, schema)
		if newest == "" {
			newest = transformed.Key(job.KeyField)
		}
		records = append(records, transformed)
	}

	if err := <-errCh; err != nil {
		return fail(fmt.Errorf("read: %w", err))
	}

	outputSchema := deriveSchemaFromRecords(records, schema)

	written, err := e.Dest.Write(ctx, WriteRequest{
		Table:      job.Table,
		KeyField:   job.KeyField,
		GuardField: job.GuardField,
		Schema:     outputSchema,
		Records:    records,
		Mode:       job.Mode,
	})
	if err != nil {
		return fail(fmt.Errorf("write: %w", err))
	}

	if job.Incremental && e.Marks != nil && newest != "" {
		if err := e.Marks.SetLastSeenID(ctx, job.Name, newest); err != nil {
			return fail(fmt.Errorf("advance watermark: %w", err))
		}
		result.Watermark = newest
	}

	result.Status = "success"
	result.RowsWritten = written
	result.Duration = time.Since(start)

	e.logger().Info("sync complete",
		slog.String("job", job.Name),
		slog.String("table", job.Table),
		slog.Int("rows_read", result.RowsRead),
		slog.Int("rows_written", written),
		slog.Duration("took", result.Duration))

	return result, nil
}

// Preview executes only the source read phase and returns up to maxRows
// records, for inspecting a job definition before wiring it to a table.
func (e *Engine) Preview(ctx context.Context, sourceType string, cfg SourceConfig, maxRows int) ([]Record, *Schema, error) {
	source, err := GetSource(sourceType)
	if err != nil {
		return nil, nil, err
	}

	schema, err := source.Discover(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("discover: %w", err)
	}

	recCh, errCh := source.Read(ctx, cfg)

	var records []Record
	for rec := range recCh {
		records = append(records, rec)
		if len(records) >= maxRows {
			break
		}
	}

	// Drain remaining and check for errors.
	go func() {
		for range recCh {
		}
	}()
	if err := <-errCh; err != nil {
		return records, schema, err
	}

	return records, schema, nil
}

// deriveSchemaFromRecords builds a schema from the actual keys present in
// transformed records, preserving type hints from the source schema.
func deriveSchemaFromRecords(records []Record, sourceSchema *Schema) *Schema {
	if len(records) == 0 {
		return sourceSchema
	}

	typeMap := make(map[string]string)
	if sourceSchema != nil {
		for _, f := range sourceSchema.Fields {
			typeMap[f.Name] = f.Type
		}
	}

	seen := make(map[string]bool)
	var fieldNames []string
	for _, r := range records {
		for k := range r.Data {
			if !seen[k] {
				seen[k] = true
				fieldNames = append(fieldNames, k)
			}
		}
	}

	fields := make([]Field, 0, len(fieldNames))
	for _, name := range fieldNames {
		ft := typeMap[name]
		if ft == "" {
			ft = "text"
		}
		fields = append(fields, Field{Name: name, Type: ft})
	}

	return &Schema{Fields: fields}
}
