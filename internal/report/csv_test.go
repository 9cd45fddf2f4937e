package report_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"secsync/internal/etl"
	"secsync/internal/report"
)

// ─────────────────────────────────────────────────────────────
// CSV extract tests
// ─────────────────────────────────────────────────────────────

func TestWriteCSVExtracts_OneFilePerReport(t *testing.T) {
	dir := t.TempDir()
	schema := etl.Schema{Fields: []etl.Field{
		{Name: "id", Type: "text"},
		{Name: "score", Type: "number"},
		{Name: "seen_at", Type: "datetime"},
	}}

	paths, err := report.WriteCSVExtracts(dir, []report.Sheet{
		{
			Name:   "riskrecon_findings",
			Schema: schema,
			Records: []etl.Record{
				{Data: map[string]any{
					"id":      "f-1",
					"score":   7.5,
					"seen_at": time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
				}},
				{Data: map[string]any{"id": "f-2"}},
			},
		},
		{Name: "tap_blocked", Schema: schema},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected one file per report, got %v", paths)
	}
	if filepath.Base(paths[0]) != "riskrecon_findings.csv" {
		t.Fatalf("unexpected extract name %q", paths[0])
	}

	f, err := os.Open(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "id" || rows[0][1] != "score" || rows[0][2] != "seen_at" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][1] != "7.5" || rows[1][2] != "2025-03-01 10:00:00" {
		t.Fatalf("unexpected value rendering %v", rows[1])
	}
	if rows[2][1] != "" {
		t.Fatalf("absent fields must render empty, got %q", rows[2][1])
	}
}

func TestWriteCSVExtracts_NoSheets(t *testing.T) {
	if _, err := report.WriteCSVExtracts(t.TempDir(), nil); err == nil {
		t.Fatal("expected an error for an empty export")
	}
}
