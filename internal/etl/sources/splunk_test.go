package sources_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"secsync/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// Splunk source tests
// ─────────────────────────────────────────────────────────────

const splunkCSV = `"Incident ID","Status","Updated Date"
"INC-2","open","Mar 2, 2025 9:15:00 AM"
"INC-1","closed","Mar 1, 2025 12:30:00 PM"
`

func TestSplunk_ReadParsesExportCSV(t *testing.T) {
	var gotPath, gotAuth, gotSearch, gotMode string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotSearch = r.URL.Query().Get("search")
		gotMode = r.URL.Query().Get("output_mode")
		fmt.Fprint(w, splunkCSV)
	}))
	defer server.Close()

	src, err := etl.GetSource("splunk")
	if err != nil {
		t.Fatal(err)
	}
	cfg := etl.SourceConfig{
		"host":   server.URL,
		"search": "All Incidents",
		"token":  "tok123",
	}

	records, err := collect(t, src, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/servicesNS/-/-/search/jobs/export" {
		t.Fatalf("unexpected export path %q", gotPath)
	}
	if gotAuth != "Bearer tok123" {
		t.Fatalf("expected a bearer token, got %q", gotAuth)
	}
	if gotSearch != "savedsearch All Incidents" {
		t.Fatalf("unexpected search %q", gotSearch)
	}
	if gotMode != "csv" {
		t.Fatalf("expected csv output mode, got %q", gotMode)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(records))
	}
	if records[0].Data["incident_id"] != "INC-2" {
		t.Fatalf("expected snake_cased headers, got %v", records[0].Data)
	}
	if records[0].Data["status"] != "open" {
		t.Fatalf("unexpected row values: %v", records[0].Data)
	}
}

func TestSplunk_DatetimeFieldsMarkedInSchema(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, splunkCSV)
	}))
	defer server.Close()

	src, _ := etl.GetSource("splunk")
	schema, err := src.Discover(context.Background(), etl.SourceConfig{
		"host":            server.URL,
		"search":          "All Incidents",
		"token":           "tok",
		"datetime_fields": "updated_date",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := schema.FieldType("updated_date"); got != "datetime" {
		t.Fatalf("expected updated_date marked as datetime, got %q", got)
	}
	if got := schema.FieldType("status"); got != "text" {
		t.Fatalf("expected status to stay text, got %q", got)
	}
}
