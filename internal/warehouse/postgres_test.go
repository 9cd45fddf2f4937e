package warehouse

import (
	"strings"
	"testing"

	"secsync/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// SQL builder tests
// ─────────────────────────────────────────────────────────────

func testSchema() *etl.Schema {
	return &etl.Schema{Fields: []etl.Field{
		{Name: "id", Type: "text"},
		{Name: "score", Type: "number"},
		{Name: "active", Type: "boolean"},
		{Name: "updated_date", Type: "datetime"},
	}}
}

func TestBuildCreateTableSQL(t *testing.T) {
	got := buildCreateTableSQL("incidents", testSchema(), "id")

	want := `CREATE TABLE IF NOT EXISTS "incidents" ("id" TEXT PRIMARY KEY, "score" DOUBLE PRECISION, "active" BOOLEAN, "updated_date" TIMESTAMPTZ, "row_hash" TEXT)`
	if got != want {
		t.Fatalf("unexpected DDL:\n got %s\nwant %s", got, want)
	}
}

func TestBuildAddColumnSQL(t *testing.T) {
	stmts := buildAddColumnSQL("incidents", testSchema(), "id")

	if len(stmts) != 3 {
		t.Fatalf("expected one ALTER per non-key column, got %d", len(stmts))
	}
	if stmts[0] != `ALTER TABLE "incidents" ADD COLUMN IF NOT EXISTS "score" DOUBLE PRECISION` {
		t.Fatalf("unexpected ALTER: %s", stmts[0])
	}
}

func TestBuildInsertSQL_UpsertHashGuard(t *testing.T) {
	cols := columnOrder(testSchema(), "id")
	got := buildInsertSQL("incidents", cols, "id", "", etl.SyncUpsert, 2)

	if !strings.HasPrefix(got, `INSERT INTO "incidents" ("id", "score", "active", "updated_date", "row_hash") VALUES ($1, $2, $3, $4, $5), ($6, $7, $8, $9, $10)`) {
		t.Fatalf("unexpected VALUES block: %s", got)
	}
	if !strings.Contains(got, `ON CONFLICT ("id") DO UPDATE SET`) {
		t.Fatalf("missing conflict clause: %s", got)
	}
	if !strings.Contains(got, `WHERE "incidents"."row_hash" IS DISTINCT FROM EXCLUDED."row_hash"`) {
		t.Fatalf("missing hash guard: %s", got)
	}
	if strings.Contains(got, `"id" = EXCLUDED."id"`) {
		t.Fatalf("key column must not appear in the SET list: %s", got)
	}
}

func TestBuildInsertSQL_RecencyGuard(t *testing.T) {
	cols := columnOrder(testSchema(), "id")
	got := buildInsertSQL("incidents", cols, "id", "updated_date", etl.SyncUpsert, 1)

	guard := `AND ("incidents"."updated_date" IS NULL OR EXCLUDED."updated_date" IS NULL OR EXCLUDED."updated_date" >= "incidents"."updated_date")`
	if !strings.Contains(got, guard) {
		t.Fatalf("missing recency guard:\n%s", got)
	}
}

func TestBuildInsertSQL_AppendHasNoConflictClause(t *testing.T) {
	cols := columnOrder(testSchema(), "id")
	got := buildInsertSQL("incidents", cols, "id", "", etl.SyncAppend, 1)

	if strings.Contains(got, "ON CONFLICT") {
		t.Fatalf("append mode must be a plain insert: %s", got)
	}
}

func TestColumnOrder(t *testing.T) {
	cols := columnOrder(testSchema(), "id")

	if cols[0] != "id" {
		t.Fatal("key column must come first")
	}
	if cols[len(cols)-1] != etl.HashColumn {
		t.Fatal("row_hash must come last")
	}
	if len(cols) != 5 {
		t.Fatalf("unexpected column count: %v", cols)
	}
}

func TestRowValues_ComputesHashAndNormalizes(t *testing.T) {
	schema := testSchema()
	cols := columnOrder(schema, "id")
	rec := etl.Record{Data: map[string]any{
		"id": "1", "score": "7.5", "active": "yes",
	}}

	vals := rowValues(rec, cols, schema)
	if len(vals) != len(cols) {
		t.Fatalf("expected one value per column, got %d", len(vals))
	}
	if vals[1] != 7.5 {
		t.Fatalf("expected normalized number, got %v", vals[1])
	}
	if vals[2] != true {
		t.Fatalf("expected normalized bool, got %v", vals[2])
	}
	if vals[3] != nil {
		t.Fatalf("absent column should load as NULL, got %v", vals[3])
	}
	hash, ok := vals[len(vals)-1].(string)
	if !ok || len(hash) != 64 {
		t.Fatalf("expected a sha256 hex hash last, got %v", vals[len(vals)-1])
	}

	// The same record must produce the same hash on a second render.
	again := rowValues(rec, cols, schema)
	if again[len(again)-1] != hash {
		t.Fatal("row hash must be stable across renders")
	}
}

func TestNewWriter_RefusesNonPostgresDrivers(t *testing.T) {
	for _, driver := range []string{"mysql", "sqlite", ""} {
		if _, err := NewWriter(nil, driver); err == nil {
			t.Fatalf("driver %q: expected an error, the writer emits Postgres SQL", driver)
		}
	}
	w, err := NewWriter(nil, "postgres")
	if err != nil {
		t.Fatalf("postgres driver refused: %v", err)
	}
	if w == nil {
		t.Fatal("expected a writer")
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := quoteIdent(`weird"name`); got != `"weird""name"` {
		t.Fatalf("unexpected quoting: %s", got)
	}
}
