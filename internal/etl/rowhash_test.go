package etl_test

import (
	"testing"
	"time"

	"secsync/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// RowHash tests
// ─────────────────────────────────────────────────────────────

func TestRowHash_EqualValuesEqualHash(t *testing.T) {
	cols := []string{"id", "name", "score"}
	a := etl.Record{Data: map[string]any{"id": "42", "name": "alice", "score": 9.5}}
	b := etl.Record{Data: map[string]any{"score": 9.5, "id": "42", "name": "alice"}}

	if etl.RowHash(a, cols) != etl.RowHash(b, cols) {
		t.Fatal("expected identical values to hash equally regardless of map order")
	}
}

func TestRowHash_DifferentValuesDifferentHash(t *testing.T) {
	cols := []string{"id", "name"}
	a := etl.Record{Data: map[string]any{"id": "42", "name": "alice"}}
	b := etl.Record{Data: map[string]any{"id": "42", "name": "bob"}}

	if etl.RowHash(a, cols) == etl.RowHash(b, cols) {
		t.Fatal("expected differing values to produce differing hashes")
	}
}

func TestRowHash_NormalizedRepresentationsHashEqually(t *testing.T) {
	schema := &etl.Schema{Fields: []etl.Field{
		{Name: "id", Type: "text"},
		{Name: "active", Type: "boolean"},
		{Name: "count", Type: "number"},
		{Name: "seen", Type: "datetime"},
	}}
	cols := schema.FieldNames()

	a := etl.NormalizeRecord(etl.Record{Data: map[string]any{
		"id": "1", "active": "TRUE", "count": "5.0", "seen": "2025-03-01T12:00:00Z",
	}}, schema)
	b := etl.NormalizeRecord(etl.Record{Data: map[string]any{
		"id": "1", "active": true, "count": 5.0, "seen": time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}}, schema)

	if etl.RowHash(a, cols) != etl.RowHash(b, cols) {
		t.Fatal("expected normalized spellings of the same values to hash equally")
	}
}

func TestRowHash_ExcludesHashColumn(t *testing.T) {
	cols := []string{"id", etl.HashColumn}
	a := etl.Record{Data: map[string]any{"id": "1"}}
	b := etl.Record{Data: map[string]any{"id": "1", etl.HashColumn: "deadbeef"}}

	if etl.RowHash(a, cols) != etl.RowHash(b, cols) {
		t.Fatal("expected the hash column to be excluded from its own input")
	}
}

func TestRowHash_AbsentAndNilHashEqually(t *testing.T) {
	cols := []string{"id", "optional"}
	a := etl.Record{Data: map[string]any{"id": "1"}}
	b := etl.Record{Data: map[string]any{"id": "1", "optional": nil}}

	if etl.RowHash(a, cols) != etl.RowHash(b, cols) {
		t.Fatal("expected absent and nil values to hash equally")
	}
}
