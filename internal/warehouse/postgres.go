// Package warehouse implements the Postgres destination: lazily created
// tables, hash-guarded batched upserts, and the watermark state table.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"secsync/internal/dbclient"
	"secsync/internal/etl"
)

// Batched statements stay well under the Postgres parameter limit.
const maxRowsPerStatement = 500

// Writer writes record batches into Postgres tables.
// It implements etl.Destination.
type Writer struct {
	DB *sql.DB
}

// NewWriter returns the warehouse destination for an opened connection.
// The DDL and upsert SQL this package emits is Postgres-specific, so the
// other dbclient drivers are refused up front instead of failing on the
// first batch.
func NewWriter(db *sql.DB, driver string) (*Writer, error) {
	if driver != dbclient.DriverPostgres {
		return nil, fmt.Errorf("warehouse writes require driver=postgres, got %q", driver)
	}
	return &Writer{DB: db}, nil
}

// Write ensures the destination table exists, then loads the batch in a
// single transaction. In upsert mode rows whose stored row_hash equals
// the incoming one are left untouched, so re-applying a batch is a no-op.
func (w *Writer) Write(ctx context.Context, req etl.WriteRequest) (int, error) {
	if len(req.Records) == 0 {
		return 0, nil
	}
	if req.Schema == nil {
		return 0, fmt.Errorf("table %s: no schema", req.Table)
	}

	cols := columnOrder(req.Schema, req.KeyField)
	if req.Mode == etl.SyncUpsert {
		for _, r := range req.Records {
			if r.Key(req.KeyField) == "" {
				return 0, fmt.Errorf("table %s: record missing key field %q", req.Table, req.KeyField)
			}
		}
	}

	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, buildCreateTableSQL(req.Table, req.Schema, req.KeyField)); err != nil {
		return 0, fmt.Errorf("ensure table %s: %w", req.Table, err)
	}
	// Columns added by upstream schema drift.
	for _, stmt := range buildAddColumnSQL(req.Table, req.Schema, req.KeyField) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("ensure columns %s: %w", req.Table, err)
		}
	}

	if req.Mode == etl.SyncReplace {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, quoteIdent(req.Table))); err != nil {
			return 0, fmt.Errorf("clear table %s: %w", req.Table, err)
		}
	}

	written := 0
	for start := 0; start < len(req.Records); start += maxRowsPerStatement {
		end := min(start+maxRowsPerStatement, len(req.Records))
		chunk := req.Records[start:end]

		stmt := buildInsertSQL(req.Table, cols, req.KeyField, req.GuardField, req.Mode, len(chunk))
		args := make([]any, 0, len(chunk)*len(cols))
		for _, rec := range chunk {
			args = append(args, rowValues(rec, cols, req.Schema)...)
		}

		res, err := tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return 0, fmt.Errorf("load %s: %w", req.Table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			written += int(n)
		} else {
			written += len(chunk)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s: %w", req.Table, err)
	}
	return written, nil
}

// columnOrder returns the destination column list: key first, schema
// order after, row_hash last.
func columnOrder(schema *etl.Schema, keyField string) []string {
	cols := []string{keyField}
	for _, f := range schema.Fields {
		if f.Name != keyField && f.Name != etl.HashColumn {
			cols = append(cols, f.Name)
		}
	}
	return append(cols, etl.HashColumn)
}

func sqlType(fieldType string) string {
	switch fieldType {
	case "number":
		return "DOUBLE PRECISION"
	case "boolean":
		return "BOOLEAN"
	case "datetime":
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func buildCreateTableSQL(table string, schema *etl.Schema, keyField string) string {
	defs := []string{fmt.Sprintf("%s TEXT PRIMARY KEY", quoteIdent(keyField))}
	for _, f := range schema.Fields {
		if f.Name == keyField || f.Name == etl.HashColumn {
			continue
		}
		defs = append(defs, fmt.Sprintf("%s %s", quoteIdent(f.Name), sqlType(f.Type)))
	}
	defs = append(defs, fmt.Sprintf("%s TEXT", quoteIdent(etl.HashColumn)))
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
}

func buildAddColumnSQL(table string, schema *etl.Schema, keyField string) []string {
	var stmts []string
	for _, f := range schema.Fields {
		if f.Name == keyField || f.Name == etl.HashColumn {
			continue
		}
		stmts = append(stmts, fmt.Sprintf(
			"ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
			quoteIdent(table), quoteIdent(f.Name), sqlType(f.Type)))
	}
	return stmts
}

// buildInsertSQL renders the batched statement for rows×cols placeholders.
// Upsert mode carries the hash guard so unchanged rows are not rewritten;
// a guard field additionally blocks updates that would move a recency
// column backwards.
func buildInsertSQL(table string, cols []string, keyField, guardField string, mode etl.SyncMode, rows int) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", quoteIdent(table), strings.Join(quoted, ", "))

	p := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for c := range cols {
			if c > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", p)
			p++
		}
		sb.WriteString(")")
	}

	if mode != etl.SyncUpsert {
		return sb.String()
	}

	var sets []string
	for _, c := range cols {
		if c == keyField {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(c), quoteIdent(c)))
	}
	fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET %s WHERE %s.%s IS DISTINCT FROM EXCLUDED.%s",
		quoteIdent(keyField), strings.Join(sets, ", "),
		quoteIdent(table), quoteIdent(etl.HashColumn), quoteIdent(etl.HashColumn))

	if guardField != "" && guardField != keyField {
		fmt.Fprintf(&sb, " AND (%s.%s IS NULL OR EXCLUDED.%s IS NULL OR EXCLUDED.%s >= %s.%s)",
			quoteIdent(table), quoteIdent(guardField),
			quoteIdent(guardField),
			quoteIdent(guardField), quoteIdent(table), quoteIdent(guardField))
	}

	return sb.String()
}

// rowValues renders one record in column order, computing the row hash
// over every non-metadata column.
func rowValues(rec etl.Record, cols []string, schema *etl.Schema) []any {
	vals := make([]any, 0, len(cols))
	for _, c := range cols {
		if c == etl.HashColumn {
			vals = append(vals, etl.RowHash(rec, cols))
			continue
		}
		v, ok := rec.Data[c]
		if !ok {
			vals = append(vals, nil)
			continue
		}
		vals = append(vals, etl.NormalizeValue(v, schema.FieldType(c)))
	}
	return vals
}
