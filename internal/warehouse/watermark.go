package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ── Watermark store ────────────────────────────────────────
// One row per source, overwritten after every successful run and read
// before the next one to bound the incremental fetch. Never historized.

// MarkStore persists last-seen pointers in the warehouse itself, so the
// watermark and the data it gates commit against the same database.
// It implements etl.WatermarkStore.
type MarkStore struct {
	DB *sql.DB
}

// Ensure creates the state table when missing.
func (m *MarkStore) Ensure(ctx context.Context) error {
	_, err := m.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS etl_sync_state (
			source_type TEXT PRIMARY KEY,
			last_seen_id TEXT,
			last_success_time TIMESTAMPTZ
		)`)
	if err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	return nil
}

// LastSeenID returns the stored pointer for sourceType, "" when none.
func (m *MarkStore) LastSeenID(ctx context.Context, sourceType string) (string, error) {
	var id sql.NullString
	err := m.DB.QueryRowContext(ctx,
		`SELECT last_seen_id FROM etl_sync_state WHERE source_type = $1`, sourceType,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read watermark %s: %w", sourceType, err)
	}
	return id.String, nil
}

// SetLastSeenID overwrites the pointer and stamps the success time.
func (m *MarkStore) SetLastSeenID(ctx context.Context, sourceType, id string) error {
	_, err := m.DB.ExecContext(ctx, `
		INSERT INTO etl_sync_state (source_type, last_seen_id, last_success_time)
		VALUES ($1, $2, NOW())
		ON CONFLICT (source_type) DO UPDATE
		  SET last_seen_id = EXCLUDED.last_seen_id,
		      last_success_time = EXCLUDED.last_success_time`,
		sourceType, id)
	if err != nil {
		return fmt.Errorf("write watermark %s: %w", sourceType, err)
	}
	return nil
}
