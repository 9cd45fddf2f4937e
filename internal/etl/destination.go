package etl

import "context"

// ── Destination ────────────────────────────────────────────
// A Destination writes records into a target system. The primary
// destination is the Postgres warehouse; raw-event archival to MongoDB
// and Excel/CSV extracts implement the same interface.

// SyncMode determines how records are written to the destination.
type SyncMode string

const (
	// SyncUpsert inserts new rows and updates conflicting rows only when
	// the row hash differs. The default for incremental vendor syncs.
	SyncUpsert SyncMode = "upsert"
	// SyncReplace truncates the target before loading.
	SyncReplace SyncMode = "replace"
	// SyncAppend adds rows without touching existing ones.
	SyncAppend SyncMode = "append"
)

// WriteRequest carries one batch of transformed records to a destination.
// GuardField, when set, names a timestamp column that must not move
// backwards: an upsert only applies when the incoming value is newer than
// the stored one (NULL-safe, so rows without the column still load).
type WriteRequest struct {
	Table      string
	KeyField   string
	GuardField string
	Schema     *Schema
	Records    []Record
	Mode       SyncMode
}

// Destination writes records to a target system.
// Write returns the number of rows actually written (unchanged rows
// skipped by the hash guard do not count).
type Destination interface {
	Write(ctx context.Context, req WriteRequest) (int, error)
}

// FanOut writes each batch to every destination in order. The first
// destination's row count is the authoritative one; later destinations
// (the raw-event archive) fail the write but do not change the count.
type FanOut struct {
	Dests []Destination
}

func (f *FanOut) Write(ctx context.Context, req WriteRequest) (int, error) {
	var written int
	for i, d := range f.Dests {
		n, err := d.Write(ctx, req)
		if err != nil {
			return written, err
		}
		if i == 0 {
			written = n
		}
	}
	return written, nil
}

// WatermarkStore persists the incremental-fetch pointer per source type.
// One row per source, overwritten after every successful run.
type WatermarkStore interface {
	// LastSeenID returns the stored pointer, or "" on a fresh source.
	LastSeenID(ctx context.Context, sourceType string) (string, error)
	// SetLastSeenID overwrites the pointer and stamps the success time.
	SetLastSeenID(ctx context.Context, sourceType, id string) error
}
