package etl

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ── Row hash ───────────────────────────────────────────────
// A stable digest over a record's normalized column values, used as a
// change token by the upsert path: rows whose hash matches the stored one
// are not rewritten. It is never used as an identifier.

// HashColumn is the destination column the row hash is stored in.
// It is excluded from its own input.
const HashColumn = "row_hash"

// RowHash computes the hex digest over the canonical JSON encoding of the
// record restricted to cols. Values must already be normalized; keys are
// sorted by the JSON encoder so field order never affects the digest.
func RowHash(r Record, cols []string) string {
	payload := make(map[string]any, len(cols))
	for _, c := range cols {
		if c == HashColumn {
			continue
		}
		v, ok := r.Data[c]
		if !ok || v == nil {
			payload[c] = nil
			continue
		}
		payload[c] = stringify(v)
	}
	// Marshal of map[string]any cannot fail for string values.
	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
