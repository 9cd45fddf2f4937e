package dbclient

import (
	_ "modernc.org/sqlite"
)

// buildSQLiteDSN treats the host field as the database file path.
// Opens in WAL mode with busy timeout for concurrent access.
func buildSQLiteDSN(s ConnSettings) string {
	return s.Host + "?_journal_mode=WAL&_busy_timeout=5000"
}
