package dbclient

import (
	"fmt"

	_ "github.com/lib/pq"
)

// buildPostgresDSN constructs a Postgres connection string.
func buildPostgresDSN(s ConnSettings) string {
	port := s.Port
	if port == 0 {
		port = 5432
	}
	sslMode := s.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		s.Host, port, s.User, s.Password, s.DBName, sslMode,
	)
}
