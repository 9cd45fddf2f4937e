package dbclient

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// buildMySQLDSN constructs a MySQL DSN.
func buildMySQLDSN(s ConnSettings) string {
	port := s.Port
	if port == 0 {
		port = 3306
	}
	// Format: user:password@tcp(host:port)/dbname?parseTime=true
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		s.User, s.Password, s.Host, port, s.DBName,
	)
	if s.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}
