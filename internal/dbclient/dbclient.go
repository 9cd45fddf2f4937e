// Package dbclient opens database/sql connections to the warehouse
// backends from INI-derived connection settings.
package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// Driver names accepted in connection settings.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// ConnSettings is a parsed connection INI section.
type ConnSettings struct {
	Driver   string
	Host     string
	Port     int
	DBName   string
	User     string
	Password string
	SSLMode  string
}

// FromSection builds ConnSettings from a key-value INI section.
// Required keys: host, port, dbname, user, password.
func FromSection(section map[string]string) (ConnSettings, error) {
	driver := section["driver"]
	if driver == "" {
		driver = DriverPostgres
	}

	if driver != DriverSQLite {
		for _, key := range []string{"host", "port", "dbname", "user", "password"} {
			if section[key] == "" {
				return ConnSettings{}, fmt.Errorf("db config missing %q", key)
			}
		}
	}
	port := 0
	if section["port"] != "" {
		var err error
		if port, err = strconv.Atoi(section["port"]); err != nil {
			return ConnSettings{}, fmt.Errorf("db config: bad port %q", section["port"])
		}
	}
	return ConnSettings{
		Driver:   driver,
		Host:     section["host"],
		Port:     port,
		DBName:   section["dbname"],
		User:     section["user"],
		Password: section["password"],
		SSLMode:  section["sslmode"],
	}, nil
}

// Open opens a pooled connection for the configured driver and verifies
// it with a ping. A connection failure here aborts the whole sync run.
func Open(ctx context.Context, s ConnSettings) (*sql.DB, error) {
	var driverName, dsn string
	switch s.Driver {
	case DriverPostgres:
		driverName, dsn = "postgres", buildPostgresDSN(s)
	case DriverMySQL:
		driverName, dsn = "mysql", buildMySQLDSN(s)
	case DriverSQLite:
		driverName, dsn = "sqlite", buildSQLiteDSN(s)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", s.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Driver, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", s.Driver, err)
	}
	return db, nil
}
