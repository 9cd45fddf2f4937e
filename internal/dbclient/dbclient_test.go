package dbclient

import (
	"strings"
	"testing"
)

// ─────────────────────────────────────────────────────────────
// Connection settings tests
// ─────────────────────────────────────────────────────────────

func fullSection() map[string]string {
	return map[string]string{
		"host": "db.internal", "port": "5432", "dbname": "secops",
		"user": "loader", "password": "s3cret",
	}
}

func TestFromSection_DefaultsToPostgres(t *testing.T) {
	s, err := FromSection(fullSection())
	if err != nil {
		t.Fatal(err)
	}
	if s.Driver != DriverPostgres {
		t.Fatalf("expected postgres default, got %q", s.Driver)
	}
	if s.Port != 5432 || s.Host != "db.internal" {
		t.Fatalf("unexpected settings: %+v", s)
	}
}

func TestFromSection_MissingRequiredKey(t *testing.T) {
	for _, key := range []string{"host", "port", "dbname", "user", "password"} {
		section := fullSection()
		delete(section, key)
		if _, err := FromSection(section); err == nil {
			t.Fatalf("expected an error with %q missing", key)
		}
	}
}

func TestFromSection_BadPort(t *testing.T) {
	section := fullSection()
	section["port"] = "not-a-port"
	if _, err := FromSection(section); err == nil {
		t.Fatal("expected a bad port error")
	}
}

func TestFromSection_SQLiteNeedsNoCredentials(t *testing.T) {
	s, err := FromSection(map[string]string{"driver": "sqlite", "host": "/tmp/state.db"})
	if err != nil {
		t.Fatal(err)
	}
	if s.Driver != DriverSQLite {
		t.Fatalf("unexpected driver %q", s.Driver)
	}
}

func TestBuildPostgresDSN(t *testing.T) {
	s, _ := FromSection(fullSection())
	dsn := buildPostgresDSN(s)

	for _, part := range []string{"host=db.internal", "port=5432", "dbname=secops", "sslmode=disable"} {
		if !strings.Contains(dsn, part) {
			t.Fatalf("dsn missing %q: %s", part, dsn)
		}
	}
}

func TestBuildMySQLDSN(t *testing.T) {
	s, _ := FromSection(fullSection())
	s.Driver = DriverMySQL
	dsn := buildMySQLDSN(s)

	if !strings.HasPrefix(dsn, "loader:s3cret@tcp(db.internal:5432)/secops") {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Fatalf("dsn must enable parseTime: %s", dsn)
	}
}
