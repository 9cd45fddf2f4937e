package config_test

import (
	"path/filepath"
	"testing"

	"secsync/internal/config"
)

// ─────────────────────────────────────────────────────────────
// YAML config tests
// ─────────────────────────────────────────────────────────────

const sampleYAML = `app:
  log_level: debug
  workers: 2
  state_db: ./state.db
database:
  ini_file: ${TEST_INI_PATH}
jobs:
  - name: psat_users
    source: psat
    enabled: true
    incremental: true
    table: psat_users
    config:
      report: users
      token: abc
`

func TestLoad_ExpandsEnvAndValidates(t *testing.T) {
	t.Setenv("TEST_INI_PATH", "/etc/secsync/database.ini")
	path := writeFile(t, "config.yaml", sampleYAML)

	cfg := config.NewDefaultConfig()
	if err := config.Load(path, cfg); err != nil {
		t.Fatal(err)
	}

	if cfg.Database.INIFile != "/etc/secsync/database.ini" {
		t.Fatalf("expected env expansion, got %q", cfg.Database.INIFile)
	}
	if cfg.Database.INISection != "postgresql" {
		t.Fatalf("expected the default ini section, got %q", cfg.Database.INISection)
	}
	if cfg.App.Workers != 2 {
		t.Fatalf("expected workers from yaml, got %d", cfg.App.Workers)
	}

	job, err := cfg.Job("psat_users")
	if err != nil {
		t.Fatal(err)
	}
	// Validation applies job defaults.
	if job.KeyField != "id" || string(job.Mode) != "upsert" {
		t.Fatalf("expected job defaults applied, got %+v", job)
	}
}

func TestLoadWithDefaults_FallsBackWhenPrimaryMissing(t *testing.T) {
	t.Setenv("TEST_INI_PATH", "/etc/secsync/database.ini")
	fallback := writeFile(t, "fallback.yaml", sampleYAML)
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg := config.NewDefaultConfig()
	if err := config.LoadWithDefaults(missing, fallback, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.App.Workers != 2 {
		t.Fatalf("expected the fallback file to load, got workers=%d", cfg.App.Workers)
	}

	cfg = config.NewDefaultConfig()
	if err := config.LoadWithDefaults(missing, "", cfg); err == nil {
		t.Fatal("expected an error with no fallback configured")
	}
}

func TestLoad_RejectsDuplicateJobNames(t *testing.T) {
	yaml := sampleYAML + `  - name: psat_users
    source: psat
    table: other
    config:
      report: users
      token: abc
`
	t.Setenv("TEST_INI_PATH", "/tmp/db.ini")
	path := writeFile(t, "config.yaml", yaml)

	cfg := config.NewDefaultConfig()
	if err := config.Load(path, cfg); err == nil {
		t.Fatal("expected a duplicate job name error")
	}
}

func TestLoad_RejectsBadWorkerCount(t *testing.T) {
	t.Setenv("TEST_INI_PATH", "/tmp/db.ini")
	path := writeFile(t, "config.yaml", `app:
  workers: 99
  state_db: ./state.db
database:
  ini_file: /tmp/db.ini
`)

	cfg := config.NewDefaultConfig()
	if err := config.Load(path, cfg); err == nil {
		t.Fatal("expected a validation error for workers out of range")
	}
}

func TestConfig_JobLookupMiss(t *testing.T) {
	cfg := config.NewDefaultConfig()
	if _, err := cfg.Job("nope"); err == nil {
		t.Fatal("expected a lookup error for an unknown job")
	}
}
