package config_test

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"secsync/internal/config"
	"secsync/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// INI loader tests
// ─────────────────────────────────────────────────────────────

const sampleINI = `[postgresql]
host = db.internal
port = 5432
dbname = secops
user = loader
password = s3cret
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadINISection_Plain(t *testing.T) {
	path := writeFile(t, "database.ini", sampleINI)

	section, err := config.LoadINISection(path, "postgresql")
	if err != nil {
		t.Fatal(err)
	}
	if section["host"] != "db.internal" || section["password"] != "s3cret" {
		t.Fatalf("unexpected section: %v", section)
	}
}

func TestLoadINISection_Base64Encoded(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(sampleINI))
	path := writeFile(t, "database.ini", encoded)

	section, err := config.LoadINISection(path, "postgresql")
	if err != nil {
		t.Fatal(err)
	}
	if section["dbname"] != "secops" {
		t.Fatalf("expected the encoded file to decode, got %v", section)
	}
}

func TestLoadINISection_MissingSection(t *testing.T) {
	path := writeFile(t, "database.ini", sampleINI)

	if _, err := config.LoadINISection(path, "mysql"); err == nil {
		t.Fatal("expected a missing-section error")
	}
}

func TestLoadINISection_LowercasesKeys(t *testing.T) {
	path := writeFile(t, "database.ini", "[postgresql]\nHOST = db\nPort = 5432\nDBName = x\nUser = u\nPassword = p\n")

	section, err := config.LoadINISection(path, "postgresql")
	if err != nil {
		t.Fatal(err)
	}
	if section["host"] != "db" || section["port"] != "5432" {
		t.Fatalf("expected lowercased keys, got %v", section)
	}
}

// ─────────────────────────────────────────────────────────────
// Token resolution tests
// ─────────────────────────────────────────────────────────────

func TestReadToken_EnvWins(t *testing.T) {
	tokenFile := writeFile(t, "token.txt", "file-token\n")
	t.Setenv("TEST_API_KEY", "env-token")

	token, err := config.ReadToken("TEST_API_KEY", tokenFile)
	if err != nil {
		t.Fatal(err)
	}
	if token != "env-token" {
		t.Fatalf("expected the env var to win, got %q", token)
	}
}

func TestReadToken_FileFallback(t *testing.T) {
	tokenFile := writeFile(t, "token.txt", "  file-token \n")
	t.Setenv("TEST_API_KEY", "")

	token, err := config.ReadToken("TEST_API_KEY", tokenFile)
	if err != nil {
		t.Fatal(err)
	}
	if token != "file-token" {
		t.Fatalf("expected the trimmed file contents, got %q", token)
	}
}

func TestReadToken_NothingConfigured(t *testing.T) {
	t.Setenv("TEST_API_KEY", "")
	if _, err := config.ReadToken("TEST_API_KEY", ""); err == nil {
		t.Fatal("expected an error with no env and no file")
	}
}

func TestResolveSourceSecrets(t *testing.T) {
	secretFile := writeFile(t, "secret.txt", "hunter2\n")
	cfg := etl.SourceConfig{"secret_file": secretFile, "principal": "svc"}

	if err := config.ResolveSourceSecrets(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.String("secret", "") != "hunter2" {
		t.Fatalf("expected the file contents inlined, got %v", cfg)
	}
	if _, ok := cfg["secret_file"]; ok {
		t.Fatal("the file indirection key must be removed")
	}
}

func TestResolveSourceSecrets_TokenEnv(t *testing.T) {
	t.Setenv("SOME_VENDOR_KEY", "abc123")
	cfg := etl.SourceConfig{"token_env": "SOME_VENDOR_KEY"}

	if err := config.ResolveSourceSecrets(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.String("token", "") != "abc123" {
		t.Fatalf("expected the env token resolved, got %v", cfg)
	}
}
