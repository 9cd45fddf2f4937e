package config

import (
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"secsync/internal/etl"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Database DatabaseConfig    `yaml:"database"`
	Archive  ArchiveConfig     `yaml:"archive"`
	Jobs     []etl.SyncJob     `yaml:"jobs"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Archive.Validate(); err != nil {
		return err
	}

	seen := map[string]bool{}
	for i := range c.Jobs {
		j := &c.Jobs[i]
		j.Defaults()
		if err := validateJob(j); err != nil {
			return fmt.Errorf("job %d (%s): %w", i, j.Name, err)
		}
		if seen[j.Name] {
			return fmt.Errorf("duplicate job name %q", j.Name)
		}
		seen[j.Name] = true
	}
	return nil
}

// Job returns the configured job with the given name.
func (c *Config) Job(name string) (*etl.SyncJob, error) {
	for i := range c.Jobs {
		if c.Jobs[i].Name == name {
			return &c.Jobs[i], nil
		}
	}
	return nil, fmt.Errorf("job %q not configured", name)
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel string `yaml:"log_level"`
	Workers  int    `yaml:"workers"`
	StateDB  string `yaml:"state_db"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(16)),
		validation.Field(&c.StateDB, validation.Required),
	)
}

// SlogLevel maps the configured level name onto slog.Level.
func (c *ApplicationConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DatabaseConfig points at the warehouse connection INI file.
type DatabaseConfig struct {
	INIFile    string `yaml:"ini_file"`
	INISection string `yaml:"ini_section"`
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	if c.INISection == "" {
		c.INISection = "postgresql"
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.INIFile, validation.Required),
	)
}

// ArchiveConfig holds the optional MongoDB raw-event archive settings.
// An empty URI disables archiving.
type ArchiveConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// Enabled reports whether archiving is configured.
func (c *ArchiveConfig) Enabled() bool { return c.URI != "" }

// Validate validates the archive configuration.
func (c *ArchiveConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Database, validation.Required),
	)
}

func validateJob(j *etl.SyncJob) error {
	if j.Name == "" {
		return fmt.Errorf("name is required")
	}
	if j.Source == "" {
		return fmt.Errorf("source is required")
	}
	if j.Table == "" {
		return fmt.Errorf("table is required")
	}
	switch j.Mode {
	case etl.SyncUpsert, etl.SyncReplace, etl.SyncAppend:
	default:
		return fmt.Errorf("mode must be upsert, replace or append, got %q", j.Mode)
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: "info",
			Workers:  4,
			StateDB:  "./secsync_state.db",
		},
		Database: DatabaseConfig{
			INISection: "postgresql",
		},
	}
}
