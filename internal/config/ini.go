package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"

	"secsync/internal/etl"
)

// ── Connection INI files ───────────────────────────────────
// Credential handover arrives either as a plain INI file or as the same
// file base64-encoded in one blob. Detection is by attempting the
// decode: whole-file base64 that parses as INI wins, anything else is
// treated as plain INI.

// LoadINISection reads the named section of filename into a key-value
// map with lowercased keys.
func LoadINISection(filename, section string) (map[string]string, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", filename, err)
	}

	data := content
	if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(content))); err == nil {
		data = decoded
	}

	f, err := ini.Load(data)
	if err != nil {
		// The decode produced garbage; fall back to the raw bytes.
		if f, err = ini.Load(content); err != nil {
			return nil, fmt.Errorf("parse ini %s: %w", filename, err)
		}
	}

	sec, err := f.GetSection(section)
	if err != nil {
		return nil, fmt.Errorf("section [%s] not found in %s", section, filename)
	}

	out := make(map[string]string, len(sec.Keys()))
	for k, v := range sec.KeysHash() {
		out[strings.ToLower(k)] = v
	}
	return out, nil
}

// ReadToken resolves an API token: the environment variable wins, then
// the flat token file. Matches how the pollers have always been fed.
func ReadToken(envVar, tokenFile string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
		return v, nil
	}
	if tokenFile == "" {
		return "", fmt.Errorf("no token: set %s or provide a token file", envVar)
	}
	data, err := os.ReadFile(tokenFile)
	if err != nil {
		return "", fmt.Errorf("read token file %s: %w", tokenFile, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", tokenFile)
	}
	return token, nil
}

// ResolveSourceSecrets replaces *_file indirections in a source config
// with the file contents, so job YAML never embeds credentials.
func ResolveSourceSecrets(cfg etl.SourceConfig) error {
	if envKey := cfg.String("token_env", ""); envKey != "" && cfg.String("token", "") == "" {
		token, err := ReadToken(envKey, cfg.String("token_file", ""))
		if err != nil {
			return err
		}
		cfg["token"] = token
		delete(cfg, "token_env")
		delete(cfg, "token_file")
	}
	for _, key := range []string{"token", "secret", "principal"} {
		fileKey := key + "_file"
		path := cfg.String(fileKey, "")
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s %s: %w", fileKey, path, err)
		}
		cfg[key] = strings.TrimSpace(string(data))
		delete(cfg, fileKey)
	}
	return nil
}
