package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultFile is picked up from the working directory when no --config flag
// is given.
const DefaultFile = "alphaagents.json"

// DetectFile reports the default config file in dir, if one exists.
func DetectFile(dir string) (string, bool) {
	path := filepath.Join(dir, DefaultFile)
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path, true
	}
	return "", false
}

// LoadFile overlays a JSON config file on top of the defaults. Fields missing
// from the file keep their default (or environment) value.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteFile persists cfg as indented JSON, creating parent directories.
// Credentials are written as-is, so the file should stay private.
func WriteFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, path)
}
