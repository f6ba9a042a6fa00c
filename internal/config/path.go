package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const appDir = "parley"

// ResolvePath applies CLI/XDG/home fallback rules for config.jsonc location.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.jsonc"), nil
}

// ResolvePolicyPath returns the policy table to load, or "" when the
// embedded defaults apply. An explicit policy_file must exist; the
// implicit policy.yaml is used only when present.
func ResolvePolicyPath(cfg Config) (string, error) {
	if cfg.PolicyFile != "" {
		if _, err := os.Stat(cfg.PolicyFile); err != nil {
			return "", err
		}
		return cfg.PolicyFile, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", nil
	}
	path := filepath.Join(dir, "policy.yaml")
	if _, err := os.Stat(path); err != nil {
		return "", nil
	}
	return path, nil
}

func configDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, appDir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}
	return filepath.Join(home, ".config", appDir), nil
}
