package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded captures the resolved config and policy paths, parsed values, and
// non-fatal warnings.
type Loaded struct {
	Path       string
	PolicyPath string
	Config     Config
	Warnings   []Warning
	Exists     bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: path, Config: Default()}
	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = []Warning{{Message: fmt.Sprintf("config file %q not found; using defaults", path)}}
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	default:
		cfg, warnings, err := Parse(string(content), loaded.Config)
		if err != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
		}
		loaded.Config = cfg
		loaded.Warnings = warnings
		loaded.Exists = true
	}

	loaded.PolicyPath, err = ResolvePolicyPath(loaded.Config)
	if err != nil {
		return Loaded{}, fmt.Errorf("policy_file: %w", err)
	}
	return loaded, nil
}
