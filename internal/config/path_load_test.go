package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPrecedence(t *testing.T) {
	explicit := "/tmp/custom.jsonc"
	resolved, err := ResolvePath(explicit)
	require.NoError(t, err)
	require.Equal(t, explicit, resolved)

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "parley", "config.jsonc"), resolved)

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "parley", "config.jsonc"), resolved)
}

func TestLoadMissingConfigUsesDefaultsWithWarning(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "missing.jsonc")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.False(t, loaded.Exists)
	require.Empty(t, loaded.PolicyPath)
	require.Equal(t, Default(), loaded.Config)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "not found")
}

func TestLoadExistingJSONCParsesAndValidates(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.jsonc")
	contents := `
{
  "engine": {"endpoint": "wss://engine.example:443/stream"},
  "audio": {"input": "Elgato", "fallback": "default"},
  "plugin": {"listen": "127.0.0.1:18000"},
}
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, path, loaded.Path)
	require.Equal(t, "wss://engine.example:443/stream", loaded.Config.Engine.Endpoint)
	require.Equal(t, "Elgato", loaded.Config.Audio.Input)
	require.Equal(t, "127.0.0.1:18000", loaded.Config.Plugin.Listen)
}

func TestLoadParseErrorIncludesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jsonc")
	require.NoError(t, os.WriteFile(path, []byte("{ not-json }"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
	require.Contains(t, err.Error(), path)
}

func TestLoadResolvesPolicyPath(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	implicit := filepath.Join(xdg, "parley", "policy.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(implicit), 0o700))
	require.NoError(t, os.WriteFile(implicit, []byte("dictation: []\n"), 0o600))

	loaded, err := Load(filepath.Join(t.TempDir(), "missing.jsonc"))
	require.NoError(t, err)
	require.Equal(t, implicit, loaded.PolicyPath)

	path := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"policy_file": "/nonexistent/policy.yaml"}`), 0o600))
	_, err = Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "policy_file")
}
