package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rbright/parley/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyLoads(t *testing.T) {
	p := Default()
	require.Equal(t, "term", p.Aliases["terminal"])
	require.Contains(t, p.DictationPrefixes, "dictate")
	require.Contains(t, p.AutoExecute.Commands, wire.CommandUndo)
	require.NotContains(t, p.AutoExecute.Commands, wire.CommandLaunch)
	require.Equal(t, 0.9, p.FuzzyThreshold)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default().Editors, p.Editors)
}

func TestLoadOverridesListsAndMergesAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
aliases:
  browser: firefox
editors: [Zed]
custom_commands:
  - id: build
    argv: [make, build]
    auto_execute: true
`), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"zed"}, p.Editors)
	require.Equal(t, "firefox", p.Aliases["browser"])
	require.Equal(t, "term", p.Aliases["terminal"])

	custom, ok := p.Custom("build")
	require.True(t, ok)
	require.True(t, custom.AutoExecute)
	require.Equal(t, []string{"make", "build"}, custom.Argv)
}

func TestParseRejectsUnknownFieldsAndBadCommands(t *testing.T) {
	_, err := Parse(strings.NewReader("surprise: true\n"), Default())
	require.Error(t, err)

	_, err = Parse(strings.NewReader("auto_execute:\n  commands: [TELEPORT]\n"), Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown command type")
}

func TestValidateRejectsDuplicateCustomIDs(t *testing.T) {
	p := Default()
	p.CustomCommands = []CustomCommand{
		{ID: "a", Argv: []string{"true"}},
		{ID: "a", Argv: []string{"true"}},
		{ID: "", Argv: nil},
	}
	err := Validate(p)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicated")
	require.Contains(t, err.Error(), "id must not be empty")
}

func TestIsDictation(t *testing.T) {
	p := Default()
	require.True(t, p.IsDictation("type hello world"))
	require.True(t, p.IsDictation("Insert x"))
	require.True(t, p.IsDictation("typed the rest"))
	require.True(t, p.IsDictation("  Adding a line"))
	require.True(t, p.IsDictation("typewriter"))
	require.False(t, p.IsDictation("scroll down"))
	require.False(t, p.IsDictation(""))
}

func TestNeverAuto(t *testing.T) {
	p := Default()
	require.True(t, p.NeverAuto("run tests"))
	require.False(t, p.NeverAuto("go to line 5"))
}

func TestAutoExecutes(t *testing.T) {
	p := Default()
	require.True(t, p.AutoExecutes(wire.Command{Type: wire.CommandSave}))
	require.True(t, p.AutoExecutes(wire.Command{Type: wire.CommandPress, Key: "Enter"}))
	require.True(t, p.AutoExecutes(wire.Command{Type: wire.CommandPress, Text: "tab"}))
	require.False(t, p.AutoExecutes(wire.Command{Type: wire.CommandPress, Key: "a"}))
	require.False(t, p.AutoExecutes(wire.Command{Type: wire.CommandLaunch}))
}

func TestClassify(t *testing.T) {
	p := Default()
	require.Equal(t, "vscode", p.Classify("Code-OSS"))
	require.Equal(t, "chrome", p.Classify("Brave-browser"))
	require.Equal(t, "terminal", p.Classify("org.wezfurlong.wezterm"))
	require.Equal(t, "obsidian", p.Classify("Obsidian"))
	require.True(t, p.IsEditor("vscode"))
	require.True(t, p.IsBrowser("chrome"))
	require.False(t, p.IsBrowser("firefox"))
}

func TestMatchApplications(t *testing.T) {
	p := Default()
	apps := []string{"Google Chrome", "gnome-terminal", "code", "Slack"}

	require.Equal(t, []string{"gnome-terminal"}, p.MatchApplications("Terminal", apps))
	require.Equal(t, []string{"Google Chrome"}, p.MatchApplications("googlechrome", []string{"Google Chrome"}))
	require.Equal(t, []string{"code"}, p.MatchApplications("visual studio code", apps))
	require.Equal(t, []string{"Slack"}, p.MatchApplications("slak", apps))
	require.Empty(t, p.MatchApplications("photoshop", apps))
	require.Empty(t, p.MatchApplications("  ", apps))
}
