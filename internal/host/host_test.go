package host

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rbright/parley/internal/policy"
	"github.com/stretchr/testify/require"
)

func TestRunCommandWithInputWritesStdin(t *testing.T) {
	scriptPath := writeStdinCaptureScript(t)
	outputPath := filepath.Join(t.TempDir(), "stdin.txt")

	err := runCommandWithInput(context.Background(), []string{scriptPath, outputPath}, "hello from parley")
	require.NoError(t, err)

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.Equal(t, "hello from parley", string(data))
}

func TestRunCommandWithInputRejectsEmptyArgv(t *testing.T) {
	err := runCommandWithInput(context.Background(), nil, "payload")
	require.Error(t, err)
	require.Contains(t, err.Error(), "argv cannot be empty")
}

func TestClipboardRoundTripThroughCommands(t *testing.T) {
	clipboardPath := filepath.Join(t.TempDir(), "clipboard.txt")
	h := NewHyprland(Options{
		ClipboardArgv:     []string{writeStdinCaptureScript(t), clipboardPath},
		ClipboardReadArgv: []string{"cat", clipboardPath},
	}, policy.Default(), nil)

	require.NoError(t, h.SetClipboard(context.Background(), "copied words"))
	got, err := h.Clipboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, "copied words", got)
}

func TestSetClipboardWrapsCommandFailure(t *testing.T) {
	h := NewHyprland(Options{ClipboardArgv: []string{writeFailScript(t, "clipboard failed")}}, policy.Default(), nil)

	err := h.SetClipboard(context.Background(), "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "set clipboard")
}

func TestBuildShortcut(t *testing.T) {
	t.Parallel()

	t.Run("maps key names and modifiers", func(t *testing.T) {
		got, err := buildShortcut([]string{"control", "Shift"}, "left", "0xabc")
		require.NoError(t, err)
		require.Equal(t, "CTRL SHIFT,Left,address:0xabc", got)
	})

	t.Run("passes through plain keys", func(t *testing.T) {
		got, err := buildShortcut(nil, "a", "0xabc")
		require.NoError(t, err)
		require.Equal(t, ",a,address:0xabc", got)
	})

	t.Run("rejects empty key", func(t *testing.T) {
		_, err := buildShortcut(nil, " ", "0xabc")
		require.Error(t, err)
		require.Contains(t, err.Error(), "key")
	})

	t.Run("rejects empty address", func(t *testing.T) {
		_, err := buildPasteShortcut("CTRL,V", "")
		require.Error(t, err)
		require.Contains(t, err.Error(), "address")
	})
}

func TestPressKeyRepeatsShortcut(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "hypr-args.log")
	t.Setenv("HYPR_ARGS_FILE", argsFile)
	installHyprctlStub(t)

	h := NewHyprland(Options{}, policy.Default(), nil)
	require.NoError(t, h.PressKey(context.Background(), "backspace", nil, 3))

	lines := readLines(t, argsFile)
	require.Len(t, lines, 3)
	require.Equal(t, "--quiet dispatch sendshortcut ,BackSpace,address:0xabc", lines[0])
}

func TestTypeTextUsesTypeCommand(t *testing.T) {
	typedPath := filepath.Join(t.TempDir(), "typed.txt")
	h := NewHyprland(Options{TypeArgv: []string{writeStdinCaptureScript(t), typedPath}}, policy.Default(), nil)

	require.NoError(t, h.TypeText(context.Background(), "hello"))
	data, err := os.ReadFile(typedPath)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	require.NoError(t, h.TypeText(context.Background(), ""))
}

func TestTypeTextViaClipboardPastesAndRestores(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "hypr-args.log")
	t.Setenv("HYPR_ARGS_FILE", argsFile)
	installHyprctlStub(t)

	clipboardPath := filepath.Join(t.TempDir(), "clipboard.txt")
	require.NoError(t, os.WriteFile(clipboardPath, []byte("previous"), 0o600))

	h := NewHyprland(Options{
		ClipboardArgv:     []string{writeStdinCaptureScript(t), clipboardPath},
		ClipboardReadArgv: []string{"cat", clipboardPath},
		TypeViaClipboard:  true,
		PasteShortcut:     "CTRL,V",
	}, policy.Default(), nil)

	require.NoError(t, h.TypeText(context.Background(), "inserted"))

	lines := readLines(t, argsFile)
	require.Equal(t, []string{"--quiet dispatch sendshortcut CTRL,V,address:0xabc"}, lines)
	data, err := os.ReadFile(clipboardPath)
	require.NoError(t, err)
	require.Equal(t, "previous", string(data))
}

func TestTypeTextViaClipboardFallsBackToKeystrokesInTerminals(t *testing.T) {
	t.Setenv("HYPR_ACTIVEWINDOW_JSON", `{"address":"0x1","class":"kitty"}`)
	t.Setenv("HYPR_ARGS_FILE", filepath.Join(t.TempDir(), "hypr-args.log"))
	installHyprctlStub(t)

	typedPath := filepath.Join(t.TempDir(), "typed.txt")
	h := NewHyprland(Options{
		TypeArgv:         []string{writeStdinCaptureScript(t), typedPath},
		TypeViaClipboard: true,
	}, policy.Default(), nil)

	require.NoError(t, h.TypeText(context.Background(), "ls -la"))
	data, err := os.ReadFile(typedPath)
	require.NoError(t, err)
	require.Equal(t, "ls -la", string(data))
}

func TestActiveWindowWithRetryHonorsContextCancel(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := activeWindowWithRetry(ctx, 3, 10*time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
}

func TestInstalledApplicationsScansDesktopEntries(t *testing.T) {
	userDir := t.TempDir()
	systemDir := t.TempDir()
	writeDesktopEntry(t, userDir, "firefox.desktop", "[Desktop Entry]\nType=Application\nName=Firefox Nightly\n")
	writeDesktopEntry(t, systemDir, "firefox.desktop", "[Desktop Entry]\nType=Application\nName=Firefox\n")
	writeDesktopEntry(t, systemDir, "hidden.desktop", "[Desktop Entry]\nType=Application\nName=Hidden\nNoDisplay=true\n")
	writeDesktopEntry(t, systemDir, "link.desktop", "[Desktop Entry]\nType=Link\nName=Docs\n")
	writeDesktopEntry(t, systemDir, "org.gnome.Terminal.desktop", "[Desktop Entry]\nType=Application\nName=Terminal\n[Desktop Action new]\nName=New Window\n")

	h := NewHyprland(Options{ApplicationDirs: []string{userDir, systemDir, filepath.Join(t.TempDir(), "missing")}}, policy.Default(), nil)
	apps, err := h.InstalledApplications(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Firefox Nightly", "Terminal"}, apps)
}

func TestLaunchFocusQuitDispatch(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "hypr-args.log")
	t.Setenv("HYPR_ARGS_FILE", argsFile)
	installHyprctlStub(t)

	appDir := t.TempDir()
	writeDesktopEntry(t, appDir, "org.gnome.Terminal.desktop", "[Desktop Entry]\nType=Application\nName=Terminal\n")
	h := NewHyprland(Options{ApplicationDirs: []string{appDir}}, policy.Default(), nil)
	ctx := context.Background()

	require.NoError(t, h.Launch(ctx, "terminal"))
	require.NoError(t, h.Focus(ctx, "firefox"))
	require.NoError(t, h.Quit(ctx, "kitty"))
	require.Error(t, h.Focus(ctx, "photoshop"))

	running, err := h.RunningApplications(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"firefox", "kitty"}, running)

	lines := readLines(t, argsFile)
	require.Equal(t, []string{
		"--quiet dispatch exec gtk-launch org.gnome.Terminal",
		"--quiet dispatch focuswindow class:^(firefox)$",
		"--quiet dispatch closewindow address:0x2",
		"--quiet dispatch closewindow address:0x3",
	}, lines)
}

func TestUnsupportedCapabilities(t *testing.T) {
	h := NewHyprland(Options{}, policy.Default(), nil)
	_, err := h.ClickableTargets(context.Background())
	require.ErrorIs(t, err, ErrUnsupported)
	_, err = h.EditorState(context.Background())
	require.ErrorIs(t, err, ErrUnsupported)
}

func writeStdinCaptureScript(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "capture-stdin.sh")
	script := `#!/usr/bin/env bash
set -euo pipefail
cat > "$1"
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func writeFailScript(t *testing.T, message string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "fail.sh")
	script := "#!/usr/bin/env bash\nset -euo pipefail\necho " + "\"" + message + "\"" + " >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func writeDesktopEntry(t *testing.T, dir string, name string, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func installHyprctlStub(t *testing.T) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "hyprctl")
	script := `#!/usr/bin/env bash
set -euo pipefail
if [[ "${1:-}" == "-j" && "${2:-}" == "activewindow" ]]; then
  if [[ -n "${HYPR_ACTIVEWINDOW_JSON:-}" ]]; then
    echo "${HYPR_ACTIVEWINDOW_JSON}"
  else
    echo '{"address":"0xabc","class":"brave-browser","initialClass":"brave-browser"}'
  fi
  exit 0
fi
if [[ "${1:-}" == "-j" && "${2:-}" == "clients" ]]; then
  echo '[{"address":"0x1","class":"firefox","mapped":true},{"address":"0x2","class":"kitty","mapped":true},{"address":"0x3","class":"kitty","mapped":true}]'
  exit 0
fi
printf '%s\n' "$*" >> "${HYPR_ARGS_FILE}"
`
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimSpace(script)+"\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}
