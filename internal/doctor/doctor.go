// Package doctor runs runtime readiness diagnostics for config, tools,
// audio, policy, and the speech engine.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/policy"
	"github.com/rbright/parley/internal/protocol"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", status, check.Name, check.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	checks := []Check{configCheck(loaded)}

	checks = append(checks, checkEnv("XDG_SESSION_TYPE", func(v string) bool {
		return strings.EqualFold(strings.TrimSpace(v), "wayland")
	}, "session type is wayland", "expected XDG_SESSION_TYPE=wayland"))

	checks = append(checks, checkEnv("HYPRLAND_INSTANCE_SIGNATURE", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "Hyprland session detected", "HYPRLAND_INSTANCE_SIGNATURE is empty"))

	checks = append(checks,
		checkBinary("hyprctl", "window focus and key presses"),
		checkCommand(cfg.Clipboard.Argv, "clipboard_cmd"),
		checkCommand(cfg.ClipboardRead.Argv, "clipboard_read_cmd"),
	)
	if !cfg.Keyboard.TypeViaClipboard {
		checks = append(checks, checkCommand(cfg.Type.Argv, "type_cmd"))
	}

	checks = append(checks,
		checkAudioSelection(ctx, cfg),
		checkPolicy(loaded.PolicyPath),
		checkEngine(ctx, cfg.Engine),
	)

	return Report{Checks: checks}
}

func configCheck(loaded config.Loaded) Check {
	if !loaded.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", loaded.Path)}
	}
	return Check{Name: "config", Pass: true, Message: fmt.Sprintf("loaded %q", loaded.Path)}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

func checkPolicy(path string) Check {
	if path == "" {
		return Check{Name: "policy", Pass: true, Message: "using built-in defaults"}
	}
	if _, err := policy.Load(path); err != nil {
		return Check{Name: "policy", Pass: false, Message: err.Error()}
	}
	return Check{Name: "policy", Pass: true, Message: fmt.Sprintf("loaded %q", path)}
}

// checkEngine dials the configured engine endpoint and closes it again.
func checkEngine(ctx context.Context, cfg config.EngineConfig) Check {
	timeout := time.Duration(cfg.DialTimeoutMS) * time.Millisecond
	dial, err := protocol.NewDialer(protocol.Endpoint{URL: cfg.Endpoint, Token: cfg.Token, DialTimeout: timeout})
	if err != nil {
		return Check{Name: "engine", Pass: false, Message: err.Error()}
	}

	started := time.Now()
	transport, err := dial(ctx)
	if err != nil {
		return Check{Name: "engine", Pass: false, Message: fmt.Sprintf("dial %s: %v", cfg.Endpoint, err)}
	}
	_ = transport.Close()
	return Check{Name: "engine", Pass: true, Message: fmt.Sprintf("reachable at %s in %s", cfg.Endpoint, time.Since(started).Round(time.Millisecond))}
}
