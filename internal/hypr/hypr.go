// Package hypr wraps the hyprctl commands parley drives on Hyprland.
package hypr

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// FocusWindow focuses the first window whose class matches the regex.
func FocusWindow(ctx context.Context, classRegex string) error {
	classRegex = strings.TrimSpace(classRegex)
	if classRegex == "" {
		return errors.New("focuswindow requires a class")
	}
	return runHyprctl(ctx, "--quiet", "dispatch", "focuswindow", "class:"+classRegex)
}

// CloseWindow closes the window at a hyprctl address.
func CloseWindow(ctx context.Context, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return errors.New("closewindow requires an address")
	}
	return runHyprctl(ctx, "--quiet", "dispatch", "closewindow", "address:"+address)
}

// Exec launches a command through the compositor so it detaches from parley.
func Exec(ctx context.Context, command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return errors.New("exec requires a command")
	}
	return runHyprctl(ctx, "--quiet", "dispatch", "exec", command)
}

func runHyprctl(ctx context.Context, args ...string) error {
	_, err := runHyprctlOutput(ctx, args...)
	return err
}

func runHyprctlOutput(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "hyprctl", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return nil, fmt.Errorf("hyprctl %v failed: %w", args, err)
		}
		return nil, fmt.Errorf("hyprctl %v failed: %w (%s)", args, err, trimmed)
	}
	return out, nil
}
