package host

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rbright/parley/internal/hypr"
)

var keysyms = map[string]string{
	"backspace": "BackSpace",
	"delete":    "Delete",
	"down":      "Down",
	"end":       "End",
	"enter":     "Return",
	"escape":    "Escape",
	"home":      "Home",
	"left":      "Left",
	"pagedown":  "Page_Down",
	"pageup":    "Page_Up",
	"return":    "Return",
	"right":     "Right",
	"space":     "space",
	"tab":       "Tab",
	"up":        "Up",
}

var modifierNames = map[string]string{
	"alt":     "ALT",
	"cmd":     "SUPER",
	"command": "SUPER",
	"control": "CTRL",
	"ctrl":    "CTRL",
	"meta":    "SUPER",
	"option":  "ALT",
	"shift":   "SHIFT",
	"super":   "SUPER",
	"win":     "SUPER",
	"windows": "SUPER",
}

// PressKey sends one shortcut count times to the focused window.
func (h *Hyprland) PressKey(ctx context.Context, key string, modifiers []string, count int) error {
	if count <= 0 {
		count = 1
	}
	window, err := activeWindowWithRetry(ctx, 5, 10*time.Millisecond)
	if err != nil {
		return err
	}
	payload, err := buildShortcut(modifiers, key, window.Address)
	if err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		if err := hypr.SendShortcut(ctx, payload); err != nil {
			return err
		}
		if err := sleepContext(ctx, h.opts.KeyDelay); err != nil {
			return err
		}
	}
	return nil
}

// TypeText types text with the type command, or pastes it outside terminals
// when clipboard insertion is enabled.
func (h *Hyprland) TypeText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if h.opts.TypeViaClipboard {
		window, err := activeWindowWithRetry(ctx, 5, 10*time.Millisecond)
		if err == nil && !h.policy.IsTerminal(window.Class) {
			return h.typeWithClipboard(ctx, text, window.Address)
		}
	}
	if err := runCommandWithInput(ctx, h.opts.TypeArgv, text); err != nil {
		return fmt.Errorf("type text: %w", err)
	}
	return sleepContext(ctx, h.opts.KeyDelay)
}

func (h *Hyprland) typeWithClipboard(ctx context.Context, text string, address string) error {
	previous, readErr := h.Clipboard(ctx)
	if err := h.SetClipboard(ctx, text); err != nil {
		return err
	}
	payload, err := buildPasteShortcut(h.opts.PasteShortcut, address)
	if err != nil {
		return err
	}
	if err := hypr.SendShortcut(ctx, payload); err != nil {
		return err
	}
	if err := sleepContext(ctx, 100*time.Millisecond); err != nil {
		return err
	}
	if readErr != nil {
		return nil
	}
	if err := h.SetClipboard(ctx, previous); err != nil {
		h.logger.Warn("restore clipboard failed", "error", err.Error())
	}
	return nil
}

// buildShortcut renders a sendshortcut payload: "MODS,KEY,address:ADDR".
func buildShortcut(modifiers []string, key string, windowAddress string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("shortcut key cannot be empty")
	}
	if sym, ok := keysyms[strings.ToLower(key)]; ok {
		key = sym
	}

	mods := make([]string, 0, len(modifiers))
	for _, m := range modifiers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if name, ok := modifierNames[m]; ok {
			mods = append(mods, name)
			continue
		}
		mods = append(mods, strings.ToUpper(m))
	}
	return buildPasteShortcut(strings.Join(mods, " ")+","+key, windowAddress)
}

func buildPasteShortcut(shortcut string, windowAddress string) (string, error) {
	shortcut = strings.TrimSpace(shortcut)
	if shortcut == "" {
		return "", fmt.Errorf("paste shortcut cannot be empty")
	}

	address := strings.TrimSpace(windowAddress)
	if address == "" {
		return "", fmt.Errorf("active window address is required")
	}

	return fmt.Sprintf("%s,address:%s", shortcut, address), nil
}

func activeWindowWithRetry(ctx context.Context, attempts int, delay time.Duration) (hypr.ActiveWindow, error) {
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		window, err := hypr.QueryActiveWindow(ctx)
		if err == nil {
			return window, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return hypr.ActiveWindow{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("active window unavailable")
	}
	return hypr.ActiveWindow{}, fmt.Errorf("resolve active window: %w", lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
