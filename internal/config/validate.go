package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	endpoint, err := validateEndpoint(cfg.Engine.Endpoint)
	if err != nil {
		return nil, err
	}
	if cfg.Engine.Token != "" && endpoint.Scheme == "ws" && !isLoopback(endpoint.Hostname()) {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("engine.token is sent unencrypted to %s; use wss://", endpoint.Host)})
	}
	if cfg.Engine.DialTimeoutMS <= 0 {
		return nil, fmt.Errorf("engine.dial_timeout_ms must be > 0")
	}

	positive := []struct {
		key   string
		value int
	}{
		{"stream.keepalive_interval_ms", cfg.Stream.KeepAliveIntervalMS},
		{"stream.keepalive_timeout_ms", cfg.Stream.KeepAliveTimeoutMS},
		{"stream.idle_timeout_ms", cfg.Stream.IdleTimeoutMS},
		{"stream.idle_check_interval_ms", cfg.Stream.IdleCheckIntervalMS},
		{"vad.start_frames", cfg.VAD.StartFrames},
		{"vad.end_silence_frames", cfg.VAD.EndSilenceFrames},
		{"execute.max_keystrokes", cfg.Execute.MaxKeystrokes},
		{"execute.undo_depth", cfg.Execute.UndoDepth},
		{"display.alternatives", cfg.Display.Alternatives},
		{"plugin.timeout_ms", cfg.Plugin.TimeoutMS},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return nil, fmt.Errorf("%s must be > 0", p.key)
		}
	}

	nonNegative := []struct {
		key   string
		value int
	}{
		{"vad.preroll_frames", cfg.VAD.PrerollFrames},
		{"display.hide_timeout_ms", cfg.Display.HideTimeoutMS},
		{"keyboard.key_delay_ms", cfg.Keyboard.KeyDelayMS},
		{"indicator.error_timeout_ms", cfg.Indicator.ErrorTimeoutMS},
	}
	for _, n := range nonNegative {
		if n.value < 0 {
			return nil, fmt.Errorf("%s must be >= 0", n.key)
		}
	}

	if cfg.Stream.KeepAliveTimeoutMS >= cfg.Stream.KeepAliveIntervalMS {
		warnings = append(warnings, Warning{Message: "stream.keepalive_timeout_ms is not shorter than stream.keepalive_interval_ms; keepalives will overlap"})
	}
	if cfg.VAD.SpeechThreshold <= 0 {
		return nil, fmt.Errorf("vad.speech_threshold must be > 0")
	}
	if cfg.Execute.SilenceThreshold <= 0 {
		return nil, fmt.Errorf("execute.silence_threshold must be > 0")
	}
	if cfg.Execute.ChunkCapacity < 2 {
		return nil, fmt.Errorf("execute.chunk_capacity must be >= 2")
	}
	if cfg.Display.Alternatives > 9 {
		return nil, fmt.Errorf("display.alternatives must be <= 9")
	}

	if _, _, err := net.SplitHostPort(cfg.Plugin.Listen); err != nil {
		return nil, fmt.Errorf("plugin.listen must be host:port: %w", err)
	}
	if strings.TrimSpace(cfg.Keyboard.PasteShortcut) == "" {
		return nil, fmt.Errorf("keyboard.paste_shortcut must not be empty")
	}

	if len(cfg.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_cmd must not be empty")
	}
	if len(cfg.ClipboardRead.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_read_cmd must not be empty")
	}
	if len(cfg.Type.Argv) == 0 && !cfg.Keyboard.TypeViaClipboard {
		return nil, fmt.Errorf("type_cmd must not be empty when keyboard.type_via_clipboard=false")
	}

	if cfg.Debug.StreamDump {
		warnings = append(warnings, Warning{Message: "debug.stream_dump is enabled; transcripts are written to disk"})
	}

	return warnings, nil
}

func validateEndpoint(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("engine.endpoint must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("engine.endpoint is not a URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "grpc":
	default:
		return nil, fmt.Errorf("engine.endpoint scheme must be one of: ws, wss, grpc")
	}
	if u.Host == "" {
		return nil, fmt.Errorf("engine.endpoint must include a host")
	}
	return u, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
