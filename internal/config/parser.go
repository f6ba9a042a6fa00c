package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

type payload struct {
	Engine    *enginePayload    `json:"engine"`
	Stream    *streamPayload    `json:"stream"`
	Audio     *audioPayload     `json:"audio"`
	VAD       *vadPayload       `json:"vad"`
	Execute   *executePayload   `json:"execute"`
	Display   *displayPayload   `json:"display"`
	Plugin    *pluginPayload    `json:"plugin"`
	Keyboard  *keyboardPayload  `json:"keyboard"`
	Indicator *indicatorPayload `json:"indicator"`

	ClipboardCmd     *string `json:"clipboard_cmd"`
	ClipboardReadCmd *string `json:"clipboard_read_cmd"`
	TypeCmd          *string `json:"type_cmd"`
	PolicyFile       *string `json:"policy_file"`

	Debug *debugPayload `json:"debug"`
}

type enginePayload struct {
	Endpoint      *string `json:"endpoint"`
	DialTimeoutMS *int    `json:"dial_timeout_ms"`
	Token         *string `json:"token"`
}

type streamPayload struct {
	KeepAliveIntervalMS *int `json:"keepalive_interval_ms"`
	KeepAliveTimeoutMS  *int `json:"keepalive_timeout_ms"`
	IdleTimeoutMS       *int `json:"idle_timeout_ms"`
	IdleCheckIntervalMS *int `json:"idle_check_interval_ms"`
}

type audioPayload struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type vadPayload struct {
	SpeechThreshold  *float64 `json:"speech_threshold"`
	StartFrames      *int     `json:"start_frames"`
	EndSilenceFrames *int     `json:"end_silence_frames"`
	PrerollFrames    *int     `json:"preroll_frames"`
}

type executePayload struct {
	SilenceThreshold *float64 `json:"silence_threshold"`
	MaxKeystrokes    *int     `json:"max_keystrokes"`
	UndoDepth        *int     `json:"undo_depth"`
	ChunkCapacity    *int     `json:"chunk_capacity"`
}

type displayPayload struct {
	MiniMode          *bool `json:"mini_mode"`
	FewerAlternatives *bool `json:"fewer_alternatives"`
	Alternatives      *int  `json:"alternatives"`
	HideTimeoutMS     *int  `json:"hide_timeout_ms"`
}

type pluginPayload struct {
	Listen    *string `json:"listen"`
	TimeoutMS *int    `json:"timeout_ms"`
}

type keyboardPayload struct {
	TypeViaClipboard *bool   `json:"type_via_clipboard"`
	PasteShortcut    *string `json:"paste_shortcut"`
	KeyDelayMS       *int    `json:"key_delay_ms"`
}

type indicatorPayload struct {
	Enable           *bool   `json:"enable"`
	SoundEnable      *bool   `json:"sound_enable"`
	ErrorTimeoutMS   *int    `json:"error_timeout_ms"`
	SoundListenFile  *string `json:"sound_listen_file"`
	SoundPauseFile   *string `json:"sound_pause_file"`
	SoundExecuteFile *string `json:"sound_execute_file"`
	SoundErrorFile   *string `json:"sound_error_file"`
}

type debugPayload struct {
	Verbose    *bool `json:"verbose"`
	StreamDump *bool `json:"stream_dump"`
}

// Parse decodes JSONC content over base and validates the result. Empty
// content validates and returns base unchanged.
func Parse(content string, base Config) (Config, []Warning, error) {
	if strings.TrimSpace(content) == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}

	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var p payload
	if err := decoder.Decode(&p); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := p.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (p payload) applyTo(cfg *Config) error {
	if e := p.Engine; e != nil {
		setString(&cfg.Engine.Endpoint, e.Endpoint)
		set(&cfg.Engine.DialTimeoutMS, e.DialTimeoutMS)
		setString(&cfg.Engine.Token, e.Token)
	}

	if s := p.Stream; s != nil {
		set(&cfg.Stream.KeepAliveIntervalMS, s.KeepAliveIntervalMS)
		set(&cfg.Stream.KeepAliveTimeoutMS, s.KeepAliveTimeoutMS)
		set(&cfg.Stream.IdleTimeoutMS, s.IdleTimeoutMS)
		set(&cfg.Stream.IdleCheckIntervalMS, s.IdleCheckIntervalMS)
	}

	if a := p.Audio; a != nil {
		set(&cfg.Audio.Input, a.Input)
		set(&cfg.Audio.Fallback, a.Fallback)
	}

	if v := p.VAD; v != nil {
		set(&cfg.VAD.SpeechThreshold, v.SpeechThreshold)
		set(&cfg.VAD.StartFrames, v.StartFrames)
		set(&cfg.VAD.EndSilenceFrames, v.EndSilenceFrames)
		set(&cfg.VAD.PrerollFrames, v.PrerollFrames)
	}

	if x := p.Execute; x != nil {
		set(&cfg.Execute.SilenceThreshold, x.SilenceThreshold)
		set(&cfg.Execute.MaxKeystrokes, x.MaxKeystrokes)
		set(&cfg.Execute.UndoDepth, x.UndoDepth)
		set(&cfg.Execute.ChunkCapacity, x.ChunkCapacity)
	}

	if d := p.Display; d != nil {
		set(&cfg.Display.MiniMode, d.MiniMode)
		set(&cfg.Display.FewerAlternatives, d.FewerAlternatives)
		set(&cfg.Display.Alternatives, d.Alternatives)
		set(&cfg.Display.HideTimeoutMS, d.HideTimeoutMS)
	}

	if pl := p.Plugin; pl != nil {
		setString(&cfg.Plugin.Listen, pl.Listen)
		set(&cfg.Plugin.TimeoutMS, pl.TimeoutMS)
	}

	if k := p.Keyboard; k != nil {
		set(&cfg.Keyboard.TypeViaClipboard, k.TypeViaClipboard)
		setString(&cfg.Keyboard.PasteShortcut, k.PasteShortcut)
		set(&cfg.Keyboard.KeyDelayMS, k.KeyDelayMS)
	}

	if i := p.Indicator; i != nil {
		set(&cfg.Indicator.Enable, i.Enable)
		set(&cfg.Indicator.SoundEnable, i.SoundEnable)
		set(&cfg.Indicator.ErrorTimeoutMS, i.ErrorTimeoutMS)
		setString(&cfg.Indicator.SoundListenFile, i.SoundListenFile)
		setString(&cfg.Indicator.SoundPauseFile, i.SoundPauseFile)
		setString(&cfg.Indicator.SoundExecuteFile, i.SoundExecuteFile)
		setString(&cfg.Indicator.SoundErrorFile, i.SoundErrorFile)
	}

	commands := []struct {
		key string
		raw *string
		dst *CommandConfig
	}{
		{"clipboard_cmd", p.ClipboardCmd, &cfg.Clipboard},
		{"clipboard_read_cmd", p.ClipboardReadCmd, &cfg.ClipboardRead},
		{"type_cmd", p.TypeCmd, &cfg.Type},
	}
	for _, c := range commands {
		if c.raw == nil {
			continue
		}
		argv, err := parseArgv(*c.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", c.key, err)
		}
		*c.dst = CommandConfig{Raw: *c.raw, Argv: argv}
	}

	setString(&cfg.PolicyFile, p.PolicyFile)

	if d := p.Debug; d != nil {
		set(&cfg.Debug.Verbose, d.Verbose)
		set(&cfg.Debug.StreamDump, d.StreamDump)
	}

	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}
